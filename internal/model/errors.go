package model

import (
	"context"
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, monitoring, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeInvalidLimit      = "INVALID_LIMIT"
	ErrCodeScanUnavailable   = "SCAN_UNAVAILABLE"
	ErrCodeRateLimited       = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "管理者認証が必要です。",
		Category: "auth",
		Action:   "Authorizationヘッダーに管理者トークンを指定してください。",
	}
}

// NewInvalidLimitError は取得件数が不正な場合のエラーを生成する。
func NewInvalidLimitError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLimit,
		Message:  fmt.Sprintf("無効な取得件数です: %s", raw),
		Category: "validation",
		Action:   "limitには1以上の整数を指定してください。",
	}
}

// NewScanUnavailableError は手動スキャンを開始できない場合のエラーを生成する。
func NewScanUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeScanUnavailable,
		Message:  fmt.Sprintf("スキャンを実行できませんでした: %s", reason),
		Category: "monitoring",
		Action:   "データベースと取得バックエンドの状態を確認してから再度お試しください。",
	}
}

// NewRateLimitError は管理APIのレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// エンジンのセットアップ段階で発生する致命的エラー。
var (
	// ErrRegionListUnavailable は対象リージョン一覧を取得できなかったことを示す。
	ErrRegionListUnavailable = errors.New("対象リージョン一覧を取得できません")
	// ErrFetchBackendUnavailable は取得バックエンドに到達できないことを示す。
	ErrFetchBackendUnavailable = errors.New("取得バックエンドに到達できません")
)

// FetchErrorKind はページ取得失敗の種別。
type FetchErrorKind string

const (
	// FetchErrorTimeout はタイムアウト。
	FetchErrorTimeout FetchErrorKind = "timeout"
	// FetchErrorBlocked はボット対策によるブロック。
	FetchErrorBlocked FetchErrorKind = "blocked"
	// FetchErrorNetwork は通信エラーまたは想定外のHTTPステータス。
	FetchErrorNetwork FetchErrorKind = "network"
	// FetchErrorParse はマークアップ・フィードの解析エラー。
	FetchErrorParse FetchErrorKind = "parse"
)

// FetchError はRegionFetcherが返す分類済みエラー。
type FetchError struct {
	Kind FetchErrorKind
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s", e.Kind)
	}
	return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError はFetchErrorを生成する。
func NewFetchError(kind FetchErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

// FetchErrorKindOf はエラーから取得失敗の種別を判定する。
// FetchErrorでないエラーのうち、期限切れはtimeout、それ以外はnetworkとして扱う。
func FetchErrorKindOf(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FetchErrorTimeout
	}
	return FetchErrorNetwork
}
