package model

import "time"

// ScanStatus はリージョンスキャンの結果ステータス。
type ScanStatus string

const (
	// ScanStatusSuccess はスキャン成功。
	ScanStatusSuccess ScanStatus = "success"
	// ScanStatusFailed はスキャン失敗（タイムアウト、通信エラー、パースエラー、永続化エラー）。
	ScanStatusFailed ScanStatus = "failed"
	// ScanStatusBlocked はボット対策によるブロック。
	ScanStatusBlocked ScanStatus = "blocked"
)

// ScanLogEntry はリージョンスキャン1回分の監査ログ。追記専用で更新しない。
type ScanLogEntry struct {
	ID            string
	RegionID      string
	Status        ScanStatus
	ProductsFound int
	NewRestocks   int
	DurationMs    int64
	ErrorMessage  string
	Snapshot      []byte // スクレイプ結果のJSON。未記録の場合はnil
	CreatedAt     time.Time
}
