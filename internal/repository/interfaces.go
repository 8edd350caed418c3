// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/restockwatch/internal/model"
)

// RegionRepository はリージョン参照データの読み取りインターフェース。
type RegionRepository interface {
	// ListActive は有効なリージョンをコード順に返す。
	ListActive(ctx context.Context) ([]*model.Region, error)

	// ListActiveMonitored は有効な監視設定が1件以上存在する有効リージョンを返す。
	ListActiveMonitored(ctx context.Context) ([]*model.Region, error)

	// CountActive は有効なリージョン数を返す。
	CountActive(ctx context.Context) (int, error)
}

// ProductRepository は商品データの永続化インターフェース。
type ProductRepository interface {
	// FindByRegionAndExternalID はリージョンIDとサイト側商品IDで商品を検索する。
	// 見つからない場合はnilを返す。
	FindByRegionAndExternalID(ctx context.Context, regionID, externalID string) (*model.Product, error)

	// Create は商品を作成する。
	Create(ctx context.Context, product *model.Product) error

	// UpdateState は在庫状態・価格・最終確認日時を更新する。
	UpdateState(ctx context.Context, product *model.Product) error

	// TouchLastSeen は最終確認日時のみを更新する。
	TouchLastSeen(ctx context.Context, productID string, seenAt time.Time) error
}

// RestockRepository は再入荷履歴（restock_history）の永続化インターフェース。
type RestockRepository interface {
	// Create は再入荷イベントを作成する。
	Create(ctx context.Context, event *model.RestockEvent) error

	// UpdateNotificationResult は通知済みフラグと通知件数を更新する。
	UpdateNotificationResult(ctx context.Context, restockID string, wasNotified bool, count int) error
}

// MonitoringConfigRepository はユーザーのリージョン購読の読み取りインターフェース。
type MonitoringConfigRepository interface {
	// ListActiveByRegion は指定リージョンの有効な監視設定を返す。
	ListActiveByRegion(ctx context.Context, regionID string) ([]*model.MonitoringConfig, error)
}

// FilterRepository は通知フィルタの読み取りインターフェース。
type FilterRepository interface {
	// ListActiveByUser は指定ユーザーの有効なフィルタを作成日時順に返す。
	ListActiveByUser(ctx context.Context, userID string) ([]*model.ProductFilter, error)
}

// ScanLogRepository はスキャンログの永続化インターフェース。
type ScanLogRepository interface {
	// Create はスキャンログを追記する。
	Create(ctx context.Context, entry *model.ScanLogEntry) error

	// ListRecent は新しい順にスキャンログを返す。
	// regionIDが空の場合は全リージョンを対象とする。
	ListRecent(ctx context.Context, regionID string, limit int) ([]*model.ScanLogEntry, error)

	// DeleteAll は全スキャンログを削除し、削除件数を返す。
	DeleteAll(ctx context.Context) (int64, error)
}

// NotificationRepository は通知レコードの永続化インターフェース。
type NotificationRepository interface {
	// Create は通知レコードを作成する。
	Create(ctx context.Context, record *model.NotificationRecord) error

	// UpdateStatus は配信状態・送信日時・エラーメッセージを更新する。
	UpdateStatus(ctx context.Context, record *model.NotificationRecord) error
}

// RecipientRepository は通知宛先の読み取りインターフェース。
type RecipientRepository interface {
	// FindRecipient は指定ユーザーの宛先情報と配信チャネルを返す。
	// ユーザーが存在しない場合はnilを返す。
	FindRecipient(ctx context.Context, userID string) (*model.Recipient, error)
}
