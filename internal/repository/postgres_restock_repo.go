package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/restockwatch/internal/model"
)

// PostgresRestockRepo はPostgreSQLを使用した再入荷履歴リポジトリ。
type PostgresRestockRepo struct {
	db *sql.DB
}

// NewPostgresRestockRepo はPostgresRestockRepoを生成する。
func NewPostgresRestockRepo(db *sql.DB) *PostgresRestockRepo {
	return &PostgresRestockRepo{db: db}
}

var _ RestockRepository = (*PostgresRestockRepo)(nil)

// Create は再入荷イベントを作成する。
func (r *PostgresRestockRepo) Create(ctx context.Context, e *model.RestockEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO restock_history (id, product_id, detected_at, price,
		                              was_notified, notification_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ProductID, e.DetectedAt, e.Price,
		e.WasNotified, e.NotificationCount, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("再入荷履歴の作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateNotificationResult は通知済みフラグと通知件数を更新する。
func (r *PostgresRestockRepo) UpdateNotificationResult(ctx context.Context, restockID string, wasNotified bool, count int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE restock_history SET was_notified = $2, notification_count = $3 WHERE id = $1`,
		restockID, wasNotified, count,
	)
	if err != nil {
		return fmt.Errorf("再入荷履歴の通知結果の更新に失敗しました: %w", err)
	}
	return nil
}
