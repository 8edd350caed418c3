package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/restockwatch/internal/model"
)

// PostgresScanLogRepo はPostgreSQLを使用したスキャンログリポジトリ。
type PostgresScanLogRepo struct {
	db *sql.DB
}

// NewPostgresScanLogRepo はPostgresScanLogRepoを生成する。
func NewPostgresScanLogRepo(db *sql.DB) *PostgresScanLogRepo {
	return &PostgresScanLogRepo{db: db}
}

var _ ScanLogRepository = (*PostgresScanLogRepo)(nil)

// Create はスキャンログを追記する。
func (r *PostgresScanLogRepo) Create(ctx context.Context, e *model.ScanLogEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scan_logs (id, region_id, status, products_found, new_restocks,
		                        duration_ms, error_message, snapshot, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.RegionID, e.Status, e.ProductsFound, e.NewRestocks,
		e.DurationMs, nullString(e.ErrorMessage), nullString(string(e.Snapshot)), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("スキャンログの作成に失敗しました: %w", err)
	}
	return nil
}

// ListRecent は新しい順にスキャンログを返す。
// regionIDが空の場合は全リージョンを対象とする。
func (r *PostgresScanLogRepo) ListRecent(ctx context.Context, regionID string, limit int) ([]*model.ScanLogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, region_id, status, products_found, new_restocks,
		        duration_ms, error_message, snapshot, created_at
		 FROM scan_logs
		 WHERE ($1 = '' OR region_id::text = $1)
		 ORDER BY created_at DESC
		 LIMIT $2`,
		regionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("スキャンログの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []*model.ScanLogEntry
	for rows.Next() {
		e := &model.ScanLogEntry{}
		var errorMessage sql.NullString
		if err := rows.Scan(
			&e.ID, &e.RegionID, &e.Status, &e.ProductsFound, &e.NewRestocks,
			&e.DurationMs, &errorMessage, &e.Snapshot, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("スキャンログの読み取りに失敗しました: %w", err)
		}
		e.ErrorMessage = nullStringValue(errorMessage)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("スキャンログの読み取り中にエラーが発生しました: %w", err)
	}
	return entries, nil
}

// DeleteAll は全スキャンログを削除し、削除件数を返す。
func (r *PostgresScanLogRepo) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM scan_logs`)
	if err != nil {
		return 0, fmt.Errorf("スキャンログの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}
