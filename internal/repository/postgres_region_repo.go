package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/restockwatch/internal/model"
)

// PostgresRegionRepo はPostgreSQLを使用したリージョンリポジトリ。
type PostgresRegionRepo struct {
	db *sql.DB
}

// NewPostgresRegionRepo はPostgresRegionRepoを生成する。
func NewPostgresRegionRepo(db *sql.DB) *PostgresRegionRepo {
	return &PostgresRegionRepo{db: db}
}

var _ RegionRepository = (*PostgresRegionRepo)(nil)

// ListActive は有効なリージョンをコード順に返す。
func (r *PostgresRegionRepo) ListActive(ctx context.Context) ([]*model.Region, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, code, name, url, currency, is_active, created_at
		 FROM regions
		 WHERE is_active = true
		 ORDER BY code ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("有効リージョンの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanRegions(rows)
}

// ListActiveMonitored は有効な監視設定が1件以上存在する有効リージョンを返す。
func (r *PostgresRegionRepo) ListActiveMonitored(ctx context.Context) ([]*model.Region, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.id, r.code, r.name, r.url, r.currency, r.is_active, r.created_at
		 FROM regions r
		 WHERE r.is_active = true
		   AND EXISTS (
		       SELECT 1 FROM monitoring_configs mc
		       WHERE mc.region_id = r.id AND mc.is_active = true
		   )
		 ORDER BY r.code ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("監視対象リージョンの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanRegions(rows)
}

// CountActive は有効なリージョン数を返す。
func (r *PostgresRegionRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM regions WHERE is_active = true`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("有効リージョン数の取得に失敗しました: %w", err)
	}
	return count, nil
}

func scanRegions(rows *sql.Rows) ([]*model.Region, error) {
	var regions []*model.Region
	for rows.Next() {
		region := &model.Region{}
		if err := rows.Scan(
			&region.ID, &region.Code, &region.Name, &region.URL,
			&region.Currency, &region.IsActive, &region.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("リージョンの読み取りに失敗しました: %w", err)
		}
		regions = append(regions, region)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("リージョンの読み取り中にエラーが発生しました: %w", err)
	}
	return regions, nil
}
