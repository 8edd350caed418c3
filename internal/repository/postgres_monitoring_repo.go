package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/restockwatch/internal/model"
)

// PostgresMonitoringConfigRepo はPostgreSQLを使用した監視設定リポジトリ。
type PostgresMonitoringConfigRepo struct {
	db *sql.DB
}

// NewPostgresMonitoringConfigRepo はPostgresMonitoringConfigRepoを生成する。
func NewPostgresMonitoringConfigRepo(db *sql.DB) *PostgresMonitoringConfigRepo {
	return &PostgresMonitoringConfigRepo{db: db}
}

var _ MonitoringConfigRepository = (*PostgresMonitoringConfigRepo)(nil)

// ListActiveByRegion は指定リージョンの有効な監視設定を返す。
func (r *PostgresMonitoringConfigRepo) ListActiveByRegion(ctx context.Context, regionID string) ([]*model.MonitoringConfig, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, region_id, is_active, created_at, updated_at
		 FROM monitoring_configs
		 WHERE region_id = $1 AND is_active = true
		 ORDER BY created_at ASC`,
		regionID,
	)
	if err != nil {
		return nil, fmt.Errorf("監視設定の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var configs []*model.MonitoringConfig
	for rows.Next() {
		c := &model.MonitoringConfig{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.RegionID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("監視設定の読み取りに失敗しました: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("監視設定の読み取り中にエラーが発生しました: %w", err)
	}
	return configs, nil
}

// PostgresFilterRepo はPostgreSQLを使用した通知フィルタリポジトリ。
type PostgresFilterRepo struct {
	db *sql.DB
}

// NewPostgresFilterRepo はPostgresFilterRepoを生成する。
func NewPostgresFilterRepo(db *sql.DB) *PostgresFilterRepo {
	return &PostgresFilterRepo{db: db}
}

var _ FilterRepository = (*PostgresFilterRepo)(nil)

// ListActiveByUser は指定ユーザーの有効なフィルタを作成日時順に返す。
// colors、sizesはTEXT[]カラムからデコードする。
func (r *PostgresFilterRepo) ListActiveByUser(ctx context.Context, userID string) ([]*model.ProductFilter, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, category_id, colors, sizes, min_price, max_price,
		        keywords, notify_all_restocks, is_active, created_at, updated_at
		 FROM product_filters
		 WHERE user_id = $1 AND is_active = true
		 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("フィルタの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var filters []*model.ProductFilter
	for rows.Next() {
		f := &model.ProductFilter{}
		var categoryID, keywords sql.NullString
		if err := rows.Scan(
			&f.ID, &f.UserID, &categoryID,
			pq.Array(&f.Colors), pq.Array(&f.Sizes),
			&f.MinPrice, &f.MaxPrice,
			&keywords, &f.NotifyAllRestocks, &f.IsActive, &f.CreatedAt, &f.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("フィルタの読み取りに失敗しました: %w", err)
		}
		if categoryID.Valid {
			f.CategoryID = &categoryID.String
		}
		f.Keywords = nullStringValue(keywords)
		filters = append(filters, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フィルタの読み取り中にエラーが発生しました: %w", err)
	}
	return filters, nil
}
