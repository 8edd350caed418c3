package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/restockwatch/internal/model"
)

// PostgresProductRepo はPostgreSQLを使用した商品リポジトリ。
type PostgresProductRepo struct {
	db *sql.DB
}

// NewPostgresProductRepo はPostgresProductRepoを生成する。
func NewPostgresProductRepo(db *sql.DB) *PostgresProductRepo {
	return &PostgresProductRepo{db: db}
}

var _ ProductRepository = (*PostgresProductRepo)(nil)

// FindByRegionAndExternalID はリージョンIDとサイト側商品IDで商品を検索する。
// 見つからない場合はnilを返す。
func (r *PostgresProductRepo) FindByRegionAndExternalID(ctx context.Context, regionID, externalID string) (*model.Product, error) {
	p := &model.Product{}
	var categoryID, description, currency, color, size, imageURL, productURL sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, region_id, category_id, external_id, name, description,
		        price, currency, color, size, image_url, product_url,
		        is_available, last_seen_at, created_at, updated_at
		 FROM products
		 WHERE region_id = $1 AND external_id = $2`,
		regionID, externalID,
	).Scan(
		&p.ID, &p.RegionID, &categoryID, &p.ExternalID, &p.Name, &description,
		&p.Price, &currency, &color, &size, &imageURL, &productURL,
		&p.IsAvailable, &p.LastSeenAt, &p.CreatedAt, &p.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("商品の取得に失敗しました: %w", err)
	}

	if categoryID.Valid {
		p.CategoryID = &categoryID.String
	}
	p.Description = nullStringValue(description)
	p.Currency = nullStringValue(currency)
	p.Color = nullStringValue(color)
	p.Size = nullStringValue(size)
	p.ImageURL = nullStringValue(imageURL)
	p.ProductURL = nullStringValue(productURL)

	return p, nil
}

// Create は商品を作成する。
func (r *PostgresProductRepo) Create(ctx context.Context, p *model.Product) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO products (id, region_id, category_id, external_id, name, description,
		                       price, currency, color, size, image_url, product_url,
		                       is_available, last_seen_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, p.RegionID, nullStringPtr(p.CategoryID), nullString(p.ExternalID), p.Name,
		nullString(p.Description), p.Price, nullString(p.Currency),
		nullString(p.Color), nullString(p.Size), nullString(p.ImageURL), nullString(p.ProductURL),
		p.IsAvailable, p.LastSeenAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("商品の作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateState は在庫状態・価格・最終確認日時を更新する。
func (r *PostgresProductRepo) UpdateState(ctx context.Context, p *model.Product) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE products SET
		    is_available = $2, price = $3, last_seen_at = $4, updated_at = $5
		 WHERE id = $1`,
		p.ID, p.IsAvailable, p.Price, p.LastSeenAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("商品状態の更新に失敗しました: %w", err)
	}
	return nil
}

// TouchLastSeen は最終確認日時のみを更新する。
func (r *PostgresProductRepo) TouchLastSeen(ctx context.Context, productID string, seenAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE products SET last_seen_at = $2 WHERE id = $1`,
		productID, seenAt,
	)
	if err != nil {
		return fmt.Errorf("商品の最終確認日時の更新に失敗しました: %w", err)
	}
	return nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringPtr はnilポインタをNULLとして扱う。
func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
