package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product はリージョンのサイト上で検出された商品を表す。
// 初回検出時に作成され、再入荷でIsAvailableがfalse→trueに遷移する。
type Product struct {
	ID          string
	RegionID    string
	CategoryID  *string
	ExternalID  string // サイト側の商品ID。空の場合は照合不可
	Name        string
	Description string
	Price       decimal.NullDecimal
	Currency    string
	Color       string
	Size        string
	ImageURL    string
	ProductURL  string
	IsAvailable bool
	LastSeenAt  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RawProduct はRegionFetcherが返す未保存の商品データを表す。
// StateDifferが永続化済みのProductと突き合わせる。
type RawProduct struct {
	ExternalID  string              `json:"external_id,omitempty"`
	CategoryID  *string             `json:"category_id,omitempty"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Price       decimal.NullDecimal `json:"price"`
	Currency    string              `json:"currency,omitempty"`
	Color       string              `json:"color,omitempty"`
	Size        string              `json:"size,omitempty"`
	ImageURL    string              `json:"image_url,omitempty"`
	ProductURL  string              `json:"product_url"`
	IsAvailable bool                `json:"is_available"`
}

// RestockEvent は再入荷の検出記録（restock_history）を表す。
// 通知関連の2フィールド以外は作成後に変更しない。
type RestockEvent struct {
	ID                string
	ProductID         string
	DetectedAt        time.Time
	Price             decimal.NullDecimal
	WasNotified       bool
	NotificationCount int
	CreatedAt         time.Time
}

// Classification はスクレイプ結果1件に対する差分判定の結果。
type Classification string

const (
	// ClassificationNew は永続化済みの商品が存在しない初回検出。
	ClassificationNew Classification = "new"
	// ClassificationRestocked は在庫なし→在庫ありへの遷移。
	ClassificationRestocked Classification = "restocked"
	// ClassificationSoldOut は在庫あり→在庫なしへの遷移（ページ上に在庫なしとして掲載された場合のみ）。
	ClassificationSoldOut Classification = "soldout"
	// ClassificationUnchanged は状態に変化がない。
	ClassificationUnchanged Classification = "unchanged"
)

// IsRestock は判定結果がRestockEventの作成を伴うかを返す。
func (c Classification) IsRestock() bool {
	return c == ClassificationNew || c == ClassificationRestocked
}
