package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductFilter はユーザーが保存した通知条件を表す。
// 未設定の条件は一致判定から除外される。
type ProductFilter struct {
	ID                string
	UserID            string
	CategoryID        *string
	Colors            []string
	Sizes             []string
	MinPrice          decimal.NullDecimal
	MaxPrice          decimal.NullDecimal
	Keywords          string
	NotifyAllRestocks bool
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// MonitoringConfig はユーザーのリージョン購読を表す。(user, region)で一意。
type MonitoringConfig struct {
	ID        string
	UserID    string
	RegionID  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
