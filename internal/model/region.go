// Package model はドメインモデルを定義する。
package model

import "time"

// Region は監視対象のストアフロント（国・地域ごとのサイト）を表す。
// エンジンからは読み取り専用の参照データとして扱う。
type Region struct {
	ID        string
	Code      string // US, UK, FR, JP など
	Name      string
	URL       string
	Currency  string
	IsActive  bool
	CreatedAt time.Time
}

// ProductCategory は商品カテゴリ（バッグの種類など）を表す。
type ProductCategory struct {
	ID        string
	Name      string
	Slug      string
	IsActive  bool
	CreatedAt time.Time
}
