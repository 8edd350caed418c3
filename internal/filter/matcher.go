// Package filter はユーザーの通知フィルタと商品の照合を提供する。
package filter

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/hitoshi/restockwatch/internal/model"
)

// ReasonNotifyAll は全再入荷通知が有効なフィルタによる一致理由。
const ReasonNotifyAll = "notify all restocks enabled"

// FilterLister はユーザーの有効なフィルタを取得するインターフェース。
type FilterLister interface {
	ListActiveByUser(ctx context.Context, userID string) ([]*model.ProductFilter, error)
}

// Match はフィルタ照合の結果。
// Filtersが空の場合は通知対象外。
type Match struct {
	Filters []*model.ProductFilter
	Reasons []string
}

// Matched は1件以上のフィルタに一致したかを返す。
func (m Match) Matched() bool {
	return len(m.Filters) > 0
}

// Matcher はユーザーのフィルタを読み込み、商品との一致を判定する。
type Matcher struct {
	filters FilterLister
	logger  *slog.Logger
}

// NewMatcher はMatcherを生成する。
func NewMatcher(filters FilterLister, logger *slog.Logger) *Matcher {
	return &Matcher{filters: filters, logger: logger}
}

// MatchUser は指定ユーザーの有効なフィルタと商品を照合する。
// notifyAllRestocksが有効なフィルタがあれば他のフィルタを評価せず一致とする。
// それ以外はフィルタごとに全条件のAND、フィルタ間はORで判定する。
func (m *Matcher) MatchUser(ctx context.Context, userID string, product *model.Product) (Match, error) {
	filters, err := m.filters.ListActiveByUser(ctx, userID)
	if err != nil {
		return Match{}, fmt.Errorf("ユーザー %s のフィルタ取得に失敗しました: %w", userID, err)
	}

	result := Evaluate(filters, product)
	if result.Matched() {
		m.logger.Debug("フィルタに一致しました",
			slog.String("user_id", userID),
			slog.String("product_id", product.ID),
			slog.Int("matched_filters", len(result.Filters)),
		)
	}
	return result, nil
}

// Evaluate はフィルタ群と商品を照合する。非アクティブなフィルタは無視する。
func Evaluate(filters []*model.ProductFilter, product *model.Product) Match {
	active := make([]*model.ProductFilter, 0, len(filters))
	for _, f := range filters {
		if f.IsActive {
			active = append(active, f)
		}
	}

	for _, f := range active {
		if f.NotifyAllRestocks {
			return Match{Filters: []*model.ProductFilter{f}, Reasons: []string{ReasonNotifyAll}}
		}
	}

	var result Match
	for _, f := range active {
		if MatchesFilter(f, product) {
			result.Filters = append(result.Filters, f)
			result.Reasons = append(result.Reasons, Describe(f))
		}
	}
	return result
}

// MatchesFilter はフィルタに設定された全条件を商品が満たすかを返す。
// 未設定の条件は一致を妨げない。
func MatchesFilter(f *model.ProductFilter, p *model.Product) bool {
	if f.CategoryID != nil {
		if p.CategoryID == nil || *p.CategoryID != *f.CategoryID {
			return false
		}
	}

	// 商品側の色・サイズが未取得の場合は判定しない
	if len(f.Colors) > 0 && p.Color != "" && !slices.Contains(f.Colors, p.Color) {
		return false
	}
	if len(f.Sizes) > 0 && p.Size != "" && !slices.Contains(f.Sizes, p.Size) {
		return false
	}

	if f.MinPrice.Valid {
		if !p.Price.Valid || p.Price.Decimal.LessThan(f.MinPrice.Decimal) {
			return false
		}
	}
	if f.MaxPrice.Valid {
		if !p.Price.Valid || p.Price.Decimal.GreaterThan(f.MaxPrice.Decimal) {
			return false
		}
	}

	if kw := strings.TrimSpace(f.Keywords); kw != "" {
		haystack := strings.ToLower(p.Name + " " + p.Description)
		if !strings.Contains(haystack, strings.ToLower(kw)) {
			return false
		}
	}

	return true
}

// Describe はフィルタ条件を通知本文向けの短い文字列にする。
func Describe(f *model.ProductFilter) string {
	if f.NotifyAllRestocks {
		return ReasonNotifyAll
	}

	var parts []string
	if f.CategoryID != nil {
		parts = append(parts, "category="+*f.CategoryID)
	}
	if len(f.Colors) > 0 {
		parts = append(parts, "colors="+strings.Join(f.Colors, "|"))
	}
	if len(f.Sizes) > 0 {
		parts = append(parts, "sizes="+strings.Join(f.Sizes, "|"))
	}
	if f.MinPrice.Valid {
		parts = append(parts, "min="+f.MinPrice.Decimal.String())
	}
	if f.MaxPrice.Valid {
		parts = append(parts, "max="+f.MaxPrice.Decimal.String())
	}
	if kw := strings.TrimSpace(f.Keywords); kw != "" {
		parts = append(parts, fmt.Sprintf("keywords=%q", kw))
	}
	if len(parts) == 0 {
		return "filter " + f.ID
	}
	return strings.Join(parts, ", ")
}
