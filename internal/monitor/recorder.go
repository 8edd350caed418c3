// Package monitor は再入荷監視エンジンを提供する。
// 定期・手動のスキャンサイクルを駆動し、リージョンごとに
// 取得 → 差分判定 → 再入荷記録 → 通知 → スキャンログ記録 を順に実行する。
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/restockwatch/internal/model"
	"github.com/hitoshi/restockwatch/internal/repository"
)

// Change は1件のスクレイプ結果に対する差分判定と、その結果保存された状態。
// EventはClassificationが再入荷の場合のみ設定される。
type Change struct {
	Classification model.Classification
	Product        *model.Product
	Event          *model.RestockEvent
}

// Recorder はスクレイプ結果と永続化済みの商品を突き合わせ、
// 商品状態の更新と再入荷イベントの作成を行う。
// ページから消えた商品は在庫なしにしない。在庫なしへの遷移は
// ページ上で在庫なしとして掲載された場合に限る。
type Recorder struct {
	products repository.ProductRepository
	restocks repository.RestockRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewRecorder はRecorderを生成する。
func NewRecorder(products repository.ProductRepository, restocks repository.RestockRepository, logger *slog.Logger) *Recorder {
	return &Recorder{
		products: products,
		restocks: restocks,
		logger:   logger,
		now:      time.Now,
	}
}

// Reconcile はリージョンのスクレイプ結果を順に反映する。
// 永続化エラーが発生した時点で中断し、それまでに保存を終えた結果とエラーを返す。
func (r *Recorder) Reconcile(ctx context.Context, region *model.Region, raws []model.RawProduct) ([]Change, error) {
	changes := make([]Change, 0, len(raws))
	for i := range raws {
		c, err := r.apply(ctx, region, &raws[i])
		if err != nil {
			return changes, err
		}
		changes = append(changes, c)
	}
	return changes, nil
}

func (r *Recorder) apply(ctx context.Context, region *model.Region, raw *model.RawProduct) (Change, error) {
	now := r.now()

	var existing *model.Product
	if raw.ExternalID != "" {
		p, err := r.products.FindByRegionAndExternalID(ctx, region.ID, raw.ExternalID)
		if err != nil {
			return Change{}, fmt.Errorf("商品 %s の検索に失敗しました: %w", raw.ExternalID, err)
		}
		existing = p
	}

	if existing == nil {
		// 在庫ありの商品は再入荷イベントの保存後に在庫ありへ切り替える。
		// イベントの保存に失敗しても在庫なしのまま残り、次回の取得で再入荷として扱われる。
		p := newProduct(region, raw, now)
		p.IsAvailable = false
		if err := r.products.Create(ctx, p); err != nil {
			return Change{}, err
		}
		event, err := r.recordRestock(ctx, p, raw.Price, now)
		if err != nil {
			return Change{}, err
		}
		if raw.IsAvailable {
			p.IsAvailable = true
			if err := r.products.UpdateState(ctx, p); err != nil {
				return Change{}, err
			}
		}
		return Change{Classification: model.ClassificationNew, Product: p, Event: event}, nil
	}

	switch {
	case !existing.IsAvailable && raw.IsAvailable:
		observed := existing.Price
		if raw.Price.Valid {
			observed = raw.Price
		}
		event, err := r.recordRestock(ctx, existing, observed, now)
		if err != nil {
			return Change{}, err
		}
		existing.IsAvailable = true
		existing.LastSeenAt = now
		existing.UpdatedAt = now
		existing.Price = observed
		if err := r.products.UpdateState(ctx, existing); err != nil {
			return Change{}, err
		}
		r.logger.Info("再入荷を検出しました",
			slog.String("region_code", region.Code),
			slog.String("product_id", existing.ID),
			slog.String("external_id", existing.ExternalID),
		)
		return Change{Classification: model.ClassificationRestocked, Product: existing, Event: event}, nil

	case existing.IsAvailable && !raw.IsAvailable:
		existing.IsAvailable = false
		existing.UpdatedAt = now
		if raw.Price.Valid {
			existing.Price = raw.Price
		}
		if err := r.products.UpdateState(ctx, existing); err != nil {
			return Change{}, err
		}
		return Change{Classification: model.ClassificationSoldOut, Product: existing}, nil

	case existing.IsAvailable:
		if err := r.products.TouchLastSeen(ctx, existing.ID, now); err != nil {
			return Change{}, err
		}
		existing.LastSeenAt = now
	}

	return Change{Classification: model.ClassificationUnchanged, Product: existing}, nil
}

func (r *Recorder) recordRestock(ctx context.Context, p *model.Product, observed decimal.NullDecimal, now time.Time) (*model.RestockEvent, error) {
	event := &model.RestockEvent{
		ID:         uuid.NewString(),
		ProductID:  p.ID,
		DetectedAt: now,
		Price:      observed,
		CreatedAt:  now,
	}
	if err := r.restocks.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func newProduct(region *model.Region, raw *model.RawProduct, now time.Time) *model.Product {
	currency := raw.Currency
	if currency == "" {
		currency = region.Currency
	}
	return &model.Product{
		ID:          uuid.NewString(),
		RegionID:    region.ID,
		CategoryID:  raw.CategoryID,
		ExternalID:  raw.ExternalID,
		Name:        raw.Name,
		Description: raw.Description,
		Price:       raw.Price,
		Currency:    currency,
		Color:       raw.Color,
		Size:        raw.Size,
		ImageURL:    raw.ImageURL,
		ProductURL:  raw.ProductURL,
		IsAvailable: raw.IsAvailable,
		LastSeenAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// countRestocks は再入荷イベントを伴う判定の件数を返す。
func countRestocks(changes []Change) int {
	n := 0
	for _, c := range changes {
		if c.Classification.IsRestock() {
			n++
		}
	}
	return n
}
