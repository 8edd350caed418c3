package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/restockwatch/internal/metrics"
	"github.com/hitoshi/restockwatch/internal/model"
	"github.com/hitoshi/restockwatch/internal/repository"
)

const (
	// DefaultScanLogLimit はスキャンログ取得件数の既定値。
	DefaultScanLogLimit = 100
	// MaxScanLogLimit はスキャンログ取得件数の上限。
	MaxScanLogLimit = 500
)

// RegionResult はリージョンスキャン1回分の結果。
type RegionResult struct {
	Status        model.ScanStatus
	ProductsFound int
	NewRestocks   int
	Err           error
}

// ScanLogger はリージョンスキャンごとにスキャンログを追記する。
type ScanLogger struct {
	repo     repository.ScanLogRepository
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	snapshot bool
	now      func() time.Time
}

// NewScanLogger はScanLoggerを生成する。snapshotがtrueの場合、
// 成功したスキャンの取得結果をJSONで保存する。
func NewScanLogger(repo repository.ScanLogRepository, m metrics.MetricsCollector, logger *slog.Logger, snapshot bool) *ScanLogger {
	if m == nil {
		m = metrics.Nop{}
	}
	return &ScanLogger{
		repo:     repo,
		metrics:  m,
		logger:   logger,
		snapshot: snapshot,
		now:      time.Now,
	}
}

// Record はスキャン結果を記録する。記録の失敗はログに出力し、呼び出し元には返さない。
func (l *ScanLogger) Record(ctx context.Context, region *model.Region, res RegionResult, duration time.Duration, raws []model.RawProduct) {
	entry := &model.ScanLogEntry{
		ID:            uuid.NewString(),
		RegionID:      region.ID,
		Status:        res.Status,
		ProductsFound: res.ProductsFound,
		NewRestocks:   res.NewRestocks,
		DurationMs:    duration.Milliseconds(),
		CreatedAt:     l.now(),
	}
	if res.Err != nil {
		entry.ErrorMessage = res.Err.Error()
	}
	if l.snapshot && res.Status == model.ScanStatusSuccess && len(raws) > 0 {
		if b, err := json.Marshal(raws); err == nil {
			entry.Snapshot = b
		} else {
			l.logger.Warn("スナップショットのシリアライズに失敗しました",
				slog.String("region_code", region.Code),
				slog.String("error", err.Error()),
			)
		}
	}

	l.metrics.RecordScan(string(res.Status), duration)
	l.metrics.RecordProductsFound(res.ProductsFound)
	l.metrics.RecordRestocks(res.NewRestocks)

	attrs := []any{
		slog.String("region_id", region.ID),
		slog.String("region_code", region.Code),
		slog.String("status", string(res.Status)),
		slog.Int("products_found", res.ProductsFound),
		slog.Int("new_restocks", res.NewRestocks),
		slog.Int64("duration_ms", entry.DurationMs),
	}
	if res.Err != nil {
		l.logger.Warn("リージョンのスキャンに失敗しました", append(attrs, slog.String("error", res.Err.Error()))...)
	} else {
		l.logger.Info("リージョンのスキャンが完了しました", attrs...)
	}

	if err := l.repo.Create(ctx, entry); err != nil {
		l.logger.Error("スキャンログの保存に失敗しました",
			slog.String("region_id", region.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Recent は新しい順にスキャンログを返す。limitが0以下の場合は既定値、上限を超える場合は上限に丸める。
func (l *ScanLogger) Recent(ctx context.Context, regionID string, limit int) ([]*model.ScanLogEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultScanLogLimit
	case limit > MaxScanLogLimit:
		limit = MaxScanLogLimit
	}
	entries, err := l.repo.ListRecent(ctx, regionID, limit)
	if err != nil {
		return nil, fmt.Errorf("スキャンログの取得に失敗しました: %w", err)
	}
	return entries, nil
}

// Clear は全スキャンログを削除し、削除件数を返す。
func (l *ScanLogger) Clear(ctx context.Context) (int64, error) {
	deleted, err := l.repo.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("スキャンログの削除に失敗しました: %w", err)
	}
	l.logger.Warn("スキャンログを全件削除しました", slog.Int64("deleted_count", deleted))
	return deleted, nil
}
