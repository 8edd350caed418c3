// Package cleanup は保持期間を過ぎたスキャンログを定期的に削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultRetentionDays はLOG_RETENTION_DAYS未設定時の保持日数。
	DefaultRetentionDays = 30
	// DefaultInterval は削除の実行間隔。
	DefaultInterval = 24 * time.Hour
)

const deleteExpiredScanLogs = `DELETE FROM scan_logs WHERE created_at < $1`

// Executor は*sql.DBと*sql.Txが満たす。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob はscan_logsの保持期間を管理する。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int
}

// NewCleanupJob はCleanupJobを生成する。retentionDaysが0以下ならDefaultRetentionDaysを使う。
func NewCleanupJob(db Executor, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		db:            db,
		logger:        logger,
		now:           time.Now,
		RetentionDays: retentionDays,
	}
}

// Cutoff はこれより古いログを削除対象とする境界時刻を返す。
func (j *CleanupJob) Cutoff() time.Time {
	return j.now().AddDate(0, 0, -j.RetentionDays)
}

// Run は境界時刻より前のスキャンログを削除し、削除件数を返す。
// 削除対象が0件でもエラーにはならない。
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := j.Cutoff()

	result, err := j.db.ExecContext(ctx, deleteExpiredScanLogs, cutoff)
	if err != nil {
		j.logger.Error("スキャンログのクリーンアップに失敗しました",
			slog.Time("cutoff", cutoff),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("期限切れスキャンログの削除に失敗: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Info("スキャンログのクリーンアップが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。ctxの終了までブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	// 失敗はRun内でログ済み。次の周期で再試行する
	_, _ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}
