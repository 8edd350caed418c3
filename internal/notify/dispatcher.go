package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/restockwatch/internal/filter"
	"github.com/hitoshi/restockwatch/internal/metrics"
	"github.com/hitoshi/restockwatch/internal/model"
	"github.com/hitoshi/restockwatch/internal/repository"
)

// UserMatcher はユーザーのフィルタと商品を照合するインターフェース。
type UserMatcher interface {
	MatchUser(ctx context.Context, userID string, product *model.Product) (filter.Match, error)
}

// Delivery はペイロードを外部配信サービスへ引き渡すインターフェース。
type Delivery interface {
	Send(ctx context.Context, payload *model.NotificationPayload) error
}

// Summary は1件の再入荷イベントに対する通知結果の集計。
type Summary struct {
	Recipients int // フィルタに一致したユーザー数
	Sent       int
	Failed     int
}

// Dispatcher は再入荷イベントの通知先を決定し、配信を引き渡す。
// 配信成功数をRestockEventのnotificationCountとして記録する。
type Dispatcher struct {
	configs       repository.MonitoringConfigRepository
	recipients    repository.RecipientRepository
	notifications repository.NotificationRepository
	restocks      repository.RestockRepository
	matcher       UserMatcher
	delivery      Delivery
	limiter       *rate.Limiter
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	now           func() time.Time
}

// DispatcherOption はDispatcherの任意設定。
type DispatcherOption func(*Dispatcher)

// WithRateLimit は配信間隔を毎秒perSecond件に制限する。0以下の場合は制限しない。
func WithRateLimit(perSecond float64) DispatcherOption {
	return func(d *Dispatcher) {
		if perSecond > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithMetrics はメトリクス収集先を設定する。
func WithMetrics(m metrics.MetricsCollector) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(
	configs repository.MonitoringConfigRepository,
	recipients repository.RecipientRepository,
	notifications repository.NotificationRepository,
	restocks repository.RestockRepository,
	matcher UserMatcher,
	delivery Delivery,
	logger *slog.Logger,
	opts ...DispatcherOption,
) *Dispatcher {
	d := &Dispatcher{
		configs:       configs,
		recipients:    recipients,
		notifications: notifications,
		restocks:      restocks,
		matcher:       matcher,
		delivery:      delivery,
		metrics:       metrics.Nop{},
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch は再入荷イベントを通知する。
// リージョンの有効な監視設定を持つユーザーごとにフィルタを照合し、
// 一致したユーザーの各配信チャネルへペイロードを引き渡す。
// 個別の配信失敗は通知レコードに記録し、エラーとしては返さない。
func (d *Dispatcher) Dispatch(ctx context.Context, region *model.Region, product *model.Product, event *model.RestockEvent) (Summary, error) {
	var summary Summary

	configs, err := d.configs.ListActiveByRegion(ctx, region.ID)
	if err != nil {
		return summary, fmt.Errorf("リージョン %s の監視設定取得に失敗しました: %w", region.Code, err)
	}

	seen := make(map[string]struct{}, len(configs))
	for _, cfg := range configs {
		if _, ok := seen[cfg.UserID]; ok {
			continue
		}
		seen[cfg.UserID] = struct{}{}

		match, err := d.matcher.MatchUser(ctx, cfg.UserID, product)
		if err != nil {
			d.logger.Error("フィルタ照合に失敗しました",
				slog.String("user_id", cfg.UserID),
				slog.String("product_id", product.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !match.Matched() {
			continue
		}

		recipient, err := d.recipients.FindRecipient(ctx, cfg.UserID)
		if err != nil {
			d.logger.Error("通知宛先の取得に失敗しました",
				slog.String("user_id", cfg.UserID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if recipient == nil {
			d.logger.Warn("通知宛先のユーザーが存在しません", slog.String("user_id", cfg.UserID))
			continue
		}

		summary.Recipients++
		channels := recipient.Channels
		if len(channels) == 0 {
			channels = []model.Channel{model.ChannelEmail}
		}
		for _, ch := range channels {
			if d.deliver(ctx, region, product, event, recipient, ch, match.Reasons) {
				summary.Sent++
			} else {
				summary.Failed++
			}
		}
	}

	event.NotificationCount = summary.Sent
	event.WasNotified = summary.Sent > 0
	if err := d.restocks.UpdateNotificationResult(ctx, event.ID, event.WasNotified, event.NotificationCount); err != nil {
		return summary, fmt.Errorf("再入荷履歴 %s の通知結果更新に失敗しました: %w", event.ID, err)
	}

	if summary.Recipients > 0 {
		d.logger.Info("再入荷通知を配信しました",
			slog.String("region", region.Code),
			slog.String("product_id", product.ID),
			slog.String("restock_id", event.ID),
			slog.Int("recipients", summary.Recipients),
			slog.Int("sent", summary.Sent),
			slog.Int("failed", summary.Failed),
		)
	}
	return summary, nil
}

// deliver は1件の(ユーザー, チャネル)へ配信し、成功した場合にtrueを返す。
func (d *Dispatcher) deliver(
	ctx context.Context,
	region *model.Region,
	product *model.Product,
	event *model.RestockEvent,
	recipient *model.Recipient,
	channel model.Channel,
	reasons []string,
) bool {
	record := &model.NotificationRecord{
		ID:        uuid.NewString(),
		UserID:    recipient.UserID,
		ProductID: product.ID,
		RestockID: event.ID,
		Channel:   channel,
		Status:    model.NotificationStatusPending,
		CreatedAt: d.now(),
	}
	if err := d.notifications.Create(ctx, record); err != nil {
		d.logger.Error("通知レコードの作成に失敗しました",
			slog.String("user_id", recipient.UserID),
			slog.String("channel", string(channel)),
			slog.String("error", err.Error()),
		)
		return false
	}

	sendErr := d.wait(ctx)
	if sendErr == nil {
		sendErr = d.delivery.Send(ctx, buildPayload(record, region, product, event, recipient, reasons))
	}

	if sendErr != nil {
		record.Status = model.NotificationStatusFailed
		record.ErrorMessage = sendErr.Error()
		d.logger.Warn("通知の配信に失敗しました",
			slog.String("user_id", recipient.UserID),
			slog.String("channel", string(channel)),
			slog.String("restock_id", event.ID),
			slog.String("error", sendErr.Error()),
		)
	} else {
		sentAt := d.now()
		record.Status = model.NotificationStatusSent
		record.SentAt = &sentAt
	}
	d.metrics.RecordNotification(string(channel), string(record.Status))

	if err := d.notifications.UpdateStatus(ctx, record); err != nil {
		d.logger.Error("通知レコードの更新に失敗しました",
			slog.String("notification_id", record.ID),
			slog.String("error", err.Error()),
		)
	}
	return sendErr == nil
}

func (d *Dispatcher) wait(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	return d.limiter.Wait(ctx)
}

func buildPayload(
	record *model.NotificationRecord,
	region *model.Region,
	product *model.Product,
	event *model.RestockEvent,
	recipient *model.Recipient,
	reasons []string,
) *model.NotificationPayload {
	currency := product.Currency
	if currency == "" {
		currency = region.Currency
	}
	return &model.NotificationPayload{
		NotificationID: record.ID,
		Channel:        record.Channel,
		UserID:         recipient.UserID,
		Email:          recipient.Email,
		UserName:       recipient.Name,
		TelegramChatID: recipient.TelegramChatID,
		RestockID:      event.ID,
		DetectedAt:     event.DetectedAt,
		ProductID:      product.ID,
		ProductName:    product.Name,
		Description:    product.Description,
		Color:          product.Color,
		Size:           product.Size,
		Price:          event.Price,
		Currency:       currency,
		ProductURL:     product.ProductURL,
		ImageURL:       product.ImageURL,
		RegionCode:     region.Code,
		RegionName:     region.Name,
		MatchedFilters: reasons,
	}
}
