package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hitoshi/restockwatch/internal/model"
)

// BotClient はTelegram Bot APIの送信部分のインターフェース。
// *tgbotapi.BotAPIが実装する。
type BotClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender はプッシュ通知をTelegramで配信するSender。
type TelegramSender struct {
	bot BotClient
}

var _ Sender = (*TelegramSender)(nil)

// NewTelegramBot はトークンからBot APIクライアントを生成する。
func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN が設定されていません")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("Telegramへの接続に失敗しました: %w", err)
	}
	bot.Debug = false
	return bot, nil
}

// NewTelegramSender はTelegramSenderを生成する。
func NewTelegramSender(bot BotClient) *TelegramSender {
	return &TelegramSender{bot: bot}
}

// Channel はプッシュチャネルを返す。
func (s *TelegramSender) Channel() model.Channel {
	return model.ChannelPush
}

// Send は宛先のチャットIDへ再入荷メッセージを送信する。
// チャットIDが未登録の宛先はエラーとする。
func (s *TelegramSender) Send(ctx context.Context, p *model.NotificationPayload) error {
	if p.TelegramChatID == 0 {
		return fmt.Errorf("ユーザー %s のTelegramチャットIDが登録されていません", p.UserID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(p.TelegramChatID, FormatMessage(p))
	msg.DisableWebPagePreview = false
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("Telegramメッセージの送信に失敗しました: %w", err)
	}
	return nil
}

// FormatMessage は通知ペイロードをプレーンテキストの本文にする。
func FormatMessage(p *model.NotificationPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "再入荷: %s\n", p.ProductName)
	fmt.Fprintf(&b, "リージョン: %s (%s)\n", p.RegionName, p.RegionCode)
	if p.Color != "" {
		fmt.Fprintf(&b, "カラー: %s\n", p.Color)
	}
	if p.Size != "" {
		fmt.Fprintf(&b, "サイズ: %s\n", p.Size)
	}
	if p.Price.Valid {
		fmt.Fprintf(&b, "価格: %s %s\n", p.Currency, p.Price.Decimal.StringFixed(2))
	}
	if len(p.MatchedFilters) > 0 {
		fmt.Fprintf(&b, "一致条件: %s\n", strings.Join(p.MatchedFilters, " / "))
	}
	if p.ProductURL != "" {
		fmt.Fprintf(&b, "\n%s", p.ProductURL)
	}
	return strings.TrimRight(b.String(), "\n")
}
