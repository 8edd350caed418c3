package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Channel は通知の配信チャネル。
type Channel string

const (
	// ChannelEmail はメール通知。
	ChannelEmail Channel = "email"
	// ChannelPush はプッシュ通知（Telegram）。
	ChannelPush Channel = "push"
)

// NotificationStatus は通知レコードの配信状態。
type NotificationStatus string

const (
	// NotificationStatusPending は配信待ち。
	NotificationStatusPending NotificationStatus = "pending"
	// NotificationStatusSent は配信成功。
	NotificationStatusSent NotificationStatus = "sent"
	// NotificationStatusFailed は配信失敗。
	NotificationStatusFailed NotificationStatus = "failed"
)

// NotificationRecord は(ユーザー, チャネル)ごとの通知記録。
type NotificationRecord struct {
	ID           string
	UserID       string
	ProductID    string
	RestockID    string
	Channel      Channel
	Status       NotificationStatus
	SentAt       *time.Time
	ErrorMessage string
	CreatedAt    time.Time
}

// Recipient は通知の宛先となるユーザー情報。
// Channelsは契約中プランから導出される。
type Recipient struct {
	UserID         string
	Email          string
	Name           string
	TelegramChatID int64
	Channels       []Channel
}

// NotificationPayload は外部の配信サービスへ渡す通知内容。
type NotificationPayload struct {
	NotificationID string              `json:"notification_id"`
	Channel        Channel             `json:"channel"`
	UserID         string              `json:"user_id"`
	Email          string              `json:"email,omitempty"`
	UserName       string              `json:"user_name,omitempty"`
	TelegramChatID int64               `json:"telegram_chat_id,omitempty"`
	RestockID      string              `json:"restock_id"`
	DetectedAt     time.Time           `json:"detected_at"`
	ProductID      string              `json:"product_id"`
	ProductName    string              `json:"product_name"`
	Description    string              `json:"description,omitempty"`
	Color          string              `json:"color,omitempty"`
	Size           string              `json:"size,omitempty"`
	Price          decimal.NullDecimal `json:"price"`
	Currency       string              `json:"currency,omitempty"`
	ProductURL     string              `json:"product_url"`
	ImageURL       string              `json:"image_url,omitempty"`
	RegionCode     string              `json:"region_code"`
	RegionName     string              `json:"region_name"`
	MatchedFilters []string            `json:"matched_filters"`
}
