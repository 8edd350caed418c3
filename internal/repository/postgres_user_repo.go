package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/restockwatch/internal/model"
)

// PostgresRecipientRepo はPostgreSQLを使用した通知宛先リポジトリ。
// 配信チャネルは契約中プランのnotification_channelsから導出する。
type PostgresRecipientRepo struct {
	db *sql.DB
}

// NewPostgresRecipientRepo はPostgresRecipientRepoを生成する。
func NewPostgresRecipientRepo(db *sql.DB) *PostgresRecipientRepo {
	return &PostgresRecipientRepo{db: db}
}

var _ RecipientRepository = (*PostgresRecipientRepo)(nil)

// FindRecipient は指定ユーザーの宛先情報と配信チャネルを返す。
// 有効なプラン契約がない場合はメールのみを配信チャネルとする。
// ユーザーが存在しない場合はnilを返す。
func (r *PostgresRecipientRepo) FindRecipient(ctx context.Context, userID string) (*model.Recipient, error) {
	rc := &model.Recipient{}
	var email, name sql.NullString
	var chatID sql.NullInt64
	var channels pq.StringArray

	err := r.db.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.name, u.telegram_chat_id,
		        COALESCE((
		            SELECT sp.notification_channels
		            FROM subscriptions s
		            INNER JOIN subscription_plans sp ON sp.id = s.plan_id
		            WHERE s.user_id = u.id AND s.status = 'active'
		            ORDER BY s.created_at DESC
		            LIMIT 1
		        ), ARRAY['email']::TEXT[])
		 FROM users u
		 WHERE u.id = $1`,
		userID,
	).Scan(&rc.UserID, &email, &name, &chatID, &channels)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("通知宛先の取得に失敗しました: %w", err)
	}

	rc.Email = nullStringValue(email)
	rc.Name = nullStringValue(name)
	if chatID.Valid {
		rc.TelegramChatID = chatID.Int64
	}
	for _, ch := range channels {
		rc.Channels = append(rc.Channels, model.Channel(ch))
	}

	return rc, nil
}

// PostgresNotificationRepo はPostgreSQLを使用した通知レコードリポジトリ。
type PostgresNotificationRepo struct {
	db *sql.DB
}

// NewPostgresNotificationRepo はPostgresNotificationRepoを生成する。
func NewPostgresNotificationRepo(db *sql.DB) *PostgresNotificationRepo {
	return &PostgresNotificationRepo{db: db}
}

var _ NotificationRepository = (*PostgresNotificationRepo)(nil)

// Create は通知レコードを作成する。
func (r *PostgresNotificationRepo) Create(ctx context.Context, n *model.NotificationRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, product_id, restock_id, channel,
		                            status, sent_at, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.UserID, n.ProductID, n.RestockID, n.Channel,
		n.Status, n.SentAt, nullString(n.ErrorMessage), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("通知レコードの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateStatus は配信状態・送信日時・エラーメッセージを更新する。
func (r *PostgresNotificationRepo) UpdateStatus(ctx context.Context, n *model.NotificationRecord) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET status = $2, sent_at = $3, error_message = $4 WHERE id = $1`,
		n.ID, n.Status, n.SentAt, nullString(n.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("通知レコードの更新に失敗しました: %w", err)
	}
	return nil
}
