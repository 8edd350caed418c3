package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/hitoshi/restockwatch/internal/model"
)

// EventTypeRestockNotification はKafkaメッセージのevent_typeヘッダー値。
const EventTypeRestockNotification = "restock.notification"

// KafkaSender はメール通知の依頼をKafkaトピックへ発行するSender。
// 実際のメール送信は購読側のメーラーが行う。
type KafkaSender struct {
	producer sarama.SyncProducer
	topic    string
}

var _ Sender = (*KafkaSender)(nil)

// NewKafkaProducer はメール通知用の同期プロデューサーを生成する。
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Retry.Max = 3
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.MaxMessageBytes = 1000000

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("Kafkaプロデューサーの生成に失敗しました: %w", err)
	}
	return producer, nil
}

// NewKafkaSender はKafkaSenderを生成する。
func NewKafkaSender(producer sarama.SyncProducer, topic string) *KafkaSender {
	return &KafkaSender{producer: producer, topic: topic}
}

// Channel はメールチャネルを返す。
func (s *KafkaSender) Channel() model.Channel {
	return model.ChannelEmail
}

// Send はペイロードをJSONでトピックへ発行する。
// パーティションキーはユーザーIDとし、同一ユーザーの通知順序を保つ。
func (s *KafkaSender) Send(ctx context.Context, p *model.NotificationPayload) error {
	if p.Email == "" {
		return fmt.Errorf("ユーザー %s のメールアドレスが登録されていません", p.UserID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("通知ペイロードのエンコードに失敗しました: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(p.UserID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(EventTypeRestockNotification)},
			{Key: []byte("notification_id"), Value: []byte(p.NotificationID)},
		},
	}

	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("Kafkaへの通知発行に失敗しました: %w", err)
	}
	return nil
}

// Close はプロデューサーを閉じる。
func (s *KafkaSender) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}
