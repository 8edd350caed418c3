// Package notify は再入荷通知の配信先決定と外部配信サービスへの引き渡しを提供する。
package notify

import (
	"context"
	"errors"

	"github.com/hitoshi/restockwatch/internal/model"
)

// ErrNoSender は配信チャネルに対応するSenderが設定されていないことを示す。
var ErrNoSender = errors.New("配信チャネルが設定されていません")

// Sender は1チャネル分の外部配信インターフェース。
// nilを返した場合は配信済みとして扱う。
type Sender interface {
	Channel() model.Channel
	Send(ctx context.Context, payload *model.NotificationPayload) error
}

// Router はチャネルごとにSenderを振り分ける。
type Router struct {
	senders map[model.Channel]Sender
}

// NewRouter は指定されたSenderからRouterを生成する。nilのSenderは無視する。
func NewRouter(senders ...Sender) *Router {
	r := &Router{senders: make(map[model.Channel]Sender)}
	for _, s := range senders {
		if s != nil {
			r.senders[s.Channel()] = s
		}
	}
	return r
}

// Send はペイロードのチャネルに対応するSenderへ配信を委譲する。
func (r *Router) Send(ctx context.Context, payload *model.NotificationPayload) error {
	s, ok := r.senders[payload.Channel]
	if !ok {
		return ErrNoSender
	}
	return s.Send(ctx, payload)
}

// Channels は設定済みのチャネル一覧を返す。
func (r *Router) Channels() []model.Channel {
	channels := make([]model.Channel, 0, len(r.senders))
	for ch := range r.senders {
		channels = append(channels, ch)
	}
	return channels
}
