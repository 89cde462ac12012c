package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
)

const QueueSize = 64

type messageHandler interface {
	OnMessage(ctx context.Context, msg domain.Message)
}

// Inbound converts telegram updates into messages and hands them to a single
// consumer in arrival order.
type Inbound struct {
	handler messageHandler
	queue   chan domain.Message
}

func NewInbound(handler messageHandler) *Inbound {
	return &Inbound{
		handler: handler,
		queue:   make(chan domain.Message, QueueSize),
	}
}

// Handle has the signature of a go-telegram update handler.
func (i *Inbound) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg, ok := toMessage(update)
	if !ok {
		return
	}

	log.Debug().Str("conversation", msg.Conversation).Msg("received message")

	select {
	case i.queue <- msg:
	case <-ctx.Done():
		log.Warn().Str("id", msg.ID).Msg("dropping message, shutting down")
	}
}

// Consume dispatches queued messages one at a time until ctx ends.
func (i *Inbound) Consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-i.queue:
			i.handler.OnMessage(ctx, msg)
		}
	}
}

type poller interface {
	Start(ctx context.Context)
}

// Listener polls telegram and runs the consumer next to it.
type Listener struct {
	poller  poller
	inbound *Inbound
}

func NewListener(p poller, inbound *Inbound) *Listener {
	return &Listener{poller: p, inbound: inbound}
}

func (l *Listener) Start(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.inbound.Consume(ctx)
	}()

	l.poller.Start(ctx)
	<-done
}

func toMessage(update *models.Update) (domain.Message, bool) {
	if update == nil || update.Message == nil || update.Message.From == nil {
		return domain.Message{}, false
	}

	m := update.Message
	body := m.Text
	if body == "" {
		body = m.Caption
	}
	if body == "" {
		return domain.Message{}, false
	}

	return domain.Message{
		ID:           strconv.Itoa(m.ID),
		Sender:       strconv.FormatInt(m.From.ID, 10),
		SenderName:   getUserNameFromMessage(m.From),
		Conversation: strconv.FormatInt(m.Chat.ID, 10),
		IsGroup:      m.Chat.Type == models.ChatTypeGroup || m.Chat.Type == models.ChatTypeSupergroup,
		Body:         body,
		ReceivedAt:   time.Unix(int64(m.Date), 0),
	}, true
}

func getUserNameFromMessage(user *models.User) string {
	if user.Username == "" {
		return user.FirstName
	}

	return "@" + user.Username
}
