package sender

import (
	"context"

	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
	"tombot/internal/core/port"
)

type connectivity interface {
	Connected() bool
}

// Gated drops outgoing traffic while the bot is not connected.
type Gated struct {
	next  port.Transport
	state connectivity
}

func NewGated(next port.Transport, state connectivity) *Gated {
	return &Gated{next: next, state: state}
}

func (g *Gated) Send(ctx context.Context, to string, body string) error {
	if !g.state.Connected() {
		log.Warn().Str("to", to).Msg("not connected, dropping message")
		return domain.ErrNotConnected
	}

	return g.next.Send(ctx, to, body)
}

func (g *Gated) Acknowledge(ctx context.Context, msg domain.Message) error {
	if !g.state.Connected() {
		return domain.ErrNotConnected
	}

	return g.next.Acknowledge(ctx, msg)
}
