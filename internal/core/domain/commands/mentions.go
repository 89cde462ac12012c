package commands

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
	"tombot/internal/core/domain/command"
	"tombot/internal/core/domain/event"
	"tombot/internal/core/port"
)

var mentionRegex = regexp.MustCompile(`(?:^|[^\w@])@\s?([^\s.:,@]+)`)

// Mentions forwards @nick mentions to users that have been quiet for longer
// than their timeout, and keeps track of when users were last seen.
type Mentions struct {
	store     port.UserStore
	transport port.Transport
	now       func() time.Time
}

func NewMentions(store port.UserStore, transport port.Transport) *Mentions {
	return &Mentions{store: store, transport: transport, now: time.Now}
}

func (m *Mentions) Name() string {
	return "mentions"
}

func (m *Mentions) Register(_ *command.Registry, bus *event.Bus) error {
	bus.Subscribe(domain.EventMessageReceive, "mentions.forward", m.forward)
	bus.Subscribe(domain.EventMessageReceive, "mentions.lastseen", m.lastSeen)

	return nil
}

// FindMentions returns the nicks mentioned in body, in order of appearance.
func FindMentions(body string) []string {
	var nicks []string
	for _, match := range mentionRegex.FindAllStringSubmatch(body, -1) {
		nicks = append(nicks, match[1])
	}

	return nicks
}

func (m *Mentions) forward(ctx context.Context, ev event.Event) error {
	msg := ev.Message
	nicks := FindMentions(msg.Body)
	if len(nicks) == 0 {
		return nil
	}

	senderName, err := m.store.ResolveAddressToAlias(ctx, msg.Sender)
	if err != nil {
		senderName = msg.SenderName
		if senderName == "" {
			senderName = msg.Sender
		}
	}

	now := m.now()
	notified := make(map[string]bool)

	for _, nick := range nicks {
		l := log.With().Str("nick", nick).Logger()

		target, err := m.store.ResolveAliasToAddress(ctx, nick)
		if err != nil {
			l.Debug().Err(err).Msg("could not resolve nick")
			continue
		}

		if notified[target] || target == msg.Sender {
			continue
		}

		if msg.IsGroup {
			user, err := m.store.User(ctx, target)
			if err == nil && !user.Idle(now) {
				l.Debug().Msg("recipient is active, not forwarding mention")
				continue
			}
		}

		body := fmt.Sprintf("%s: %s", senderName, msg.Body)
		if err := m.transport.Send(ctx, target, body); err != nil {
			l.Warn().Err(err).Msg("failed to forward mention")
			continue
		}
		notified[target] = true
	}

	return nil
}

func (m *Mentions) lastSeen(ctx context.Context, ev event.Event) error {
	at := ev.Message.ReceivedAt
	if at.IsZero() {
		at = m.now()
	}

	log.Debug().Str("sender", ev.Message.Sender).Msg("updating last seen")

	return m.store.Touch(ctx, ev.Message.Sender, ev.Message.Body, at)
}
