package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
)

// Event is broadcast to every subscriber of ID. Message is only set for
// domain.EventMessageReceive.
type Event struct {
	ID      string
	Message domain.Message
}

type Handler func(ctx context.Context, ev Event) error

type subscriber struct {
	name    string
	handler Handler
}

// Bus maps event ids to subscriber sets. A subscriber that fails is dropped
// from that event only.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber
	disabled    map[string]map[string]string
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]*subscriber),
		disabled:    make(map[string]map[string]string),
	}
}

// Subscribe adds handler under name. Subscribing the same name twice to one
// event replaces the earlier handler.
func (b *Bus) Subscribe(eventID, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	log.Info().Str("event", eventID).Str("subscriber", name).Msg("adding event subscriber")

	for _, s := range b.subscribers[eventID] {
		if s.name == name {
			s.handler = handler
			return
		}
	}

	b.subscribers[eventID] = append(b.subscribers[eventID], &subscriber{name: name, handler: handler})
}

// Fire calls every subscriber of ev.ID in subscription order.
func (b *Bus) Fire(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := append([]*subscriber(nil), b.subscribers[ev.ID]...)
	b.mu.RUnlock()

	for _, s := range subs {
		err := call(ctx, s, ev)
		if err == nil {
			continue
		}

		if _, ok := domain.ExitCode(err); ok {
			log.Warn().Str("event", ev.ID).Str("subscriber", s.name).Msg("ignoring exit request from event subscriber")
			continue
		}

		log.Error().Err(err).Bool("critical", true).
			Str("event", ev.ID).
			Str("subscriber", s.name).
			Msg("event subscriber failed, unsubscribing")
		b.remove(ev.ID, s.name, err.Error())
	}
}

func call(ctx context.Context, s *subscriber, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrHandlerFault, r)
		}
	}()

	return s.handler(ctx, ev)
}

func (b *Bus) remove(eventID, name, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventID]
	for i, s := range subs {
		if s.name == name {
			b.subscribers[eventID] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}

	if b.disabled[eventID] == nil {
		b.disabled[eventID] = make(map[string]string)
	}
	b.disabled[eventID][name] = reason
}

// Subscribers lists the active subscriber names of eventID.
func (b *Bus) Subscribers(eventID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.subscribers[eventID]))
	for _, s := range b.subscribers[eventID] {
		names = append(names, s.name)
	}

	return names
}

// Disabled returns why name was dropped from eventID, if it was.
func (b *Bus) Disabled(eventID, name string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	reason, ok := b.disabled[eventID][name]
	return reason, ok
}
