package handler

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
	"tombot/internal/core/domain/event"
	"tombot/internal/core/port"
)

var DefaultTriggers = []string{"TOMBOT", "TOMBOT,", "BOT", "BOT,"}

const DefaultTimeout = 30 * time.Second

// Dispatch outcomes reported to the observer.
const (
	OutcomeOK      = "ok"
	OutcomeUnknown = "unknown"
	OutcomeFault   = "fault"
	OutcomeTimeout = "timeout"
	OutcomeExit    = "exit"
)

type publisher interface {
	Fire(ctx context.Context, ev event.Event)
}

type DispatcherOption func(*Dispatcher)

func WithTriggers(triggers []string) DispatcherOption {
	return func(d *Dispatcher) {
		if len(triggers) > 0 {
			d.triggers = triggers
		}
	}
}

func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithObserver receives the uppercased command and the outcome of every dispatch.
func WithObserver(fn func(command, outcome string)) DispatcherOption {
	return func(d *Dispatcher) {
		d.observe = fn
	}
}

// Dispatcher turns inbound messages into command invocations and sends the
// replies back to the originating conversation.
type Dispatcher struct {
	registry  port.CommandRegistry
	transport port.Transport
	lifecycle port.Lifecycle
	events    publisher
	triggers  []string
	timeout   time.Duration
	observe   func(command, outcome string)
}

func NewDispatcher(registry port.CommandRegistry, transport port.Transport, lifecycle port.Lifecycle,
	events publisher, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		transport: transport,
		lifecycle: lifecycle,
		events:    events,
		triggers:  DefaultTriggers,
		timeout:   DefaultTimeout,
		observe:   func(string, string) {},
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Dispatcher) OnMessage(ctx context.Context, msg domain.Message) {
	l := log.With().
		Str("sender", msg.Sender).
		Str("conversation", msg.Conversation).
		Bool("group", msg.IsGroup).
		Logger()

	if err := d.transport.Acknowledge(ctx, msg); err != nil {
		l.Debug().Err(err).Msg("failed to acknowledge message")
	}

	if !utf8.ValidString(msg.Body) {
		l.Error().Str("id", msg.ID).Msg("message body is not valid utf-8")
		d.reply(ctx, msg, domain.DecodeErrorReply)
		return
	}

	defer d.events.Fire(ctx, event.Event{ID: domain.EventMessageReceive, Message: msg})

	fields := strings.Fields(msg.Body)
	if msg.IsGroup {
		if len(fields) == 0 || !slices.Contains(d.triggers, fields[0]) {
			return
		}
		fields = fields[1:]
	}

	if len(fields) == 0 {
		return
	}

	alias := strings.ToUpper(fields[0])
	l = l.With().Str("command", alias).Logger()
	l.Info().Msg("handling command")

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	reply, err := d.registry.Dispatch(cctx, alias, msg)
	cancel()

	if code, ok := domain.ExitCode(err); ok {
		d.observe(alias, OutcomeExit)
		d.reply(ctx, msg, reply)
		l.Info().Int("code", code).Msg("command requested exit")
		d.lifecycle.Stop(code)
		return
	}

	switch {
	case errors.Is(err, domain.ErrHandlerTimeout):
		d.observe(alias, OutcomeTimeout)
		l.Warn().Err(err).Msg("command timed out")
		d.reply(ctx, msg, domain.TimeoutReply)
	case errors.Is(err, domain.ErrHandlerFault):
		d.observe(alias, OutcomeFault)
		l.Warn().Err(err).Msg("command failed")
	case errors.Is(err, domain.ErrNotFound):
		d.observe(alias, OutcomeUnknown)
		if msg.IsGroup || strings.HasPrefix(strings.TrimSpace(msg.Body), "@") {
			l.Debug().Msg("ignoring unknown command")
			return
		}
		d.reply(ctx, msg, domain.UnknownCommandReply)
	case err != nil:
		d.observe(alias, OutcomeFault)
		l.Error().Err(err).Msg("dispatch failed")
	default:
		d.observe(alias, OutcomeOK)
		d.reply(ctx, msg, reply)
	}
}

func (d *Dispatcher) reply(ctx context.Context, msg domain.Message, text string) {
	if text == "" {
		return
	}

	if err := d.transport.Send(ctx, msg.Conversation, text); err != nil {
		log.Error().Err(err).Str("conversation", msg.Conversation).Msg("failed to send reply")
	}
}
