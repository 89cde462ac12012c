package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
	"tombot/internal/core/domain/event"
	"tombot/internal/core/port"
)

// Runner is a transport that receives messages until ctx is cancelled.
type Runner interface {
	Start(ctx context.Context)
}

// Bot owns the connectivity gate and the exit status of the process.
type Bot struct {
	bus       *event.Bus
	connected atomic.Bool
	stop      chan int
	stopOnce  sync.Once
}

func NewBot(bus *event.Bus) *Bot {
	return &Bot{
		bus:  bus,
		stop: make(chan int, 1),
	}
}

// Stop ends Run with code. Only the first call has an effect.
func (b *Bot) Stop(code int) {
	b.stopOnce.Do(func() {
		log.Info().Int("code", code).Msg("stop requested")
		b.connected.Store(false)
		b.stop <- code
	})
}

// StartScheduler defers s.Start until the bot is connected, so jobs that fell
// due while it was down are not fired into a closed send gate.
func (b *Bot) StartScheduler(s port.Scheduler) {
	b.bus.Subscribe(domain.EventConnected, "scheduler.start", func(ctx context.Context, _ event.Event) error {
		return s.Start(ctx)
	})
}

func (b *Bot) Connected() bool {
	return b.connected.Load()
}

// Run fires the start events, runs transport until ctx ends or Stop is called
// and fires the shutdown events. It returns the process exit status.
func (b *Bot) Run(ctx context.Context, transport Runner) int {
	b.bus.Fire(ctx, event.Event{ID: domain.EventStart})

	tctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		transport.Start(tctx)
	}()

	b.connected.Store(true)
	log.Info().Msg("bot listening")
	b.bus.Fire(ctx, event.Event{ID: domain.EventConnected})

	code := domain.ExitStop
	select {
	case <-ctx.Done():
		log.Info().Msg("interrupted")
	case code = <-b.stop:
	case <-done:
		log.Warn().Msg("transport stopped on its own")
	}

	b.connected.Store(false)
	cancel()
	<-done

	shutdownCtx := context.WithoutCancel(ctx)
	b.bus.Fire(shutdownCtx, event.Event{ID: domain.EventDisconnected})
	b.bus.Fire(shutdownCtx, event.Event{ID: domain.EventShutdown})

	log.Info().Int("code", code).Msg("bot stopped")
	return code
}
