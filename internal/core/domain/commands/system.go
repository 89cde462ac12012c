package commands

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"runtime/metrics"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
	"tombot/internal/core/domain/command"
	"tombot/internal/core/domain/event"
	"tombot/internal/core/port"
)

// System provides commands that change the bot as a whole.
type System struct {
	auth     authorizer
	registry *command.Registry
}

func NewSystem(auth authorizer) *System {
	return &System{auth: auth}
}

func (s *System) Name() string {
	return "system"
}

func (s *System) Register(registry *command.Registry, _ *event.Bus) error {
	s.registry = registry

	registry.Register([]string{"ping"}, port.CommandFunc(ping), command.WithCategory("system"))
	registry.Register([]string{"help"}, port.CommandFunc(s.help), command.WithCategory("system"))
	registry.Register([]string{"debug"}, port.CommandFunc(debugInfo), command.WithCategory("system"))
	registry.Register([]string{"shutdown", "halt"}, s.exit(domain.ExitStop, "Shutting down."),
		command.WithCategory("system"))
	registry.Register([]string{"restart"}, s.exit(domain.ExitRestart, "Restarting."),
		command.WithCategory("system"))
	registry.Register([]string{"logdebug"}, s.logLevel(zerolog.DebugLevel), command.WithCategory("system"),
		command.Hidden())
	registry.Register([]string{"loginfo"}, s.logLevel(zerolog.InfoLevel), command.WithCategory("system"),
		command.Hidden())

	return nil
}

func ping(_ context.Context, _ domain.Message) (string, error) {
	return "Pong!", nil
}

func (s *System) help(_ context.Context, _ domain.Message) (string, error) {
	categories := s.registry.Categories()

	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Available commands:")
	for _, name := range names {
		label := name
		if label == "" {
			label = GeneralCategory
		}
		fmt.Fprintf(&b, "\n%s: %s", label, strings.ToLower(strings.Join(categories[name], ", ")))
	}

	return b.String(), nil
}

func (s *System) exit(code int, reply string) port.Command {
	return port.CommandFunc(func(ctx context.Context, message domain.Message) (string, error) {
		l := log.With().Str("sender", message.Sender).Int("code", code).Logger()
		l.Info().Str("body", message.Body).Msg("stop message received")

		if !s.auth.IsAdmin(ctx, message.Sender) {
			l.Warn().Msg("unauthorized stop attempt")
			return NotAuthorizedReply, nil
		}

		return reply, domain.Exit(code)
	})
}

func (s *System) logLevel(level zerolog.Level) port.Command {
	return port.CommandFunc(func(ctx context.Context, message domain.Message) (string, error) {
		if !s.auth.IsAdmin(ctx, message.Sender) {
			return NotAuthorizedReply, nil
		}

		zerolog.SetGlobalLevel(level)
		log.Info().Str("level", level.String()).Msg("log level changed")

		return "Ok.", nil
	})
}

const kb = 1024
const debugTemplate = `allocated mem: %d KB
goroutines running: %d
heap: %d KB
stack: %d KB
compiled with %s for %s-%s`
const metricCount = 3

func debugInfo(_ context.Context, message domain.Message) (string, error) {
	log.Info().Str("sender", message.Sender).Msg("handling debug request")

	data := make([]metrics.Sample, metricCount)
	data[0] = metrics.Sample{Name: "/memory/classes/heap/objects:bytes"}
	data[1] = metrics.Sample{Name: "/memory/classes/heap/stacks:bytes"}
	data[2] = metrics.Sample{Name: "/memory/classes/total:bytes"}

	metrics.Read(data)

	goos, goarch := runtime.GOOS, runtime.GOARCH
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "GOOS":
				goos = setting.Value
			case "GOARCH":
				goarch = setting.Value
			}
		}
	}

	return fmt.Sprintf(
		debugTemplate,
		data[2].Value.Uint64()/kb,
		runtime.NumGoroutine(),
		data[0].Value.Uint64()/kb,
		data[1].Value.Uint64()/kb,
		runtime.Version(), goos, goarch,
	), nil
}
