package command

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain/event"
)

// Plugin is an independently authored set of commands and event handlers.
type Plugin interface {
	Name() string
	// Register adds the plugin's commands and subscriptions. It runs once,
	// before the first message is dispatched.
	Register(registry *Registry, bus *event.Bus) error
}

// LoadPlugins registers every plugin and returns the names of the ones that
// loaded. A failing plugin is logged and skipped, the rest still load.
func LoadPlugins(registry *Registry, bus *event.Bus, plugins ...Plugin) []string {
	loaded := make([]string, 0, len(plugins))

	for _, p := range plugins {
		l := log.With().Str("plugin", p.Name()).Logger()

		if err := load(registry, bus, p); err != nil {
			l.Error().Err(err).Bool("critical", true).Msg("failed to load plugin")
			continue
		}

		l.Info().Msg("plugin loaded")
		loaded = append(loaded, p.Name())
	}

	return loaded
}

func load(registry *Registry, bus *event.Bus, p Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return p.Register(registry, bus)
}
