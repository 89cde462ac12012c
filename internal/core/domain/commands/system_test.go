package commands

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tombot/internal/core/domain"
	"tombot/internal/core/domain/command"
	"tombot/internal/core/domain/event"
)

func newSystem(t *testing.T) *command.Registry {
	t.Helper()

	registry := command.NewRegistry()
	require.NoError(t, NewSystem(fakeAuth{"1": true}).Register(registry, event.NewBus()))
	return registry
}

func TestSystem_Ping(t *testing.T) {
	registry := newSystem(t)

	reply, err := registry.Dispatch(t.Context(), "PING", direct("2", "ping"))
	require.NoError(t, err)
	assert.Equal(t, "Pong!", reply)
}

func TestSystem_Help(t *testing.T) {
	registry := newSystem(t)
	require.NoError(t, NewDice().Register(registry, event.NewBus()))

	reply, err := registry.Dispatch(t.Context(), "HELP", direct("2", "help"))
	require.NoError(t, err)

	assert.Equal(t, "Available commands:\n"+
		"fun: roll\n"+
		"system: debug, help, ping, restart, shutdown", reply)
	assert.NotContains(t, reply, "logdebug")
}

func TestSystem_Exit(t *testing.T) {
	tests := []struct {
		name      string
		alias     string
		sender    string
		wantReply string
		wantCode  int
		wantExit  bool
	}{
		{name: "shutdown by admin", alias: "SHUTDOWN", sender: "1", wantReply: "Shutting down.", wantCode: domain.ExitStop, wantExit: true},
		{name: "halt alias", alias: "HALT", sender: "1", wantReply: "Shutting down.", wantCode: domain.ExitStop, wantExit: true},
		{name: "restart by admin", alias: "RESTART", sender: "1", wantReply: "Restarting.", wantCode: domain.ExitRestart, wantExit: true},
		{name: "shutdown by stranger", alias: "SHUTDOWN", sender: "2", wantReply: NotAuthorizedReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := newSystem(t)

			reply, err := registry.Dispatch(t.Context(), tt.alias, direct(tt.sender, strings.ToLower(tt.alias)))
			assert.Equal(t, tt.wantReply, reply)

			code, ok := domain.ExitCode(err)
			assert.Equal(t, tt.wantExit, ok)
			if tt.wantExit {
				assert.Equal(t, tt.wantCode, code)
			} else {
				require.NoError(t, err)
			}

			_, err = registry.Get(tt.alias)
			assert.NoError(t, err)
		})
	}
}

func TestSystem_LogLevel(t *testing.T) {
	previous := zerolog.GlobalLevel()
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(previous)
	})

	registry := newSystem(t)

	reply, err := registry.Dispatch(t.Context(), "LOGDEBUG", direct("2", "logdebug"))
	require.NoError(t, err)
	assert.Equal(t, NotAuthorizedReply, reply)

	reply, err = registry.Dispatch(t.Context(), "LOGDEBUG", direct("1", "logdebug"))
	require.NoError(t, err)
	assert.Equal(t, "Ok.", reply)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	_, err = registry.Dispatch(t.Context(), "LOGINFO", direct("1", "loginfo"))
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestSystem_Debug(t *testing.T) {
	registry := newSystem(t)

	reply, err := registry.Dispatch(t.Context(), "DEBUG", direct("2", "debug"))
	require.NoError(t, err)

	for _, want := range []string{"allocated mem:", "goroutines running:", "heap:", "stack:", "compiled with"} {
		assert.Contains(t, reply, want)
	}
}
