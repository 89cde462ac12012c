package port

import (
	"context"
	"tombot/internal/core/domain"
)

type Command interface {
	// Respond handles a message addressed to the command and returns the reply text. An empty reply sends nothing.
	// A returned error counts as a handler fault; user facing failures are reported through the reply.
	Respond(ctx context.Context, message domain.Message) (string, error)
}

// CommandFunc adapts a plain function to Command.
type CommandFunc func(ctx context.Context, message domain.Message) (string, error)

func (f CommandFunc) Respond(ctx context.Context, message domain.Message) (string, error) {
	return f(ctx, message)
}

type CommandRegistry interface {
	// Get retrieves the active handler registered under alias, case-insensitively.
	Get(alias string) (Command, error)
	// Dispatch invokes the handler for alias and disables it if it fails.
	Dispatch(ctx context.Context, alias string, message domain.Message) (string, error)
	// ListCommands returns every active alias.
	ListCommands() []string
}
