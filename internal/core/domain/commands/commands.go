// Package commands holds the bot's plugins. Each plugin registers its
// commands and event handlers once, before the first message is dispatched.
package commands

import (
	"context"
)

type authorizer interface {
	IsAdmin(ctx context.Context, address string) bool
}

const (
	NotAuthorizedReply = "Not authorized."
	GeneralCategory    = "general"
)
