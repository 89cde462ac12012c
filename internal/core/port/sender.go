package port

import (
	"context"
	"tombot/internal/core/domain"
)

type Transport interface {
	// Send delivers body to the conversation or user at address.
	Send(ctx context.Context, to string, body string) error
	// Acknowledge signals the sender that message was received.
	Acknowledge(ctx context.Context, message domain.Message) error
}

type RemoteSender interface {
	// RemoteSend asks the running bot to deliver body to recipient over the control channel.
	RemoteSend(ctx context.Context, recipient, body string) error
}

type Lifecycle interface {
	// Stop ends the bot with the given exit status. Safe to call from any goroutine.
	Stop(code int)
	// Connected reports whether outbound sends should be attempted.
	Connected() bool
}
