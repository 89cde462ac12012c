package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSendingReplyFailed = errors.New("failed to send reply")
	ErrEmptyPrompt        = errors.New("empty prompt")

	ErrNotFound         = errors.New("not found")
	ErrCommandNotFound  = fmt.Errorf("command %w", ErrNotFound)
	ErrCommandDisabled  = fmt.Errorf("command disabled, %w", ErrNotFound)
	ErrHandlerFault     = errors.New("handler fault")
	ErrHandlerTimeout   = errors.New("handler timed out")
	ErrRegistrySealed   = errors.New("registry sealed")
	ErrNoTimeFound      = errors.New("no time found")
	ErrDurationTooLarge = errors.New("duration out of range")
	ErrDeadlinePassed   = errors.New("deadline has passed")
	ErrNotConnected     = errors.New("transport not connected")
	ErrJobNotFound      = fmt.Errorf("job %w", ErrNotFound)
	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)
	ErrNickNotFound     = fmt.Errorf("nick %w", ErrNotFound)
	ErrNickTaken        = errors.New("nick already taken")
	ErrInvalidNick      = errors.New("invalid nick")
	ErrRemoteFailed     = errors.New("remote call failed")
	ErrInvalidField     = errors.New("field contains a reserved character")
	ErrNotOwner         = errors.New("not owned by sender")
	ErrJobExists        = errors.New("job already exists")
)

// Lifecycle event identifiers.
const (
	EventStart          = "tombot.bot.start"
	EventShutdown       = "tombot.bot.shutdown"
	EventMessageReceive = "tombot.layer.msg_receive"
	EventConnected      = "tombot.bot.connected"
	EventDisconnected   = "tombot.bot.disconnected"
)

// Process exit statuses.
const (
	ExitStop    = 0
	ExitRestart = 3
)

const UnknownCommandReply = "Unknown command!"
const DecodeErrorReply = "Could not decode message, see logs."
const TimeoutReply = "That took too long, please try again later."
