package commands

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
	"tombot/internal/core/domain/command"
	"tombot/internal/core/domain/event"
	"tombot/internal/core/port"
	"tombot/internal/core/service"
)

const (
	ReminderUsageReply  = "Usage: remind <when> <what>, e.g. remind in 2 hours 30 minutes laundry"
	ReminderNoTimeReply = "Sorry, I could not find a time in that reminder."
	ReminderPassedReply = "That time has already passed."
	ReminderTooFarReply = "That is too far in the future."
	ReminderFailedReply = "Sorry, I could not store that reminder."
)

type reminderScheduler interface {
	Schedule(ctx context.Context, body, recipient string) (time.Time, error)
}

// Reminders lets users schedule a message to themselves.
type Reminders struct {
	reminder  reminderScheduler
	transport port.Transport
}

func NewReminders(reminder reminderScheduler, transport port.Transport) *Reminders {
	return &Reminders{reminder: reminder, transport: transport}
}

func (r *Reminders) Name() string {
	return "reminder"
}

func (r *Reminders) Register(registry *command.Registry, _ *event.Bus) error {
	registry.Register([]string{"remind", "remindme"}, port.CommandFunc(r.remind), command.WithCategory("reminders"))
	return nil
}

// remind confirms directly to the sender and replies nothing in the
// conversation itself.
func (r *Reminders) remind(ctx context.Context, message domain.Message) (string, error) {
	body := strings.Join(strings.Fields(message.Query()), " ")
	if body == "" {
		return ReminderUsageReply, nil
	}

	l := log.With().Str("sender", message.Sender).Str("body", body).Logger()
	l.Debug().Msg("parsing reminder")

	deadline, err := r.reminder.Schedule(ctx, body, message.Sender)
	switch {
	case errors.Is(err, domain.ErrNoTimeFound):
		l.Info().Msg("no time found in reminder")
		return ReminderNoTimeReply, nil
	case errors.Is(err, domain.ErrDeadlinePassed):
		l.Info().Time("deadline", deadline).Msg("reminder deadline has passed")
		return ReminderPassedReply, nil
	case errors.Is(err, domain.ErrDurationTooLarge):
		return ReminderTooFarReply, nil
	case err != nil:
		l.Error().Err(err).Msg("failed to schedule reminder")
		return ReminderFailedReply, nil
	}

	confirmation := service.Confirmation(deadline)
	if err := r.transport.Send(ctx, message.Sender, confirmation); err != nil {
		l.Warn().Err(err).Msg("failed to confirm directly, replying in conversation")
		return confirmation, nil
	}

	return "", nil
}
