package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
	"tombot/internal/core/domain/timefind"
	"tombot/internal/core/port"
)

// ReminderCallback is the scheduler callback name of reminder deliveries.
const ReminderCallback = "reminder.deliver"

const DeadlineLayout = "2006-01-02 15:04:05"

// Reminder turns reminder text into one-shot scheduler jobs. Jobs deliver
// through the control channel, never through a live transport handle.
type Reminder struct {
	scheduler port.Scheduler
	remote    port.RemoteSender
	now       func() time.Time
}

func NewReminder(scheduler port.Scheduler, remote port.RemoteSender) *Reminder {
	r := &Reminder{
		scheduler: scheduler,
		remote:    remote,
		now:       time.Now,
	}
	scheduler.RegisterFunc(ReminderCallback, r.deliver)

	return r
}

// Deadline works out when body should be delivered. The first word picks the
// parser: a duration marker or a bare clock time selects the duration parser,
// a clock marker the clock parser. Anything else, and any parser failure,
// falls back to fuzzy date parsing.
func (r *Reminder) Deadline(body string) (time.Time, error) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return time.Time{}, domain.ErrNoTimeFound
	}

	now := r.now()
	first := fields[0]

	var deadline time.Time
	switch {
	case timefind.IsDurationMarker(first) || timefind.IsStrictClock(first):
		d, err := timefind.FindTimedelta(body)
		if errors.Is(err, domain.ErrDurationTooLarge) {
			return time.Time{}, err
		}
		if err == nil && d.Total() > 0 {
			deadline = now.Add(d.Total())
		}
	case timefind.IsClockMarker(first):
		c, err := timefind.FindFirstTime(body)
		if err != nil {
			log.Error().Str("body", body).Msg("cannot find time in reminder")
		} else {
			deadline = c.Next(now)
		}
	}

	if deadline.IsZero() {
		t, err := timefind.FindFuzzy(body, now)
		if err != nil {
			return time.Time{}, err
		}
		deadline = t
	}

	if !deadline.After(now) {
		return deadline, fmt.Errorf("%w: %s", domain.ErrDeadlinePassed, deadline.Format(DeadlineLayout))
	}

	return deadline, nil
}

// Schedule stores a job delivering body to recipient at the deadline found in
// body.
func (r *Reminder) Schedule(ctx context.Context, body, recipient string) (time.Time, error) {
	deadline, err := r.Deadline(body)
	if err != nil {
		return deadline, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to generate job id: %w", err)
	}

	jobID := "reminder." + id.String()
	err = r.scheduler.ScheduleOnce(ctx, jobID, ReminderCallback, []string{body, recipient}, deadline)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to schedule reminder: %w", err)
	}

	log.Info().
		Str("job", jobID).
		Str("recipient", recipient).
		Time("deadline", deadline).
		Msg("reminder scheduled")

	return deadline, nil
}

func (r *Reminder) deliver(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("reminder job needs body and recipient, got %d args", len(args))
	}

	return r.remote.RemoteSend(ctx, args[1], args[0])
}

// Confirmation is the reply sent once a reminder is stored.
func Confirmation(deadline time.Time) string {
	return fmt.Sprintf("Reminder set for %s.", deadline.Format(DeadlineLayout))
}
