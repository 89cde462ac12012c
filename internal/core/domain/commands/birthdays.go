package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
	"tombot/internal/core/domain/command"
	"tombot/internal/core/domain/event"
	"tombot/internal/core/port"
)

const BirthdayCallback = "birthdays.congratulate"

type birthdayStore interface {
	Birthdays(ctx context.Context) ([]domain.User, error)
}

// Birthdays congratulates users in the announce group on their birthday.
type Birthdays struct {
	store     birthdayStore
	scheduler port.Scheduler
	remote    port.RemoteSender
	group     string

	mu   sync.Mutex
	jobs []string
}

func NewBirthdays(store birthdayStore, scheduler port.Scheduler, remote port.RemoteSender, group string) *Birthdays {
	return &Birthdays{store: store, scheduler: scheduler, remote: remote, group: group}
}

func (b *Birthdays) Name() string {
	return "birthdays"
}

func (b *Birthdays) Register(_ *command.Registry, bus *event.Bus) error {
	b.scheduler.RegisterFunc(BirthdayCallback, b.congratulate)
	bus.Subscribe(domain.EventStart, "birthdays.register", b.registerJobs)
	bus.Subscribe(domain.EventShutdown, "birthdays.deregister", b.deregisterJobs)

	return nil
}

func BirthdayJobID(nick string) string {
	return "abas." + nick
}

// BirthdayCron fires at 14:50 on the MM-DD birthday every year.
func BirthdayCron(birthday string) (string, error) {
	var month, day int
	if _, err := fmt.Sscanf(birthday, "%02d-%02d", &month, &day); err != nil {
		return "", fmt.Errorf("invalid birthday %q: %w", birthday, err)
	}

	return fmt.Sprintf("0 50 14 %d %d *", day, month), nil
}

func (b *Birthdays) registerJobs(ctx context.Context, _ event.Event) error {
	if b.group == "" {
		log.Warn().Msg("no announce group configured, not registering birthdays")
		return nil
	}

	users, err := b.store.Birthdays(ctx)
	if err != nil {
		return fmt.Errorf("failed to load birthdays: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, user := range users {
		l := log.With().Str("nick", user.PrimaryNick).Logger()

		spec, err := BirthdayCron(user.Birthday)
		if err != nil {
			l.Error().Err(err).Msg("invalid birthday found, fix the database")
			continue
		}

		id := BirthdayJobID(user.PrimaryNick)
		err = b.scheduler.ScheduleCron(ctx, id, BirthdayCallback, []string{user.PrimaryNick, b.group}, spec, true)
		if err != nil {
			l.Error().Err(err).Msg("failed to schedule birthday")
			continue
		}

		l.Info().Str("birthday", user.Birthday).Msg("birthday scheduled")
		b.jobs = append(b.jobs, id)
	}

	return nil
}

func (b *Birthdays) deregisterJobs(ctx context.Context, _ event.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	log.Info().Int("jobs", len(b.jobs)).Msg("deregistering birthdays")
	for _, id := range b.jobs {
		err := b.scheduler.Remove(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrJobNotFound) {
			log.Warn().Err(err).Str("job", id).Msg("failed to remove birthday job")
		}
	}
	b.jobs = nil

	return nil
}

func (b *Birthdays) congratulate(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("birthday job needs nick and recipient, got %d args", len(args))
	}

	nick := strings.TrimSpace(args[0])
	log.Info().Str("nick", nick).Msg("congratulating")

	return b.remote.RemoteSend(ctx, args[1], fmt.Sprintf("Congratulations, %s!", nick))
}
