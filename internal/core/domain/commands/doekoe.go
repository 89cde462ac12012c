package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
	"tombot/internal/core/domain/command"
	"tombot/internal/core/domain/event"
	"tombot/internal/core/port"
)

const (
	DoekoeJobID      = "plugins.doekoe.midnight"
	DoekoeCallback   = "plugins.doekoe.announce"
	DoekoeCron       = "30 0 0 * * *"
	DoekoeDisclaimer = "Aan deze informatie kunnen geen rechten worden ontleend."
)

func monthly(day int) domain.Recurrence {
	schedule, err := cron.ParseStandard(fmt.Sprintf("0 0 %d * *", day))
	if err != nil {
		panic(err)
	}

	return schedule
}

// PaydayRules are the payouts the doekoe command counts down to.
var PaydayRules = []domain.Rule{
	{Name: "SaH-loon", Recurrence: monthly(8), Relocator: domain.Identity},
	{
		Name:       "AH-loon",
		Recurrence: domain.EveryNWeeks{Anchor: time.Date(2016, 3, 7, 0, 0, 0, 0, time.Local), N: 4},
		Relocator:  domain.FirstWeekdayOnOrAfter,
	},
	{Name: "Defensie-loon", Recurrence: monthly(21), Relocator: domain.FirstWeekdayOnOrAfter},
	{Name: "Zorgtoeslag", Recurrence: monthly(20), Relocator: domain.FirstWeekdayOnOrAfter},
	{Name: "Stufi", Recurrence: monthly(24), Relocator: domain.LastWeekdayOnOrBefore},
}

// Doekoe tells when money comes in and announces payouts in the announce
// group at midnight.
type Doekoe struct {
	rules     []domain.Rule
	scheduler port.Scheduler
	remote    port.RemoteSender
	group     string
	now       func() time.Time
}

func NewDoekoe(scheduler port.Scheduler, remote port.RemoteSender, group string) *Doekoe {
	return &Doekoe{
		rules:     PaydayRules,
		scheduler: scheduler,
		remote:    remote,
		group:     group,
		now:       time.Now,
	}
}

func (d *Doekoe) Name() string {
	return "doekoe"
}

func (d *Doekoe) Register(registry *command.Registry, bus *event.Bus) error {
	registry.Register(
		[]string{"doekoe", "duku", "geld", "gheldt", "munnie", "moneys", "cash"},
		port.CommandFunc(d.respond),
		command.WithCategory("fun"),
	)

	d.scheduler.RegisterFunc(DoekoeCallback, d.announce)
	bus.Subscribe(domain.EventStart, "doekoe.register", d.registerAnnouncer)
	bus.Subscribe(domain.EventShutdown, "doekoe.deregister", d.deregisterAnnouncer)

	return nil
}

func (d *Doekoe) respond(_ context.Context, _ domain.Message) (string, error) {
	return Countdown(d.rules, d.now()), nil
}

// Countdown lists when every rule next pays out relative to now.
func Countdown(rules []domain.Rule, now time.Time) string {
	var b strings.Builder

	for _, o := range domain.NextOccurrences(rules, now) {
		date := o.Date.Format(time.DateOnly)
		days := domain.DaysBetween(now, o.Date)

		switch {
		case days == 0:
			fmt.Fprintf(&b, "%s is vandaag! (%s)\n", o.Rule.Name, date)
		case days == 1:
			fmt.Fprintf(&b, "%s komt over 1 dag. (%s)\n", o.Rule.Name, date)
		default:
			fmt.Fprintf(&b, "%s komt over %d dagen. (%s)\n", o.Rule.Name, days, date)
		}
	}

	b.WriteString("\n" + DoekoeDisclaimer)
	return b.String()
}

// Announcement is the midnight message for the payouts of today, empty when
// there are none.
func Announcement(rules []domain.Rule, now time.Time) string {
	names := domain.WhichToday(rules, now)
	if len(names) == 0 {
		return ""
	}

	verb := "komt"
	if len(names) > 1 {
		verb = "komen"
	}

	return fmt.Sprintf("Vandaag %s %s!", verb, strings.Join(names, ", "))
}

func (d *Doekoe) announce(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("doekoe announcement needs a recipient, got %d args", len(args))
	}

	log.Info().Msg("checking for payouts to announce")
	text := Announcement(d.rules, d.now())
	if text == "" {
		log.Info().Msg("no payouts to announce")
		return nil
	}

	return d.remote.RemoteSend(ctx, args[0], text)
}

func (d *Doekoe) registerAnnouncer(ctx context.Context, _ event.Event) error {
	if d.group == "" {
		log.Warn().Msg("no announce group configured, not registering payout announcer")
		return nil
	}

	log.Info().Msg("registering payout announcer")
	return d.scheduler.ScheduleCron(ctx, DoekoeJobID, DoekoeCallback, []string{d.group}, DoekoeCron, true)
}

func (d *Doekoe) deregisterAnnouncer(ctx context.Context, _ event.Event) error {
	log.Info().Msg("deregistering payout announcer")

	err := d.scheduler.Remove(ctx, DoekoeJobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		return nil
	}

	return err
}
