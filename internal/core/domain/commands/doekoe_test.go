package commands

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tombot/internal/core/domain"
	"tombot/internal/core/domain/command"
	"tombot/internal/core/domain/event"
)

func localDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, time.Local)
}

func TestCountdown(t *testing.T) {
	got := Countdown(PaydayRules, localDate(2026, 10, 19))

	assert.Equal(t, "SaH-loon komt over 20 dagen. (2026-11-08)\n"+
		"AH-loon komt over 14 dagen. (2026-11-02)\n"+
		"Defensie-loon komt over 2 dagen. (2026-10-21)\n"+
		"Zorgtoeslag komt over 1 dag. (2026-10-20)\n"+
		"Stufi komt over 4 dagen. (2026-10-23)\n"+
		"\n"+DoekoeDisclaimer, got)
}

func TestCountdown_Today(t *testing.T) {
	got := Countdown(PaydayRules, localDate(2026, 10, 23))

	assert.Contains(t, got, "Stufi is vandaag! (2026-10-23)\n")
}

func TestAnnouncement(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{name: "nothing today", now: localDate(2026, 10, 19), want: ""},
		{name: "one payout", now: localDate(2026, 10, 20), want: "Vandaag komt Zorgtoeslag!"},
		{name: "relocated payout", now: localDate(2026, 10, 23), want: "Vandaag komt Stufi!"},
		{name: "several payouts", now: localDate(2026, 12, 21), want: "Vandaag komen Defensie-loon, Zorgtoeslag!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Announcement(PaydayRules, tt.now))
		})
	}
}

func TestDoekoe_Command(t *testing.T) {
	d := NewDoekoe(newFakeScheduler(), &fakeRemote{}, "-100")
	d.now = func() time.Time { return localDate(2026, 10, 19) }

	registry := command.NewRegistry()
	require.NoError(t, d.Register(registry, event.NewBus()))

	for _, alias := range []string{"DOEKOE", "GELD", "CASH", "MUNNIE"} {
		reply, err := registry.Dispatch(t.Context(), alias, direct("1", alias))
		require.NoError(t, err)
		assert.Contains(t, reply, "Zorgtoeslag komt over 1 dag.")
	}
}

func TestDoekoe_AnnouncerLifecycle(t *testing.T) {
	scheduler := newFakeScheduler()
	remote := &fakeRemote{}
	d := NewDoekoe(scheduler, remote, "-100")
	d.now = func() time.Time { return localDate(2026, 10, 20) }

	bus := event.NewBus()
	require.NoError(t, d.Register(command.NewRegistry(), bus))

	bus.Fire(t.Context(), event.Event{ID: domain.EventStart})
	require.Contains(t, scheduler.cron, DoekoeJobID)
	assert.Equal(t, cronJob{callback: DoekoeCallback, args: []string{"-100"}, spec: DoekoeCron}, scheduler.cron[DoekoeJobID])

	announce := scheduler.funcs[DoekoeCallback]
	require.NotNil(t, announce)
	require.NoError(t, announce(t.Context(), []string{"-100"}))
	assert.Equal(t, []sentMessage{{to: "-100", body: "Vandaag komt Zorgtoeslag!"}}, remote.sent)

	bus.Fire(t.Context(), event.Event{ID: domain.EventShutdown})
	assert.Equal(t, []string{DoekoeJobID}, scheduler.removed)

	bus.Fire(t.Context(), event.Event{ID: domain.EventShutdown})
	assert.Equal(t, []string{"doekoe.deregister"}, bus.Subscribers(domain.EventShutdown))
}

func TestDoekoe_AnnounceNothing(t *testing.T) {
	scheduler := newFakeScheduler()
	remote := &fakeRemote{err: errors.New("must not be called")}
	d := NewDoekoe(scheduler, remote, "-100")
	d.now = func() time.Time { return localDate(2026, 10, 19) }

	require.NoError(t, d.Register(command.NewRegistry(), event.NewBus()))
	require.NoError(t, scheduler.funcs[DoekoeCallback](t.Context(), []string{"-100"}))
	assert.Error(t, scheduler.funcs[DoekoeCallback](t.Context(), nil))
}

func TestDoekoe_NoAnnounceGroup(t *testing.T) {
	scheduler := newFakeScheduler()
	d := NewDoekoe(scheduler, &fakeRemote{}, "")

	bus := event.NewBus()
	require.NoError(t, d.Register(command.NewRegistry(), bus))
	bus.Fire(t.Context(), event.Event{ID: domain.EventStart})

	assert.Empty(t, scheduler.cron)
}
