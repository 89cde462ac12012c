package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tombot/internal/adapters/store"
	"tombot/internal/core/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu    sync.Mutex
	calls [][]string
	ch    chan []string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan []string, 16)}
}

func (r *recorder) fn(_ context.Context, args []string) error {
	r.mu.Lock()
	r.calls = append(r.calls, args)
	r.mu.Unlock()
	r.ch <- args
	return nil
}

func (r *recorder) wait(t *testing.T) []string {
	t.Helper()
	select {
	case args := <-r.ch:
		return args
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire")
		return nil
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestScheduler(t *testing.T, path string, clock *fakeClock, opts ...Option) *Scheduler {
	t.Helper()

	db, err := store.Open(t.Context(), path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(t.Context(), db, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)

	return s
}

var start = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func TestScheduleOnce_FiresOnceAfterDeadline(t *testing.T) {
	clock := &fakeClock{now: start}
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "jobs.db"), clock)
	rec := newRecorder()
	s.RegisterFunc("deliver", rec.fn)

	require.NoError(t, s.ScheduleOnce(t.Context(), "reminder.1", "deliver", []string{"call mom", "42"},
		start.Add(10*time.Minute)))
	require.ErrorIs(t, s.ScheduleOnce(t.Context(), "reminder.1", "deliver", nil, start), domain.ErrJobExists)

	s.runDue(t.Context())
	assert.Equal(t, 0, rec.count())

	clock.Advance(10 * time.Minute)
	s.runDue(t.Context())
	assert.Equal(t, []string{"call mom", "42"}, rec.wait(t))

	s.runDue(t.Context())
	require.NoError(t, s.Shutdown(t.Context()))
	assert.Equal(t, 1, rec.count())

	jobs, err := s.Jobs(t.Context())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestScheduleOnce_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	clock := &fakeClock{now: start}

	first := newTestScheduler(t, path, clock)
	require.NoError(t, first.ScheduleOnce(t.Context(), "reminder.2", "deliver", []string{"body", "7"},
		start.Add(time.Minute)))
	require.NoError(t, first.Shutdown(t.Context()))

	clock.Advance(time.Hour)
	second := newTestScheduler(t, path, clock)
	rec := newRecorder()
	second.RegisterFunc("deliver", rec.fn)

	second.runDue(t.Context())
	assert.Equal(t, []string{"body", "7"}, rec.wait(t))
	require.NoError(t, second.Shutdown(t.Context()))
}

func TestScheduleCron(t *testing.T) {
	clock := &fakeClock{now: start}
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "jobs.db"), clock)
	rec := newRecorder()
	s.RegisterFunc("announce", rec.fn)

	require.NoError(t, s.ScheduleCron(t.Context(), "plugins.doekoe.midnight", "announce", []string{"group"},
		"30 0 0 * * *", true))
	require.NoError(t, s.ScheduleCron(t.Context(), "plugins.doekoe.midnight", "announce", []string{"group2"},
		"30 0 0 * * *", true))
	require.ErrorIs(t, s.ScheduleCron(t.Context(), "plugins.doekoe.midnight", "announce", nil,
		"30 0 0 * * *", false), domain.ErrJobExists)
	require.Error(t, s.ScheduleCron(t.Context(), "broken", "announce", nil, "not a cron", true))

	jobs, err := s.Jobs(t.Context())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, Cron, jobs[0].Kind)
	assert.Equal(t, []string{"group2"}, jobs[0].Args)
	assert.True(t, time.Date(2026, 10, 20, 0, 0, 30, 0, time.UTC).Equal(jobs[0].NextRun))

	clock.Advance(12*time.Hour + 30*time.Second)
	s.runDue(t.Context())
	assert.Equal(t, []string{"group2"}, rec.wait(t))
	require.NoError(t, s.Shutdown(t.Context()))

	jobs, err = s.Jobs(t.Context())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, time.Date(2026, 10, 21, 0, 0, 30, 0, time.UTC).Equal(jobs[0].NextRun))

	require.NoError(t, s.Remove(t.Context(), "plugins.doekoe.midnight"))
	require.ErrorIs(t, s.Remove(t.Context(), "plugins.doekoe.midnight"), domain.ErrJobNotFound)
}

func TestScheduleCron_MisfireIsSkipped(t *testing.T) {
	clock := &fakeClock{now: start}
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "jobs.db"), clock, WithMisfireGrace(10*time.Second))
	rec := newRecorder()
	s.RegisterFunc("announce", rec.fn)

	require.NoError(t, s.ScheduleCron(t.Context(), "daily", "announce", nil, "0 13 * * *", true))

	clock.Advance(2 * time.Hour)
	s.runDue(t.Context())
	require.NoError(t, s.Shutdown(t.Context()))
	assert.Equal(t, 0, rec.count())

	jobs, err := s.Jobs(t.Context())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, time.Date(2026, 10, 20, 13, 0, 0, 0, time.UTC).Equal(jobs[0].NextRun))
}

func TestObserverSeesFailures(t *testing.T) {
	clock := &fakeClock{now: start}

	var mu sync.Mutex
	outcomes := make(chan error, 4)
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "jobs.db"), clock, WithObserver(func(_ string, err error) {
		mu.Lock()
		defer mu.Unlock()
		outcomes <- err
	}))
	s.RegisterFunc("fails", func(_ context.Context, _ []string) error { return errors.New("remote down") })
	s.RegisterFunc("panics", func(_ context.Context, _ []string) error { panic("boom") })

	require.NoError(t, s.ScheduleOnce(t.Context(), "a", "fails", nil, start))
	require.NoError(t, s.ScheduleOnce(t.Context(), "b", "panics", nil, start))
	require.NoError(t, s.ScheduleOnce(t.Context(), "c", "unregistered", nil, start))

	s.runDue(t.Context())
	require.NoError(t, s.Shutdown(t.Context()))

	close(outcomes)
	count := 0
	for err := range outcomes {
		assert.Error(t, err)
		count++
	}
	assert.Equal(t, 3, count)
}

func TestStartPolls(t *testing.T) {
	clock := &fakeClock{now: start}
	s := newTestScheduler(t, filepath.Join(t.TempDir(), "jobs.db"), clock, WithPollInterval(10*time.Millisecond))
	rec := newRecorder()
	s.RegisterFunc("deliver", rec.fn)

	require.NoError(t, s.Start(t.Context()))
	require.Error(t, s.Start(t.Context()))

	require.NoError(t, s.ScheduleOnce(t.Context(), "soon", "deliver", []string{"x"}, start.Add(time.Second)))
	clock.Advance(time.Second)

	assert.Equal(t, []string{"x"}, rec.wait(t))
	require.NoError(t, s.Shutdown(t.Context()))
}
