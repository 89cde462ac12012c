package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tombot/internal/core/port"
)

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveCommand("PING", "ok")
	m.ObserveCommand("PING", "ok")
	m.ObserveCommand("BOOM", "fault")
	m.ObserveDisabled("BOOM")
	m.ObserveJob("reminder.deliver", nil)
	m.ObserveJob("reminder.deliver", errors.New("offline"))
	m.ObserveControl("SEND")

	assert.InDelta(t, 2, testutil.ToFloat64(m.CommandsDispatched.WithLabelValues("PING", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CommandsDispatched.WithLabelValues("BOOM", "fault")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.HandlersDisabled.WithLabelValues("BOOM")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.JobRuns.WithLabelValues("reminder.deliver", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.JobRuns.WithLabelValues("reminder.deliver", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ControlRequests.WithLabelValues("SEND")), 0)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveControl("PING")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `tombot_control_requests_total{command="PING"} 1`))
}

type stubScheduler struct {
	port.Scheduler
	err error
}

func (s *stubScheduler) ScheduleOnce(context.Context, string, string, []string, time.Time) error {
	return s.err
}

func (s *stubScheduler) ScheduleCron(context.Context, string, string, []string, string, bool) error {
	return s.err
}

func TestInstrumentedScheduler(t *testing.T) {
	m := New()

	s := m.Scheduler(&stubScheduler{})
	require.NoError(t, s.ScheduleOnce(t.Context(), "reminder.1", "reminder.deliver", nil, time.Now()))
	require.NoError(t, s.ScheduleCron(t.Context(), "abas.bob", "birthdays.congratulate", nil, "0 50 14 1 2 *", true))

	failing := m.Scheduler(&stubScheduler{err: errors.New("db locked")})
	require.Error(t, failing.ScheduleOnce(t.Context(), "reminder.2", "reminder.deliver", nil, time.Now()))

	assert.InDelta(t, 1, testutil.ToFloat64(m.JobsScheduled.WithLabelValues("reminder.deliver")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.JobsScheduled.WithLabelValues("birthdays.congratulate")), 0)
}
