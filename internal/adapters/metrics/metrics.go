// Package metrics exposes bot counters to prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"tombot/internal/core/port"
)

type Metrics struct {
	CommandsDispatched *prometheus.CounterVec
	HandlersDisabled   *prometheus.CounterVec
	JobsScheduled      *prometheus.CounterVec
	JobRuns            *prometheus.CounterVec
	ControlRequests    *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the counters on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		CommandsDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tombot_commands_dispatched_total",
				Help: "Commands dispatched, by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		HandlersDisabled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tombot_handlers_disabled_total",
				Help: "Command handlers disabled after a failure",
			},
			[]string{"command"},
		),
		JobsScheduled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tombot_jobs_scheduled_total",
				Help: "Scheduler jobs stored, by callback",
			},
			[]string{"callback"},
		),
		JobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tombot_job_runs_total",
				Help: "Scheduler job firings, by callback and outcome",
			},
			[]string{"callback", "outcome"},
		),
		ControlRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tombot_control_requests_total",
				Help: "Control channel requests, by command",
			},
			[]string{"command"},
		),
		registry: reg,
	}
}

func (m *Metrics) ObserveCommand(command, outcome string) {
	m.CommandsDispatched.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) ObserveDisabled(command string) {
	m.HandlersDisabled.WithLabelValues(command).Inc()
}

func (m *Metrics) ObserveJob(callback string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.JobRuns.WithLabelValues(callback, outcome).Inc()
}

func (m *Metrics) ObserveControl(command string) {
	m.ControlRequests.WithLabelValues(command).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("address", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

type instrumentedScheduler struct {
	port.Scheduler
	metrics *Metrics
}

// Scheduler counts the jobs stored through s.
func (m *Metrics) Scheduler(s port.Scheduler) port.Scheduler {
	return &instrumentedScheduler{Scheduler: s, metrics: m}
}

func (s *instrumentedScheduler) ScheduleOnce(ctx context.Context, id, callback string, args []string, at time.Time) error {
	err := s.Scheduler.ScheduleOnce(ctx, id, callback, args, at)
	if err == nil {
		s.metrics.JobsScheduled.WithLabelValues(callback).Inc()
	}

	return err
}

func (s *instrumentedScheduler) ScheduleCron(ctx context.Context, id, callback string, args []string,
	spec string, replaceExisting bool) error {
	err := s.Scheduler.ScheduleCron(ctx, id, callback, args, spec, replaceExisting)
	if err == nil {
		s.metrics.JobsScheduled.WithLabelValues(callback).Inc()
	}

	return err
}
