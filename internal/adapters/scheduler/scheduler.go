package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
	"tombot/internal/core/port"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	callback TEXT NOT NULL,
	args TEXT NOT NULL,
	cron_expr TEXT NOT NULL DEFAULT '',
	next_run INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_next_run ON jobs(next_run);
`

type Kind string

const (
	Once Kind = "once"
	Cron Kind = "cron"
)

const (
	DefaultPollInterval = time.Second
	DefaultMisfireGrace = time.Hour
)

// Job is a persisted scheduler entry.
type Job struct {
	ID       string
	Kind     Kind
	Callback string
	Args     []string
	CronExpr string
	NextRun  time.Time
}

// Observer is told about every firing. err is nil on success.
type Observer func(callback string, err error)

type Option func(*Scheduler)

func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMisfireGrace sets how late a cron run may start before it is skipped.
func WithMisfireGrace(d time.Duration) Option {
	return func(s *Scheduler) {
		s.grace = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// Scheduler runs one-shot and cron jobs stored in sqlite. Jobs survive
// restarts; callbacks are bound again by name through RegisterFunc.
type Scheduler struct {
	db       *sql.DB
	parser   cron.Parser
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
	observer Observer

	mu      sync.Mutex
	funcs   map[string]port.JobFunc
	running map[string]bool
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
}

func New(ctx context.Context, db *sql.DB, opts ...Option) (*Scheduler, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create job table: %w", err)
	}

	s := &Scheduler{
		db: db,
		parser: cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
		interval: DefaultPollInterval,
		grace:    DefaultMisfireGrace,
		now:      time.Now,
		funcs:    make(map[string]port.JobFunc),
		running:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Scheduler) RegisterFunc(name string, fn port.JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Debug().Str("callback", name).Msg("registering job callback")
	s.funcs[name] = fn
}

// Parse validates a cron expression. A leading seconds field is optional.
func (s *Scheduler) Parse(spec string) (cron.Schedule, error) {
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	return schedule, nil
}

func (s *Scheduler) ScheduleOnce(ctx context.Context, id, callback string, args []string, at time.Time) error {
	encoded, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode job args: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, kind, callback, args, next_run) VALUES (?, ?, ?, ?, ?)
	`, id, Once, callback, string(encoded), at.UnixMilli())
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrJobExists, id)
	}
	if err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}

	log.Debug().Str("job", id).Time("at", at).Msg("one-shot job stored")
	return nil
}

func (s *Scheduler) ScheduleCron(ctx context.Context, id, callback string, args []string, spec string,
	replaceExisting bool) error {
	schedule, err := s.Parse(spec)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode job args: %w", err)
	}

	query := `INSERT INTO jobs (id, kind, callback, args, cron_expr, next_run) VALUES (?, ?, ?, ?, ?, ?)`
	if replaceExisting {
		query += ` ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			callback = excluded.callback,
			args = excluded.args,
			cron_expr = excluded.cron_expr,
			next_run = excluded.next_run`
	}

	next := schedule.Next(s.now())
	_, err = s.db.ExecContext(ctx, query, id, Cron, callback, string(encoded), spec, next.UnixMilli())
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrJobExists, id)
	}
	if err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}

	log.Info().Str("job", id).Str("cron", spec).Time("next", next).Msg("cron job stored")
	return nil
}

func (s *Scheduler) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove job: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}

	log.Info().Str("job", id).Msg("job removed")
	return nil
}

// Jobs lists every stored job ordered by next run.
func (s *Scheduler) Jobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, callback, args, cron_expr, next_run FROM jobs ORDER BY next_run, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}

	return jobs, rows.Err()
}

func (s *Scheduler) due(ctx context.Context, now time.Time) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, callback, args, cron_expr, next_run FROM jobs WHERE next_run <= ? ORDER BY next_run, id
	`, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}

	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var (
		j       Job
		args    string
		nextRun int64
	)

	if err := row.Scan(&j.ID, &j.Kind, &j.Callback, &args, &j.CronExpr, &nextRun); err != nil {
		return Job{}, fmt.Errorf("failed to scan job: %w", err)
	}

	if err := json.Unmarshal([]byte(args), &j.Args); err != nil {
		return Job{}, fmt.Errorf("failed to decode args of job %s: %w", j.ID, err)
	}
	j.NextRun = time.UnixMilli(nextRun)

	return j, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(runCtx, s.done)

	log.Info().Dur("interval", s.interval).Msg("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runDue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue fires every job whose next run has passed. One-shot jobs are deleted
// before they fire, cron jobs are moved to their next run first.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()

	jobs, err := s.due(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to poll jobs")
		return
	}

	for _, job := range jobs {
		if s.isRunning(job.ID) {
			continue
		}

		switch job.Kind {
		case Once:
			res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, job.ID)
			if err != nil {
				log.Error().Err(err).Str("job", job.ID).Msg("failed to claim job")
				continue
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
		case Cron:
			schedule, err := s.Parse(job.CronExpr)
			if err != nil {
				log.Error().Err(err).Str("job", job.ID).Msg("dropping job with broken schedule")
				_, _ = s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, job.ID)
				continue
			}

			next := schedule.Next(now)
			if _, err := s.db.ExecContext(ctx, `UPDATE jobs SET next_run = ? WHERE id = ?`,
				next.UnixMilli(), job.ID); err != nil {
				log.Error().Err(err).Str("job", job.ID).Msg("failed to reschedule job")
				continue
			}

			if late := now.Sub(job.NextRun); late > s.grace {
				log.Warn().Str("job", job.ID).Dur("late", late).Msg("skipping misfired run")
				continue
			}
		default:
			log.Error().Str("job", job.ID).Str("kind", string(job.Kind)).Msg("unknown job kind")
			continue
		}

		s.fire(ctx, job)
	}
}

func (s *Scheduler) isRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running[id]
}

func (s *Scheduler) fire(ctx context.Context, job Job) {
	s.mu.Lock()
	fn, ok := s.funcs[job.Callback]
	s.running[job.ID] = true
	s.mu.Unlock()

	l := log.With().Str("job", job.ID).Str("callback", job.Callback).Logger()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, job.ID)
			s.mu.Unlock()
		}()

		var err error
		if !ok {
			err = fmt.Errorf("no callback registered as %q", job.Callback)
		} else {
			err = call(context.WithoutCancel(ctx), fn, job.Args)
		}

		if err != nil {
			l.Error().Err(err).Msg("job failed")
		} else {
			l.Info().Msg("job done")
		}

		if s.observer != nil {
			s.observer(job.Callback, err)
		}
	}()
}

func call(ctx context.Context, fn port.JobFunc, args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return fn(ctx, args)
}

// Shutdown stops polling and waits for running jobs until ctx ends.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running jobs: %w", ctx.Err())
	}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
