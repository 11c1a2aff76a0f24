// Package schedulerworker runs the reminder jobs and flushes scheduled
// custom messages on a fixed tick.
package schedulerworker

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/clinic-booking/internal/reminders"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/settings"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

type reminderJobs interface {
	RunDaily(ctx context.Context, now time.Time) (reminders.Result, error)
	RunWeekly(ctx context.Context, now time.Time) (reminders.Result, error)
}

type settingsStore interface {
	Reminders(ctx context.Context) (*settings.Reminders, error)
	ClaimRun(ctx context.Context, job, date string, ttl time.Duration) (bool, error)
}

type messageFlusher interface {
	FlushDue(ctx context.Context, now time.Time) (sent, failed int, err error)
}

type errorMetrics interface {
	ObserveSchedulerError(job string)
}

// Scheduler owns the background timers. Create one per process and call
// Start once; Stop waits for the loop to exit.
type Scheduler struct {
	jobs     reminderJobs
	settings settingsStore
	flusher  messageFlusher
	metrics  errorMetrics
	loc      *time.Location
	logger   *logging.Logger
	interval time.Duration
	window   time.Duration
	now      func() time.Time

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

func New(jobs reminderJobs, store settingsStore, flusher messageFlusher, loc *time.Location, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		jobs:     jobs,
		settings: store,
		flusher:  flusher,
		loc:      loc,
		logger:   logger,
		interval: time.Minute,
		window:   time.Hour,
		now:      time.Now,
	}
}

func (s *Scheduler) WithInterval(d time.Duration) *Scheduler {
	if d > 0 {
		s.interval = d
	}
	return s
}

// WithCatchUpWindow sets how late after its configured time a reminder job
// may still start, for example after a restart.
func (s *Scheduler) WithCatchUpWindow(d time.Duration) *Scheduler {
	if d > 0 {
		s.window = d
	}
	return s
}

func (s *Scheduler) WithMetrics(m errorMetrics) *Scheduler {
	s.metrics = m
	return s
}

// Start launches the tick loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopChan != nil {
		return
	}
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(ctx, s.stopChan, s.done)
	s.logger.Info("scheduler started", "interval", s.interval.String(), "timezone", s.loc.String())
}

// Stop halts the loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stopChan, s.done
	s.stopChan, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.Tick(ctx, s.now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick runs every job that is due at now.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.FlushMessages(ctx, now)

	cfg, err := s.settings.Reminders(ctx)
	if err != nil {
		s.fail("settings", err)
		return
	}
	if cfg.DailyEnabled {
		s.DailyIfDue(ctx, now, cfg.DailyTime)
	}
	if cfg.WeeklyEnabled {
		s.WeeklyIfDue(ctx, now, cfg.WeeklyDay, cfg.WeeklyTime)
	}
}

// FlushMessages sends due scheduled custom messages.
func (s *Scheduler) FlushMessages(ctx context.Context, now time.Time) {
	if s.flusher == nil {
		return
	}
	sent, failed, err := s.flusher.FlushDue(ctx, now)
	if err != nil {
		s.fail("custom_messages", err)
		return
	}
	if sent+failed > 0 {
		s.logger.Info("scheduled messages flushed", "sent", sent, "failed", failed)
	}
}

// DailyIfDue runs the daily job once per clinic day at or after clock.
func (s *Scheduler) DailyIfDue(ctx context.Context, now time.Time, clock string) bool {
	if !s.due(now, clock) {
		return false
	}
	if !s.claim(ctx, "daily", now) {
		return false
	}
	res, err := s.jobs.RunDaily(ctx, now)
	if err != nil {
		s.fail("daily", err)
		return false
	}
	s.logger.Info("daily reminders sent", "sent", res.Sent, "failed", res.Failed)
	return true
}

// WeeklyIfDue runs the weekly job once on the configured weekday.
func (s *Scheduler) WeeklyIfDue(ctx context.Context, now time.Time, day, clock string) bool {
	weekday, err := settings.ParseWeekday(day)
	if err != nil {
		s.fail("weekly", err)
		return false
	}
	if now.In(s.loc).Weekday() != weekday || !s.due(now, clock) {
		return false
	}
	if !s.claim(ctx, "weekly", now) {
		return false
	}
	res, err := s.jobs.RunWeekly(ctx, now)
	if err != nil {
		s.fail("weekly", err)
		return false
	}
	s.logger.Info("weekly reminders sent", "sent", res.Sent, "failed", res.Failed)
	return true
}

func (s *Scheduler) due(now time.Time, clock string) bool {
	local := now.In(s.loc)
	at, err := time.ParseInLocation(schedule.DateLayout+" 15:04", local.Format(schedule.DateLayout)+" "+clock, s.loc)
	if err != nil {
		s.logger.Warn("invalid reminder time", "time", clock)
		return false
	}
	return !local.Before(at) && local.Before(at.Add(s.window))
}

func (s *Scheduler) claim(ctx context.Context, job string, now time.Time) bool {
	ok, err := s.settings.ClaimRun(ctx, job, now.In(s.loc).Format(schedule.DateLayout), 36*time.Hour)
	if err != nil {
		s.fail(job, err)
		return false
	}
	if !ok {
		s.logger.Debug("job already ran today", "job", job)
	}
	return ok
}

func (s *Scheduler) fail(job string, err error) {
	s.logger.Error("scheduler job failed", "job", job, "error", err)
	if s.metrics != nil {
		s.metrics.ObserveSchedulerError(job)
	}
}
