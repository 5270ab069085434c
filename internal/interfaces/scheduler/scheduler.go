package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ScheduleTime represents a specific time of day when the scheduler should run.
type ScheduleTime struct {
	Hour   int
	Minute int
}

// String returns the time in HH:MM format.
func (st ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// ParseScheduleTime parses a time string in HH:MM format.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	var hour, minute int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &minute)
	if err != nil {
		return ScheduleTime{}, fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}

	if hour < 0 || hour > 23 {
		return ScheduleTime{}, fmt.Errorf("invalid hour: %d (must be 0-23)", hour)
	}
	if minute < 0 || minute > 59 {
		return ScheduleTime{}, fmt.Errorf("invalid minute: %d (must be 0-59)", minute)
	}

	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

// Scheduler periodically asks its job provider for work and feeds the worker
// pool. Runs happen every Interval and at each daily ScheduleTime.
type Scheduler struct {
	workerPool    *WorkerPool
	scheduleTimes []ScheduleTime
	runOnStartup  bool
	jobProvider   JobProvider

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	intervalCh chan time.Duration

	mu          sync.Mutex
	interval    time.Duration
	lastRunDate string
	running     bool
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Interval      time.Duration
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	JobTimeout    time.Duration
	QueueSize     int
	RunOnStartup  bool
	JobProvider   JobProvider
}

// NewScheduler creates a new scheduler with the given configuration.
func NewScheduler(config SchedulerConfig) (*Scheduler, error) {
	scheduleTimes := make([]ScheduleTime, 0, len(config.ScheduleTimes))
	for _, timeStr := range config.ScheduleTimes {
		st, err := ParseScheduleTime(timeStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule time %q: %w", timeStr, err)
		}
		scheduleTimes = append(scheduleTimes, st)
	}

	if config.Interval < 0 {
		return nil, errors.New("interval cannot be negative")
	}
	if len(scheduleTimes) == 0 && config.Interval == 0 {
		return nil, errors.New("an interval or at least one schedule time is required")
	}
	if config.JobProvider == nil {
		return nil, errors.New("job provider is required")
	}

	workerPool := NewWorkerPool(config.WorkerCount, config.JobDelay, config.QueueSize)
	if config.JobTimeout > 0 {
		workerPool.jobTimeout = config.JobTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	log.Info().
		Dur("interval", config.Interval).
		Strs("schedule_times", config.ScheduleTimes).
		Int("workers", workerPool.workerCount).
		Dur("job_delay", config.JobDelay).
		Msg("Scheduler initialized")

	return &Scheduler{
		workerPool:    workerPool,
		scheduleTimes: scheduleTimes,
		runOnStartup:  config.RunOnStartup,
		jobProvider:   config.JobProvider,
		ctx:           ctx,
		cancel:        cancel,
		intervalCh:    make(chan time.Duration, 1),
		interval:      config.Interval,
	}, nil
}

// Start launches the scheduler and worker pool.
func (s *Scheduler) Start() {
	s.workerPool.Start()

	if s.runOnStartup {
		log.Info().Msg("Scheduler: running initial job batch on startup")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runJobs()
		}()
	}

	s.wg.Add(1)
	go s.scheduleLoop()

	log.Info().Msg("Scheduler started")
}

// SetInterval changes the run interval of a started scheduler; 0 disables
// interval runs, leaving the daily schedule times.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d < 0 {
		return
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()

	// keep only the latest value
	select {
	case <-s.intervalCh:
	default:
	}
	s.intervalCh <- d
}

// Interval returns the current run interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Scheduler) scheduleLoop() {
	defer s.wg.Done()

	clock := time.NewTicker(time.Minute)
	defer clock.Stop()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	arm := func(d time.Duration) {
		timer.Stop()
		if d > 0 {
			timer.Reset(d)
		}
	}
	arm(s.Interval())

	for {
		select {
		case <-s.ctx.Done():
			log.Debug().Msg("Scheduler loop: context cancelled, shutting down")
			return

		case d := <-s.intervalCh:
			log.Info().Dur("interval", d).Msg("Scheduler: interval changed")
			arm(d)

		case <-timer.C:
			s.runJobs()
			arm(s.Interval())

		case now := <-clock.C:
			if s.shouldRun(now) {
				log.Info().Str("at", now.Format("15:04")).Msg("Scheduler: triggered by schedule time")
				s.runJobs()
			}
		}
	}
}

// shouldRun checks if the current time matches any scheduled time.
func (s *Scheduler) shouldRun(now time.Time) bool {
	currentKey := fmt.Sprintf("%s-%02d:%02d", now.Format("2006-01-02"), now.Hour(), now.Minute())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRunDate == currentKey {
		return false
	}

	for _, st := range s.scheduleTimes {
		if now.Hour() == st.Hour && now.Minute() == st.Minute {
			s.lastRunDate = currentKey
			return true
		}
	}

	return false
}

// runJobs executes the job provider and submits jobs to the worker pool.
// A run that starts while another is still listing jobs is skipped.
func (s *Scheduler) runJobs() int {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Debug().Msg("Scheduler: run already in progress, skipping")
		return 0
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	jobs, err := s.jobProvider(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Scheduler: failed to fetch jobs")
		return 0
	}

	if len(jobs) == 0 {
		log.Debug().Msg("Scheduler: no jobs to process")
		return 0
	}

	return s.workerPool.SubmitBatch(jobs)
}

// TriggerNow manually triggers a job run immediately.
func (s *Scheduler) TriggerNow() {
	log.Info().Msg("Scheduler: manual trigger")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJobs()
	}()
}

// Shutdown gracefully stops the scheduler and worker pool.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	log.Info().Msg("Scheduler: initiating graceful shutdown")

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("Scheduler: loop stopped gracefully")
	case <-time.After(timeout):
		log.Warn().Msg("Scheduler: timeout waiting for loop to stop")
	}

	s.workerPool.ShutdownWithTimeout(timeout)

	log.Info().Msg("Scheduler: shutdown complete")
}

// NextScheduledTime returns the next daily run time after now, or the zero
// time when only interval runs are configured.
func (s *Scheduler) NextScheduledTime(now time.Time) time.Time {
	var next time.Time
	for _, st := range s.scheduleTimes {
		t := time.Date(now.Year(), now.Month(), now.Day(), st.Hour, st.Minute, 0, 0, now.Location())
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next
}
