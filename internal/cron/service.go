package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locker   Locker
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout bounds a single job run. Zero leaves jobs bounded only by the parent context.
	JobTimeout time.Duration
}

// Service ticks every Interval. Each cycle runs the jobs that are due, and
// only on the worker holding the lease.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	locker     Locker
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration

	lastRun map[string]time.Time
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Locker == nil:
		return nil, fmt.Errorf("locker required")
	}
	registry := params.Registry
	if registry == nil {
		registry, _ = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		locker:     params.Locker,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: params.JobTimeout,
		lastRun:    map[string]time.Time{},
		now:        time.Now,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"interval": s.interval.String(),
		"schedule": s.registry.Schedule(),
	}), "cron service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce takes the lease and runs every due job in registration order. A
// failing job is logged and counted without stopping the jobs after it; a
// lost lease ends the cycle.
func (s *Service) RunOnce(ctx context.Context) error {
	lease, err := s.locker.TryLock(ctx)
	if errors.Is(err, ErrLockHeld) {
		s.logg.Debug(ctx, "another cron instance holds the lock; skipping this cycle")
		s.metrics.IncSkippedCycle()
		return nil
	}
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	defer func() {
		if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	cycle := s.now()
	for _, job := range s.registry.Jobs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.due(job, cycle) {
			continue
		}
		s.runJob(ctx, job)
		s.lastRun[job.Name()] = cycle
		if err := lease.Extend(ctx); err != nil {
			return fmt.Errorf("after %s: %w", job.Name(), err)
		}
	}
	return nil
}

// due allows half a tick of slack so ticker drift cannot push a periodic job
// back by a whole interval.
func (s *Service) due(job Job, cycle time.Time) bool {
	every := cadenceOf(job)
	if every <= 0 {
		return true
	}
	last, ran := s.lastRun[job.Name()]
	return !ran || cycle.Sub(last)+s.interval/2 >= every
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "cron.job",
	})
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, s.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := runRecovered(jobCtx, job)
	took := time.Since(start)
	s.metrics.ObserveRun(job.Name(), took, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.logg.Debug(jobCtx, "job completed")
}

func runRecovered(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}
