package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/livo-backend/pkg/logger"
	"github.com/angelmondragon/livo-backend/pkg/metrics"
)

const defaultTick = time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lease    Lease
	Metrics  *metrics.CronJobMetrics
	// Tick is how often the service wakes up to look for due jobs.
	Tick time.Duration
}

// Service executes registered cron jobs, each on its own cadence.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lease    Lease
	metrics  *metrics.CronJobMetrics
	tick     time.Duration
	lastRun  map[string]time.Time
	now      func() time.Time
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lease == nil {
		return nil, fmt.Errorf("lease required")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{}
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lease:    params.Lease,
		metrics:  params.Metrics,
		tick:     tick,
		lastRun:  map[string]time.Time{},
		now:      time.Now,
	}, nil
}

// Run starts the cron loop until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	due := s.dueJobs()
	if len(due) == 0 {
		return nil
	}
	held, err := s.lease.Acquire(ctx)
	if err != nil {
		s.metrics.IncSkipped(metrics.CronSkipLeaseError)
		return fmt.Errorf("acquire lease: %w", err)
	}
	if !held {
		s.metrics.IncSkipped(metrics.CronSkipLeaseBusy)
		s.logg.Info(ctx, "schedule lease held by another replica; skipping cycle")
		return nil
	}
	defer func() {
		if relErr := s.lease.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release schedule lease", relErr)
		}
	}()

	for i, job := range due {
		if i > 0 {
			// Long sweeps can outlive the lease ttl.
			held, err := s.lease.Extend(ctx)
			if err != nil {
				s.metrics.IncSkipped(metrics.CronSkipLeaseError)
				return fmt.Errorf("extend lease: %w", err)
			}
			if !held {
				s.metrics.IncSkipped(metrics.CronSkipLeaseLost)
				s.logg.Warn(ctx, "schedule lease lost mid-cycle; remaining jobs deferred")
				return nil
			}
		}
		s.lastRun[job.Name()] = s.now()
		s.runJob(ctx, job)
	}
	return nil
}

func (s *Service) dueJobs() []Job {
	now := s.now()
	var due []Job
	for _, job := range s.registry.Jobs() {
		last, ran := s.lastRun[job.Name()]
		if !ran {
			due = append(due, job)
			continue
		}
		interval := s.tick
		if scheduled, ok := job.(IntervalJob); ok && scheduled.Interval() > 0 {
			interval = scheduled.Interval()
		}
		if now.Sub(last) >= interval {
			due = append(due, job)
		}
	}
	return due
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	s.logg.Info(jobCtx, "job start")
	start := s.now()
	err := job.Run(jobCtx)
	finished := s.now()
	took := finished.Sub(start)
	s.metrics.ObserveRun(job.Name(), took, finished, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.logg.Info(jobCtx, "job completed")
}
