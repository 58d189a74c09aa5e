package cron

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	"github.com/angelmondragon/toolcrib-backend/pkg/metrics"
)

const defaultInterval = time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Schedule *Schedule
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs the schedule once at start and then every interval. A cycle runs
// only on the instance that wins the shared lock.
type Service struct {
	logg     *logger.Logger
	schedule *Schedule
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	schedule := params.Schedule
	if schedule == nil {
		schedule = &Schedule{}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		schedule: schedule,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
		now:      time.Now,
	}, nil
}

// Run blocks until ctx is canceled. Job failures are logged and counted but
// never stop the loop; only lock errors are logged as cycle failures.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "cron cycle aborted", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single locked cycle. The returned error covers the lock
// only; per-job failures are in the report.
func (s *Service) RunOnce(ctx context.Context) (Report, error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return Report{}, err
	}
	if !locked {
		s.metrics.IncSkipped()
		s.logg.Info(ctx, "cron lock held elsewhere, skipping cycle")
		return Report{Skipped: true}, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron lock release failed", err)
		}
	}()

	report := Report{Results: make([]JobResult, 0, len(s.schedule.jobs))}
	for _, job := range s.schedule.jobs {
		if ctx.Err() != nil {
			break
		}
		report.Results = append(report.Results, s.execute(ctx, job))
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs_run":    len(report.Results),
		"jobs_failed": report.Failed(),
	}), "cron cycle finished")
	return report, nil
}

func (s *Service) execute(ctx context.Context, job Job) JobResult {
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "cron.job",
	})
	started := s.now()
	err := job.Run(jobCtx)
	took := s.now().Sub(started)
	s.metrics.ObserveRun(job.Name(), took, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "cron job failed", err)
	} else {
		s.logg.Info(jobCtx, "cron job done")
	}
	return JobResult{Job: job.Name(), Took: took, Err: err}
}
