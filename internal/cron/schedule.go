package cron

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Job is one maintenance task executed per cron cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule is the ordered set of jobs a cycle runs. Ledger reconciliation is
// registered first so cleanup jobs never delay a corruption report.
type Schedule struct {
	jobs []Job
}

// NewSchedule rejects nil jobs and duplicate names since job names key both
// logs and metrics.
func NewSchedule(jobs ...Job) (*Schedule, error) {
	seen := make(map[string]struct{}, len(jobs))
	for i, job := range jobs {
		if job == nil {
			return nil, fmt.Errorf("job %d is nil", i)
		}
		name := job.Name()
		if name == "" {
			return nil, fmt.Errorf("job %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("job %q registered twice", name)
		}
		seen[name] = struct{}{}
	}
	return &Schedule{jobs: append([]Job(nil), jobs...)}, nil
}

func (s *Schedule) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.jobs))
	for i, job := range s.jobs {
		names[i] = job.Name()
	}
	return names
}

// JobResult is the outcome of a single job within a cycle.
type JobResult struct {
	Job  string
	Took time.Duration
	Err  error
}

// Report summarizes a cycle. Skipped is set when another instance held the lock.
type Report struct {
	Skipped bool
	Results []JobResult
}

func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Err joins the failures of the cycle, or nil when every job succeeded.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Job, res.Err))
		}
	}
	return errors.Join(errs...)
}
