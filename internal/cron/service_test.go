package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	"github.com/angelmondragon/toolcrib-backend/pkg/metrics"
)

type fakeLock struct {
	held       bool
	acquireErr error
	releases   int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type countingJob struct {
	name string
	err  error
	runs int
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func newCronService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	schedule, err := NewSchedule(jobs...)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Schedule: schedule,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return svc
}

func TestRunOnceRunsEveryJobDespiteFailures(t *testing.T) {
	reconcile := &countingJob{name: "ledger-reconcile", err: errors.New("ledger unreadable")}
	cleanup := &countingJob{name: "notification-cleanup"}
	lock := &fakeLock{}
	svc := newCronService(t, lock, reconcile, cleanup)

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Skipped)
	assert.Equal(t, 1, reconcile.runs)
	assert.Equal(t, 1, cleanup.runs)
	assert.Equal(t, 1, report.Failed())
	require.Len(t, report.Results, 2)
	assert.Equal(t, "ledger-reconcile", report.Results[0].Job)
	assert.ErrorContains(t, report.Err(), "ledger-reconcile: ledger unreadable")
	assert.False(t, lock.held)
	assert.Equal(t, 1, lock.releases)
}

func TestRunOnceSkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &countingJob{name: "outbox-retention"}
	lock := &fakeLock{held: true}
	svc := newCronService(t, lock, job)

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.releases)
}

func TestRunOnceSurfacesLockErrors(t *testing.T) {
	job := &countingJob{name: "outbox-retention"}
	svc := newCronService(t, &fakeLock{acquireErr: errors.New("redis down")}, job)

	_, err := svc.RunOnce(context.Background())
	require.ErrorContains(t, err, "redis down")
	assert.Zero(t, job.runs)
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &countingJob{name: "ledger-reconcile"}
	svc := newCronService(t, &fakeLock{}, job)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, svc.Run(ctx), context.DeadlineExceeded)
	assert.Equal(t, 1, job.runs)
}

func TestNewServiceRequiresLock(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.New(logger.Options{Output: io.Discard})})
	require.Error(t, err)
}

func TestLockTTLTrailsInterval(t *testing.T) {
	cases := map[time.Duration]time.Duration{
		0:                defaultLockTTL,
		time.Hour:        54 * time.Minute,
		30 * time.Second: minLockTTL,
	}
	for interval, want := range cases {
		if got := lockTTLFor(interval); got != want {
			t.Fatalf("interval %s: expected ttl %s, got %s", interval, want, got)
		}
	}
}
