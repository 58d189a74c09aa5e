package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type consumerFunc func(ctx context.Context) error

func (f consumerFunc) Run(ctx context.Context) error { return f(ctx) }

func healthy() pinger {
	return pingFunc(func(context.Context) error { return nil })
}

func newTestService(t *testing.T, db pinger, run consumerFunc) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:               &config.Config{},
		Logger:               logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard}),
		DB:                   db,
		Redis:                healthy(),
		PubSub:               healthy(),
		NotificationConsumer: run,
	})
	require.NoError(t, err)
	return svc
}

func TestRunStopsWhenDependencyIsDown(t *testing.T) {
	started := false
	svc := newTestService(t, pingFunc(func(context.Context) error { return errors.New("connection refused") }), func(context.Context) error {
		started = true
		return nil
	})

	err := svc.Run(context.Background())
	require.ErrorContains(t, err, "database ping failed")
	require.False(t, started)
}

func TestRunReturnsConsumerError(t *testing.T) {
	boom := errors.New("subscription deleted")
	svc := newTestService(t, healthy(), func(context.Context) error { return boom })

	require.ErrorIs(t, svc.Run(context.Background()), boom)
}

func TestRunHonorsCancellation(t *testing.T) {
	svc := newTestService(t, healthy(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, svc.Run(ctx), context.DeadlineExceeded)
}

func TestNewServiceRequiresConsumer(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard}),
		DB:     healthy(),
		Redis:  healthy(),
		PubSub: healthy(),
	})
	require.Error(t, err)
}

func TestRunTreatsCleanConsumerExitAsError(t *testing.T) {
	svc := newTestService(t, healthy(), func(context.Context) error { return nil })

	require.ErrorIs(t, svc.Run(context.Background()), errConsumerExited)
}
