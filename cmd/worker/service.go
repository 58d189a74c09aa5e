package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

const heartbeatInterval = 30 * time.Second

var errConsumerExited = errors.New("notification consumer exited")

type pinger interface {
	Ping(ctx context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Config               *config.Config
	Logger               *logger.Logger
	DB                   pinger
	Redis                pinger
	PubSub               pinger
	NotificationConsumer consumer
}

type dependency struct {
	name string
	ping pinger
}

// Service runs the notification consumer next to a heartbeat. Both stop as soon
// as either returns.
type Service struct {
	logg     *logger.Logger
	deps     []dependency
	consumer consumer
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.NotificationConsumer == nil:
		return nil, errors.New("notification consumer is required")
	}

	deps := []dependency{
		{name: "database", ping: params.DB},
		{name: "redis", ping: params.Redis},
		{name: "pubsub", ping: params.PubSub},
	}
	for _, dep := range deps {
		if dep.ping == nil {
			return nil, fmt.Errorf("%s client is required", dep.name)
		}
	}

	return &Service{
		logg:     params.Logger,
		deps:     deps,
		consumer: params.NotificationConsumer,
	}, nil
}

func (s *Service) checkDependencies(ctx context.Context) error {
	for _, dep := range s.deps {
		if err := dep.ping.Ping(ctx); err != nil {
			s.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	s.logg.Info(ctx, "worker dependencies ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := s.consumer.Run(groupCtx)
		if err == nil && groupCtx.Err() == nil {
			return errConsumerExited
		}
		return err
	})
	group.Go(func() error {
		return s.heartbeat(groupCtx)
	})

	err := group.Wait()
	switch {
	case ctx.Err() != nil:
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	case err != nil:
		s.logg.Error(ctx, "consumer stopped unexpectedly", err)
	}
	return err
}

func (s *Service) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.logg.Debug(ctx, "worker.heartbeat")
		}
	}
}
