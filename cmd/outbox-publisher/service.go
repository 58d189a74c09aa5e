package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	"github.com/angelmondragon/toolcrib-backend/pkg/metrics"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type pinger interface {
	Ping(ctx context.Context) error
}

type txDatabase interface {
	pinger
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type broker interface {
	pinger
	Publisher(topic string) *gcppubsub.Publisher
}

// outboxStore is the publisher's view of outbox_events. Every call runs in the
// batch transaction that holds the row locks.
type outboxStore interface {
	ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, err error) error
	Park(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	Record(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// publisherSource returns the publisher for a topic, or nil when it cannot
// be opened.
type publisherSource func(topic string) publisher

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) ackFuture
}

// ackFuture resolves to the server message id once Pub/Sub acknowledges.
type ackFuture interface {
	Get(ctx context.Context) (serverID string, err error)
}

// ServiceParams wires the publisher. Publishers is optional and defaults to
// ordered Pub/Sub publishers from PubSub.
type ServiceParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          txDatabase
	PubSub      broker
	Outbox      outboxStore
	Events      eventResolver
	DeadLetters deadLetterStore
	Publishers  publisherSource
	Metrics     *metrics.OutboxMetrics
}

// Service drains lifecycle events from the outbox table onto Pub/Sub.
// Rows are claimed with SKIP LOCKED so several publishers can run side by side.
type Service struct {
	logg        *logger.Logger
	db          txDatabase
	repo        outboxStore
	pubsub      broker
	registry    eventResolver
	dlq         deadLetterStore
	publishers  publisherSource
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	pace        *pacer
}

func NewService(params ServiceParams) (*Service, error) {
	required := []struct {
		name    string
		missing bool
	}{
		{"config", params.Config == nil},
		{"logger", params.Logger == nil},
		{"database client", params.DB == nil},
		{"pubsub client", params.PubSub == nil},
		{"outbox store", params.Outbox == nil},
		{"event resolver", params.Events == nil},
		{"dead letter store", params.DeadLetters == nil},
	}
	for _, dep := range required {
		if dep.missing {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	publishers := params.Publishers
	if publishers == nil {
		publishers = orderedPublishers(params.PubSub)
	}

	cfg := params.Config.Outbox
	return &Service{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Outbox,
		pubsub:      params.PubSub,
		registry:    params.Events,
		dlq:         params.DeadLetters,
		publishers:  publishers,
		metrics:     params.Metrics,
		batchSize:   positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pace:        newPacer(time.Duration(cfg.PollIntervalMS)*time.Millisecond, maxBackoff),
	}, nil
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

// Run polls until ctx is canceled. A full batch is followed immediately by the
// next one; an empty poll waits one interval and a failed one backs off.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"pubsub":   s.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		claimed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = s.pace.failed()
		case claimed:
			s.pace.reset()
			continue
		default:
			wait = s.pace.idle()
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// processBatch claims one batch, dispatches every row and records each outcome in
// the same transaction. It reports whether any row was claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.ClaimPending(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events) > 0
		for _, event := range events {
			if err := s.settle(ctx, tx, event, s.dispatch(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pacer spaces out polls: a steady interval while idle, doubling up to a ceiling on failures.
type pacer struct {
	interval time.Duration
	ceiling  time.Duration
	backoff  time.Duration
	rnd      *rand.Rand
}

func newPacer(interval, ceiling time.Duration) *pacer {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &pacer{
		interval: interval,
		ceiling:  ceiling,
		backoff:  interval,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *pacer) reset() {
	p.backoff = p.interval
}

func (p *pacer) idle() time.Duration {
	p.reset()
	return p.jitter(p.interval)
}

func (p *pacer) failed() time.Duration {
	p.backoff *= 2
	if p.backoff > p.ceiling {
		p.backoff = p.ceiling
	}
	return p.jitter(p.backoff)
}

func (p *pacer) jitter(d time.Duration) time.Duration {
	return d + time.Duration(p.rnd.Int63n(int64(jitterWindow)))
}

// orderedPublishers hands out one Pub/Sub publisher per topic with message
// ordering on, so the events of a single request arrive in the order they committed.
func orderedPublishers(client broker) publisherSource {
	cache := map[string]publisher{}
	return func(topic string) publisher {
		if pub, ok := cache[topic]; ok {
			return pub
		}
		raw := client.Publisher(topic)
		if raw == nil {
			return nil
		}
		raw.EnableMessageOrdering = true
		pub := &gcpPublisher{pub: raw}
		cache[topic] = pub
		return pub
	}
}

type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) ackFuture {
	return &gcpPublishResult{pub: p.pub, key: msg.OrderingKey, res: p.pub.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	pub *gcppubsub.Publisher
	key string
	res *gcppubsub.PublishResult
}

// Get waits for the server ack. A failed ordered publish pauses its key until resumed.
func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r.res == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := r.res.Get(ctx)
	if err != nil && r.key != "" {
		r.pub.ResumePublish(r.key)
	}
	return id, err
}
