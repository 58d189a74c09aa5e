package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

// subscriptionAckDeadline matches the consumer's handler timeout budget.
const subscriptionAckDeadline = 30

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopic           = errors.New("pubsub lifecycle topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client wraps the Pub/Sub v2 client with the toolcrib topic layout: one
// ordered lifecycle topic and an optional notification backfill subscription.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	logg      *logger.Logger
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	raw, err := pubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: raw, projectID: gcp.ProjectID, cfg: cfg, logg: logg}

	if err := c.ensure(ctx, cfg.AutoCreate); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project":      gcp.ProjectID,
			"topic":        cfg.LifecycleTopic,
			"subscription": cfg.NotificationSubscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

// ensure checks the topic and subscription exist, creating them when create
// is set. Subscriptions are created with ordering on so per-request events
// arrive in commit order.
func (c *Client) ensure(ctx context.Context, create bool) error {
	topic := c.resourceName(kindTopic, c.cfg.LifecycleTopic)
	if topic == "" {
		return errNoTopic
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic})
	if create && isNotFound(err) {
		_, err = c.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topic})
		c.logCreated(ctx, kindTopic, topic, err)
	}
	if err != nil {
		return describe(err, "topic", c.cfg.LifecycleTopic)
	}

	sub := c.resourceName(kindSubscription, c.cfg.NotificationSubscription)
	if sub == "" {
		return nil
	}
	_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: sub})
	if create && isNotFound(err) {
		_, err = c.client.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{
			Name:                  sub,
			Topic:                 topic,
			AckDeadlineSeconds:    subscriptionAckDeadline,
			EnableMessageOrdering: true,
		})
		c.logCreated(ctx, kindSubscription, sub, err)
	}
	if err != nil {
		return describe(err, "subscription", c.cfg.NotificationSubscription)
	}
	return nil
}

func (c *Client) logCreated(ctx context.Context, kind, name string, err error) {
	if err != nil || c.logg == nil {
		return
	}
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{"kind": kind, "name": name}), "pubsub resource created")
}

func isNotFound(err error) bool {
	return err != nil && status.Code(err) == codes.NotFound
}

func describe(err error, kind, name string) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

// Subscription returns a Subscriber for an id or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	if full := c.resourceName(kindSubscription, name); full != "" {
		return c.client.Subscriber(full)
	}
	return nil
}

func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.NotificationSubscription)
}

// Publisher returns a Publisher for an id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	if full := c.resourceName(kindTopic, name); full != "" {
		return c.client.Publisher(full)
	}
	return nil
}

// Ping re-checks the configured resources without creating anything.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.ensure(ctx, false)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
