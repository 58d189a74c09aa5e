package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/toolcrib-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	c := &Client{projectID: "crib-prod"}

	assert.Equal(t, "projects/crib-prod/topics/lifecycle", c.resourceName(kindTopic, "lifecycle"))
	assert.Equal(t, "projects/other/topics/lifecycle", c.resourceName(kindTopic, "projects/other/topics/lifecycle"))
	assert.Equal(t, "projects/crib-prod/subscriptions/backfill", c.resourceName(kindSubscription, " backfill "))
	assert.Equal(t, "projects/crib-prod/subscriptions/projects/other/topics/x", c.resourceName(kindSubscription, "projects/other/topics/x"))
	assert.Empty(t, c.resourceName(kindTopic, ""))
	assert.Empty(t, (&Client{}).resourceName(kindTopic, "lifecycle"))

	var nilClient *Client
	assert.Empty(t, nilClient.resourceName(kindTopic, "lifecycle"))
}

func TestDescribe(t *testing.T) {
	err := describe(status.Error(codes.NotFound, "missing"), "topic", "lifecycle")
	assert.EqualError(t, err, `topic "lifecycle" does not exist`)

	cause := errors.New("unavailable")
	err = describe(cause, "subscription", "backfill")
	assert.ErrorIs(t, err, cause)

	assert.False(t, isNotFound(nil))
	assert.False(t, isNotFound(status.Error(codes.PermissionDenied, "nope")))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("lifecycle"))
	assert.Nil(t, c.Subscription("backfill"))
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	assert.NoError(t, c.Close())
}
