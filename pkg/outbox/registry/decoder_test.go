package registry

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox/payloads"
)

func TestLifecycleDecoders(t *testing.T) {
	reg := NewLifecycleDecoders()
	requestID := uuid.New()

	raw, err := json.Marshal(payloads.RequestLifecycleEvent{RequestID: requestID, ToolName: "Torque wrench", Quantity: 2})
	require.NoError(t, err)

	out, err := reg.Decode(enums.EventRequestApproved, 1, raw)
	require.NoError(t, err)
	decoded, ok := out.(*payloads.RequestLifecycleEvent)
	require.True(t, ok)
	assert.Equal(t, requestID, decoded.RequestID)
	assert.Equal(t, 2, decoded.Quantity)

	_, err = reg.Decode(enums.EventRequestApproved, 2, raw)
	assert.Error(t, err)

	_, err = reg.Decode(enums.EventToolReturned, 1, json.RawMessage(`{`))
	assert.Error(t, err)
}
