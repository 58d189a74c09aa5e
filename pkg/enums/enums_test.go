package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestStatus(t *testing.T) {
	status, err := ParseRequestStatus("returning")
	require.NoError(t, err)
	assert.Equal(t, RequestStatusReturning, status)

	_, err = ParseRequestStatus("issued")
	require.Error(t, err)
}

func TestRequestStatusClassification(t *testing.T) {
	assert.True(t, RequestStatusRejected.IsTerminal())
	assert.True(t, RequestStatusCompleted.IsTerminal())
	assert.False(t, RequestStatusApproved.IsTerminal())

	for _, status := range []RequestStatus{RequestStatusApproved, RequestStatusReturning} {
		assert.True(t, status.HoldsStock(), status)
	}
	for _, status := range []RequestStatus{RequestStatusPending, RequestStatusRejected, RequestStatusCompleted} {
		assert.False(t, status.HoldsStock(), status)
	}
}

func TestLifecycleEventForCoversEveryRequestEvent(t *testing.T) {
	for _, event := range RequestEvents() {
		mapped, ok := LifecycleEventFor(event)
		require.True(t, ok, event)
		assert.True(t, mapped.IsValid(), mapped)
	}
	_, ok := LifecycleEventFor("bogus")
	assert.False(t, ok)
}

func TestParseRoleAndToolStatus(t *testing.T) {
	role, err := ParseRole("storekeeper")
	require.NoError(t, err)
	assert.Equal(t, RoleStorekeeper, role)
	_, err = ParseRole("admin")
	require.Error(t, err)

	status, err := ParseToolStatus("maintenance")
	require.NoError(t, err)
	assert.Equal(t, ToolStatusMaintenance, status)
	_, err = ParseToolStatus("broken")
	require.Error(t, err)
}

func TestParseRequestDecision(t *testing.T) {
	decision, err := ParseRequestDecision("reject")
	require.NoError(t, err)
	assert.Equal(t, RequestDecisionReject, decision)
	_, err = ParseRequestDecision("maybe")
	require.Error(t, err)
}

func TestParseNamesKindInError(t *testing.T) {
	_, err := ParseOutboxEventType("request_exploded")
	require.EqualError(t, err, `invalid event type "request_exploded"`)

	kind, err := ParseNotificationType("tool_returned")
	require.NoError(t, err)
	assert.True(t, kind.IsValid())
	assert.False(t, NotificationType("").IsValid())
}
