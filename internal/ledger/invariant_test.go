package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckInvariant(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		snap Snapshot
		want error
	}{
		{name: "untouched", snap: Snapshot{ToolID: id, Total: 5, Available: 5}},
		{name: "partially issued", snap: Snapshot{ToolID: id, Total: 5, Available: 2, Outstanding: 3}},
		{name: "fully issued", snap: Snapshot{ToolID: id, Total: 5, Available: 0, Outstanding: 5}},
		{name: "empty tool", snap: Snapshot{ToolID: id}},
		{name: "negative", snap: Snapshot{ToolID: id, Total: 5, Available: -1, Outstanding: 6}, want: ErrNegativeAvailable},
		{name: "over total", snap: Snapshot{ToolID: id, Total: 5, Available: 6}, want: ErrAvailableExceedsTotal},
		{name: "drifted", snap: Snapshot{ToolID: id, Total: 5, Available: 4, Outstanding: 3}, want: ErrOutstandingMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckInvariant(tc.snap)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			var violation *Violation
			require.ErrorAs(t, err, &violation)
			assert.Equal(t, tc.snap, violation.Snapshot)
			assert.Contains(t, err.Error(), id.String())
		})
	}
}
