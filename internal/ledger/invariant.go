package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNegativeAvailable     = errors.New("available quantity is negative")
	ErrAvailableExceedsTotal = errors.New("available quantity exceeds total")
	ErrOutstandingMismatch   = errors.New("available quantity does not equal total minus outstanding")
)

// Snapshot is the ledger state of one tool: its counters plus the sum of
// quantities held by approved and returning requests.
type Snapshot struct {
	ToolID      uuid.UUID `json:"tool_id"`
	Total       int       `json:"total_qty"`
	Available   int       `json:"available_qty"`
	Outstanding int       `json:"outstanding_qty"`
}

// Violation describes which invariant a snapshot broke.
type Violation struct {
	Snapshot Snapshot
	Err      error
}

func (v *Violation) Error() string {
	return fmt.Sprintf("tool %s: %v (total=%d available=%d outstanding=%d)",
		v.Snapshot.ToolID, v.Err, v.Snapshot.Total, v.Snapshot.Available, v.Snapshot.Outstanding)
}

func (v *Violation) Unwrap() error {
	return v.Err
}

// CheckInvariant returns nil when 0 <= available <= total and available = total - outstanding.
func CheckInvariant(s Snapshot) error {
	switch {
	case s.Available < 0:
		return &Violation{Snapshot: s, Err: ErrNegativeAvailable}
	case s.Available > s.Total:
		return &Violation{Snapshot: s, Err: ErrAvailableExceedsTotal}
	case s.Available != s.Total-s.Outstanding:
		return &Violation{Snapshot: s, Err: ErrOutstandingMismatch}
	}
	return nil
}
