package reservation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
)

const (
	// MaxBatchItems caps how many requests one batch may create.
	MaxBatchItems = 20
	// DefaultLoanDays is the expected return offset applied to batch items without a date.
	DefaultLoanDays = 7
	// MaxNotesLength bounds free-text notes on requests and decisions.
	MaxNotesLength = 1000
)

// CreateInput describes one borrow request.
type CreateInput struct {
	ToolID             uuid.UUID
	Quantity           int
	ExpectedReturnDate time.Time
	Notes              *string
}

// DecisionInput carries optional storekeeper notes for approve and reject.
type DecisionInput struct {
	Notes *string
}

// ReturnInput carries optional notes for initiating or confirming a return.
type ReturnInput struct {
	Notes *string
}

// dateOnly truncates t to its UTC calendar date.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// normalize validates the shape of in against today. It reads nothing.
func (in CreateInput) normalize(today time.Time) (CreateInput, error) {
	if in.ToolID == uuid.Nil {
		return in, pkgerrors.New(pkgerrors.CodeValidation, "tool id is required")
	}
	if in.Quantity < 1 {
		return in, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity must be at least 1, got %d", in.Quantity)
	}
	if in.ExpectedReturnDate.IsZero() {
		return in, pkgerrors.New(pkgerrors.CodeValidation, "expected return date is required")
	}
	in.ExpectedReturnDate = dateOnly(in.ExpectedReturnDate)
	if in.ExpectedReturnDate.Before(today) {
		return in, pkgerrors.Newf(pkgerrors.CodeValidation, "expected return date %s is in the past", in.ExpectedReturnDate.Format("2006-01-02"))
	}
	notes, err := cleanNotes(in.Notes)
	if err != nil {
		return in, err
	}
	in.Notes = notes
	return in, nil
}

func cleanNotes(notes *string) (*string, error) {
	if notes == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil, nil
	}
	if len(trimmed) > MaxNotesLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "notes exceed %d characters", MaxNotesLength)
	}
	return &trimmed, nil
}
