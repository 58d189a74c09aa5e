package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

const cursorSep = "|"

var errCursorFormat = errors.New("cursor must be a timestamp and id")

// Params is the limit and opaque cursor a caller asked for.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the keyset position of the last row on a page: its sort timestamp plus id as tiebreaker.
type Cursor struct {
	SortAt time.Time
	ID     uuid.UUID
}

// Page is a single window of rows plus the cursor for the following one.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// NormalizeLimit maps a missing limit to DefaultLimit and clamps to MaxLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// LimitWithBuffer is the row count to fetch: one past the page reveals whether
// another page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// BuildPage trims the buffered row and derives the next cursor from the last kept item.
func BuildPage[T any](rows []T, limit int, key func(T) Cursor) Page[T] {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return Page[T]{Items: rows}
	}
	kept := rows[:limit]
	return Page[T]{
		Items:      kept,
		NextCursor: EncodeCursor(key(kept[len(kept)-1])),
	}
}

// EncodeCursor renders c as URL-safe base64 so it survives query strings.
func EncodeCursor(c Cursor) string {
	raw := c.SortAt.UTC().Format(time.RFC3339Nano) + cursorSep + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor reverses EncodeCursor. A blank value means the first page and
// yields a nil cursor.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("cursor encoding: %w", err)
	}
	stamp, id, ok := strings.Cut(string(raw), cursorSep)
	if !ok {
		return nil, errCursorFormat
	}

	var c Cursor
	if c.SortAt, err = time.Parse(time.RFC3339Nano, stamp); err != nil {
		return nil, fmt.Errorf("cursor timestamp: %w", err)
	}
	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("cursor id: %w", err)
	}
	return &c, nil
}
