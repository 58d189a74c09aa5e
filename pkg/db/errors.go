package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Postgres SQLSTATE values that mean "try again" rather than "you are wrong".
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgQueryCanceled        = "57014"
)

// IsUniqueViolation reports whether the provided error references a unique
// constraint violation. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsBusy reports whether err is transient contention: a lock wait that timed out,
// a serialization or deadlock abort, or a locked sqlite database.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return isBusySQLState(pgxErr.Code)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return isBusySQLState(string(pqErr.Code))
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

func isBusySQLState(code string) bool {
	switch code {
	case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected, pgQueryCanceled:
		return true
	default:
		return false
	}
}
