package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Base carries the connection a domain repository reads and writes through.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// WithTx rebinds the base to tx; a nil tx keeps the current connection.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// First loads the first row matched by query, or nil when there is none.
func First[T any](query *gorm.DB) (*T, error) {
	var row T
	err := query.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
