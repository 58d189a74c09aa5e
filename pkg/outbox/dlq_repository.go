package outbox

import (
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
)

const maxDLQErrorLen = 1024

// DLQRepository appends to outbox_dlq. Entries are written in the same
// transaction that parks the source row, so a row is never in both states.
type DLQRepository struct{}

func NewDLQRepository() *DLQRepository {
	return &DLQRepository{}
}

func (r *DLQRepository) Record(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errTxRequired
	}
	if !entry.ErrorReason.IsValid() {
		return errors.New("dlq error reason is invalid")
	}
	if entry.ErrorMessage != nil {
		msg := clip(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}
