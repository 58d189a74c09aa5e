package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func ExampleManager_Claim() {
	ctx := context.Background()
	manager, _ := NewManager(newClaimStore(), 7*24*time.Hour)
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	handle := func(fail bool) string {
		ticket, claimed, err := manager.Claim(ctx, "notification-backfill", eventID)
		switch {
		case err != nil:
			return "retry later"
		case !claimed:
			return "duplicate, ack"
		case fail:
			_ = ticket.Release(ctx)
			return "handler failed, nack"
		}
		return "handled"
	}

	fmt.Println(handle(true))
	fmt.Println(handle(false))
	fmt.Println(handle(false))
	// Output:
	// handler failed, nack
	// handled
	// duplicate, ack
}
