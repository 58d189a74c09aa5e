package enums

// OutboxDLQErrorReason explains why the publisher gave up on an outbox row.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
