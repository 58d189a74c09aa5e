package enums

// OutboxAggregateType names the entity an outbox row belongs to. Rows for one
// aggregate publish in order.
type OutboxAggregateType string

const (
	AggregateToolRequest OutboxAggregateType = "tool_request"
	AggregateTool        OutboxAggregateType = "tool"
)

var aggregateTypes = []OutboxAggregateType{
	AggregateToolRequest,
	AggregateTool,
}

func (a OutboxAggregateType) IsValid() bool {
	return member(aggregateTypes, a)
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(aggregateTypes, "aggregate type", value)
}

// OutboxEventType is the envelope event_type consumers route on.
type OutboxEventType string

const (
	EventRequestCreated      OutboxEventType = "request_created"
	EventRequestApproved     OutboxEventType = "request_approved"
	EventRequestRejected     OutboxEventType = "request_rejected"
	EventToolReturnInitiated OutboxEventType = "tool_return_initiated"
	EventToolReturned        OutboxEventType = "tool_returned"
	EventToolQuarantined     OutboxEventType = "tool_quarantined"
)

var outboxEventTypes = []OutboxEventType{
	EventRequestCreated,
	EventRequestApproved,
	EventRequestRejected,
	EventToolReturnInitiated,
	EventToolReturned,
	EventToolQuarantined,
}

func (e OutboxEventType) IsValid() bool {
	return member(outboxEventTypes, e)
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(outboxEventTypes, "event type", value)
}

// LifecycleEventFor maps a request state machine event to the outbox event it publishes.
func LifecycleEventFor(event RequestEvent) (OutboxEventType, bool) {
	switch event {
	case RequestEventCreate:
		return EventRequestCreated, true
	case RequestEventApprove:
		return EventRequestApproved, true
	case RequestEventReject:
		return EventRequestRejected, true
	case RequestEventInitiateReturn:
		return EventToolReturnInitiated, true
	case RequestEventConfirmReturn:
		return EventToolReturned, true
	default:
		return "", false
	}
}
