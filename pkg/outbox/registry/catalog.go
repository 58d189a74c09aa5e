package registry

import (
	"encoding/json"

	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox/payloads"
)

// decoderFunc turns the envelope data of one event type into its typed payload.
type decoderFunc func(payload json.RawMessage) (any, error)

// catalogEntry is the single source of truth for an event type: which aggregate
// emits it and how its v1 payload decodes. The publisher and the consumers both
// read from it so they cannot drift apart.
type catalogEntry struct {
	eventType enums.OutboxEventType
	aggregate enums.OutboxAggregateType
	decode    decoderFunc
}

func lifecycleCatalog() []catalogEntry {
	requestEvents := []enums.OutboxEventType{
		enums.EventRequestCreated,
		enums.EventRequestApproved,
		enums.EventRequestRejected,
		enums.EventToolReturnInitiated,
		enums.EventToolReturned,
	}
	entries := make([]catalogEntry, 0, len(requestEvents)+1)
	for _, eventType := range requestEvents {
		entries = append(entries, catalogEntry{
			eventType: eventType,
			aggregate: enums.AggregateToolRequest,
			decode:    decodeInto[payloads.RequestLifecycleEvent],
		})
	}
	return append(entries, catalogEntry{
		eventType: enums.EventToolQuarantined,
		aggregate: enums.AggregateTool,
		decode:    decodeInto[payloads.ToolQuarantinedEvent],
	})
}

func decodeInto[T any](payload json.RawMessage) (any, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
