package enums

// RequestStatus maps to the request_status enum in Postgres.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusApproved  RequestStatus = "approved"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusReturning RequestStatus = "returning"
	RequestStatusCompleted RequestStatus = "completed"
)

var validRequestStatuses = []RequestStatus{
	RequestStatusPending,
	RequestStatusApproved,
	RequestStatusRejected,
	RequestStatusReturning,
	RequestStatusCompleted,
}

// IsValid reports whether the value matches the canonical request_status enum.
func (s RequestStatus) IsValid() bool {
	return member(validRequestStatuses, s)
}

// IsTerminal reports whether no transition may leave the status.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusRejected || s == RequestStatusCompleted
}

// HoldsStock reports whether a request in this status has units reserved on the ledger.
func (s RequestStatus) HoldsStock() bool {
	return s == RequestStatusApproved || s == RequestStatusReturning
}

// StockHoldingStatuses lists the statuses whose quantities are subtracted from available stock.
func StockHoldingStatuses() []RequestStatus {
	return []RequestStatus{RequestStatusApproved, RequestStatusReturning}
}

// ParseRequestStatus converts raw input into RequestStatus.
func ParseRequestStatus(value string) (RequestStatus, error) {
	return parse(validRequestStatuses, "request status", value)
}

// RequestEvent names an action applied to a borrow request.
type RequestEvent string

const (
	RequestEventCreate         RequestEvent = "create"
	RequestEventApprove        RequestEvent = "approve"
	RequestEventReject         RequestEvent = "reject"
	RequestEventInitiateReturn RequestEvent = "initiate_return"
	RequestEventConfirmReturn  RequestEvent = "confirm_return"
)

var validRequestEvents = []RequestEvent{
	RequestEventCreate,
	RequestEventApprove,
	RequestEventReject,
	RequestEventInitiateReturn,
	RequestEventConfirmReturn,
}

// RequestEvents returns every event the state machine understands.
func RequestEvents() []RequestEvent {
	out := make([]RequestEvent, len(validRequestEvents))
	copy(out, validRequestEvents)
	return out
}

// IsValid reports whether the value is a known request event.
func (e RequestEvent) IsValid() bool {
	return member(validRequestEvents, e)
}

// RequestDecision is the storekeeper verdict on a pending request.
type RequestDecision string

const (
	RequestDecisionApprove RequestDecision = "approve"
	RequestDecisionReject  RequestDecision = "reject"
)

// ParseRequestDecision converts raw input into RequestDecision.
func ParseRequestDecision(value string) (RequestDecision, error) {
	return parse([]RequestDecision{RequestDecisionApprove, RequestDecisionReject}, "request decision", value)
}
