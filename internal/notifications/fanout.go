package notifications

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
)

// Recipient is either a single user inbox or every member of a role.
type Recipient interface {
	Audience() enums.NotificationAudience
	key() string
	isRecipient()
}

// User addresses one user's inbox.
type User struct {
	UserID uuid.UUID
}

func (User) Audience() enums.NotificationAudience { return enums.NotificationAudienceUser }
func (u User) key() string                        { return "user:" + u.UserID.String() }
func (User) isRecipient()                         {}

// RoleBroadcast addresses every holder of Role.
type RoleBroadcast struct {
	Role enums.Role
}

func (RoleBroadcast) Audience() enums.NotificationAudience { return enums.NotificationAudienceRole }
func (r RoleBroadcast) key() string                        { return "role:" + string(r.Role) }
func (RoleBroadcast) isRecipient()                         {}

// Event is the committed lifecycle change fan-out is built from.
type Event struct {
	Type       enums.NotificationType
	RequestID  uuid.UUID
	ToolName   string
	WorkerID   uuid.UUID
	WorkerName string
	Quantity   int
	Notes      string
}

// Message is one addressed notification ready to persist.
type Message struct {
	Recipient Recipient
	Type      enums.NotificationType
	RequestID uuid.UUID
	Text      string
}

// DedupeKey identifies the message across retries and the backfill consumer.
func (m Message) DedupeKey() string {
	return fmt.Sprintf("%s:%s:%s", m.RequestID, m.Type, m.Recipient.key())
}

var storekeepers = RoleBroadcast{Role: enums.RoleStorekeeper}

// Build derives the notifications for e. It reads nothing and has no side effects.
func Build(e Event) []Message {
	tool := displayOr(e.ToolName, "a tool")
	worker := displayOr(e.WorkerName, "A worker")
	borrower := User{UserID: e.WorkerID}

	var out []Message
	add := func(to Recipient, text string) {
		out = append(out, Message{Recipient: to, Type: e.Type, RequestID: e.RequestID, Text: text})
	}

	switch e.Type {
	case enums.NotificationTypeRequestCreated:
		add(storekeepers, fmt.Sprintf("New request for %s ×%d from %s", tool, e.Quantity, worker))
	case enums.NotificationTypeRequestApproved:
		add(borrower, fmt.Sprintf("Your request for %s was approved%s", tool, withNotes(e.Notes)))
		add(storekeepers, fmt.Sprintf("Request for %s from %s was approved%s", tool, worker, withNotes(e.Notes)))
	case enums.NotificationTypeRequestRejected:
		add(borrower, fmt.Sprintf("Your request for %s was rejected%s", tool, withNotes(e.Notes)))
		add(storekeepers, fmt.Sprintf("Request for %s from %s was rejected%s", tool, worker, withNotes(e.Notes)))
	case enums.NotificationTypeToolReturnInitiated:
		add(storekeepers, fmt.Sprintf("%s started returning %s%s", worker, tool, withNotes(e.Notes)))
	case enums.NotificationTypeToolReturned:
		add(borrower, fmt.Sprintf("Return of %s confirmed%s", tool, withNotes(e.Notes)))
		add(storekeepers, fmt.Sprintf("%s returned by %s%s", tool, worker, withNotes(e.Notes)))
	}
	return out
}

// TypeForEvent maps a lifecycle event to the notification type it produces.
func TypeForEvent(event enums.OutboxEventType) (enums.NotificationType, bool) {
	t := enums.NotificationType(event)
	return t, t.IsValid()
}

func withNotes(notes string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return ""
	}
	return ": " + notes
}

func displayOr(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
