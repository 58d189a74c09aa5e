package enums

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeRequestCreated      NotificationType = "request_created"
	NotificationTypeRequestApproved     NotificationType = "request_approved"
	NotificationTypeRequestRejected     NotificationType = "request_rejected"
	NotificationTypeToolReturnInitiated NotificationType = "tool_return_initiated"
	NotificationTypeToolReturned        NotificationType = "tool_returned"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeRequestCreated,
	NotificationTypeRequestApproved,
	NotificationTypeRequestRejected,
	NotificationTypeToolReturnInitiated,
	NotificationTypeToolReturned,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	return member(validNotificationTypes, n)
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	return parse(validNotificationTypes, "notification type", value)
}

// NotificationAudience distinguishes a single user inbox from a role-wide broadcast.
type NotificationAudience string

const (
	NotificationAudienceUser NotificationAudience = "user"
	NotificationAudienceRole NotificationAudience = "role"
)

func (a NotificationAudience) IsValid() bool {
	return a == NotificationAudienceUser || a == NotificationAudienceRole
}
