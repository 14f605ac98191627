package notification

import (
	"time"

	"github.com/google/uuid"
)

// Event routing keys
const (
	// Notifications are published as notification.<severity>
	EventNotificationPrefix = "notification."

	// Directory changes, published by the development directory service
	EventUserCreated             = "user.created"
	EventUserUpdated             = "user.updated"
	EventUserDeleted             = "user.deleted"
	EventUserPasswordReset       = "user.password_reset"
	EventUserProfileImageUpdated = "user.profile_image_updated"
)

// ServiceName stamps every event published from this module
const ServiceName = "user-directory"

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType   string    `json:"event_type"`
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	ServiceName string    `json:"service_name"`
}

// NotificationEvent carries a user-facing notification to other listeners
type NotificationEvent struct {
	BaseEvent
	Data Notification `json:"data"`
}

// UserEvent describes a change to a directory account
type UserEvent struct {
	BaseEvent
	Data UserEventData `json:"data"`
}

type UserEventData struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	Active    bool      `json:"active"`
	ChangedAt time.Time `json:"changed_at"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType:   eventType,
		EventID:     uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		ServiceName: ServiceName,
	}
}

// RoutingKey returns the key a notification is published under
func RoutingKey(n Notification) string {
	return EventNotificationPrefix + string(n.Severity)
}

func NewNotificationEvent(n Notification) NotificationEvent {
	return NotificationEvent{BaseEvent: NewBaseEvent(RoutingKey(n)), Data: n}
}

func NewUserEvent(eventType string, data UserEventData) UserEvent {
	if data.ChangedAt.IsZero() {
		data.ChangedAt = time.Now().UTC()
	}
	return UserEvent{BaseEvent: NewBaseEvent(eventType), Data: data}
}
