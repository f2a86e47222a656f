package model

import (
	"encoding/json"
	"time"
)

// Wire shapes of the notification API. Every response is wrapped with a
// success boolean; callers branch on it rather than on HTTP status for
// business-level failure.

// ListResponse is the envelope of the paginated fetch endpoints.
type ListResponse struct {
	Success       bool           `json:"success"`
	Result        []Notification `json:"result"`
	Message       string         `json:"message,omitempty"`
	CurrentPage   int            `json:"currentPage"`
	TotalPages    int            `json:"totalPages"`
	PageSize      int            `json:"pageSize"`
	TotalElements int            `json:"totalElements"`
	Timestamp     time.Time      `json:"timestamp"`
}

// ActionResponse is the envelope of mark-read and send endpoints.
type ActionResponse struct {
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// Realtime event names consumed from the persistent transport.
const (
	EventUserNotification = "notification:user"
	EventRoleNotification = "notification:role"
)

// EventFrame is one inbound frame on the realtime connection.
type EventFrame struct {
	Event string       `json:"event"`
	Data  EventPayload `json:"data"`
}

// EventPayload carries the notification content of a realtime event. The
// timestamp may be absent, in which case the receiver stamps local time.
type EventPayload struct {
	NotificationID string     `json:"notificationId"`
	Type           Type       `json:"type"`
	Message        string     `json:"message"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
	UserTarget     string     `json:"userTarget,omitempty"`
	RoleTarget     string     `json:"roleTarget,omitempty"`
	Target         *Target    `json:"target,omitempty"`
}

// Notification converts a realtime payload into the core entity. Realtime
// arrivals always start unread.
func (p EventPayload) Notification(kind Kind, now time.Time) Notification {
	createdAt := now
	if p.Timestamp != nil {
		createdAt = *p.Timestamp
	}
	return Notification{
		ID:        p.NotificationID,
		Kind:      kind,
		Type:      p.Type,
		Message:   p.Message,
		IsRead:    false,
		CreatedAt: createdAt,
		Target:    p.Target,
	}
}
