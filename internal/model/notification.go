package model

import (
	"time"
)

// Kind is the recipient category of a notification: individually targeted or
// broadcast to a role group. A notification belongs to exactly one kind for
// its lifetime.
type Kind string

const (
	KindUser Kind = "user"
	KindRole Kind = "role"
)

// Type is a closed category tag used only for client-side label and color
// mapping; it has no effect on delivery.
type Type string

const (
	TypeOrderStatusChanged Type = "order_status_changed"
	TypePaymentReceived    Type = "payment_received"
	TypeGeneral            Type = "general"
)

// Target correlates a notification to a domain object, typically an order.
// Opaque to the pipeline beyond display.
type Target struct {
	OrderID string `json:"orderId,omitempty"`
	Label   string `json:"label,omitempty"`
}

// Notification is the core entity of the pipeline.
type Notification struct {
	ID        string    `json:"notificationId"`
	Kind      Kind      `json:"kind"`
	Type      Type      `json:"type"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
	Target    *Target   `json:"target,omitempty"`
}

// PageMeta is server-provided page accounting. It is never computed
// client-side; realtime arrivals do not touch it.
type PageMeta struct {
	CurrentPage   int `json:"currentPage"`
	TotalPages    int `json:"totalPages"`
	PageSize      int `json:"pageSize"`
	TotalElements int `json:"totalElements"`
}

// Page is one fetched page of notifications for a single kind.
type Page struct {
	Items []Notification
	Meta  PageMeta
}

// MarkReadResult is the confirmation returned by a successful mark-read call.
type MarkReadResult struct {
	NotificationID string    `json:"notificationId"`
	ReadAt         time.Time `json:"readAt"`
}
