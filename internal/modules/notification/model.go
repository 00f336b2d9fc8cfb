// README: Notification payloads and their delivery targets.
package notification

import (
	"time"

	"foodline/internal/types"
)

type Type string

const (
	TypeNewOrder       Type = "new_order"
	TypePlatformOrder  Type = "platform_order"
	TypeOrderStatus    Type = "order_status"
	TypeOrderAvailable Type = "order_available"
	TypeDriverAssigned Type = "driver_assigned"
	TypeOrderCancelled Type = "order_cancelled"
)

// Notification is ephemeral: pushed to live sessions only, never stored.
type Notification struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      Type      `json:"type"`
	OrderID   *types.ID `json:"orderId,omitempty"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is one outbox entry: a notification plus who should get it.
// Exactly one of UserIDs or Role is set.
type Message struct {
	UserIDs      []types.ID   `json:"userIds,omitempty"`
	Role         types.Role   `json:"role,omitempty"`
	Notification Notification `json:"notification"`
}

func ToUser(id types.ID, n Notification) Message {
	return Message{UserIDs: []types.ID{id}, Notification: n}
}

func ToRole(role types.Role, n Notification) Message {
	return Message{Role: role, Notification: n}
}
