// README: Order aggregate, line item snapshot and status history.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	"foodline/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusPickedUp  Status = "picked_up"
	StatusOnWay     Status = "on_way"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

const (
	PaymentCash = "cash"
	PaymentCard = "card"
)

// LineItem is frozen at creation; later product edits never change it.
type LineItem struct {
	ProductID types.ID        `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type HistoryEntry struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
	UpdatedBy *types.ID `json:"updatedBy,omitempty"`
}

type Order struct {
	ID          types.ID  `json:"id"`
	OrderNumber int64     `json:"orderNumber"`
	CustomerID  types.ID  `json:"customerId"`
	StoreID     types.ID  `json:"storeId"`
	DriverID    *types.ID `json:"driverId,omitempty"`
	// StoreOwnerID is joined from stores on read and never written with the order.
	StoreOwnerID types.ID `json:"-"`

	Items            []LineItem       `json:"items"`
	Subtotal         decimal.Decimal  `json:"subtotal"`
	DeliveryFee      decimal.Decimal  `json:"deliveryFee"`
	ServiceFee       decimal.Decimal  `json:"serviceFee"`
	Commission       decimal.Decimal  `json:"commission"`
	Total            decimal.Decimal  `json:"total"`
	DriverEarnings   *decimal.Decimal `json:"driverEarnings,omitempty"`
	PlatformEarnings *decimal.Decimal `json:"platformEarnings,omitempty"`
	Distance         *decimal.Decimal `json:"distance,omitempty"`

	Status        Status         `json:"status"`
	StatusVersion int            `json:"statusVersion"`
	History       []HistoryEntry `json:"statusHistory"`

	DeliveryAddress string `json:"deliveryAddress"`
	PaymentMethod   string `json:"paymentMethod"`
	Notes           string `json:"notes,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
	ReadyAt     *time.Time `json:"readyAt,omitempty"`
	AssignedAt  *time.Time `json:"assignedAt,omitempty"`
	PickedUpAt  *time.Time `json:"pickedUpAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
}

// Actor is the authenticated caller. Approved and Available are only
// meaningful for drivers and are filled from the user record.
type Actor struct {
	ID        types.ID
	Role      types.Role
	Approved  bool
	Available bool
}

// DriverCredit is applied to the driver's totals in the same transaction as the delivery.
type DriverCredit struct {
	DriverID   types.ID
	Deliveries int
	Earnings   decimal.Decimal
}

// IsParty reports whether actor may read o.
func (o *Order) IsParty(actor Actor) bool {
	switch actor.Role {
	case types.RoleAdmin:
		return true
	case types.RoleClient:
		return o.CustomerID == actor.ID
	case types.RoleStoreOwner:
		return o.StoreOwnerID == actor.ID
	case types.RoleDriver:
		// unassigned ready orders are visible on the job board
		return (o.DriverID != nil && *o.DriverID == actor.ID) || (o.DriverID == nil && o.Status == StatusReady)
	}
	return false
}

func (o *Order) lastStatus() Status {
	if len(o.History) == 0 {
		return ""
	}
	return o.History[len(o.History)-1].Status
}
