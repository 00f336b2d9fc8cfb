// README: Human-readable notification texts for order events.
package order

import (
	"fmt"
	"time"

	"foodline/internal/modules/notification"
	"foodline/internal/types"
)

var customerTexts = map[Status]string{
	StatusAccepted:  "Your order %s has been accepted by the store",
	StatusPreparing: "Your order %s is being prepared",
	StatusReady:     "Your order %s is ready and waiting for a driver",
	StatusPickedUp:  "Your order %s has been picked up by the driver",
	StatusOnWay:     "Your order %s is on the way",
	StatusDelivered: "Your order %s has been delivered. Enjoy your meal!",
	StatusCancelled: "Your order %s has been cancelled",
}

// StatusText is the customer-facing line for status s.
func StatusText(o *Order, s Status) string {
	if f, ok := customerTexts[s]; ok {
		return fmt.Sprintf(f, orderRef(o))
	}
	return fmt.Sprintf("Your order %s status updated", orderRef(o))
}

func customerStatusMessage(o *Order, s Status, now time.Time) notification.Message {
	return notification.ToUser(o.CustomerID, notification.Notification{
		Title:     "Order update",
		Message:   StatusText(o, s),
		Type:      notification.TypeOrderStatus,
		OrderID:   types.IDPtr(o.ID),
		Status:    string(s),
		Timestamp: now,
	})
}

func availableForDrivers(o *Order, now time.Time) notification.Message {
	return notification.ToRole(types.RoleDriver, notification.Notification{
		Title:     "New order available",
		Message:   fmt.Sprintf("Order %s is ready for pickup", orderRef(o)),
		Type:      notification.TypeOrderAvailable,
		OrderID:   types.IDPtr(o.ID),
		Status:    string(StatusReady),
		Timestamp: now,
	})
}

func cancelledByClient(o *Order, now time.Time) notification.Message {
	return notification.ToUser(o.StoreOwnerID, notification.Notification{
		Title:     "Order cancelled",
		Message:   fmt.Sprintf("Order %s was cancelled by the customer", orderRef(o)),
		Type:      notification.TypeOrderCancelled,
		OrderID:   types.IDPtr(o.ID),
		Status:    string(StatusCancelled),
		Timestamp: now,
	})
}

func driverAssigned(o *Order, now time.Time) notification.Message {
	return notification.ToUser(o.CustomerID, notification.Notification{
		Title:     "Driver assigned",
		Message:   fmt.Sprintf("A driver has been assigned to your order %s", orderRef(o)),
		Type:      notification.TypeDriverAssigned,
		OrderID:   types.IDPtr(o.ID),
		Status:    string(o.Status),
		Timestamp: now,
	})
}

func newOrderMessages(o *Order, storeName string, now time.Time) []notification.Message {
	id := types.IDPtr(o.ID)
	return []notification.Message{
		notification.ToUser(o.StoreOwnerID, notification.Notification{
			Title:     "New order",
			Message:   fmt.Sprintf("New order %s received (%s)", orderRef(o), o.Total.StringFixed(types.MoneyPlaces)),
			Type:      notification.TypeNewOrder,
			OrderID:   id,
			Status:    string(StatusPending),
			Timestamp: now,
		}),
		notification.ToRole(types.RoleAdmin, notification.Notification{
			Title:     "New order on platform",
			Message:   fmt.Sprintf("Order %s placed at %s", orderRef(o), storeName),
			Type:      notification.TypePlatformOrder,
			OrderID:   id,
			Status:    string(StatusPending),
			Timestamp: now,
		}),
	}
}
