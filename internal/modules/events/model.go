// README: Domain events emitted by the order lifecycle, wrapped in a versioned envelope.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOrderCreated       = "OrderCreated"
	TypeOrderStatusChanged = "OrderStatusChanged"
	TypeDriverAssigned     = "DriverAssigned"
)

const (
	envelopeVersion = 1
	producerName    = "foodline-api"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// OrderCreated carries money as strings to keep the two-decimal form on the wire.
type OrderCreated struct {
	OrderID     string `json:"order_id"`
	OrderNumber int64  `json:"order_number"`
	CustomerID  string `json:"customer_id"`
	StoreID     string `json:"store_id"`
	Total       string `json:"total"`
}

type OrderStatusChanged struct {
	OrderID   string `json:"order_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	ActorID   string `json:"actor_id"`
	ActorRole string `json:"actor_role"`
	Note      string `json:"note,omitempty"`
}

type DriverAssigned struct {
	OrderID        string `json:"order_id"`
	DriverID       string `json:"driver_id"`
	DriverEarnings string `json:"driver_earnings"`
	Implicit       bool   `json:"implicit"`
}

func NewEnvelope(eventType, correlationID string, payload any, at time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  envelopeVersion,
		OccurredAt:    at.UTC(),
		Producer:      producerName,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// DecodePayload unwraps the payload of e into T.
func DecodePayload[T any](e Envelope) (T, error) {
	var t T
	if err := json.Unmarshal(e.Payload, &t); err != nil {
		return t, fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return t, nil
}
