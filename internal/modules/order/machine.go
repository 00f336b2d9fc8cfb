// README: Pure transition engine: decides a status change and its effects, then applies them.
package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"foodline/internal/apperr"
	"foodline/internal/modules/notification"
	"foodline/internal/modules/pricing"
	"foodline/internal/types"
)

type rule struct {
	roles []types.Role
	next  []Status
}

// transitions is the order state flow as code. Statuses without a rule are terminal.
var transitions = map[Status]rule{
	StatusPending:   {roles: []types.Role{types.RoleStoreOwner, types.RoleClient}, next: []Status{StatusAccepted, StatusCancelled}},
	StatusAccepted:  {roles: []types.Role{types.RoleStoreOwner}, next: []Status{StatusPreparing, StatusCancelled}},
	StatusPreparing: {roles: []types.Role{types.RoleStoreOwner}, next: []Status{StatusReady, StatusCancelled}},
	StatusReady:     {roles: []types.Role{types.RoleDriver}, next: []Status{StatusPickedUp, StatusCancelled}},
	StatusPickedUp:  {roles: []types.Role{types.RoleDriver}, next: []Status{StatusOnWay}},
	StatusOnWay:     {roles: []types.Role{types.RoleDriver}, next: []Status{StatusDelivered}},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from].next {
		if s == to {
			return true
		}
	}
	return false
}

func CanUpdate(from Status, role types.Role) bool {
	for _, r := range transitions[from].roles {
		if r == role {
			return true
		}
	}
	return false
}

func NextStates(from Status) []Status {
	return append([]Status{}, transitions[from].next...)
}

func AllowedRoles(from Status) []types.Role {
	return append([]types.Role{}, transitions[from].roles...)
}

func IsTerminal(s Status) bool {
	_, ok := transitions[s]
	return !ok
}

// Effect is one side effect of a transition, applied by Transition.Apply.
type Effect interface {
	isEffect()
}

type stampField int

const (
	stampAccepted stampField = iota
	stampReady
	stampPickedUp
	stampDelivered
)

type StampEffect struct {
	field stampField
	At    time.Time
}

type AssignEffect struct {
	DriverID types.ID
	Earnings decimal.Decimal
	At       time.Time
	Implicit bool
}

type PlatformEarningsEffect struct {
	Amount decimal.Decimal
}

type CreditDriverEffect struct {
	Credit DriverCredit
}

type NotifyEffect struct {
	Message notification.Message
}

func (StampEffect) isEffect()            {}
func (AssignEffect) isEffect()           {}
func (PlatformEarningsEffect) isEffect() {}
func (CreditDriverEffect) isEffect()     {}
func (NotifyEffect) isEffect()           {}

// Transition is a decided but not yet applied change. Entry is nil when the
// status does not move (manual driver claim).
type Transition struct {
	From    Status
	To      Status
	Entry   *HistoryEntry
	Effects []Effect
}

// Outcome is what the interpreter hands back for persistence and delivery.
type Outcome struct {
	Credit   *DriverCredit
	Assigned *AssignEffect
	Messages []notification.Message
}

// Apply mutates o according to t.
func (t Transition) Apply(o *Order) Outcome {
	var out Outcome
	o.Status = t.To
	if t.Entry != nil {
		o.History = append(o.History, *t.Entry)
	}
	for _, e := range t.Effects {
		switch e := e.(type) {
		case StampEffect:
			at := e.At
			switch e.field {
			case stampAccepted:
				o.AcceptedAt = &at
			case stampReady:
				o.ReadyAt = &at
			case stampPickedUp:
				o.PickedUpAt = &at
			case stampDelivered:
				o.DeliveredAt = &at
			}
		case AssignEffect:
			id, at, earn := e.DriverID, e.At, e.Earnings
			o.DriverID = &id
			o.AssignedAt = &at
			o.DriverEarnings = &earn
			out.Assigned = &e
		case PlatformEarningsEffect:
			amt := e.Amount
			o.PlatformEarnings = &amt
		case CreditDriverEffect:
			c := e.Credit
			out.Credit = &c
		case NotifyEffect:
			out.Messages = append(out.Messages, e.Message)
		}
	}
	return out
}

type Machine struct {
	pricing *pricing.Service
}

func NewMachine(p *pricing.Service) *Machine {
	return &Machine{pricing: p}
}

// Decide validates a status change for actor and lists its effects. It reads
// o but never mutates it.
func (m *Machine) Decide(o *Order, to Status, actor Actor, note string, now time.Time) (Transition, error) {
	from := o.Status
	if !CanUpdate(from, actor.Role) {
		roles := AllowedRoles(from)
		if len(roles) == 0 {
			return Transition{}, apperr.Forbidden("order is %s and can no longer change", from).
				With("allowedRoles", roles).
				With("currentStatus", from)
		}
		return Transition{}, apperr.Forbidden("role %s cannot update an order in status %s", actor.Role, from).
			With("allowedRoles", roles)
	}
	if !CanTransition(from, to) {
		return Transition{}, apperr.InvalidTransition("cannot move order from %s to %s", from, to).
			With("currentStatus", from).
			With("allowedStates", NextStates(from))
	}

	// An unclaimed order is only open to drivers who could claim it.
	if actor.Role == types.RoleDriver && o.DriverID == nil {
		if err := claimGate(actor); err != nil {
			return Transition{}, err
		}
	}

	actorID := actor.ID
	t := Transition{
		From:  from,
		To:    to,
		Entry: &HistoryEntry{Status: to, Timestamp: now, Note: note, UpdatedBy: &actorID},
	}

	switch to {
	case StatusAccepted:
		t.Effects = append(t.Effects, StampEffect{field: stampAccepted, At: now})
	case StatusReady:
		t.Effects = append(t.Effects, StampEffect{field: stampReady, At: now})
	case StatusPickedUp:
		t.Effects = append(t.Effects, StampEffect{field: stampPickedUp, At: now})
		if o.DriverID == nil && actor.Role == types.RoleDriver {
			assign, err := m.assignment(o, actor, now)
			if err != nil {
				return Transition{}, err
			}
			assign.Implicit = true
			t.Effects = append(t.Effects, assign)
		}
	case StatusDelivered:
		t.Effects = append(t.Effects,
			StampEffect{field: stampDelivered, At: now},
			PlatformEarningsEffect{Amount: m.pricing.PlatformEarnings(o.Commission, o.ServiceFee)},
		)
		if o.DriverID != nil {
			earned := decimal.Zero
			if o.DriverEarnings != nil {
				earned = *o.DriverEarnings
			}
			t.Effects = append(t.Effects, CreditDriverEffect{Credit: DriverCredit{
				DriverID:   *o.DriverID,
				Deliveries: 1,
				Earnings:   earned,
			}})
		}
	}

	t.Effects = append(t.Effects, NotifyEffect{Message: customerStatusMessage(o, to, now)})
	if to == StatusReady {
		t.Effects = append(t.Effects, NotifyEffect{Message: availableForDrivers(o, now)})
	}
	if to == StatusCancelled && actor.Role == types.RoleClient && o.StoreOwnerID != "" {
		t.Effects = append(t.Effects, NotifyEffect{Message: cancelledByClient(o, now)})
	}
	return t, nil
}

// Assign decides a manual claim of a ready, unassigned order by a driver.
func (m *Machine) Assign(o *Order, actor Actor, now time.Time) (Transition, error) {
	if actor.Role != types.RoleDriver {
		return Transition{}, apperr.Forbidden("only drivers can claim orders").
			With("allowedRoles", []types.Role{types.RoleDriver})
	}
	if o.Status != StatusReady {
		return Transition{}, apperr.Conflict("order is %s, only ready orders can be claimed", o.Status).
			With("currentStatus", o.Status)
	}
	if o.DriverID != nil {
		return Transition{}, apperr.Conflict("order already has a driver")
	}
	assign, err := m.assignment(o, actor, now)
	if err != nil {
		return Transition{}, err
	}
	return Transition{
		From: o.Status,
		To:   o.Status,
		Effects: []Effect{
			assign,
			NotifyEffect{Message: driverAssigned(o, now)},
		},
	}, nil
}

func claimGate(actor Actor) error {
	if !actor.Approved {
		return apperr.Forbidden("driver %s is not approved", actor.ID)
	}
	if !actor.Available {
		return apperr.Forbidden("driver %s is not available", actor.ID)
	}
	return nil
}

func (m *Machine) assignment(o *Order, actor Actor, now time.Time) (AssignEffect, error) {
	if err := claimGate(actor); err != nil {
		return AssignEffect{}, err
	}
	return AssignEffect{
		DriverID: actor.ID,
		Earnings: m.pricing.DriverEarnings(o.DeliveryFee, o.Distance),
		At:       now,
	}, nil
}

func orderRef(o *Order) string {
	return fmt.Sprintf("#%d", o.OrderNumber)
}
