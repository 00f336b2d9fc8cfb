// README: Order service wraps the transition engine with loading, ownership, persistence and fan-out.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"foodline/internal/apperr"
	"foodline/internal/modules/directory"
	"foodline/internal/modules/events"
	"foodline/internal/modules/notification"
	"foodline/internal/modules/pricing"
	"foodline/internal/types"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrVersionConflict = errors.New("order status version conflict")
)

type Repository interface {
	// Create assigns OrderNumber and inserts the order, its items and the first history entry.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	// Update writes o if its stored version still equals expectedVersion, appending
	// entry and applying credit in the same transaction.
	Update(ctx context.Context, o *Order, expectedVersion int, entry *HistoryEntry, credit *DriverCredit) error
	ListAvailable(ctx context.Context) ([]*Order, error)
}

type Directory interface {
	GetUser(ctx context.Context, id types.ID) (*directory.User, error)
	GetShop(ctx context.Context, id types.ID) (*directory.Shop, error)
	GetProduct(ctx context.Context, id types.ID) (*directory.Product, error)
}

type Notifier interface {
	Enqueue(msgs ...notification.Message) bool
}

// StatusView is the cached projection served by Status.
type StatusView struct {
	OrderID     types.ID `json:"orderId"`
	OrderNumber int64    `json:"orderNumber"`
	Status      Status   `json:"status"`
	// StatusVersion orders cache writes; an older view never replaces a newer one.
	StatusVersion int       `json:"statusVersion"`
	CustomerID    types.ID  `json:"customerId"`
	StoreOwnerID  types.ID  `json:"storeOwnerId"`
	DriverID      *types.ID `json:"driverId,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type StatusCache interface {
	// Get returns nil on a miss.
	Get(ctx context.Context, id types.ID) (*StatusView, error)
	// Set stores v unless the cached view already has a higher StatusVersion.
	Set(ctx context.Context, v StatusView) error
}

type Deps struct {
	Repo      Repository
	Directory Directory
	Pricing   *pricing.Service
	Notifier  Notifier
	Events    events.Publisher
	Cache     StatusCache
	Log       *slog.Logger
	Clock     func() time.Time
}

type Service struct {
	repo     Repository
	dir      Directory
	pricing  *pricing.Service
	machine  *Machine
	notifier Notifier
	events   events.Publisher
	cache    StatusCache
	log      *slog.Logger
	now      func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		repo:     d.Repo,
		dir:      d.Directory,
		pricing:  d.Pricing,
		machine:  NewMachine(d.Pricing),
		notifier: d.Notifier,
		events:   d.Events,
		cache:    d.Cache,
		log:      d.Log,
		now:      d.Clock,
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type CartItem struct {
	ProductID types.ID
	Quantity  int
}

type CreateCommand struct {
	StoreID         types.ID
	Items           []CartItem
	DeliveryAddress string
	PaymentMethod   string
	Notes           string
}

func (s *Service) Create(ctx context.Context, actor Actor, cmd CreateCommand) (*Order, error) {
	if actor.Role != types.RoleClient {
		return nil, apperr.Forbidden("only clients can place orders").
			With("allowedRoles", []types.Role{types.RoleClient})
	}
	if err := validateCreate(&cmd); err != nil {
		return nil, err
	}

	shop, err := s.dir.GetShop(ctx, cmd.StoreID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, apperr.NotFound("store %s not found", cmd.StoreID)
	}
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}
	if !shop.IsOpen {
		return nil, apperr.Conflict("store %s is closed", shop.Name)
	}

	lines := make([]pricing.Line, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		p, err := s.dir.GetProduct(ctx, it.ProductID)
		if errors.Is(err, directory.ErrNotFound) {
			return nil, apperr.NotFound("product %s not found", it.ProductID)
		}
		if err != nil {
			return nil, fmt.Errorf("load product: %w", err)
		}
		if p.StoreID != shop.ID {
			return nil, apperr.Validation("product %s does not belong to store %s", p.ID, shop.ID)
		}
		if !p.Available {
			return nil, apperr.Conflict("product %s is not available", p.Name).With("productId", p.ID)
		}
		lines = append(lines, pricing.Line{ProductID: p.ID, Name: p.Name, Price: p.Price, Quantity: it.Quantity})
	}

	quote := s.pricing.Quote(lines, shop.DeliveryFee)
	if quote.Subtotal.LessThan(shop.MinOrder) {
		return nil, apperr.Validation("minimum order for %s is %s", shop.Name, shop.MinOrder.StringFixed(types.MoneyPlaces)).
			With("minOrder", shop.MinOrder.InexactFloat64()).
			With("currentTotal", quote.Subtotal.InexactFloat64())
	}

	now := s.now()
	customer := actor.ID
	o := &Order{
		ID:              types.NewID(),
		CustomerID:      actor.ID,
		StoreID:         shop.ID,
		StoreOwnerID:    shop.OwnerID,
		Items:           make([]LineItem, 0, len(lines)),
		Subtotal:        quote.Subtotal,
		DeliveryFee:     quote.DeliveryFee,
		ServiceFee:      quote.ServiceFee,
		Commission:      quote.Commission,
		Total:           quote.Total,
		Status:          StatusPending,
		DeliveryAddress: cmd.DeliveryAddress,
		PaymentMethod:   cmd.PaymentMethod,
		Notes:           cmd.Notes,
		CreatedAt:       now,
		History: []HistoryEntry{{
			Status:    StatusPending,
			Timestamp: now,
			Note:      "order created",
			UpdatedBy: &customer,
		}},
	}
	for _, l := range lines {
		o.Items = append(o.Items, LineItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.Price,
			Quantity:  l.Quantity,
			LineTotal: types.RoundMoney(l.Total()),
		})
	}

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.log.Info("order created",
		slog.String("action", "create_order"),
		slog.String("order_id", o.ID.String()),
		slog.Int64("order_number", o.OrderNumber),
		slog.String("store_id", o.StoreID.String()),
		slog.String("total", o.Total.StringFixed(types.MoneyPlaces)),
	)
	s.refreshCache(ctx, o)
	s.notify(newOrderMessages(o, shop.Name, now))
	s.publish(ctx, events.TypeOrderCreated, o.ID, events.OrderCreated{
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID.String(),
		StoreID:     o.StoreID.String(),
		Total:       o.Total.StringFixed(types.MoneyPlaces),
	}, now)
	return o, nil
}

func validateCreate(cmd *CreateCommand) error {
	if cmd.StoreID == "" {
		return apperr.Validation("storeId is required")
	}
	if len(cmd.Items) == 0 {
		return apperr.Validation("cart is empty")
	}
	for _, it := range cmd.Items {
		if it.ProductID == "" {
			return apperr.Validation("productId is required for every item")
		}
		if it.Quantity < 1 {
			return apperr.Validation("quantity must be at least 1").With("productId", it.ProductID)
		}
	}
	cmd.DeliveryAddress = strings.TrimSpace(cmd.DeliveryAddress)
	if cmd.DeliveryAddress == "" {
		return apperr.Validation("deliveryAddress is required")
	}
	switch cmd.PaymentMethod {
	case "":
		cmd.PaymentMethod = PaymentCash
	case PaymentCash, PaymentCard:
	default:
		return apperr.Validation("unsupported payment method %q", cmd.PaymentMethod).
			With("allowedPaymentMethods", []string{PaymentCash, PaymentCard})
	}
	return nil
}

// UpdateStatus moves an order along the transition table on behalf of actor.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, id types.ID, to Status, note string) (*Order, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.resolveDriver(ctx, &actor); err != nil {
		return nil, err
	}

	now := s.now()
	t, err := s.machine.Decide(o, to, actor, note, now)
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(o, actor); err != nil {
		return nil, err
	}

	expected := o.StatusVersion
	out := t.Apply(o)
	if err := s.repo.Update(ctx, o, expected, t.Entry, out.Credit); err != nil {
		return nil, s.writeError(err, t.From)
	}
	o.StatusVersion = expected + 1

	s.log.Info("order status changed",
		slog.String("action", "update_status"),
		slog.String("order_id", o.ID.String()),
		slog.String("from", string(t.From)),
		slog.String("to", string(t.To)),
		slog.String("actor_id", actor.ID.String()),
		slog.String("actor_role", string(actor.Role)),
	)
	if out.Credit != nil {
		s.log.Info("driver credited",
			slog.String("action", "credit_driver"),
			slog.String("order_id", o.ID.String()),
			slog.String("driver_id", out.Credit.DriverID.String()),
			slog.String("earnings", out.Credit.Earnings.StringFixed(types.MoneyPlaces)),
		)
	}

	s.refreshCache(ctx, o)
	s.notify(out.Messages)
	s.publish(ctx, events.TypeOrderStatusChanged, o.ID, events.OrderStatusChanged{
		OrderID:   o.ID.String(),
		From:      string(t.From),
		To:        string(t.To),
		ActorID:   actor.ID.String(),
		ActorRole: string(actor.Role),
		Note:      note,
	}, now)
	if out.Assigned != nil {
		s.publishAssigned(ctx, o, *out.Assigned, now)
	}
	return o, nil
}

// AssignDriver lets a driver claim a ready order that has no driver yet.
func (s *Service) AssignDriver(ctx context.Context, actor Actor, id types.ID) (*Order, error) {
	if actor.Role != types.RoleDriver {
		return nil, apperr.Forbidden("only drivers can claim orders").
			With("allowedRoles", []types.Role{types.RoleDriver})
	}
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.resolveDriver(ctx, &actor); err != nil {
		return nil, err
	}

	now := s.now()
	t, err := s.machine.Assign(o, actor, now)
	if err != nil {
		return nil, err
	}

	expected := o.StatusVersion
	out := t.Apply(o)
	if err := s.repo.Update(ctx, o, expected, nil, nil); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, apperr.Conflict("order was claimed or changed by someone else")
		}
		return nil, s.writeError(err, t.From)
	}
	o.StatusVersion = expected + 1

	s.log.Info("driver assigned",
		slog.String("action", "assign_driver"),
		slog.String("order_id", o.ID.String()),
		slog.String("driver_id", actor.ID.String()),
		slog.String("driver_earnings", out.Assigned.Earnings.StringFixed(types.MoneyPlaces)),
	)
	s.refreshCache(ctx, o)
	s.notify(out.Messages)
	s.publishAssigned(ctx, o, *out.Assigned, now)
	return o, nil
}

// Get returns the order if actor is a party to it.
func (s *Service) Get(ctx context.Context, actor Actor, id types.ID) (*Order, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.IsParty(actor) {
		return nil, apperr.Forbidden("not allowed to view order %s", id)
	}
	return o, nil
}

// Status serves the lightweight status view, from cache when possible.
func (s *Service) Status(ctx context.Context, actor Actor, id types.ID) (*StatusView, error) {
	if s.cache != nil {
		v, err := s.cache.Get(ctx, id)
		if err != nil {
			s.log.Warn("status cache read failed",
				slog.String("action", "order_status"),
				slog.String("order_id", id.String()),
				slog.Any("error", err),
			)
		}
		if v != nil {
			if !v.asOrder().IsParty(actor) {
				return nil, apperr.Forbidden("not allowed to view order %s", id)
			}
			return v, nil
		}
	}
	o, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	s.refreshCache(ctx, o)
	v := viewOf(o)
	return &v, nil
}

// ListAvailable is the driver job board: ready orders nobody has claimed.
func (s *Service) ListAvailable(ctx context.Context, actor Actor) ([]*Order, error) {
	if actor.Role != types.RoleDriver && actor.Role != types.RoleAdmin {
		return nil, apperr.Forbidden("only drivers can browse available orders").
			With("allowedRoles", []types.Role{types.RoleDriver, types.RoleAdmin})
	}
	orders, err := s.repo.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list available orders: %w", err)
	}
	return orders, nil
}

func (s *Service) load(ctx context.Context, id types.ID) (*Order, error) {
	o, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("order %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	return o, nil
}

// resolveDriver fills the approval flags of a driver actor from the user record.
func (s *Service) resolveDriver(ctx context.Context, actor *Actor) error {
	if actor.Role != types.RoleDriver {
		return nil
	}
	u, err := s.dir.GetUser(ctx, actor.ID)
	if errors.Is(err, directory.ErrNotFound) {
		return apperr.NotFound("driver %s not found", actor.ID)
	}
	if err != nil {
		return fmt.Errorf("load driver: %w", err)
	}
	if u.Role != types.RoleDriver {
		return apperr.Forbidden("user %s is not a driver", actor.ID)
	}
	actor.Approved = u.Approved
	actor.Available = u.Available
	return nil
}

func checkOwnership(o *Order, actor Actor) error {
	switch actor.Role {
	case types.RoleClient:
		if o.CustomerID != actor.ID {
			return apperr.Forbidden("order %s belongs to another customer", o.ID)
		}
	case types.RoleStoreOwner:
		if o.StoreOwnerID != actor.ID {
			return apperr.Forbidden("order %s belongs to another store", o.ID)
		}
	case types.RoleDriver:
		if o.DriverID != nil && *o.DriverID != actor.ID {
			return apperr.Forbidden("order %s is assigned to another driver", o.ID)
		}
	}
	return nil
}

func (s *Service) writeError(err error, from Status) error {
	switch {
	case errors.Is(err, ErrVersionConflict):
		return apperr.Conflict("order changed concurrently, reload and retry").With("expectedStatus", from)
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("order not found")
	}
	return fmt.Errorf("persist order: %w", err)
}

// notify hands messages to the outbox. Delivery problems never reach the caller.
func (s *Service) notify(msgs []notification.Message) {
	if s.notifier == nil || len(msgs) == 0 {
		return
	}
	if !s.notifier.Enqueue(msgs...) {
		s.log.Warn("some notifications were not queued", slog.String("action", "notify"), slog.Int("count", len(msgs)))
	}
}

func (s *Service) refreshCache(ctx context.Context, o *Order) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, viewOf(o)); err != nil {
		s.log.Warn("status cache write failed",
			slog.String("action", "cache_status"),
			slog.String("order_id", o.ID.String()),
			slog.Any("error", err),
		)
	}
}

func (s *Service) publish(ctx context.Context, eventType string, orderID types.ID, payload any, at time.Time) {
	e, err := events.NewEnvelope(eventType, orderID.String(), payload, at)
	if err != nil {
		s.log.Error("build domain event", slog.String("action", "publish_event"), slog.Any("error", err))
		return
	}
	s.events.Publish(ctx, e)
}

func (s *Service) publishAssigned(ctx context.Context, o *Order, a AssignEffect, at time.Time) {
	s.publish(ctx, events.TypeDriverAssigned, o.ID, events.DriverAssigned{
		OrderID:        o.ID.String(),
		DriverID:       a.DriverID.String(),
		DriverEarnings: a.Earnings.StringFixed(types.MoneyPlaces),
		Implicit:       a.Implicit,
	}, at)
}

func viewOf(o *Order) StatusView {
	updated := o.CreatedAt
	if n := len(o.History); n > 0 {
		updated = o.History[n-1].Timestamp
	}
	return StatusView{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		StatusVersion: o.StatusVersion,
		CustomerID:    o.CustomerID,
		StoreOwnerID:  o.StoreOwnerID,
		DriverID:      o.DriverID,
		UpdatedAt:     updated,
	}
}

func (v StatusView) asOrder() *Order {
	return &Order{ID: v.OrderID, Status: v.Status, CustomerID: v.CustomerID, StoreOwnerID: v.StoreOwnerID, DriverID: v.DriverID}
}
