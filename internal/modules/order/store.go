// README: Order store backed by PostgreSQL; every write is one transaction guarded by status_version.
package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"foodline/internal/types"
)

// orderNumberLock serializes order number assignment across connections and instances.
const orderNumberLock int64 = 0x666f6f646c696e65

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const orderColumns = `
	o.id, o.order_number, o.customer_id, o.store_id, s.owner_id, o.driver_id,
	o.subtotal, o.delivery_fee, o.service_fee, o.commission, o.total,
	o.driver_earnings, o.platform_earnings, o.distance,
	o.status, o.status_version, o.delivery_address, o.payment_method, o.notes,
	o.created_at, o.accepted_at, o.ready_at, o.assigned_at, o.picked_up_at, o.delivered_at`

func (s *Store) Create(ctx context.Context, o *Order) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, orderNumberLock); err != nil {
		return fmt.Errorf("lock order number: %w", err)
	}
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(order_number), 0) + 1 FROM orders`).Scan(&o.OrderNumber); err != nil {
		return fmt.Errorf("next order number: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, order_number, customer_id, store_id, driver_id,
			subtotal, delivery_fee, service_fee, commission, total,
			driver_earnings, platform_earnings, distance,
			status, status_version, delivery_address, payment_method, notes, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16, $17, $18, $19
		)`,
		string(o.ID), o.OrderNumber, string(o.CustomerID), string(o.StoreID), toStringPtr(o.DriverID),
		o.Subtotal, o.DeliveryFee, o.ServiceFee, o.Commission, o.Total,
		nullDecimal(o.DriverEarnings), nullDecimal(o.PlatformEarnings), nullDecimal(o.Distance),
		string(o.Status), o.StatusVersion, o.DeliveryAddress, o.PaymentMethod, o.Notes, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items (order_id, line_no, product_id, name, price, quantity, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			string(o.ID), i+1, string(it.ProductID), it.Name, it.Price, it.Quantity, it.LineTotal,
		)
	}
	for _, h := range o.History {
		queueHistory(batch, o.ID, h)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order details: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		JOIN stores s ON s.id = o.store_id
		WHERE o.id = $1`, string(id),
	)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadDetails(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) Update(ctx context.Context, o *Order, expectedVersion int, entry *HistoryEntry, credit *DriverCredit) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $2,
			status_version = status_version + 1,
			driver_id = $3,
			driver_earnings = $4,
			platform_earnings = $5,
			accepted_at = $6,
			ready_at = $7,
			assigned_at = $8,
			picked_up_at = $9,
			delivered_at = $10
		WHERE id = $1 AND status_version = $11`,
		string(o.ID),
		string(o.Status),
		toStringPtr(o.DriverID),
		nullDecimal(o.DriverEarnings),
		nullDecimal(o.PlatformEarnings),
		o.AcceptedAt, o.ReadyAt, o.AssignedAt, o.PickedUpAt, o.DeliveredAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() != 1 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, string(o.ID)).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	if entry != nil {
		batch := &pgx.Batch{}
		queueHistory(batch, o.ID, *entry)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}

	if credit != nil {
		tag, err := tx.Exec(ctx, `
			UPDATE users
			SET total_deliveries = total_deliveries + $2,
				total_earnings = total_earnings + $3
			WHERE id = $1`,
			string(credit.DriverID), credit.Deliveries, credit.Earnings,
		)
		if err != nil {
			return fmt.Errorf("credit driver: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("credit driver %s: no such user", credit.DriverID)
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) ListAvailable(ctx context.Context) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		JOIN stores s ON s.id = o.store_id
		WHERE o.status = 'ready' AND o.driver_id IS NULL
		ORDER BY o.ready_at, o.order_number`)
	if err != nil {
		return nil, err
	}
	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range out {
		if err := s.loadDetails(ctx, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadDetails(ctx context.Context, o *Order) error {
	rows, err := s.db.Query(ctx, `
		SELECT product_id, name, price, quantity, line_total
		FROM order_items
		WHERE order_id = $1
		ORDER BY line_no`, string(o.ID))
	if err != nil {
		return err
	}
	o.Items = o.Items[:0]
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Price, &it.Quantity, &it.LineTotal); err != nil {
			rows.Close()
			return err
		}
		o.Items = append(o.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.Query(ctx, `
		SELECT status, note, updated_by, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY id`, string(o.ID))
	if err != nil {
		return err
	}
	defer rows.Close()
	o.History = o.History[:0]
	for rows.Next() {
		var h HistoryEntry
		var by sql.NullString
		if err := rows.Scan(&h.Status, &h.Note, &by, &h.Timestamp); err != nil {
			return err
		}
		if by.Valid {
			h.UpdatedBy = types.IDPtr(types.ID(by.String))
		}
		o.History = append(o.History, h)
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var driverID sql.NullString
	var driverEarnings, platformEarnings, distance decimal.NullDecimal
	var acceptedAt, readyAt, assignedAt, pickedUpAt, deliveredAt sql.NullTime

	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.StoreID, &o.StoreOwnerID, &driverID,
		&o.Subtotal, &o.DeliveryFee, &o.ServiceFee, &o.Commission, &o.Total,
		&driverEarnings, &platformEarnings, &distance,
		&o.Status, &o.StatusVersion, &o.DeliveryAddress, &o.PaymentMethod, &o.Notes,
		&o.CreatedAt, &acceptedAt, &readyAt, &assignedAt, &pickedUpAt, &deliveredAt,
	)
	if err != nil {
		return nil, err
	}
	if driverID.Valid {
		o.DriverID = types.IDPtr(types.ID(driverID.String))
	}
	o.DriverEarnings = toDecimalPtr(driverEarnings)
	o.PlatformEarnings = toDecimalPtr(platformEarnings)
	o.Distance = toDecimalPtr(distance)
	o.AcceptedAt = toTimePtr(acceptedAt)
	o.ReadyAt = toTimePtr(readyAt)
	o.AssignedAt = toTimePtr(assignedAt)
	o.PickedUpAt = toTimePtr(pickedUpAt)
	o.DeliveredAt = toTimePtr(deliveredAt)
	return &o, nil
}

func queueHistory(b *pgx.Batch, orderID types.ID, h HistoryEntry) {
	b.Queue(`
		INSERT INTO order_status_history (order_id, status, note, updated_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(orderID), string(h.Status), h.Note, toStringPtr(h.UpdatedBy), h.Timestamp,
	)
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func nullDecimal(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*v)
}

func toDecimalPtr(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
