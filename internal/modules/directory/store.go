// README: Directory store backed by PostgreSQL (users, stores, products).
package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"foodline/internal/types"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetUser(ctx context.Context, id types.ID) (*User, error) {
	var u User
	err := s.db.QueryRow(ctx, `
		SELECT id, name, role, approved, available, total_deliveries, total_earnings
		FROM users
		WHERE id = $1`, string(id),
	).Scan(&u.ID, &u.Name, &u.Role, &u.Approved, &u.Available, &u.TotalDeliveries, &u.TotalEarnings)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUserIDsByRole(ctx context.Context, role types.Role) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM users WHERE role = $1 ORDER BY id`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}

func (s *Store) GetShop(ctx context.Context, id types.ID) (*Shop, error) {
	var st Shop
	err := s.db.QueryRow(ctx, `
		SELECT id, owner_id, name, is_open, min_order, delivery_fee
		FROM stores
		WHERE id = $1`, string(id),
	).Scan(&st.ID, &st.OwnerID, &st.Name, &st.IsOpen, &st.MinOrder, &st.DeliveryFee)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) GetProduct(ctx context.Context, id types.ID) (*Product, error) {
	var p Product
	err := s.db.QueryRow(ctx, `
		SELECT id, store_id, name, price, available
		FROM products
		WHERE id = $1`, string(id),
	).Scan(&p.ID, &p.StoreID, &p.Name, &p.Price, &p.Available)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetAvailability flips a driver's available flag. Non-drivers are not touched.
func (s *Store) SetAvailability(ctx context.Context, driverID types.ID, available bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET available = $2
		WHERE id = $1 AND role = 'driver'`, string(driverID), available,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
