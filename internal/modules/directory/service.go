// README: Directory service exposes the few writes this system owns on user records.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"foodline/internal/apperr"
	"foodline/internal/types"
)

type Repository interface {
	GetUser(ctx context.Context, id types.ID) (*User, error)
	SetAvailability(ctx context.Context, driverID types.ID, available bool) error
}

type Service struct {
	store Repository
	log   *slog.Logger
}

func NewService(store Repository, log *slog.Logger) *Service {
	return &Service{store: store, log: log}
}

// SetAvailability lets a driver go on or off duty. Approval is admin-gated and
// not required here; an unapproved driver simply cannot claim orders.
func (s *Service) SetAvailability(ctx context.Context, driverID types.ID, role types.Role, available bool) (*User, error) {
	if role != types.RoleDriver {
		return nil, apperr.Forbidden("only drivers can change availability").
			With("allowedRoles", []types.Role{types.RoleDriver})
	}
	if err := s.store.SetAvailability(ctx, driverID, available); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("driver %s not found", driverID)
		}
		return nil, fmt.Errorf("set availability: %w", err)
	}
	u, err := s.store.GetUser(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("reload driver: %w", err)
	}
	s.log.Info("driver availability changed",
		slog.String("action", "set_availability"),
		slog.String("driver_id", driverID.String()),
		slog.Bool("available", available),
	)
	return u, nil
}
