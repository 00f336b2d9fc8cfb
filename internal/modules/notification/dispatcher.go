// README: Dispatcher pushes notifications to a user, a role, or an explicit set of users.
package notification

import (
	"context"
	"encoding/json"
	"log/slog"

	"foodline/internal/types"
)

type RoleDirectory interface {
	ListUserIDsByRole(ctx context.Context, role types.Role) ([]types.ID, error)
}

type Dispatcher struct {
	registry *Registry
	dir      RoleDirectory
	log      *slog.Logger
}

func NewDispatcher(registry *Registry, dir RoleDirectory, log *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, dir: dir, log: log}
}

// NotifyUser reports whether the notification was handed to a live session.
// Offline users are skipped silently; nothing is queued for later.
func (d *Dispatcher) NotifyUser(userID types.ID, n Notification) bool {
	c, ok := d.registry.Lookup(userID)
	if !ok {
		return false
	}
	data, err := json.Marshal(n)
	if err != nil {
		d.log.Error("encode notification", slog.String("action", "notify_user"), slog.Any("error", err))
		return false
	}
	if !c.Send(data) {
		d.log.Warn("session send buffer full, notification dropped",
			slog.String("action", "notify_user"),
			slog.String("user_id", userID.String()),
		)
		return false
	}
	return true
}

// NotifyMultiple delivers to each user independently and returns how many got it.
func (d *Dispatcher) NotifyMultiple(userIDs []types.ID, n Notification) int {
	delivered := 0
	for _, id := range userIDs {
		if d.NotifyUser(id, n) {
			delivered++
		}
	}
	return delivered
}

// NotifyRole resolves every user holding role and fans out. A lookup failure
// is logged and counts as zero deliveries.
func (d *Dispatcher) NotifyRole(ctx context.Context, role types.Role, n Notification) int {
	ids, err := d.dir.ListUserIDsByRole(ctx, role)
	if err != nil {
		d.log.Error("resolve role members",
			slog.String("action", "notify_role"),
			slog.String("role", string(role)),
			slog.Any("error", err),
		)
		return 0
	}
	return d.NotifyMultiple(ids, n)
}

// Deliver routes an outbox message to its target.
func (d *Dispatcher) Deliver(ctx context.Context, m Message) {
	var delivered, targeted int
	if m.Role != "" {
		delivered = d.NotifyRole(ctx, m.Role, m.Notification)
	} else {
		targeted = len(m.UserIDs)
		delivered = d.NotifyMultiple(m.UserIDs, m.Notification)
	}
	d.log.Debug("notification dispatched",
		slog.String("action", "deliver"),
		slog.String("type", string(m.Notification.Type)),
		slog.String("role", string(m.Role)),
		slog.Int("targeted", targeted),
		slog.Int("delivered", delivered),
	)
}
