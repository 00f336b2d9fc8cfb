// README: WebSocket endpoint streaming notifications to the connected user.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"foodline/internal/http/middleware"
	"foodline/internal/modules/notification"
)

type NotificationHandler struct {
	registry *notification.Registry
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewNotificationHandler accepts upgrades from allowedOrigins; "*" allows any origin.
func NewNotificationHandler(registry *notification.Registry, allowedOrigins []string, log *slog.Logger) *NotificationHandler {
	h := &NotificationHandler{registry: registry, log: log}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

func (h *NotificationHandler) Connect(c *gin.Context) {
	uid := middleware.CallerUID(c)
	if uid == "" {
		writeError(c, http.StatusUnauthorized, "unauthenticated")
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn("websocket upgrade failed",
			slog.String("action", "ws_upgrade"),
			slog.String("user_id", uid.String()),
			slog.Any("error", err),
		)
		return
	}
	notification.Serve(h.registry, uid, conn, h.log)
}
