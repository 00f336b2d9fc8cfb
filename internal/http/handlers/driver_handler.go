// README: Driver handlers for the job board, claiming orders and going on/off duty.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"foodline/internal/http/middleware"
	"foodline/internal/modules/directory"
	"foodline/internal/types"
)

type AvailabilityService interface {
	SetAvailability(ctx context.Context, driverID types.ID, role types.Role, available bool) (*directory.User, error)
}

type DriverHandler struct {
	order     OrderService
	directory AvailabilityService
	log       *slog.Logger
}

func NewDriverHandler(orderSvc OrderService, dir AvailabilityService, log *slog.Logger) *DriverHandler {
	return &DriverHandler{order: orderSvc, directory: dir, log: log}
}

func (h *DriverHandler) ListAvailable(c *gin.Context) {
	orders, err := h.order.ListAvailable(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": orders})
}

func (h *DriverHandler) Assign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.order.AssignDriver(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type availabilityReq struct {
	Available *bool `json:"available" binding:"required"`
}

func (h *DriverHandler) SetAvailability(c *gin.Context) {
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.directory.SetAvailability(c.Request.Context(), middleware.CallerUID(c), middleware.CallerRole(c), *req.Available)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"driverId": u.ID, "available": u.Available, "approved": u.Approved})
}
