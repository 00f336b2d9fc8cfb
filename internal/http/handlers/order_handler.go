// README: Order handlers for create/get/status/update.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"foodline/internal/modules/order"
	"foodline/internal/types"
)

// OrderService is the slice of order.Service the HTTP layer drives.
type OrderService interface {
	Create(ctx context.Context, actor order.Actor, cmd order.CreateCommand) (*order.Order, error)
	Get(ctx context.Context, actor order.Actor, id types.ID) (*order.Order, error)
	Status(ctx context.Context, actor order.Actor, id types.ID) (*order.StatusView, error)
	UpdateStatus(ctx context.Context, actor order.Actor, id types.ID, to order.Status, note string) (*order.Order, error)
	AssignDriver(ctx context.Context, actor order.Actor, id types.ID) (*order.Order, error)
	ListAvailable(ctx context.Context, actor order.Actor) ([]*order.Order, error)
}

type OrderHandler struct {
	order OrderService
	log   *slog.Logger
}

func NewOrderHandler(svc OrderService, log *slog.Logger) *OrderHandler {
	return &OrderHandler{order: svc, log: log}
}

type cartItemReq struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type createOrderReq struct {
	StoreID         string        `json:"storeId" binding:"required"`
	Items           []cartItemReq `json:"items" binding:"required"`
	DeliveryAddress string        `json:"deliveryAddress" binding:"required"`
	PaymentMethod   string        `json:"paymentMethod"`
	Notes           string        `json:"notes"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	items := make([]order.CartItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.CartItem{ProductID: types.ID(it.ProductID), Quantity: it.Quantity})
	}
	o, err := h.order.Create(c.Request.Context(), actorFrom(c), order.CreateCommand{
		StoreID:         types.ID(req.StoreID),
		Items:           items,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	})
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.order.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) Status(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := h.order.Status(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, v)
}

type updateStatusReq struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	o, err := h.order.UpdateStatus(c.Request.Context(), actorFrom(c), id, order.Status(req.Status), req.Note)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}
