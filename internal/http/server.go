// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"foodline/internal/http/handlers"
	"foodline/internal/http/middleware"
	"foodline/internal/infra"
	"foodline/internal/modules/notification"
)

type ServerDeps struct {
	Order        handlers.OrderService
	Availability handlers.AvailabilityService
	Registry     *notification.Registry
	Verifier     infra.TokenVerifier
	Log          *slog.Logger

	CORSOrigins    []string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

type Server struct {
	deps    ServerDeps
	limiter *middleware.RateLimiter
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		deps:    deps,
		limiter: middleware.NewRateLimiter(deps.RateLimitRPS, deps.RateLimitBurst),
	}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logging(s.deps.Log), middleware.Recovery(s.deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api")
	api.Use(middleware.Auth(s.deps.Verifier), s.limiter.Limit())

	// Long-lived sockets stay outside the request timeout.
	notifications := handlers.NewNotificationHandler(s.deps.Registry, s.deps.CORSOrigins, s.deps.Log)
	api.GET("/notifications/ws", notifications.Connect)

	timed := api.Group("")
	if s.deps.RequestTimeout > 0 {
		timed.Use(middleware.Timeout(s.deps.RequestTimeout))
	}

	orders := handlers.NewOrderHandler(s.deps.Order, s.deps.Log)
	timed.POST("/orders", orders.Create)
	timed.GET("/orders/:id", orders.Get)
	timed.GET("/orders/:id/status", orders.Status)
	timed.PATCH("/orders/:id/status", orders.UpdateStatus)

	drivers := handlers.NewDriverHandler(s.deps.Order, s.deps.Availability, s.deps.Log)
	timed.GET("/drivers/orders", drivers.ListAvailable)
	timed.POST("/drivers/orders/:id/assign", drivers.Assign)
	timed.PUT("/drivers/me/availability", drivers.SetAvailability)

	return cors.New(cors.Options{
		AllowedOrigins:   s.deps.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.HeaderRequestID},
		ExposedHeaders:   []string{middleware.HeaderRequestID},
		AllowCredentials: !allowsAny(s.deps.CORSOrigins),
	}).Handler(r)
}

func allowsAny(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
