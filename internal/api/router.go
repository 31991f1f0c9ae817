package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/barberflow/booking-engine/internal/booking"
)

type RouterConfig struct {
	Engine  *booking.Engine
	Logger  zerolog.Logger
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/providers", listProvidersHandler(cfg.Engine))
	r.Get("/providers/{id}/availability", getAvailabilityHandler(cfg.Engine))
	r.Get("/providers/{id}/slot-check", slotCheckHandler(cfg.Engine))

	r.Get("/services", listServicesHandler(cfg.Engine))

	r.Post("/bookings", createBookingHandler(cfg.Engine))
	r.Get("/bookings", listBookingsHandler(cfg.Engine))
	r.Get("/bookings/{id}", getBookingHandler(cfg.Engine))
	r.Post("/bookings/{id}/cancel", cancelBookingHandler(cfg.Engine))

	return r
}
