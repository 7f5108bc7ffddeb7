package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Service RecommendationService
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
	Logger  zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/doctors/{doctorCode}", func(r chi.Router) {
		r.Get("/calendar", timelineHandler(cfg.Service))
		r.Post("/replacements", recommendHandler(cfg.Service))
		r.Post("/replacements/apply", applyHandler(cfg.Service))
		r.Post("/suggestions", proposeHandler(cfg.Service))
		r.Get("/suggestions", historyHandler(cfg.Service))
	})

	return r
}
