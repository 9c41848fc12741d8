package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/welldanyogia/contact-mailer/internal/contact"
	"github.com/welldanyogia/contact-mailer/internal/health"
	"github.com/welldanyogia/contact-mailer/internal/metrics"
	"github.com/welldanyogia/contact-mailer/internal/middleware"
	"github.com/welldanyogia/contact-mailer/internal/origin"
)

// routerDeps holds everything the HTTP layer is built from.
type routerDeps struct {
	registry       *origin.Registry
	handler        *contact.Handler
	captchaGuard   *middleware.Guard
	sendGuard      *middleware.Guard
	health         *health.Handler
	logger         *slog.Logger
	trustProxyHops int
	requestTimeout time.Duration
}

// requestTimeout bounds a whole request and must outlast the relay timeout.
func requestTimeout(relayTimeout time.Duration) time.Duration {
	return relayTimeout + 10*time.Second
}

func newRouter(d routerDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.ClientIP(d.trustProxyHops))
	r.Use(middleware.StructuredLogger(d.logger))
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(chimw.Timeout(d.requestTimeout))

	// CORS: only registered origins are allowed
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, requestOrigin string) bool {
			return d.registry.Has(requestOrigin)
		},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))

	// Health and metrics
	r.Get("/health/live", d.health.Liveness)
	r.Get("/health/ready", d.health.Readiness)
	r.Handle("/metrics", metrics.Handler())

	contact.RegisterRoutes(r, d.handler, d.captchaGuard.Middleware, d.sendGuard.Middleware)

	return r
}
