// Package handler wires the HTTP surface: routing, auth middleware, and
// translation between domain errors and status codes.
package handler

import (
	"net/http"

	"github.com/vaibhav071104/vaultguard/internal/infra/observability"
	"github.com/vaibhav071104/vaultguard/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(
	engine *service.LedgerEngine,
	authSvc *service.AuthService,
	reporting *service.ReportingService,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// Public
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authRegisterHandler(authSvc, logger))
			r.Post("/login", authLoginHandler(authSvc, logger))
		})

		// Wallet (authenticated)
		r.Route("/wallet", func(r chi.Router) {
			r.Use(JWTAuthMiddleware(authSvc, logger))
			r.Post("/deposit", depositHandler(engine, logger))
			r.Post("/withdraw", withdrawHandler(engine, logger))
			r.Post("/transfer", transferHandler(engine, logger))
			r.Get("/balance", balanceHandler(engine, logger))
			r.Get("/history", historyHandler(engine, logger))
		})

		// Admin (authenticated + admin claim)
		r.Route("/admin", func(r chi.Router) {
			r.Use(JWTAuthMiddleware(authSvc, logger))
			r.Use(AdminOnlyMiddleware(logger))
			r.Get("/flagged", flaggedHandler(reporting, logger))
			r.Get("/total-balance", totalBalanceHandler(reporting, logger))
			r.Get("/top-wallets", topWalletsHandler(reporting, logger))
			r.Get("/stats", statsHandler(reporting, logger))
			r.Delete("/users/{userId}", deleteUserHandler(engine, logger))
			r.Delete("/transactions/{txnId}", deleteTransactionHandler(engine, logger))
		})
	})

	return r
}

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
