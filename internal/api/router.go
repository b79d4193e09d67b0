/**
 * @description
 * This file sets up the HTTP router for the wallet-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication and rate limiting.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pouchpay/wallet-service/internal/app"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WalletRoutes creates and returns the router for the wallet service.
func WalletRoutes(h *WalletHandlers, guard *app.Guard, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(MetricsMiddleware)

	// Every route, public or authenticated, counts against the per-IP window.
	r.Use(RateLimitMiddleware(guard))

	r.Get("/health", h.HealthHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/limit/status", h.LimitStatusHandler)

	r.Post("/auth/register", h.RegisterHandler)
	r.Post("/auth/login", h.LoginHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Get("/wallet/balance", h.BalanceHandler)
		r.Get("/wallet/accounts/{id}", h.VerifyAccountHandler)
		r.Post("/wallet/transfers", h.TransferHandler)
		r.Get("/wallet/ledger", h.LedgerHandler)

		r.Post("/requests", h.CreateRequestHandler)
		r.Get("/requests/sent", h.ListSentRequestsHandler)
		r.Get("/requests/received", h.ListReceivedRequestsHandler)
		r.Post("/requests/{id}/accept", h.AcceptRequestHandler)
		r.Post("/requests/{id}/reject", h.RejectRequestHandler)

		r.Post("/funding/deposits", h.InitiateDepositHandler)
		r.Post("/funding/withdrawals", h.InitiateWithdrawalHandler)
		r.Post("/funding/codes", h.RequestCodeHandler)
		r.Post("/funding/deposits/verify", h.VerifyDepositHandler)
		r.Post("/funding/withdrawals/verify", h.VerifyWithdrawalHandler)

		r.Post("/account/delete-request", h.DeleteRequestHandler)
		r.Get("/admin/ledger", h.AdminLedgerHandler)
	})

	return r
}
