package app

import (
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "coinpayments-webhooks/docs"
	"coinpayments-webhooks/internal/handlers"
	"coinpayments-webhooks/internal/middleware"
	"coinpayments-webhooks/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes for the application. limiter and
// authMiddleware may be nil, which disables rate limiting and the operator
// API respectively.
func (app *App) SetupRoutes(router *mux.Router, h *handlers.Handlers) {
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(app.Logger, app.Clock))

	// Webhook endpoint (authenticated by signature, rate limited per IP)
	var webhook http.Handler = http.HandlerFunc(h.HandleWebhook)
	if app.RateLimiter != nil {
		keyFunc := app.ClientKey
		if keyFunc == nil {
			keyFunc = ratelimit.IPBasedKey
		}
		webhook = app.RateLimiter.HTTPMiddleware(keyFunc)(webhook)
	}
	router.Handle(app.Config.WebhookPath, webhook).Methods("POST")

	// Health check (no auth required)
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	// Swagger UI (no auth required)
	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	if app.Auth == nil {
		return
	}

	// Operator API (protected)
	api := router.PathPrefix("/api").Subrouter()
	api.Use(app.Auth.RequireJWT)
	api.HandleFunc("/notifications", h.ListNotifications).Methods("GET")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
}
