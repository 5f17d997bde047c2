package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"coinpayments-webhooks/internal/handlers"
	"coinpayments-webhooks/internal/server"
)

// Handler builds the request handlers and the router that serves them.
func (app *App) Handler() http.Handler {
	h := handlers.New(
		app.Authenticator,
		handlers.Options{
			Secret:       []byte(app.Config.WebhookSecret),
			ClientID:     app.Config.ClientID,
			MaxBodyBytes: app.Config.MaxBodyBytesValue(),
			ReplayTTL:    app.Config.ReplayTTLValue(),
			Filter:       app.Filter,
		},
		app.Replay,
		app.Publisher,
		app.Storage,
		app.Clock,
		app.Logger,
	)

	router := mux.NewRouter()
	app.SetupRoutes(router, h)
	return router
}

// RunServer creates the HTTP server and starts listening.
func (app *App) RunServer() (*server.Server, error) {
	srv := server.New(app.Handler(), server.Config{
		Port:    app.Config.Port,
		TLSCert: app.Config.TLSCert,
		TLSKey:  app.Config.TLSKey,
	})
	if err := srv.Start(); err != nil {
		return nil, err
	}
	return srv, nil
}
