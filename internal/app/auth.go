package app

import (
	"coinpayments-webhooks/internal/auth"
)

// initializeAuth enables the operator API only when API_JWT_SECRET is set.
func (app *App) initializeAuth() error {
	if app.Config.APIJWTSecret == "" {
		app.Logger.Info("Operator API disabled (no API_JWT_SECRET provided)")
		return nil
	}

	authInstance, err := auth.New(app.Config.APIJWTSecret, app.Clock)
	if err != nil {
		return err
	}
	app.Auth = authInstance
	app.Logger.Info("Operator API enabled")
	return nil
}
