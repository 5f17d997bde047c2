package app

import (
	"coinpayments-webhooks/internal/common/logging"
	"coinpayments-webhooks/internal/ratelimit"
)

// initializeRateLimiter builds the per-IP limiter placed in front of the
// webhook route. Forwarding headers count only from TRUSTED_PROXIES. It stays nil when RATE_LIMIT_ENABLED is false.
func (app *App) initializeRateLimiter() error {
	if !app.Config.RateLimitEnabled {
		return nil
	}

	cfg := ratelimit.DefaultConfig()
	cfg.RequestsPerSecond = app.Config.RateLimitRPSValue()
	cfg.BurstSize = app.Config.RateLimitBurstValue()

	limiter, err := ratelimit.NewLimiter(cfg, app.Clock)
	if err != nil {
		return err
	}

	trusted, err := ratelimit.ParseTrustedProxies(app.Config.TrustedProxies)
	if err != nil {
		return err
	}

	app.RateLimiter = limiter
	app.ClientKey = ratelimit.ProxyAwareKey(trusted)
	app.Logger.Info("Rate limiting enabled",
		logging.Any("rps", cfg.RequestsPerSecond),
		logging.Int("burst", cfg.BurstSize),
		logging.Int("trusted_proxies", len(trusted)),
	)
	return nil
}
