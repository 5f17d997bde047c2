// Package app wires the receiver's components from configuration and runs
// the HTTP server.
package app

import (
	"context"
	"fmt"
	"net/http"

	"coinpayments-webhooks/internal/auth"
	"coinpayments-webhooks/internal/brokers"
	"coinpayments-webhooks/internal/clock"
	"coinpayments-webhooks/internal/common/logging"
	"coinpayments-webhooks/internal/config"
	"coinpayments-webhooks/internal/filter"
	"coinpayments-webhooks/internal/ratelimit"
	"coinpayments-webhooks/internal/redis"
	"coinpayments-webhooks/internal/replay"
	"coinpayments-webhooks/internal/retention"
	"coinpayments-webhooks/internal/storage"
	"coinpayments-webhooks/pkg/webhook"
)

// App holds all the application dependencies
type App struct {
	Config        *config.Config
	Clock         clock.Clock
	Logger        logging.Logger
	Authenticator *webhook.Authenticator
	RedisClient   *redis.Client
	Replay        replay.Guard
	Publisher     brokers.Publisher
	Filter        *filter.Filter
	Storage       storage.Store
	Retention     *retention.Job
	Auth          *auth.Auth
	RateLimiter   *ratelimit.Limiter
	ClientKey     func(*http.Request) string
}

// New creates a new application instance with all dependencies. cfg must
// already be validated. On error every component created so far is closed.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Clock:  clock.SystemClock{},
		Logger: logger.WithFields(logging.String("component", "app")),
	}

	if err := app.initialize(ctx); err != nil {
		app.Cleanup()
		return nil, err
	}
	return app, nil
}

func (app *App) initialize(ctx context.Context) error {
	authenticator, err := webhook.NewAuthenticator(app.Config.WebhookConfig())
	if err != nil {
		return fmt.Errorf("invalid webhook settings: %w", err)
	}
	app.Authenticator = authenticator

	wc := authenticator.Config()
	app.Logger.Info("Webhook verification configured",
		logging.String("algorithm", string(wc.Algorithm)),
		logging.String("encoding", string(wc.Encoding)),
		logging.String("signed_fields", string(wc.SignedFields)),
		logging.String("timestamp_format", string(wc.TimestampFormat)),
		logging.Int64("tolerance_seconds", wc.Tolerance),
	)

	// Initialize components in order of dependency
	if err := app.initializeStorage(ctx); err != nil {
		return err
	}

	if err := app.initializeRedis(ctx); err != nil {
		return err
	}

	app.initializeReplay()

	if err := app.initializePublisher(ctx); err != nil {
		return err
	}

	flt, err := filter.Compile(app.Config.PublishFilter)
	if err != nil {
		return err
	}
	if flt != nil {
		app.Logger.Info("Publish filter enabled", logging.String("filter", flt.String()))
	}
	app.Filter = flt

	if err := app.initializeRetention(); err != nil {
		return err
	}

	if err := app.initializeAuth(); err != nil {
		return err
	}

	return app.initializeRateLimiter()
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Retention != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := app.Retention.Stop(ctx); err != nil {
			app.Logger.Warn("Retention job did not stop in time", logging.String("error", err.Error()))
		}
		cancel()
	}
	if app.Publisher != nil {
		if err := app.Publisher.Close(); err != nil {
			app.Logger.Warn("Error closing publisher", logging.String("error", err.Error()))
		}
	}
	if app.Storage != nil {
		if err := app.Storage.Close(); err != nil {
			app.Logger.Warn("Error closing storage", logging.String("error", err.Error()))
		}
	}
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}
