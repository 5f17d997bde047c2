package app

import (
	"context"
	"fmt"

	"coinpayments-webhooks/internal/common/logging"
	"coinpayments-webhooks/internal/locks"
	"coinpayments-webhooks/internal/retention"
	"coinpayments-webhooks/internal/storage/postgres"
	"coinpayments-webhooks/internal/storage/sqlite"
)

func (app *App) initializeStorage(ctx context.Context) error {
	if app.Config.UsesPostgres() {
		app.Logger.Info("Database: PostgreSQL",
			logging.String("host", app.Config.PostgresHost),
			logging.String("port", app.Config.PostgresPort),
			logging.String("database", app.Config.PostgresDB),
		)
		store, err := postgres.New(ctx, postgres.Config{DSN: app.Config.PostgresDSN()})
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		app.Storage = store
		return nil
	}

	app.Logger.Info("Database: SQLite", logging.String("path", app.Config.DatabasePath))
	store, err := sqlite.New(sqlite.Config{DatabasePath: app.Config.DatabasePath})
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.Storage = store
	return nil
}

func (app *App) initializeRetention() error {
	var locker locks.Locker
	if app.Config.RetentionLockEnabled {
		manager, err := locks.NewRedsyncManager(app.RedisClient)
		if err != nil {
			return err
		}
		locker = manager
	}

	job, err := retention.New(retention.Config{
		Schedule: app.Config.RetentionSchedule,
		Period:   app.Config.RetentionPeriodValue(),
	}, app.Storage, app.Clock, locker, app.Logger)
	if err != nil {
		return err
	}

	app.Retention = job
	return nil
}
