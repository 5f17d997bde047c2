package app

import (
	"context"

	"coinpayments-webhooks/internal/common/logging"
	"coinpayments-webhooks/internal/common/utils"
	"coinpayments-webhooks/internal/redis"
	"coinpayments-webhooks/internal/replay"
)

func (app *App) initializeRedis(ctx context.Context) error {
	if !app.Config.UsesRedis() {
		app.Logger.Info("Redis: Not required by configuration")
		return nil
	}

	redisConfig := &redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDBValue(),
		PoolSize: app.Config.RedisPoolSizeValue(),
	}

	// Redis often starts alongside the receiver; give it a few attempts.
	var client *redis.Client
	err := utils.RetryWithBackoff(ctx, utils.DefaultRetryConfig(), func() error {
		c, err := redis.NewClient(redisConfig)
		if err != nil {
			app.Logger.Warn("Redis not reachable yet", logging.String("error", err.Error()))
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return err
	}

	app.RedisClient = client
	app.Logger.Info("Redis: Connected", logging.String("address", app.Config.RedisAddress))
	return nil
}

func (app *App) initializeReplay() {
	if app.Config.ReplayBackend == "redis" {
		app.Replay = replay.NewRedisGuard(app.RedisClient)
	} else {
		app.Replay = replay.NewMemoryGuard(app.Clock)
	}
	app.Logger.Info("Replay protection enabled",
		logging.String("backend", app.Replay.Name()),
		logging.Duration("ttl", app.Config.ReplayTTLValue()),
	)
}
