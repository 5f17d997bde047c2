package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"coinpayments-webhooks/internal/common/logging"
	"coinpayments-webhooks/internal/config"
	"coinpayments-webhooks/internal/handlers"
)

const (
	startupTimeout  = time.Minute
	shutdownTimeout = 30 * time.Second
)

// Run is the main entry point for the application. args excludes the
// program name.
func Run(args []string) error {
	// Load environment variables
	_ = godotenv.Load()

	var (
		issueToken string
		tokenScope string
		tokenTTL   time.Duration
		purgeNow   bool
	)
	flags := flag.NewFlagSet("coinpayments-webhookd", flag.ContinueOnError)
	flags.StringVar(&issueToken, "issue-token", "", "Print an operator API token for this subject and exit")
	flags.StringVar(&tokenScope, "token-scope", "read", "Scope written into issued tokens")
	flags.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "Lifetime of issued tokens")
	flags.BoolVar(&purgeNow, "purge-now", false, "Run one retention pass and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// Load and validate configuration
	cfg := config.Load()

	logger, err := logging.NewZapLogger(logging.LogConfig{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: logging.ParseFormat(cfg.LogFormat),
		Output: os.Stderr,
		Name:   "webhookd",
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", err)
		return err
	}

	logger.Info("Starting CoinPayments webhook receiver",
		logging.Int("cpus", runtime.NumCPU()),
		logging.String("version", handlers.Version),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	// Initialize application
	app, err := New(startCtx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	if issueToken != "" {
		return app.issueToken(issueToken, tokenScope, tokenTTL)
	}

	if purgeNow {
		removed, err := app.Retention.RunOnce(startCtx)
		if err != nil {
			logger.Error("Retention pass failed", err)
			return err
		}
		logger.Info("Retention pass complete", logging.Int64("removed", removed))
		return nil
	}

	if err := app.Retention.Start(); err != nil {
		logger.Error("Failed to start retention job", err)
		return err
	}

	// Start server
	srv, err := app.RunServer()
	if err != nil {
		logger.Error("Server failed to start", err)
		return err
	}
	logger.Info("Listening",
		logging.String("port", cfg.Port),
		logging.String("webhook_path", cfg.WebhookPath),
		logging.Bool("tls", cfg.TLSCert != ""),
	)

	// Wait for interrupt signal or a serve failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	var serveErr error
	select {
	case sig := <-quit:
		logger.Info("Shutting down server...", logging.String("signal", sig.String()))
	case serveErr = <-srv.Errors():
		logger.Error("Server stopped unexpectedly", serveErr)
	}

	// Graceful shutdown
	ctx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", err)
		return err
	}

	logger.Info("Server exited")
	return serveErr
}

// issueToken prints a signed operator token to stdout.
func (app *App) issueToken(subject, scope string, ttl time.Duration) error {
	if app.Auth == nil {
		return fmt.Errorf("API_JWT_SECRET must be set to issue tokens")
	}
	token, err := app.Auth.GenerateJWT(subject, scope, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
