// Package retention purges old notification rows on a cron schedule.
//
// When several receivers share one database, give the job a locks.Locker so
// only one replica purges per tick. Without a locker every replica purges,
// which is harmless but wasteful.
package retention

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"coinpayments-webhooks/internal/clock"
	"coinpayments-webhooks/internal/common/errors"
	"coinpayments-webhooks/internal/common/logging"
	"coinpayments-webhooks/internal/locks"
)

const (
	lockKey    = "retention"
	lockExpiry = 5 * time.Minute
)

// Purger is the part of storage.Store the job needs.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Config struct {
	// Schedule is a standard five-field cron expression or a descriptor
	// such as "@daily".
	Schedule string
	// Period is how long rows are kept.
	Period time.Duration
	// Timeout bounds one purge run. Defaults to one minute.
	Timeout time.Duration
}

type Job struct {
	config Config
	store  Purger
	clock  clock.Clock
	locker locks.Locker
	logger logging.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// New validates the schedule; it does not start anything. locker may be nil.
func New(config Config, store Purger, clk clock.Clock, locker locks.Locker, logger logging.Logger) (*Job, error) {
	if store == nil {
		return nil, errors.ConfigError("retention store is required")
	}
	if config.Period <= 0 {
		return nil, errors.ConfigError("retention period must be positive")
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid retention schedule %q: %v", config.Schedule, err))
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Minute
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Job{
		config: config,
		store:  store,
		clock:  clk,
		locker: locker,
		logger: logger.WithFields(logging.String("component", "retention")),
	}, nil
}

// RunOnce purges rows older than the period. If another replica holds the
// lock it returns 0 without purging.
func (j *Job) RunOnce(ctx context.Context) (int64, error) {
	if j.locker != nil {
		lock, err := j.locker.TryAcquire(ctx, lockKey, lockExpiry)
		if err != nil {
			if stderrors.Is(err, locks.ErrNotAcquired) {
				j.logger.Debug("Retention lock held elsewhere, skipping run")
				return 0, nil
			}
			return 0, fmt.Errorf("retention lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				j.logger.Warn("Failed to release retention lock", logging.String("error", err.Error()))
			}
		}()
	}

	cutoff := j.clock.Now().Add(-j.config.Period)
	purged, err := j.store.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention purge: %w", err)
	}

	j.logger.Info("Retention run complete",
		logging.Int64("purged", purged),
		logging.String("cutoff", cutoff.UTC().Format(time.RFC3339)),
	)
	return purged, nil
}

// Start schedules RunOnce. Overlapping ticks are skipped rather than queued.
func (j *Job) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cron != nil {
		return errors.ConfigError("retention job already started")
	}

	cl := cronLogger{j.logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	_, err := c.AddFunc(j.config.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.config.Timeout)
		defer cancel()
		if _, err := j.RunOnce(ctx); err != nil {
			j.logger.Error("Retention run failed", err)
		}
	})
	if err != nil {
		return errors.ConfigError(fmt.Sprintf("invalid retention schedule %q: %v", j.config.Schedule, err))
	}

	c.Start()
	j.cron = c
	j.logger.Info("Retention job scheduled",
		logging.String("schedule", j.config.Schedule),
		logging.Duration("period", j.config.Period),
	)
	return nil
}

// Stop halts the scheduler and waits for a running purge, bounded by ctx.
func (j *Job) Stop(ctx context.Context) error {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts logging.Logger to cron.Logger. cron's Info chatter goes
// to Debug.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, err, kvFields(keysAndValues)...)
}

func kvFields(keysAndValues []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields = append(fields, logging.Any(key, keysAndValues[i+1]))
	}
	return fields
}
