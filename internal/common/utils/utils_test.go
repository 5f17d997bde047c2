package utils

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		hasError bool
	}{
		{"seconds", "30s", 30 * time.Second, false},
		{"hours", "24h", 24 * time.Hour, false},
		{"compound", "1h30m", time.Hour + 30*time.Minute, false},
		{"single day", "1d", 24 * time.Hour, false},
		{"retention default", "30d", 30 * 24 * time.Hour, false},
		{"zero days", "0d", 0, false},
		{"single week", "1w", 7 * 24 * time.Hour, false},
		{"multiple weeks", "4w", 4 * 7 * 24 * time.Hour, false},
		{"negative day", "-1d", -24 * time.Hour, false},
		{"surrounding space", " 2d ", 48 * time.Hour, false},

		{"invalid format", "invalid", 0, true},
		{"empty string", "", 0, true},
		{"missing unit", "123", 0, true},
		{"fractional day", "1.5d", 0, true},
		{"trailing garbage", "1dx", 0, true},
		{"overflow", "9999999999d", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDuration(tt.input)
			if tt.hasError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid duration")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "30s", FormatDuration(30*time.Second))
	assert.Equal(t, "90m", FormatDuration(90*time.Minute))
	assert.Equal(t, "2.5h", FormatDuration(150*time.Minute))
	assert.Equal(t, "30.0d", FormatDuration(30*24*time.Hour))
}

func TestRetryWithBackoff(t *testing.T) {
	fast := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), fast, func() error {
			calls++
			if calls < 3 {
				return errors.New("not yet")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausted", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), fast, func() error {
			calls++
			return errors.New("down")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries exceeded")
		assert.Equal(t, 3, calls)
	})

	t.Run("non retryable", func(t *testing.T) {
		fatal := errors.New("bad credentials")
		cfg := fast
		cfg.RetryableErrors = func(err error) bool { return !errors.Is(err, fatal) }

		calls := 0
		err := RetryWithBackoff(context.Background(), cfg, func() error {
			calls++
			return fatal
		})
		assert.ErrorIs(t, err, fatal)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		cfg := fast
		cfg.InitialDelay = time.Hour
		err := RetryWithBackoff(ctx, cfg, func() error { return errors.New("down") })
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestGenerateIDs(t *testing.T) {
	id := GenerateRequestID()
	assert.True(t, strings.HasPrefix(id, "req-"))
	assert.Len(t, id, len("req-")+36)
	assert.NotEqual(t, id, GenerateRequestID())

	a, b := GenerateRecordID(), GenerateRecordID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
