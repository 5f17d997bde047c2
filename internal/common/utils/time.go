package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses a duration string with support for additional time units.
//
// Extends time.ParseDuration with whole days ("d") and weeks ("w"), for
// settings such as RETENTION_PERIOD=30d. Everything else is handed to the
// standard parser.
//
// Examples:
//
//	ParseDuration("1d")    // 24 hours
//	ParseDuration("2w")    // 336 hours (14 days)
//	ParseDuration("1h30m") // 1.5 hours (standard Go format)
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	units := map[string]time.Duration{
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
	}
	for suffix, unit := range units {
		if !strings.HasSuffix(s, suffix) {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSuffix(s, suffix), 10, 64)
		if err != nil {
			break
		}
		if n > int64(maxDuration/unit) || n < -int64(maxDuration/unit) {
			return 0, fmt.Errorf("invalid duration: %s: out of range", s)
		}
		return time.Duration(n) * unit, nil
	}

	return 0, fmt.Errorf("invalid duration: %s", s)
}

const maxDuration = time.Duration(1<<63 - 1)

// FormatDuration formats a duration in a human-readable way.
//
//	FormatDuration(30 * time.Second)   // "30s"
//	FormatDuration(90 * time.Minute)   // "90m"
//	FormatDuration(36 * time.Hour)     // "1.5d"
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	return fmt.Sprintf("%.1fd", d.Hours()/24)
}
