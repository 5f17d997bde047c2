// Package ratelimit throttles inbound requests per client key using token
// buckets from golang.org/x/time/rate.
package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"coinpayments-webhooks/internal/clock"
	"coinpayments-webhooks/internal/common/errors"
)

type Config struct {
	Enabled           bool          `json:"enabled"`
	RequestsPerSecond float64       `json:"requests_per_second"`
	BurstSize         int           `json:"burst_size"`
	MaxKeys           int           `json:"max_keys"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RequestsPerSecond: 50,
		BurstSize:         100,
		MaxKeys:           10000,
		IdleTimeout:       10 * time.Minute,
	}
}

func (c Config) Validate() error {
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if c.BurstSize < 1 {
		return fmt.Errorf("burst size must be positive")
	}
	if c.MaxKeys < 1 {
		return fmt.Errorf("max keys must be positive")
	}
	return nil
}

// Limiter keeps one token bucket per key. Buckets idle for longer than
// IdleTimeout are dropped when the key count exceeds MaxKeys.
type Limiter struct {
	mu       sync.Mutex
	config   Config
	clock    clock.Clock
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

func NewLimiter(config Config, clk clock.Clock) (*Limiter, error) {
	if config.MaxKeys == 0 {
		config.MaxKeys = DefaultConfig().MaxKeys
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if config.Enabled {
		if err := config.Validate(); err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("invalid rate limit: %v", err))
		}
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}

	return &Limiter{
		config:   config,
		clock:    clk,
		limiters: make(map[string]*limiterEntry),
	}, nil
}

// Allow takes one token for key.
func (l *Limiter) Allow(key string) bool {
	if !l.config.Enabled {
		return true
	}
	now := l.clock.Now()
	return l.limiterFor(key, now).AllowN(now, 1)
}

func (l *Limiter) limiterFor(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.limiters[key]
	if !exists {
		if len(l.limiters) >= l.config.MaxKeys {
			l.cleanup(now)
		}
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.BurstSize),
		}
		l.limiters[key] = entry
	}
	entry.lastUsed = now
	return entry.limiter
}

// cleanup drops idle buckets. Caller holds l.mu.
func (l *Limiter) cleanup(now time.Time) {
	cutoff := now.Add(-l.config.IdleTimeout)
	for key, entry := range l.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

// Keys returns the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// HTTPMiddleware rejects requests over the limit with 429 and a Retry-After
// header. An empty key bypasses the limiter.
func (l *Limiter) HTTPMiddleware(keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	retryAfter := "1"
	if l.config.RequestsPerSecond > 0 && l.config.RequestsPerSecond < 1 {
		retryAfter = fmt.Sprintf("%d", int(math.Ceil(1/l.config.RequestsPerSecond)))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" || l.Allow(key) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Retry-After", retryAfter)
			errors.WriteHTTP(w, errors.RateLimitError(r.URL.Path))
		})
	}
}

// IPBasedKey keys on the connection's remote host. Forwarding headers are
// ignored; use ProxyAwareKey behind a reverse proxy.
func IPBasedKey(r *http.Request) string {
	return "ip:" + remoteHost(r)
}

// ParseTrustedProxies parses a comma separated list of IPs and CIDRs.
func ParseTrustedProxies(list string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// ProxyAwareKey returns a key func that only reads X-Forwarded-For and
// X-Real-IP when the connection comes from a trusted proxy. The client is
// the rightmost X-Forwarded-For hop that is not itself trusted.
func ProxyAwareKey(trusted []*net.IPNet) func(*http.Request) string {
	if len(trusted) == 0 {
		return IPBasedKey
	}

	isTrusted := func(s string) bool {
		ip := net.ParseIP(strings.TrimSpace(s))
		if ip == nil {
			return false
		}
		for _, n := range trusted {
			if n.Contains(ip) {
				return true
			}
		}
		return false
	}

	return func(r *http.Request) string {
		remote := remoteHost(r)
		if !isTrusted(remote) {
			return "ip:" + remote
		}

		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			hops := strings.Split(xff, ",")
			for i := len(hops) - 1; i >= 0; i-- {
				hop := strings.TrimSpace(hops[i])
				if hop == "" || isTrusted(hop) {
					continue
				}
				if net.ParseIP(hop) == nil {
					break
				}
				return "ip:" + hop
			}
		}
		if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(real) != nil {
			return "ip:" + real
		}
		return "ip:" + remote
	}
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
