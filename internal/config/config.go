// Package config provides configuration management for the CoinPayments
// webhook receiver. It loads settings from environment variables with sensible
// defaults and validates them so the daemon refuses to start half configured.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - TLS_CERT_FILE, TLS_KEY_FILE: Serve HTTPS when both are set
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FORMAT: console or json (default: console)
//
// Webhook Verification:
//   - WEBHOOK_PATH: Route receiving notifications (default: /webhooks/coinpayments)
//   - COINPAYMENTS_WEBHOOK_SECRET: Shared HMAC secret (required)
//   - COINPAYMENTS_CLIENT_ID: Expected client id, checked when set
//   - SIGNATURE_ALGORITHM: hmac-sha512, hmac-sha256 or hmac-sha1 (default: hmac-sha512)
//   - SIGNATURE_ENCODING: hex or base64 (default: hex)
//   - SIGNED_FIELDS: client_timestamp_body or body (default: client_timestamp_body)
//   - TIMESTAMP_FORMAT: unix, unix_ms or iso8601 (default: unix)
//   - TIMESTAMP_TOLERANCE: Accepted clock skew in seconds, 0 for exact (default: 300)
//   - MAX_BODY_BYTES: Request body limit (default: 1048576)
//
// Replay Protection:
//   - REPLAY_BACKEND: memory or redis (default: memory)
//   - REPLAY_TTL: How long a delivery is remembered (default: 24h)
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Message Broker:
//   - BROKER_TYPE: none, redis, rabbitmq, kafka, aws or gcp (default: none)
//   - EVENT_STREAM: Redis stream name (default: coinpayments-events)
//   - STREAM_MAX_LEN: Approximate stream cap, 0 disables trimming (default: 100000)
//   - RABBITMQ_URL, RABBITMQ_EXCHANGE (default: coinpayments)
//   - KAFKA_BROKERS (comma separated), KAFKA_TOPIC (default: coinpayments-events)
//   - KAFKA_SECURITY_PROTOCOL (default: PLAINTEXT), KAFKA_SASL_MECHANISM,
//     KAFKA_SASL_USERNAME, KAFKA_SASL_PASSWORD
//   - AWS_REGION, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY,
//     AWS_SNS_TOPIC_ARN or AWS_SQS_QUEUE_URL
//   - GCP_PROJECT_ID, GCP_TOPIC_ID, GCP_CREDENTIALS_FILE
//   - PUBLISH_FILTER: expr-lang expression selecting published events,
//     e.g. type == "invoiceCompleted" && amount > 0 (default: publish all)
//   - BREAKER_ENABLED (default: true), BREAKER_MAX_FAILURES (default: 5),
//     BREAKER_TIMEOUT (default: 30s)
//
// Database Configuration:
//   - DATABASE_TYPE: sqlite or postgres (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./coinpayments_webhooks.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER,
//     POSTGRES_PASSWORD, POSTGRES_SSL_MODE
//
// Retention:
//   - RETENTION_SCHEDULE: cron expression (default: @daily)
//   - RETENTION_PERIOD: Age of purged rows, accepts d and w units (default: 30d)
//   - RETENTION_LOCK_ENABLED: Take a Redis lock around each purge (default: false)
//
// Security and Rate Limiting:
//   - API_JWT_SECRET: HS256 key protecting /api, at least 32 characters when set
//   - RATE_LIMIT_ENABLED: Per client IP limiting of the webhook route (default: true)
//   - RATE_LIMIT_RPS (default: 50), RATE_LIMIT_BURST (default: 100)
//   - TRUSTED_PROXIES: Comma separated IPs/CIDRs whose X-Forwarded-For is
//     honoured. Empty keys the limiter on the socket address only.
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"

	"coinpayments-webhooks/internal/common/utils"
	"coinpayments-webhooks/internal/filter"
	"coinpayments-webhooks/internal/ratelimit"
	"coinpayments-webhooks/pkg/webhook"
)

// Config holds all configuration values for the receiver. Numeric and
// duration settings are kept as the raw strings read from the environment;
// Validate checks them and the typed accessors below convert them.
type Config struct {
	// Application settings
	Port      string
	TLSCert   string
	TLSKey    string
	LogLevel  string
	LogFormat string

	// Webhook verification
	WebhookPath        string
	WebhookSecret      string // never logged
	ClientID           string
	SignatureAlgorithm string
	SignatureEncoding  string
	SignedFields       string
	TimestampFormat    string
	TimestampTolerance string
	MaxBodyBytes       string

	// Replay protection
	ReplayBackend string
	ReplayTTL     string

	// Redis configuration
	RedisAddress  string
	RedisPassword string
	RedisDB       string
	RedisPoolSize string

	// Message broker
	BrokerType         string
	EventStream        string
	StreamMaxLen       string
	RabbitMQURL        string
	RabbitMQExchange   string
	KafkaBrokers       string
	KafkaTopic         string
	KafkaSecurity      string
	KafkaSASLMechanism string
	KafkaSASLUsername  string
	KafkaSASLPassword  string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSSNSTopicARN     string
	AWSSQSQueueURL     string
	GCPProjectID       string
	GCPTopicID         string
	GCPCredentialsFile string
	PublishFilter      string
	BreakerEnabled     bool
	BreakerMaxFailures string
	BreakerTimeout     string

	// Database configuration
	DatabaseType     string
	DatabasePath     string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Retention
	RetentionSchedule    string
	RetentionPeriod      string
	RetentionLockEnabled bool

	// Security and rate limiting
	APIJWTSecret     string
	RateLimitEnabled bool
	RateLimitRPS     string
	RateLimitBurst   string
	TrustedProxies   string
}

// Load creates a new Config instance with values loaded from environment
// variables. It does not validate; call Validate on the result.
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		TLSCert:   getEnv("TLS_CERT_FILE", ""),
		TLSKey:    getEnv("TLS_KEY_FILE", ""),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		WebhookPath:        getEnv("WEBHOOK_PATH", "/webhooks/coinpayments"),
		WebhookSecret:      getEnv("COINPAYMENTS_WEBHOOK_SECRET", ""),
		ClientID:           getEnv("COINPAYMENTS_CLIENT_ID", ""),
		SignatureAlgorithm: getEnv("SIGNATURE_ALGORITHM", string(webhook.AlgorithmHMACSHA512)),
		SignatureEncoding:  getEnv("SIGNATURE_ENCODING", string(webhook.EncodingHex)),
		SignedFields:       getEnv("SIGNED_FIELDS", string(webhook.SignClientTimestampBody)),
		TimestampFormat:    getEnv("TIMESTAMP_FORMAT", string(webhook.TimestampUnix)),
		TimestampTolerance: getEnv("TIMESTAMP_TOLERANCE", "300"),
		MaxBodyBytes:       getEnv("MAX_BODY_BYTES", "1048576"),

		ReplayBackend: getEnv("REPLAY_BACKEND", "memory"),
		ReplayTTL:     getEnv("REPLAY_TTL", "24h"),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		BrokerType:         getEnv("BROKER_TYPE", "none"),
		EventStream:        getEnv("EVENT_STREAM", "coinpayments-events"),
		StreamMaxLen:       getEnv("STREAM_MAX_LEN", "100000"),
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange:   getEnv("RABBITMQ_EXCHANGE", "coinpayments"),
		KafkaBrokers:       getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "coinpayments-events"),
		KafkaSecurity:      getEnv("KAFKA_SECURITY_PROTOCOL", "PLAINTEXT"),
		KafkaSASLMechanism: getEnv("KAFKA_SASL_MECHANISM", ""),
		KafkaSASLUsername:  getEnv("KAFKA_SASL_USERNAME", ""),
		KafkaSASLPassword:  getEnv("KAFKA_SASL_PASSWORD", ""),
		AWSRegion:          getEnv("AWS_REGION", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSSNSTopicARN:     getEnv("AWS_SNS_TOPIC_ARN", ""),
		AWSSQSQueueURL:     getEnv("AWS_SQS_QUEUE_URL", ""),
		GCPProjectID:       getEnv("GCP_PROJECT_ID", ""),
		GCPTopicID:         getEnv("GCP_TOPIC_ID", ""),
		GCPCredentialsFile: getEnv("GCP_CREDENTIALS_FILE", ""),
		PublishFilter:      getEnv("PUBLISH_FILTER", ""),
		BreakerEnabled:     getBoolEnv("BREAKER_ENABLED", true),
		BreakerMaxFailures: getEnv("BREAKER_MAX_FAILURES", "5"),
		BreakerTimeout:     getEnv("BREAKER_TIMEOUT", "30s"),

		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./coinpayments_webhooks.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "coinpayments_webhooks"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RetentionSchedule:    getEnv("RETENTION_SCHEDULE", "@daily"),
		RetentionPeriod:      getEnv("RETENTION_PERIOD", "30d"),
		RetentionLockEnabled: getBoolEnv("RETENTION_LOCK_ENABLED", false),

		APIJWTSecret:     getEnv("API_JWT_SECRET", ""),
		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitRPS:     getEnv("RATE_LIMIT_RPS", "50"),
		RateLimitBurst:   getEnv("RATE_LIMIT_BURST", "100"),
		TrustedProxies:   getEnv("TRUSTED_PROXIES", ""),
	}
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv accepts the strconv.ParseBool spellings; anything else yields
// defaultValue.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks required fields, value formats and cross-field
// dependencies. The returned error names the offending variable.
func (c *Config) Validate() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("COINPAYMENTS_WEBHOOK_SECRET environment variable is required")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	if !strings.HasPrefix(c.WebhookPath, "/") {
		return fmt.Errorf("WEBHOOK_PATH must start with '/'")
	}

	if _, err := webhook.NewAuthenticator(c.WebhookConfig()); err != nil {
		return fmt.Errorf("invalid webhook signature settings: %w", err)
	}
	if tol, err := strconv.ParseInt(c.TimestampTolerance, 10, 64); err != nil || tol < 0 {
		return fmt.Errorf("TIMESTAMP_TOLERANCE must be a non-negative number of seconds")
	}

	if n, err := strconv.ParseInt(c.MaxBodyBytes, 10, 64); err != nil || n < 1 {
		return fmt.Errorf("MAX_BODY_BYTES must be a positive number")
	}

	switch c.ReplayBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("REPLAY_BACKEND must be 'memory' or 'redis'")
	}
	if d, err := utils.ParseDuration(c.ReplayTTL); err != nil || d <= 0 {
		return fmt.Errorf("REPLAY_TTL must be a positive duration (e.g., '24h', '2d')")
	}

	if c.usesRedis() {
		if c.RedisAddress == "" {
			return fmt.Errorf("REDIS_ADDRESS is required when Redis is used")
		}
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	if err := c.validateBroker(); err != nil {
		return err
	}
	if _, err := filter.Compile(c.PublishFilter); err != nil {
		return fmt.Errorf("PUBLISH_FILTER: %w", err)
	}

	switch c.DatabaseType {
	case "sqlite":
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required when using SQLite")
		}
	case "postgres", "postgresql":
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'sqlite' or 'postgres'")
	}

	if c.RetentionSchedule == "" {
		return fmt.Errorf("RETENTION_SCHEDULE is required")
	}
	if _, err := cron.ParseStandard(c.RetentionSchedule); err != nil {
		return fmt.Errorf("RETENTION_SCHEDULE is not a valid cron expression: %w", err)
	}
	if d, err := utils.ParseDuration(c.RetentionPeriod); err != nil || d <= 0 {
		return fmt.Errorf("RETENTION_PERIOD must be a positive duration (e.g., '30d', '4w')")
	}

	if c.APIJWTSecret != "" && len(c.APIJWTSecret) < 32 {
		return fmt.Errorf("API_JWT_SECRET must be at least 32 characters long for security")
	}

	if c.RateLimitEnabled {
		if rps, err := strconv.ParseFloat(c.RateLimitRPS, 64); err != nil || rps <= 0 {
			return fmt.Errorf("RATE_LIMIT_RPS must be a positive number")
		}
		if burst, err := strconv.Atoi(c.RateLimitBurst); err != nil || burst < 1 {
			return fmt.Errorf("RATE_LIMIT_BURST must be a positive number")
		}
		if _, err := ratelimit.ParseTrustedProxies(c.TrustedProxies); err != nil {
			return fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
	}

	return nil
}

func (c *Config) validateBroker() error {
	switch c.BrokerType {
	case "none":
		return nil
	case "redis":
		if c.EventStream == "" {
			return fmt.Errorf("EVENT_STREAM is required when BROKER_TYPE is redis")
		}
		if n, err := strconv.ParseInt(c.StreamMaxLen, 10, 64); err != nil || n < 0 {
			return fmt.Errorf("STREAM_MAX_LEN must be zero or a positive number")
		}
	case "rabbitmq":
		if c.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL is required when BROKER_TYPE is rabbitmq")
		}
		if c.RabbitMQExchange == "" {
			return fmt.Errorf("RABBITMQ_EXCHANGE is required when BROKER_TYPE is rabbitmq")
		}
	case "kafka":
		if len(c.KafkaBrokerList()) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when BROKER_TYPE is kafka")
		}
		if c.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_TOPIC is required when BROKER_TYPE is kafka")
		}
		if strings.HasPrefix(strings.ToUpper(c.KafkaSecurity), "SASL_") && (c.KafkaSASLUsername == "" || c.KafkaSASLPassword == "") {
			return fmt.Errorf("KAFKA_SASL_USERNAME and KAFKA_SASL_PASSWORD are required for SASL security protocols")
		}
	case "aws":
		if c.AWSRegion == "" {
			return fmt.Errorf("AWS_REGION is required when BROKER_TYPE is aws")
		}
		if (c.AWSSNSTopicARN == "") == (c.AWSSQSQueueURL == "") {
			return fmt.Errorf("exactly one of AWS_SNS_TOPIC_ARN or AWS_SQS_QUEUE_URL must be set")
		}
		if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
			return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
		}
	case "gcp":
		if c.GCPProjectID == "" {
			return fmt.Errorf("GCP_PROJECT_ID is required when BROKER_TYPE is gcp")
		}
		if c.GCPTopicID == "" {
			return fmt.Errorf("GCP_TOPIC_ID is required when BROKER_TYPE is gcp")
		}
	default:
		return fmt.Errorf("BROKER_TYPE must be one of none, redis, rabbitmq, kafka, aws, gcp")
	}

	if c.BreakerEnabled {
		if n, err := strconv.Atoi(c.BreakerMaxFailures); err != nil || n < 1 {
			return fmt.Errorf("BREAKER_MAX_FAILURES must be a positive number")
		}
		if d, err := time.ParseDuration(c.BreakerTimeout); err != nil || d <= 0 {
			return fmt.Errorf("BREAKER_TIMEOUT must be a positive duration (e.g., '30s')")
		}
	}
	return nil
}

func (c *Config) usesRedis() bool {
	return c.ReplayBackend == "redis" || c.BrokerType == "redis" || c.RetentionLockEnabled
}

// UsesRedis reports whether any configured component needs a Redis client.
func (c *Config) UsesRedis() bool { return c.usesRedis() }

// UsesPostgres reports whether the notification log lives in PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.DatabaseType == "postgres" || c.DatabaseType == "postgresql"
}

// WebhookConfig converts the signature settings into the verifier's
// configuration. Empty fields fall back to the verifier defaults; a zero
// tolerance becomes webhook.NoTolerance.
func (c *Config) WebhookConfig() webhook.Config {
	tol, _ := strconv.ParseInt(c.TimestampTolerance, 10, 64)
	if tol == 0 {
		tol = webhook.NoTolerance
	}
	return webhook.Config{
		Algorithm:       webhook.Algorithm(strings.ToLower(c.SignatureAlgorithm)),
		Encoding:        webhook.Encoding(strings.ToLower(c.SignatureEncoding)),
		TimestampFormat: webhook.TimestampFormat(strings.ToLower(c.TimestampFormat)),
		SignedFields:    webhook.SignedFields(strings.ToLower(c.SignedFields)),
		Tolerance:       tol,
	}
}

// Accessors below assume Validate succeeded and return the default on
// unparsable input.

func (c *Config) MaxBodyBytesValue() int64 { return int64Or(c.MaxBodyBytes, 1<<20) }

func (c *Config) ReplayTTLValue() time.Duration { return durationOr(c.ReplayTTL, 24*time.Hour) }

func (c *Config) RetentionPeriodValue() time.Duration {
	return durationOr(c.RetentionPeriod, 30*24*time.Hour)
}

func (c *Config) RedisDBValue() int { return int(int64Or(c.RedisDB, 0)) }

func (c *Config) RedisPoolSizeValue() int { return int(int64Or(c.RedisPoolSize, 10)) }

func (c *Config) StreamMaxLenValue() int64 { return int64Or(c.StreamMaxLen, 100000) }

func (c *Config) BreakerMaxFailuresValue() uint32 {
	return uint32(int64Or(c.BreakerMaxFailures, 5))
}

func (c *Config) BreakerTimeoutValue() time.Duration { return durationOr(c.BreakerTimeout, 30*time.Second) }

func (c *Config) RateLimitRPSValue() float64 {
	if v, err := strconv.ParseFloat(c.RateLimitRPS, 64); err == nil {
		return v
	}
	return 50
}

func (c *Config) RateLimitBurstValue() int { return int(int64Or(c.RateLimitBurst, 100)) }

// KafkaBrokerList splits KAFKA_BROKERS on commas, dropping blanks.
func (c *Config) KafkaBrokerList() []string {
	return lo.Compact(lo.Map(strings.Split(c.KafkaBrokers, ","), func(b string, _ int) string {
		return strings.TrimSpace(b)
	}))
}

// PostgresDSN builds a libpq style connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresUser, c.PostgresPassword, c.PostgresSSLMode)
}

func int64Or(s string, def int64) int64 {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	return def
}

func durationOr(s string, def time.Duration) time.Duration {
	if d, err := utils.ParseDuration(s); err == nil {
		return d
	}
	return def
}
