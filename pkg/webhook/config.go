package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"net/textproto"
)

// Header names used by CoinPayments webhook notifications.
const (
	HeaderClientID  = "X-CoinPayments-Client"
	HeaderTimestamp = "X-CoinPayments-Timestamp"
	HeaderSignature = "X-CoinPayments-Signature"
	HeaderEventID   = "X-CoinPayments-Event-Id"
)

// Algorithm names the HMAC hash used to sign notifications.
type Algorithm string

const (
	AlgorithmHMACSHA1   Algorithm = "hmac-sha1"
	AlgorithmHMACSHA256 Algorithm = "hmac-sha256"
	AlgorithmHMACSHA512 Algorithm = "hmac-sha512"
)

// Encoding names the text encoding of the signature header.
type Encoding string

const (
	EncodingHex    Encoding = "hex"
	EncodingBase64 Encoding = "base64"
)

// TimestampFormat names how the timestamp header is written.
type TimestampFormat string

const (
	// TimestampUnix is integer seconds since the epoch.
	TimestampUnix TimestampFormat = "unix"
	// TimestampUnixMillis is integer milliseconds since the epoch.
	TimestampUnixMillis TimestampFormat = "unix_ms"
	// TimestampISO8601 is RFC 3339, with or without a zone (UTC assumed).
	TimestampISO8601 TimestampFormat = "iso8601"
)

// SignedFields selects which parts of a notification are fed to the HMAC.
type SignedFields string

const (
	// SignBody signs the raw body only.
	SignBody SignedFields = "body"
	// SignClientTimestampBody signs client id, then the timestamp header
	// text, then the raw body, concatenated without separators.
	SignClientTimestampBody SignedFields = "client_timestamp_body"
)

// DefaultTolerance is the freshness window applied when Config.Tolerance is zero.
const DefaultTolerance int64 = 300

// NoTolerance requests an exact-second window: only a timestamp equal to the
// current second passes. Zero cannot express this because it means unset.
const NoTolerance int64 = -1

// Config describes the provider's webhook signing contract.
type Config struct {
	// Algorithm defaults to hmac-sha512.
	Algorithm Algorithm `json:"algorithm"`

	// Encoding of the signature header, defaults to hex.
	Encoding Encoding `json:"encoding"`

	// TimestampFormat defaults to unix seconds.
	TimestampFormat TimestampFormat `json:"timestamp_format"`

	// SignedFields defaults to client_timestamp_body.
	SignedFields SignedFields `json:"signed_fields"`

	// Tolerance is the accepted clock difference in seconds, in both
	// directions. Zero selects DefaultTolerance; use NoTolerance for an
	// exact-second window. Other negative values are rejected.
	Tolerance int64 `json:"tolerance"`

	SignatureHeader string `json:"signature_header"`
	TimestampHeader string `json:"timestamp_header"`
	ClientIDHeader  string `json:"client_id_header"`
	EventIDHeader   string `json:"event_id_header"`
}

// DefaultConfig returns the contract used by the CoinPayments API.
func DefaultConfig() Config {
	var c Config
	c.SetDefaults()
	return c
}

// SetDefaults fills every zero field with its default value.
func (c *Config) SetDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = AlgorithmHMACSHA512
	}

	if c.Encoding == "" {
		c.Encoding = EncodingHex
	}

	if c.TimestampFormat == "" {
		c.TimestampFormat = TimestampUnix
	}

	if c.SignedFields == "" {
		c.SignedFields = SignClientTimestampBody
	}

	if c.Tolerance == 0 {
		c.Tolerance = DefaultTolerance
	}

	if c.SignatureHeader == "" {
		c.SignatureHeader = HeaderSignature
	}
	if c.TimestampHeader == "" {
		c.TimestampHeader = HeaderTimestamp
	}
	if c.ClientIDHeader == "" {
		c.ClientIDHeader = HeaderClientID
	}
	if c.EventIDHeader == "" {
		c.EventIDHeader = HeaderEventID
	}
}

// Validate checks that every field names a supported option.
func (c *Config) Validate() error {
	if _, ok := hashes[c.Algorithm]; !ok {
		return newConfigError("unsupported algorithm: %q", c.Algorithm)
	}

	switch c.Encoding {
	case EncodingHex, EncodingBase64:
	default:
		return newConfigError("unsupported encoding: %q", c.Encoding)
	}

	switch c.TimestampFormat {
	case TimestampUnix, TimestampUnixMillis, TimestampISO8601:
	default:
		return newConfigError("unsupported timestamp format: %q", c.TimestampFormat)
	}

	switch c.SignedFields {
	case SignBody, SignClientTimestampBody:
	default:
		return newConfigError("unsupported signed fields: %q", c.SignedFields)
	}

	if c.Tolerance < 0 && c.Tolerance != NoTolerance {
		return newConfigError("tolerance must not be negative")
	}

	headers := map[string]string{}
	for _, name := range []string{c.SignatureHeader, c.TimestampHeader, c.ClientIDHeader, c.EventIDHeader} {
		if name == "" {
			return newConfigError("header names must not be empty")
		}
		canonical := textproto.CanonicalMIMEHeaderKey(name)
		if prev, dup := headers[canonical]; dup {
			return newConfigError("header %q configured twice (also %q)", name, prev)
		}
		headers[canonical] = name
	}

	return nil
}

var hashes = map[Algorithm]func() hash.Hash{
	AlgorithmHMACSHA1:   sha1.New,
	AlgorithmHMACSHA256: sha256.New,
	AlgorithmHMACSHA512: sha512.New,
}

func newMAC(alg Algorithm, secret []byte) (hash.Hash, bool) {
	h, ok := hashes[alg]
	if !ok {
		return nil, false
	}
	return hmac.New(h, secret), true
}
