package webhook

import (
	"crypto/hmac"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"time"
)

// Signature is a raw HMAC digest.
type Signature []byte

// Encode renders the signature in the given header encoding.
func (s Signature) Encode(enc Encoding) string {
	if enc == EncodingBase64 {
		return base64.StdEncoding.EncodeToString(s)
	}
	return hex.EncodeToString(s)
}

// Reason explains a failed authentication.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonEmptySecret       Reason = "empty_secret"
	ReasonSignatureMismatch Reason = "signature_mismatch"
	ReasonTimestampStale    Reason = "timestamp_stale"
	ReasonTimestampFuture   Reason = "timestamp_future"
)

// Result is the outcome of Authenticate.
type Result struct {
	Authentic bool
	Reason    Reason
}

// Authenticator verifies notifications against one signing contract.
// It holds no secrets and is safe for concurrent use.
type Authenticator struct {
	config Config
}

// NewAuthenticator applies defaults to cfg and validates it.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Authenticator{config: cfg}, nil
}

// Default returns an Authenticator for DefaultConfig.
func Default() *Authenticator {
	return &Authenticator{config: DefaultConfig()}
}

// Config returns the effective configuration.
func (a *Authenticator) Config() Config {
	return a.config
}

// ComputeSignature returns the HMAC of message keyed by secret. It returns
// nil for an unknown algorithm.
func ComputeSignature(alg Algorithm, secret, message []byte) Signature {
	mac, ok := newMAC(alg, secret)
	if !ok {
		return nil
	}
	mac.Write(message)
	return mac.Sum(nil)
}

// ComputeExpectedSignature returns the HMAC of message under the
// configured algorithm.
func (a *Authenticator) ComputeExpectedSignature(secret, message []byte) Signature {
	return ComputeSignature(a.config.Algorithm, secret, message)
}

// SignedMessage returns the exact bytes the provider signs for h and payload.
// The payload is used verbatim.
func (a *Authenticator) SignedMessage(h Headers, payload []byte) []byte {
	if a.config.SignedFields == SignBody {
		return payload
	}

	msg := make([]byte, 0, len(h.ClientID)+len(h.RawTimestamp)+len(payload))
	msg = append(msg, h.ClientID...)
	msg = append(msg, h.RawTimestamp...)
	msg = append(msg, payload...)
	return msg
}

// VerifySignature reports whether h.Signature is the provider's signature of
// payload under secret. The comparison runs in constant time. An empty secret
// or empty signature never verifies.
func (a *Authenticator) VerifySignature(secret []byte, h Headers, payload []byte) bool {
	if len(secret) == 0 || len(h.Signature) == 0 {
		return false
	}

	expected := a.ComputeExpectedSignature(secret, a.SignedMessage(h, payload))
	if expected == nil {
		return false
	}

	return hmac.Equal(expected, h.Signature)
}

// IsTimestampValid reports whether timestamp lies within toleranceSeconds of
// now, in either direction. Both bounds are inclusive.
func IsTimestampValid(timestamp, toleranceSeconds int64, now time.Time) bool {
	return checkTimestamp(timestamp, toleranceSeconds, now) == ReasonNone
}

func checkTimestamp(timestamp, tolerance int64, now time.Time) Reason {
	n := now.Unix()
	if tolerance < 0 {
		if timestamp > n {
			return ReasonTimestampFuture
		}
		return ReasonTimestampStale
	}

	if timestamp > n {
		d := timestamp - n
		// A negative difference means the subtraction overflowed.
		if d < 0 || d > tolerance {
			return ReasonTimestampFuture
		}
		return ReasonNone
	}

	d := n - timestamp
	if d < 0 || d > tolerance {
		return ReasonTimestampStale
	}
	return ReasonNone
}

// Authenticate checks the signature and then the timestamp against the
// configured tolerance. Both must pass.
func (a *Authenticator) Authenticate(secret []byte, h Headers, payload []byte, now time.Time) Result {
	if len(secret) == 0 {
		return Result{Reason: ReasonEmptySecret}
	}

	if !a.VerifySignature(secret, h, payload) {
		return Result{Reason: ReasonSignatureMismatch}
	}

	tolerance := a.config.Tolerance
	if tolerance == NoTolerance {
		tolerance = 0
	}
	if reason := checkTimestamp(h.Timestamp, tolerance, now); reason != ReasonNone {
		return Result{Reason: reason}
	}

	return Result{Authentic: true}
}

// AuthenticateHeaders parses raw and authenticates payload. Parse failures
// are returned as *ParseError; authenticity failures are in the Result.
func (a *Authenticator) AuthenticateHeaders(secret []byte, raw map[string]string, payload []byte, now time.Time) (Result, error) {
	h, err := a.ParseHeaders(raw)
	if err != nil {
		return Result{}, err
	}
	return a.Authenticate(secret, h, payload, now), nil
}

// FormatTimestamp renders at in the configured timestamp format.
func (a *Authenticator) FormatTimestamp(at time.Time) string {
	switch a.config.TimestampFormat {
	case TimestampUnixMillis:
		return strconv.FormatInt(at.UnixMilli(), 10)
	case TimestampISO8601:
		return at.UTC().Format(time.RFC3339)
	default:
		return strconv.FormatInt(at.Unix(), 10)
	}
}

// Sign produces the authentication headers the provider would send for
// payload. It is meant for tests and for replaying captured notifications.
func (a *Authenticator) Sign(secret []byte, clientID string, at time.Time, payload []byte) map[string]string {
	h := Headers{
		ClientID:     clientID,
		RawTimestamp: a.FormatTimestamp(at),
	}
	sig := a.ComputeExpectedSignature(secret, a.SignedMessage(h, payload))

	out := map[string]string{
		a.config.SignatureHeader: sig.Encode(a.config.Encoding),
		a.config.TimestampHeader: h.RawTimestamp,
	}
	if clientID != "" {
		out[a.config.ClientIDHeader] = clientID
	}
	return out
}
