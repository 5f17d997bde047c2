package webhook

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Headers holds the authentication fields of one notification.
// Values are copied on parse; a Headers value owns its signature bytes.
type Headers struct {
	// Signature is the decoded signature bytes.
	Signature []byte
	// Timestamp is seconds since the epoch.
	Timestamp int64
	// RawTimestamp is the timestamp header text as received.
	RawTimestamp string
	// ClientID is the merchant client id, empty when not sent.
	ClientID string
	// EventID is the provider's notification id, empty when not sent.
	EventID string
}

// WithSignature returns a copy of h carrying sig.
func (h Headers) WithSignature(sig []byte) Headers {
	h.Signature = append([]byte(nil), sig...)
	return h
}

// ParseHeaders extracts authentication fields from a header map. Header
// names are matched case-insensitively.
func (a *Authenticator) ParseHeaders(raw map[string]string) (Headers, error) {
	return a.parse(func(name string) (string, bool, error) {
		return lookupFold(raw, name)
	})
}

// ParseHTTPHeaders is ParseHeaders for a net/http header set.
func (a *Authenticator) ParseHTTPHeaders(h http.Header) (Headers, error) {
	return a.parse(func(name string) (string, bool, error) {
		return lookupHTTP(h, name)
	})
}

type lookupFunc func(name string) (value string, ok bool, err error)

func (a *Authenticator) parse(lookup lookupFunc) (Headers, error) {
	cfg := a.config

	sigText, ok, err := lookup(cfg.SignatureHeader)
	if err != nil {
		return Headers{}, err
	}
	if !ok {
		return Headers{}, missingField(cfg.SignatureHeader)
	}

	tsText, ok, err := lookup(cfg.TimestampHeader)
	if err != nil {
		return Headers{}, err
	}
	if !ok {
		return Headers{}, missingField(cfg.TimestampHeader)
	}

	clientID, ok, err := lookup(cfg.ClientIDHeader)
	if err != nil {
		return Headers{}, err
	}
	if !ok && cfg.SignedFields == SignClientTimestampBody {
		return Headers{}, missingField(cfg.ClientIDHeader)
	}

	eventID, _, err := lookup(cfg.EventIDHeader)
	if err != nil {
		return Headers{}, err
	}

	sig, err := decodeSignature(cfg.Encoding, sigText)
	if err != nil {
		return Headers{}, malformed(cfg.SignatureHeader, err)
	}

	ts, err := parseTimestamp(cfg.TimestampFormat, tsText)
	if err != nil {
		return Headers{}, malformed(cfg.TimestampHeader, err)
	}

	return Headers{
		Signature:    sig,
		Timestamp:    ts,
		RawTimestamp: tsText,
		ClientID:     clientID,
		EventID:      eventID,
	}, nil
}

// lookupFold finds name in raw ignoring case. Blank values count as absent.
// Two spellings of the same header with different values are rejected.
func lookupFold(raw map[string]string, name string) (string, bool, error) {
	var (
		found string
		seen  bool
	)
	for k, v := range raw {
		if !strings.EqualFold(strings.TrimSpace(k), name) {
			continue
		}
		v = strings.TrimSpace(v)
		if seen && v != found {
			return "", false, duplicate(name)
		}
		found, seen = v, true
	}
	if found == "" {
		return "", false, nil
	}
	return found, true, nil
}

func lookupHTTP(h http.Header, name string) (string, bool, error) {
	var (
		found string
		seen  bool
	)
	// Scan every key so header sets built without canonical keys still match.
	for k, vs := range h {
		if !strings.EqualFold(k, name) {
			continue
		}
		for _, v := range vs {
			v = strings.TrimSpace(v)
			if seen && v != found {
				return "", false, duplicate(name)
			}
			found, seen = v, true
		}
	}
	if found == "" {
		return "", false, nil
	}
	return found, true, nil
}

func decodeSignature(enc Encoding, text string) ([]byte, error) {
	switch enc {
	case EncodingHex:
		return hex.DecodeString(text)
	case EncodingBase64:
		return base64.StdEncoding.DecodeString(text)
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}
}

func parseTimestamp(format TimestampFormat, text string) (int64, error) {
	switch format {
	case TimestampUnix:
		return strconv.ParseInt(text, 10, 64)

	case TimestampUnixMillis:
		ms, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return 0, err
		}
		sec := ms / 1000
		if ms%1000 < 0 {
			sec--
		}
		return sec, nil

	case TimestampISO8601:
		if t, err := time.Parse(time.RFC3339Nano, text); err == nil {
			return t.Unix(), nil
		}
		t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", text, time.UTC)
		if err != nil {
			return 0, err
		}
		return t.Unix(), nil

	default:
		return 0, fmt.Errorf("unsupported timestamp format %q", format)
	}
}
