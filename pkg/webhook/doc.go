// Package webhook authenticates CoinPayments webhook notifications.
//
// Authentication is two independent checks that a caller combines: the HMAC
// signature over the raw body, and the freshness of the timestamp header.
// Both are pure functions of their inputs; the package never reads the wall
// clock, never stores secrets and keeps no global state.
//
// # Signing contract
//
// The contract is described by Config. DefaultConfig matches the CoinPayments
// API:
//
//   - X-CoinPayments-Signature: hex HMAC-SHA512
//   - X-CoinPayments-Timestamp: unix seconds
//   - X-CoinPayments-Client: merchant client id
//   - signed message: client id, timestamp header text, raw body
//
// Algorithm, encoding, timestamp format, signed fields and header names are
// all configurable so a change on the provider side is a config change.
//
// # Usage
//
//	auth, err := webhook.NewAuthenticator(webhook.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//
//	body, _ := io.ReadAll(r.Body)
//	headers, err := auth.ParseHTTPHeaders(r.Header)
//	if err != nil {
//	    http.Error(w, err.Error(), http.StatusBadRequest)
//	    return
//	}
//
//	res := auth.Authenticate(secret, headers, body, time.Now())
//	if !res.Authentic {
//	    http.Error(w, string(res.Reason), http.StatusUnauthorized)
//	    return
//	}
//
//	event, err := webhook.DecodeEvent(body)
//
// # Failure semantics
//
// Missing or undecodable headers are a *ParseError (see ErrMissingField,
// ErrMalformedEncoding, ErrDuplicateField). A well-formed notification that
// is not authentic is not an error: VerifySignature returns false and
// Authenticate returns a Result with a Reason. Every ambiguous case resolves
// to "not authentic".
//
// # Security Considerations
//
//   - Verify the body bytes exactly as received; never re-encode JSON first
//   - Signature comparison uses hmac.Equal on decoded bytes
//   - Pass now explicitly; future-dated timestamps are rejected too
//   - Do not log secrets or full signatures
package webhook
