// Package validation holds pure checks and conversions for amounts,
// addresses and identifiers found in CoinPayments payloads.
//
// Every function is stateless and safe for concurrent use. Amounts are
// handled as decimals so that formatting and unit conversion never go
// through binary floating point.
package validation

// Result is the outcome of a check that can explain itself.
type Result struct {
	Valid  bool
	Reason string
}

func valid() Result {
	return Result{Valid: true}
}

func invalid(reason string) Result {
	return Result{Reason: reason}
}
