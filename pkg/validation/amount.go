package validation

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDecimalPlaces is the largest precision accepted by the unit
// conversions; 18 covers wei.
const MaxDecimalPlaces = 18

var (
	ErrAmountOverflow = errors.New("amount does not fit in 64 bits at this precision")
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrDecimalPlaces  = fmt.Errorf("decimal places must be between 0 and %d", MaxDecimalPlaces)
	ErrInvalidAmount  = errors.New("invalid amount")
)

// FormatAmount renders value with exactly places fractional digits,
// rounding half away from zero. The output never uses exponent notation.
// Negative places are treated as zero.
func FormatAmount(value decimal.Decimal, places int32) string {
	if places < 0 {
		places = 0
	}
	return value.StringFixed(places)
}

// ParseAmount parses a plain decimal string such as "0.00012".
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// IsValidAmount reports whether s parses as a strictly positive amount.
func IsValidAmount(s string) bool {
	d, err := ParseAmount(s)
	return err == nil && d.IsPositive()
}

// ToSmallestUnit converts value to base units (satoshi, wei, ...) by
// rounding value*10^places half away from zero. Only a result that is still
// negative after rounding is rejected, so -0.000000001 at 8 places is 0. It
// fails rather than saturating when the result does not fit in a uint64.
func ToSmallestUnit(value decimal.Decimal, places int32) (uint64, error) {
	n, err := ToSmallestUnitBig(value, places)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, ErrAmountOverflow
	}
	return n.Uint64(), nil
}

// ToSmallestUnitBig is ToSmallestUnit without the 64-bit limit.
func ToSmallestUnitBig(value decimal.Decimal, places int32) (*big.Int, error) {
	if places < 0 || places > MaxDecimalPlaces {
		return nil, ErrDecimalPlaces
	}
	units := value.Shift(places).Round(0)
	if units.IsNegative() {
		return nil, ErrNegativeAmount
	}
	return units.BigInt(), nil
}

// FromSmallestUnit converts base units back to a decimal amount. It is the
// exact inverse of ToSmallestUnit for values with at most places digits.
func FromSmallestUnit(units uint64, places int32) decimal.Decimal {
	return FromSmallestUnitBig(new(big.Int).SetUint64(units), places)
}

// FromSmallestUnitBig is FromSmallestUnit for arbitrary-size unit counts.
func FromSmallestUnitBig(units *big.Int, places int32) decimal.Decimal {
	if places < 0 {
		places = 0
	}
	return decimal.NewFromBigInt(units, -places)
}
