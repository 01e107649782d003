package calc

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ValidateAmount checks if an amount is positive and within storable bounds
func ValidateAmount(amount *uint256.Int, operation string) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("invalid %s amount: must be positive", operation)
	}
	if !Fits(amount) {
		return fmt.Errorf("invalid %s amount: too large", operation)
	}
	return nil
}

// ParseDisplayAmount converts a human amount such as "12.5" into base units.
// Fractions finer than the token decimals are rejected rather than rounded.
func ParseDisplayAmount(s string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: cannot be negative", s)
	}

	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimals", s, decimals)
	}

	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("invalid amount %q: too large", s)
	}
	return bounded(v)
}
