package farm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leafsii/leafsii-farm/internal/calc"
)

var (
	ErrInvalidLockDuration = errors.New("invalid lock duration")
	ErrOverStakedAmount    = errors.New("over staked amount")
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrPoolClosed          = errors.New("pool is closed")
	ErrIncompletePoolSet   = errors.New("incomplete pool set")
	ErrUnauthorized        = errors.New("unauthorized")

	ErrPoolNotEmpty        = errors.New("pool still has stake")
	ErrInvalidTierSequence = errors.New("invalid lock tier sequence")
	ErrPositionMismatch    = errors.New("position does not belong to pool")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrNotInitialized      = errors.New("farm not initialized")
	ErrMetadataTooLong     = errors.New("metadata too long")
	ErrInvalidAddress      = errors.New("invalid address")
)

// overflow maps arithmetic failures from calc onto ErrArithmeticOverflow while
// keeping the operation context.
func overflow(op string, err error) error {
	switch {
	case errors.Is(err, calc.ErrOverflow):
		detail := strings.TrimPrefix(strings.TrimPrefix(err.Error(), calc.ErrOverflow.Error()), ": ")
		if detail == "" {
			return fmt.Errorf("%s: %w", op, ErrArithmeticOverflow)
		}
		return fmt.Errorf("%s: %w: %s", op, ErrArithmeticOverflow, detail)
	case errors.Is(err, calc.ErrDivisionByZero):
		return fmt.Errorf("%s: %w (%w)", op, ErrArithmeticOverflow, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
