package calc

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"
)

// ErrOverflow is returned when a checked operation overflows, underflows or
// produces a value wider than MaxBits.
var ErrOverflow = errors.New("arithmetic overflow")

// ErrDivisionByZero is returned by MulDiv for a zero denominator.
var ErrDivisionByZero = errors.New("division by zero")

const (
	// MaxBits bounds every stored quantity. Intermediates use the full 256 bits.
	MaxBits = 128

	// BasisPoints is the denominator for bonus percentages.
	BasisPoints = 10_000

	precisionValue = 100_000_000_000
)

// Precision scales the per-unit reward accumulator.
var Precision = uint256.NewInt(precisionValue)

// Zero returns a fresh zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// FromUint64 wraps a uint64 in a fresh value.
func FromUint64(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// Fits reports whether x can be stored.
func Fits(x *uint256.Int) bool {
	return x.BitLen() <= MaxBits
}

func bounded(x *uint256.Int) (*uint256.Int, error) {
	if !Fits(x) {
		return nil, fmt.Errorf("%w: %s exceeds %d bits", ErrOverflow, x.Dec(), MaxBits)
	}
	return x, nil
}

// Add returns a+b.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return bounded(z)
}

// Sub returns a-b and fails when b > a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, fmt.Errorf("%w: %s - %s underflows", ErrOverflow, a.Dec(), b.Dec())
	}
	return z, nil
}

// Mul returns a*b.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return bounded(z)
}

// MulDiv returns floor(x*y/d) using a 512-bit intermediate product.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return bounded(z)
}

// AddUint64 is a checked uint64 addition.
func AddUint64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// SubUint64 is a checked uint64 subtraction.
func SubUint64(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return diff, nil
}

// RewardPerUnit returns the accumulator increment for one settlement step:
//
//	rate * elapsed * weight * Precision / (totalWeight * weightedStaked)
//
// The numerator and denominator are built in 256 bits and divided once. A zero
// denominator yields zero, meaning nothing accrues for this step.
func RewardPerUnit(rate, elapsed, weight, totalWeight uint64, weightedStaked *uint256.Int) (*uint256.Int, error) {
	if totalWeight == 0 || weightedStaked.IsZero() {
		return Zero(), nil
	}

	num := uint256.NewInt(rate)
	var overflow bool
	for _, f := range []*uint256.Int{uint256.NewInt(elapsed), uint256.NewInt(weight), Precision} {
		if num, overflow = num.MulOverflow(num, f); overflow {
			return nil, ErrOverflow
		}
	}

	den, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(totalWeight), weightedStaked)
	if overflow {
		return nil, ErrOverflow
	}

	return bounded(num.Div(num, den))
}

// AccruedFor returns floor(weight * acc / Precision), the total reward a stake of
// the given weight has earned against the accumulator since inception.
func AccruedFor(weight, acc *uint256.Int) (*uint256.Int, error) {
	return MulDiv(weight, acc, Precision)
}

// EffectiveWeight returns raw * multiplier * (BasisPoints + bonusBps) / BasisPoints.
func EffectiveWeight(raw *uint256.Int, multiplier, bonusBps uint64) (*uint256.Int, error) {
	scaled, err := Mul(raw, uint256.NewInt(multiplier))
	if err != nil {
		return nil, err
	}
	factor, err := AddUint64(BasisPoints, bonusBps)
	if err != nil {
		return nil, err
	}
	return MulDiv(scaled, uint256.NewInt(factor), uint256.NewInt(BasisPoints))
}

// ParseAmount parses a base-10 integer amount that must fit in MaxBits.
func ParseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return bounded(v)
}

// Clone returns a copy of x, treating nil as zero.
func Clone(x *uint256.Int) *uint256.Int {
	if x == nil {
		return Zero()
	}
	return new(uint256.Int).Set(x)
}
