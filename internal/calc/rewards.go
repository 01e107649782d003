package calc

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const secondsPerYear = 365 * 24 * 60 * 60

// ToDecimal converts a base-unit amount to a display amount with the given
// number of token decimals.
func ToDecimal(amount *uint256.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(amount.Dec())
	if err != nil {
		return decimal.Zero
	}
	return d.Shift(-decimals)
}

// AccumulatorToDecimal converts a fixed-point accumulator to reward per
// weighted unit.
func AccumulatorToDecimal(acc *uint256.Int) decimal.Decimal {
	if acc == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(acc.Dec())
	if err != nil {
		return decimal.Zero
	}
	return d.Div(decimal.NewFromInt(precisionValue))
}

// PoolEmissionPerSecond returns the share of the global emission a pool receives.
// emission = rate * weight / totalWeight
func PoolEmissionPerSecond(rate, weight, totalWeight uint64) decimal.Decimal {
	if totalWeight == 0 || weight == 0 {
		return decimal.Zero
	}
	return DecimalFromUint64(rate).Mul(DecimalFromUint64(weight)).Div(DecimalFromUint64(totalWeight))
}

// DecimalFromUint64 converts without going through int64.
func DecimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// CalculateAPR estimates the annual reward rate of a pool as a percentage of
// its raw stake, assuming reward and stake tokens share a price.
func CalculateAPR(emissionPerSecond, rawStaked decimal.Decimal) decimal.Decimal {
	if rawStaked.IsZero() {
		return decimal.Zero
	}

	annualRewards := emissionPerSecond.Mul(decimal.NewFromInt(secondsPerYear))
	return annualRewards.Div(rawStaked).Mul(decimal.NewFromInt(100)) // Convert to percentage
}

// ProjectAccumulator returns the accumulator a pool would reach at now without
// mutating anything. Used for read-only previews.
func ProjectAccumulator(acc *uint256.Int, rate, elapsed, weight, totalWeight uint64, weightedStaked *uint256.Int) (*uint256.Int, error) {
	delta, err := RewardPerUnit(rate, elapsed, weight, totalWeight, weightedStaked)
	if err != nil {
		return nil, err
	}
	return Add(acc, delta)
}
