package calc

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolEmissionPerSecond(t *testing.T) {
	tests := []struct {
		name        string
		rate        uint64
		weight      uint64
		totalWeight uint64
		expected    decimal.Decimal
	}{
		{"whole emission", 20, 1000, 1000, decimal.NewFromInt(20)},
		{"quarter", 20, 250, 1000, decimal.NewFromInt(5)},
		{"zero total", 20, 0, 0, decimal.Zero},
		{"zero weight", 20, 0, 1000, decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PoolEmissionPerSecond(tt.rate, tt.weight, tt.totalWeight)
			assert.True(t, tt.expected.Equal(result), "expected %s, got %s", tt.expected, result)
		})
	}
}

func TestCalculateAPR(t *testing.T) {
	// 1 token/s against 31,536,000 staked is 100% a year
	apr := CalculateAPR(decimal.NewFromInt(1), decimal.NewFromInt(secondsPerYear))
	assert.True(t, decimal.NewFromInt(100).Equal(apr), "got %s", apr)

	assert.True(t, CalculateAPR(decimal.NewFromInt(1), decimal.Zero).IsZero())
}

func TestToDecimal(t *testing.T) {
	d := ToDecimal(uint256.NewInt(1_500_000), 6)
	assert.Equal(t, "1.5", d.String())

	assert.True(t, ToDecimal(nil, 6).IsZero())
}

func TestAccumulatorToDecimal(t *testing.T) {
	d := AccumulatorToDecimal(uint256.NewInt(20_000_000_000))
	assert.Equal(t, "0.2", d.String())
}

func TestProjectAccumulator(t *testing.T) {
	acc, err := ProjectAccumulator(uint256.NewInt(5), 20, 10, 1000, 1000, uint256.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, "20000000005", acc.Dec())
}

func TestParseDisplayAmount(t *testing.T) {
	v, err := ParseDisplayAmount("12.5", 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(12_500_000), v.Uint64())

	_, err = ParseDisplayAmount("0.0000001", 6)
	assert.Error(t, err)

	_, err = ParseDisplayAmount("-1", 6)
	assert.Error(t, err)
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(uint256.NewInt(1), "stake"))
	assert.Error(t, ValidateAmount(Zero(), "stake"))
	assert.Error(t, ValidateAmount(nil, "stake"))
}
