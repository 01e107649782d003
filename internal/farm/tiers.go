package farm

import "fmt"

// MaxLockTiers caps the table size.
const MaxLockTiers = 16

// DefaultLockTiers is the production tier ladder: one, three and six months
// and one year, with bonuses of 0%, 10%, 30% and 100%.
func DefaultLockTiers() []LockTier {
	const month = 30 * 24 * 60 * 60
	return []LockTier{
		{DurationSeconds: 1 * month, BonusBasisPoints: 0},
		{DurationSeconds: 3 * month, BonusBasisPoints: 1_000},
		{DurationSeconds: 6 * month, BonusBasisPoints: 3_000},
		{DurationSeconds: 365 * 24 * 60 * 60, BonusBasisPoints: 10_000},
	}
}

// ValidateLockTiers requires a non-empty table whose durations and bonuses
// never decrease with the index.
func ValidateLockTiers(tiers []LockTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: table is empty", ErrInvalidTierSequence)
	}
	if len(tiers) > MaxLockTiers {
		return fmt.Errorf("%w: %d tiers exceeds limit of %d", ErrInvalidTierSequence, len(tiers), MaxLockTiers)
	}

	var prev LockTier
	for i, tier := range tiers {
		if tier.DurationSeconds < 0 {
			return fmt.Errorf("%w: tier %d has negative duration", ErrInvalidTierSequence, i)
		}
		if tier.DurationSeconds < prev.DurationSeconds || tier.BonusBasisPoints < prev.BonusBasisPoints {
			return fmt.Errorf("%w: tier %d decreases", ErrInvalidTierSequence, i)
		}
		prev = tier
	}
	return nil
}

// Tier returns the tier at index i or ErrInvalidLockDuration.
func (t *LockTierTable) Tier(i int) (LockTier, error) {
	if i < 0 || i >= len(t.Tiers) {
		return LockTier{}, fmt.Errorf("%w: tier %d of %d", ErrInvalidLockDuration, i, len(t.Tiers))
	}
	return t.Tiers[i], nil
}
