package initializer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/leafsii/leafsii-farm/internal/farm"
)

// Genesis describes the farm a fresh deployment starts with.
type Genesis struct {
	Authority    string `json:"authority"`
	EmissionRate uint64 `json:"emission_rate"`
	// RewardFunding is minted to the authority and moved into the reward
	// vault when the farm is first created. Needs the dev faucet.
	RewardFunding string     `json:"reward_funding,omitempty"`
	LockTiers     []GenesisTier `json:"lock_tiers,omitempty"`
	Pools         []GenesisPool `json:"pools"`
}

type GenesisTier struct {
	DurationSeconds int64  `json:"duration_seconds"`
	BonusBps        uint64 `json:"bonus_bps"`
}

type GenesisPool struct {
	Asset            string `json:"asset"`
	Weight           uint64 `json:"weight"`
	AmountMultiplier uint64 `json:"amount_multiplier"`
}

// DefaultGenesis is a single-pool farm owned by authority.
func DefaultGenesis(authority farm.Address) Genesis {
	g := Genesis{
		Authority:    string(authority),
		EmissionRate: 1_000_000,
		Pools:        []GenesisPool{{Asset: "STK", Weight: 100, AmountMultiplier: 1}},
	}
	for _, t := range farm.DefaultLockTiers() {
		g.LockTiers = append(g.LockTiers, GenesisTier{DurationSeconds: t.DurationSeconds, BonusBps: t.BonusBasisPoints})
	}
	return g
}

func (g Genesis) tiers() []farm.LockTier {
	if len(g.LockTiers) == 0 {
		return farm.DefaultLockTiers()
	}
	out := make([]farm.LockTier, len(g.LockTiers))
	for i, t := range g.LockTiers {
		out[i] = farm.LockTier{DurationSeconds: t.DurationSeconds, BonusBasisPoints: t.BonusBps}
	}
	return out
}

// ReadGenesis reads JSON at path.
// Returns os.ErrNotExist if the file doesn't exist.
// Returns a zero Genesis if the file is empty.
func ReadGenesis(path string) (Genesis, error) {
	var g Genesis

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return g, err
		}
		return g, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return g, fmt.Errorf("stat: %w", err)
	}
	if st.Size() == 0 {
		return g, nil
	}

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&g); err != nil && !errors.Is(err, io.EOF) {
		return g, fmt.Errorf("decode: %w", err)
	}
	return g, nil
}

// WriteGenesis writes g as indented JSON to path atomically, keeping the
// existing file mode (0644 for a new file).
func WriteGenesis(path string, g Genesis) error {
	mode := fs.FileMode(0o644)
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode()
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat: %w", err)
	}

	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	data = append(data, '\n')

	if err := writeFileAtomic(path, data, mode); err != nil {
		return fmt.Errorf("atomic write: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, content []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		cleanup()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}

	// Best effort; the rename already happened.
	if df, err := os.Open(dir); err == nil {
		_ = df.Sync()
		df.Close()
	}
	return nil
}
