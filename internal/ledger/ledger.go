// Package ledger keeps token vault balances in the kv store.
//
// Changes are staged in a Tx and become visible only when the Tx writes are
// committed, typically in the same MSet as the farm records they belong to.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/leafsii/leafsii-farm/internal/calc"
	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/pkg/kv"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownVault        = errors.New("unknown vault")
)

// RewardVault holds the farm's undistributed rewards.
const RewardVault farm.VaultID = "rewards"

// RewardAsset is the symbol of the token paid out as rewards.
const RewardAsset = "RWD"

const keyPrefix = "ledger:vault:"

// WalletVault is the vault holding wallet's balance of asset.
func WalletVault(wallet farm.Address, asset string) farm.VaultID {
	return farm.VaultID(fmt.Sprintf("wallet:%s:%s", wallet, asset))
}

// PoolVault is the custody vault of a pool.
func PoolVault(id farm.PoolID) farm.VaultID {
	return farm.VaultID("pool:" + id.String())
}

func vaultKey(v farm.VaultID) string {
	return keyPrefix + string(v)
}

type Ledger struct {
	store kv.Store
}

func New(store kv.Store) *Ledger {
	return &Ledger{store: store}
}

// Begin starts a staged view over the current balances.
func (l *Ledger) Begin(ctx context.Context) *Tx {
	return &Tx{
		ctx:    ctx,
		store:  l.store,
		staged: make(map[farm.VaultID]*uint256.Int),
	}
}

// Balance reads a committed balance.
func (l *Ledger) Balance(ctx context.Context, v farm.VaultID) (*uint256.Int, error) {
	return readBalance(ctx, l.store, v)
}

func readBalance(ctx context.Context, store kv.Store, v farm.VaultID) (*uint256.Int, error) {
	raw, err := store.Get(ctx, vaultKey(v))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVault, v)
	}
	if err != nil {
		return nil, fmt.Errorf("read vault %s: %w", v, err)
	}
	bal, err := calc.ParseAmount(string(raw))
	if err != nil {
		return nil, fmt.Errorf("decode vault %s: %w", v, err)
	}
	return bal, nil
}

// Tx stages vault changes for one farm operation. It implements farm.Ledger.
// A Tx is used by a single goroutine and is discarded after its writes are
// committed or abandoned.
type Tx struct {
	ctx    context.Context
	store  kv.Store
	staged map[farm.VaultID]*uint256.Int
}

var _ farm.Ledger = (*Tx)(nil)

func (tx *Tx) load(v farm.VaultID) (*uint256.Int, error) {
	if bal, ok := tx.staged[v]; ok {
		return bal, nil
	}
	bal, err := readBalance(tx.ctx, tx.store, v)
	if err != nil {
		return nil, err
	}
	tx.staged[v] = bal
	return bal, nil
}

func (tx *Tx) Balance(v farm.VaultID) (*uint256.Int, error) {
	bal, err := tx.load(v)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(bal), nil
}

// Open creates v with a zero balance unless it already exists.
func (tx *Tx) Open(v farm.VaultID) error {
	_, err := tx.load(v)
	if errors.Is(err, ErrUnknownVault) {
		tx.staged[v] = calc.Zero()
		return nil
	}
	return err
}

// Mint credits amount to v out of thin air. Only faucet and genesis funding
// use it.
func (tx *Tx) Mint(v farm.VaultID, amount *uint256.Int) error {
	bal, err := tx.load(v)
	if err != nil {
		return err
	}
	sum, err := calc.Add(bal, amount)
	if err != nil {
		return fmt.Errorf("mint to %s: %w", v, err)
	}
	tx.staged[v] = sum
	return nil
}

// Move applies every transfer or none. Transfers are applied in order, so a
// vault may spend what an earlier transfer in the batch credited to it.
func (tx *Tx) Move(transfers ...farm.Transfer) error {
	next := make(map[farm.VaultID]*uint256.Int)
	get := func(v farm.VaultID) (*uint256.Int, error) {
		if bal, ok := next[v]; ok {
			return bal, nil
		}
		bal, err := tx.Balance(v)
		if err != nil {
			return nil, err
		}
		next[v] = bal
		return bal, nil
	}

	for _, t := range transfers {
		from, err := get(t.From)
		if err != nil {
			return err
		}
		to, err := get(t.To)
		if err != nil {
			return err
		}
		if from.Lt(t.Amount) {
			return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, t.From, from.Dec(), t.Amount.Dec())
		}
		from.Sub(from, t.Amount)
		sum, err := calc.Add(to, t.Amount)
		if err != nil {
			return fmt.Errorf("credit %s: %w", t.To, err)
		}
		to.Set(sum)
	}

	for v, bal := range next {
		tx.staged[v] = bal
	}
	return nil
}

// Writes returns the kv entries that commit the staged balances.
func (tx *Tx) Writes() map[string][]byte {
	out := make(map[string][]byte, len(tx.staged))
	for v, bal := range tx.staged {
		out[vaultKey(v)] = []byte(bal.Dec())
	}
	return out
}

// Commit writes the staged balances on their own.
func (tx *Tx) Commit() error {
	return tx.store.MSet(tx.ctx, tx.Writes())
}
