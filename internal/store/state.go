package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/pkg/kv"
)

var ErrNotFound = errors.New("record not found")

// StateStore persists farm records in the kv store. Reads go straight to kv;
// writes are collected in a Batch and land with one MSet.
type StateStore struct {
	kv kv.Store
}

func NewStateStore(store kv.Store) *StateStore {
	return &StateStore{kv: store}
}

func (s *StateStore) getJSON(ctx context.Context, key string, dest interface{}) error {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *StateStore) LoadState(ctx context.Context) (*farm.GlobalState, error) {
	var r stateRecord
	if err := s.getJSON(ctx, keyState, &r); err != nil {
		return nil, err
	}
	return r.state(), nil
}

func (s *StateStore) LoadTiers(ctx context.Context) (*farm.LockTierTable, error) {
	var r tierTableRecord
	if err := s.getJSON(ctx, keyTiers, &r); err != nil {
		return nil, err
	}
	return r.table(), nil
}

func (s *StateStore) LoadPool(ctx context.Context, id farm.PoolID) (*farm.Pool, error) {
	var r poolRecord
	if err := s.getJSON(ctx, poolKey(id), &r); err != nil {
		return nil, err
	}
	return r.pool()
}

// LoadPools returns every pool ever created, closed ones included, in id
// order. Pool ids are dense from 1 to next-1.
func (s *StateStore) LoadPools(ctx context.Context, next farm.PoolID) ([]*farm.Pool, error) {
	if next <= 1 {
		return nil, nil
	}
	keys := make([]string, 0, next-1)
	for id := farm.PoolID(1); id < next; id++ {
		keys = append(keys, poolKey(id))
	}
	values, err := s.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("read pools: %w", err)
	}

	pools := make([]*farm.Pool, 0, len(values))
	for i, raw := range values {
		if raw == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, keys[i])
		}
		var r poolRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		p, err := r.pool()
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, nil
}

// ActivePools filters out closed pools.
func ActivePools(pools []*farm.Pool) []*farm.Pool {
	out := make([]*farm.Pool, 0, len(pools))
	for _, p := range pools {
		if !p.Closed {
			out = append(out, p)
		}
	}
	return out
}

func (s *StateStore) LoadPosition(ctx context.Context, pool farm.PoolID, wallet farm.Address) (*farm.Position, error) {
	var r positionRecord
	if err := s.getJSON(ctx, PositionKey(pool, wallet), &r); err != nil {
		return nil, err
	}
	return r.position()
}

// WalletPools lists the pools wallet holds a position in, in creation order.
func (s *StateStore) WalletPools(ctx context.Context, wallet farm.Address) ([]farm.PoolID, error) {
	var ids []farm.PoolID
	err := s.getJSON(ctx, walletPoolsKey(wallet), &ids)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return ids, err
}

func (s *StateStore) Metadata(ctx context.Context, wallet farm.Address) (string, error) {
	raw, err := s.kv.Get(ctx, metadataKey(wallet))
	if errors.Is(err, kv.ErrNotFound) {
		return "", fmt.Errorf("%w: metadata of %s", ErrNotFound, wallet)
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Commit writes every entry of b in one MSet.
func (s *StateStore) Commit(ctx context.Context, b *Batch) error {
	if b.err != nil {
		return b.err
	}
	return s.kv.MSet(ctx, b.writes)
}

// Batch collects the records touched by one operation. Encoding errors are
// kept and reported by Commit.
type Batch struct {
	writes map[string][]byte
	err    error
}

func NewBatch() *Batch {
	return &Batch{writes: make(map[string][]byte)}
}

func (b *Batch) putJSON(key string, v interface{}) {
	if b.err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		b.err = fmt.Errorf("encode %s: %w", key, err)
		return
	}
	b.writes[key] = data
}

func (b *Batch) PutState(s *farm.GlobalState) *Batch {
	b.putJSON(keyState, toStateRecord(s))
	return b
}

func (b *Batch) PutTiers(t *farm.LockTierTable) *Batch {
	b.putJSON(keyTiers, toTierTableRecord(t))
	return b
}

func (b *Batch) PutPool(p *farm.Pool) *Batch {
	b.putJSON(poolKey(p.ID), toPoolRecord(p))
	return b
}

func (b *Batch) PutPools(pools []*farm.Pool) *Batch {
	for _, p := range pools {
		b.PutPool(p)
	}
	return b
}

func (b *Batch) PutPosition(p *farm.Position) *Batch {
	b.putJSON(PositionKey(p.Pool, p.Owner), toPositionRecord(p))
	return b
}

func (b *Batch) PutWalletPools(wallet farm.Address, ids []farm.PoolID) *Batch {
	b.putJSON(walletPoolsKey(wallet), ids)
	return b
}

func (b *Batch) PutMetadata(wallet farm.Address, value string) *Batch {
	b.writes[metadataKey(wallet)] = []byte(value)
	return b
}

// Merge adds raw entries, such as ledger balance writes.
func (b *Batch) Merge(writes map[string][]byte) *Batch {
	for k, v := range writes {
		b.writes[k] = v
	}
	return b
}

func (b *Batch) Len() int {
	return len(b.writes)
}
