// Package service serializes farm operations over the persistent store.
//
// Each operation runs under one lock: load the records it needs, hand them to
// a fresh farm.Engine bound to a staged ledger transaction, and commit the
// touched records together with the ledger balances in a single MSet. Events
// are handed to the sinks only after that write succeeded.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/internal/ledger"
	"github.com/leafsii/leafsii-farm/internal/metrics"
	"github.com/leafsii/leafsii-farm/internal/store"
	"github.com/leafsii/leafsii-farm/pkg/kv"
)

var (
	ErrPoolNotFound       = errors.New("pool not found")
	ErrPositionNotFound   = errors.New("position not found")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrFaucetDisabled     = errors.New("faucet disabled")
)

// Clock supplies the current time in unix seconds.
type Clock interface {
	Now() int64
}

type systemClock struct{}

func (systemClock) Now() int64 { return time.Now().Unix() }

// EventSink receives the events of every committed operation.
type EventSink interface {
	AppendEvents(ctx context.Context, events []store.EventRecord) error
}

type Options struct {
	Clock   Clock
	Logger  *zap.SugaredLogger
	Metrics *metrics.Metrics
	Sinks   []EventSink
	// Faucet enables minting test balances.
	Faucet bool
}

type Service struct {
	mu sync.RWMutex
	sf singleflight.Group

	state  *store.StateStore
	ledger *ledger.Ledger
	clock  Clock
	sinks  []EventSink
	faucet bool

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func New(kvStore kv.Store, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Service{
		state:   store.NewStateStore(kvStore),
		ledger:  ledger.New(kvStore),
		clock:   opts.Clock,
		sinks:   opts.Sinks,
		faucet:  opts.Faucet,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// AddSink registers a sink for events committed from now on.
func (s *Service) AddSink(sink EventSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// op is the working set of one operation.
type op struct {
	ctx    context.Context
	now    int64
	tx     *ledger.Tx
	engine *farm.Engine
	batch  *store.Batch
}

func (s *Service) run(ctx context.Context, name string, fn func(o *op) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	tx := s.ledger.Begin(ctx)
	o := &op{
		ctx:    ctx,
		now:    s.clock.Now(),
		tx:     tx,
		engine: farm.NewEngine(tx),
		batch:  store.NewBatch(),
	}

	err := fn(o)
	if err == nil {
		o.batch.Merge(tx.Writes())
		if err = s.state.Commit(ctx, o.batch); err != nil {
			err = fmt.Errorf("commit %s: %w", name, err)
		}
	}

	if err != nil {
		s.metrics.RecordOperation(ctx, name, "error", time.Since(start))
		s.logger.Warnw("Farm operation rejected", "op", name, "error", err)
		return err
	}

	s.metrics.RecordOperation(ctx, name, "ok", time.Since(start))
	s.logger.Debugw("Farm operation committed", "op", name, "writes", o.batch.Len(), "time", o.now)
	s.publish(ctx, o.engine.Events())
	return nil
}

// publish hands events to every sink. State is already committed, so sink
// failures are logged and not returned.
func (s *Service) publish(ctx context.Context, events []farm.Event) {
	if len(events) == 0 {
		return
	}
	records := make([]store.EventRecord, len(events))
	for i, ev := range events {
		records[i] = store.NewEventRecord(ev)
		s.metrics.RecordEvent(ctx, string(ev.Type))
	}
	for _, sink := range s.sinks {
		if err := sink.AppendEvents(ctx, records); err != nil {
			s.logger.Errorw("Failed to deliver farm events", "sink", fmt.Sprintf("%T", sink), "count", len(records), "error", err)
		}
	}
}

func loadState(ctx context.Context, st *store.StateStore) (*farm.GlobalState, error) {
	state, err := st.LoadState(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, farm.ErrNotInitialized
	}
	return state, err
}

func loadTiers(ctx context.Context, st *store.StateStore) (*farm.LockTierTable, error) {
	tiers, err := st.LoadTiers(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: no lock tier table", farm.ErrNotInitialized)
	}
	return tiers, err
}

func loadPool(ctx context.Context, st *store.StateStore, id farm.PoolID) (*farm.Pool, error) {
	pool, err := st.LoadPool(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrPoolNotFound, id)
	}
	return pool, err
}

func loadPosition(ctx context.Context, st *store.StateStore, id farm.PoolID, wallet farm.Address) (*farm.Position, error) {
	pos, err := st.LoadPosition(ctx, id, wallet)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: pool %d, wallet %s", ErrPositionNotFound, id, wallet)
	}
	return pos, err
}

// activeSet loads every non-closed pool. Admin operations pass it to the
// engine as the complete pool set.
func activeSet(ctx context.Context, st *store.StateStore, state *farm.GlobalState) ([]*farm.Pool, error) {
	pools, err := st.LoadPools(ctx, state.NextPoolID)
	if err != nil {
		return nil, err
	}
	return store.ActivePools(pools), nil
}

// member returns the element of pools with the given id, so that updates to
// the target are seen by the set and vice versa.
func member(pools []*farm.Pool, id farm.PoolID) *farm.Pool {
	for _, p := range pools {
		if p.ID == id {
			return p
		}
	}
	return nil
}
