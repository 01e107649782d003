package initializer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/leafsii/leafsii-farm/internal/calc"
	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/internal/ledger"
	"github.com/leafsii/leafsii-farm/internal/service"
)

type Result struct {
	Authority farm.Address
	// Created is true when this run created the farm singleton.
	Created bool
	// NewPools lists the pools created by this run.
	NewPools []farm.PoolID
	Funded   string
}

// Initialize brings the farm up to g. It is safe to run on every boot: the
// singleton and tier table are created once and only pools past the ones that
// already exist are added.
func Initialize(ctx context.Context, svc *service.Service, g Genesis, logger *zap.SugaredLogger) (Result, error) {
	var result Result

	authority, err := farm.ParseAddress(g.Authority)
	if err != nil {
		return result, fmt.Errorf("genesis authority: %w", err)
	}
	result.Authority = authority

	_, err = svc.Initialize(ctx, authority, g.EmissionRate)
	switch {
	case err == nil:
		result.Created = true
		logger.Infow("Created farm", "authority", authority, "emission_rate", g.EmissionRate)
	case errors.Is(err, service.ErrAlreadyInitialized):
		state, err := svc.State(ctx)
		if err != nil {
			return result, err
		}
		if state.Authority != authority {
			return result, fmt.Errorf("farm already owned by %s, genesis names %s", state.Authority, authority)
		}
	default:
		return result, fmt.Errorf("failed to create farm: %w", err)
	}

	if _, err := svc.CreateLockTiers(ctx, authority, g.tiers()); err != nil && !errors.Is(err, service.ErrAlreadyInitialized) {
		return result, fmt.Errorf("failed to create lock tiers: %w", err)
	}

	existing, err := svc.Pools(ctx)
	if err != nil {
		return result, err
	}
	for i, want := range g.Pools {
		if i < len(existing) {
			if existing[i].Asset != want.Asset {
				return result, fmt.Errorf("pool %d holds %s, genesis names %s", existing[i].ID, existing[i].Asset, want.Asset)
			}
			continue
		}
		pool, err := svc.CreatePool(ctx, authority, want.Asset, want.Weight, want.AmountMultiplier)
		if err != nil {
			return result, fmt.Errorf("failed to create pool for %s: %w", want.Asset, err)
		}
		result.NewPools = append(result.NewPools, pool.ID)
		logger.Infow("Created pool", "pool_id", pool.ID, "asset", pool.Asset, "weight", pool.Weight)
	}

	if result.Created && g.RewardFunding != "" {
		if err := fund(ctx, svc, authority, g.RewardFunding, logger); err != nil {
			return result, err
		}
		result.Funded = g.RewardFunding
	}
	return result, nil
}

func fund(ctx context.Context, svc *service.Service, authority farm.Address, raw string, logger *zap.SugaredLogger) error {
	amount, err := calc.ParseAmount(raw)
	if err != nil {
		return fmt.Errorf("genesis reward_funding: %w", err)
	}
	if amount.IsZero() {
		return nil
	}
	if _, err := svc.Faucet(ctx, authority, ledger.RewardAsset, amount); err != nil {
		if errors.Is(err, service.ErrFaucetDisabled) {
			logger.Warnw("Skipping genesis reward funding, faucet disabled", "amount", raw)
			return nil
		}
		return fmt.Errorf("failed to mint reward funding: %w", err)
	}
	if err := svc.FundRewards(ctx, authority, amount); err != nil {
		return fmt.Errorf("failed to fund rewards: %w", err)
	}
	logger.Infow("Funded reward vault", "amount", raw)
	return nil
}
