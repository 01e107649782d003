package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/leafsii/leafsii-farm/internal/calc"
	"github.com/leafsii/leafsii-farm/internal/config"
	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/internal/service"
	"github.com/leafsii/leafsii-farm/internal/store"
)

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 500
)

// EventJournal pages through the persisted event history.
type EventJournal interface {
	WalletEvents(ctx context.Context, wallet string, limit int, cursor string) ([]store.EventRecord, string, error)
}

// HealthChecker is a dependency probed by /readyz.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	svc     *service.Service
	journal EventJournal
	ws      http.HandlerFunc
	sse     http.HandlerFunc
	checks  map[string]HealthChecker
	config  *config.Config
	logger  *zap.SugaredLogger
}

// NewHandler builds the farm API handler. journal may be nil when no event
// journal is configured; ws and sse may be nil to disable streaming.
func NewHandler(
	svc *service.Service,
	journal EventJournal,
	ws http.HandlerFunc,
	sse http.HandlerFunc,
	checks map[string]HealthChecker,
	config *config.Config,
	logger *zap.SugaredLogger,
) *Handler {
	return &Handler{
		svc:     svc,
		journal: journal,
		ws:      ws,
		sse:     sse,
		checks:  checks,
		config:  config,
		logger:  logger,
	}
}

// Health and ops endpoints
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			h.logger.Warnw("Readiness check failed", "dependency", name, "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "NOT READY: %s", name)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// Farm state

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.State(r.Context())
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	rewards, err := h.svc.RewardVaultBalance(r.Context())
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toStateDTO(state, rewards))
}

// InitializeFarm creates the farm singleton. Only the configured admin may
// call it; that admin becomes the farm authority.
func (h *Handler) InitializeFarm(w http.ResponseWriter, r *http.Request) {
	caller := h.principal(r)
	if h.config.Farm.Admin == "" || caller != h.config.Farm.Admin {
		h.writeError(w, http.StatusForbidden, "UNAUTHORIZED", "only the configured admin can initialize the farm")
		return
	}
	var req InitializeRequest
	if !h.decode(w, r, &req) {
		return
	}
	state, err := h.svc.Initialize(r.Context(), caller, req.EmissionRate)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toStateDTO(state, calc.Zero()))
}

func (h *Handler) ChangeEmissionRate(w http.ResponseWriter, r *http.Request) {
	var req EmissionRateRequest
	if !h.decode(w, r, &req) {
		return
	}
	state, err := h.svc.ChangeEmissionRate(r.Context(), h.principal(r), req.EmissionRate)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	rewards, err := h.svc.RewardVaultBalance(r.Context())
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toStateDTO(state, rewards))
}

func (h *Handler) FundRewards(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := h.parseRewardAmount(req.Amount)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	if err := h.svc.FundRewards(r.Context(), h.principal(r), amount); err != nil {
		h.writeOpError(w, err)
		return
	}
	h.GetState(w, r)
}

// Lock tiers

func (h *Handler) GetLockTiers(w http.ResponseWriter, r *http.Request) {
	table, err := h.svc.Tiers(r.Context())
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toLockTiersDTO(table))
}

func (h *Handler) CreateLockTiers(w http.ResponseWriter, r *http.Request) {
	var req LockTiersRequest
	if !h.decode(w, r, &req) {
		return
	}
	table, err := h.svc.CreateLockTiers(r.Context(), h.principal(r), fromLockTierDTOs(req.Tiers))
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toLockTiersDTO(table))
}

func (h *Handler) SetLockTiers(w http.ResponseWriter, r *http.Request) {
	var req LockTiersRequest
	if !h.decode(w, r, &req) {
		return
	}
	table, err := h.svc.SetLockTiers(r.Context(), h.principal(r), fromLockTierDTOs(req.Tiers))
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toLockTiersDTO(table))
}

// Pools

func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.svc.Pools(r.Context())
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	out := make([]PoolDTO, len(pools))
	for i, p := range pools {
		out[i] = toPoolDTO(p)
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	pool, err := h.svc.Pool(r.Context(), id)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPoolDTO(pool))
}

func (h *Handler) GetPoolStats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.PoolStats(r.Context(), id)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPoolStatsDTO(stats))
}

func (h *Handler) ListPoolStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.AllPoolStats(r.Context())
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	out := make([]PoolStatsDTO, len(stats))
	for i, s := range stats {
		out[i] = toPoolStatsDTO(s)
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Asset) == "" {
		h.writeError(w, http.StatusBadRequest, "INVALID_ASSET", "asset is required")
		return
	}
	pool, err := h.svc.CreatePool(r.Context(), h.principal(r), req.Asset, req.Weight, req.AmountMultiplier)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toPoolDTO(pool))
}

func (h *Handler) ClosePool(w http.ResponseWriter, r *http.Request) {
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	pool, err := h.svc.ClosePool(r.Context(), h.principal(r), id)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPoolDTO(pool))
}

func (h *Handler) ChangePoolWeight(w http.ResponseWriter, r *http.Request) {
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	var req PoolWeightRequest
	if !h.decode(w, r, &req) {
		return
	}
	pool, err := h.svc.ChangePoolWeight(r.Context(), h.principal(r), id, req.Weight)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPoolDTO(pool))
}

func (h *Handler) ChangePoolAmountMultiplier(w http.ResponseWriter, r *http.Request) {
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	var req PoolMultiplierRequest
	if !h.decode(w, r, &req) {
		return
	}
	pool, err := h.svc.ChangePoolAmountMultiplier(r.Context(), h.principal(r), id, req.AmountMultiplier)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPoolDTO(pool))
}

// Positions

func (h *Handler) CreatePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	pos, err := h.svc.CreatePosition(r.Context(), h.principal(r), id)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPositionDTO(pos))
}

func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	wallet, ok := h.wallet(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Position(r.Context(), id, wallet)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPositionViewDTO(view, h.config.Farm.RewardDecimals))
}

func (h *Handler) Stake(w http.ResponseWriter, r *http.Request) {
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	var req StakeRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount, "stake")
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	pos, err := h.svc.Stake(r.Context(), h.principal(r), id, amount, req.LockTier)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPositionDTO(pos))
}

func (h *Handler) Unstake(w http.ResponseWriter, r *http.Request) {
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount, "unstake")
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	pos, reward, err := h.svc.Unstake(r.Context(), h.principal(r), id, amount)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPositionRewardDTO(pos, reward, h.config.Farm.RewardDecimals))
}

func (h *Handler) Harvest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.poolID(w, r)
	if !ok {
		return
	}
	pos, reward, err := h.svc.Harvest(r.Context(), h.principal(r), id)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPositionRewardDTO(pos, reward, h.config.Farm.RewardDecimals))
}

// Wallets

func (h *Handler) GetWalletPositions(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.wallet(w, r)
	if !ok {
		return
	}
	views, err := h.svc.WalletPositions(r.Context(), wallet)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	out := make([]PositionDTO, len(views))
	for i, v := range views {
		out[i] = toPositionViewDTO(v, h.config.Farm.RewardDecimals)
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetWalletBalance(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.wallet(w, r)
	if !ok {
		return
	}
	asset := chi.URLParam(r, "asset")
	bal, err := h.svc.Balance(r.Context(), wallet, asset)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, BalanceDTO{Wallet: string(wallet), Asset: asset, Balance: amountString(bal)})
}

func (h *Handler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.wallet(w, r)
	if !ok {
		return
	}
	value, err := h.svc.Metadata(r.Context(), wallet)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, MetadataDTO{Wallet: string(wallet), Value: value})
}

func (h *Handler) SetMetadata(w http.ResponseWriter, r *http.Request) {
	wallet, ok := h.wallet(w, r)
	if !ok {
		return
	}
	var req MetadataRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.SetMetadata(r.Context(), h.principal(r), wallet, req.Value); err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, MetadataDTO{Wallet: string(wallet), Value: req.Value})
}

func (h *Handler) GetWalletEvents(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		h.writeError(w, http.StatusServiceUnavailable, "JOURNAL_DISABLED", "event journal is not configured")
		return
	}
	wallet, ok := h.wallet(w, r)
	if !ok {
		return
	}

	limit := defaultEventsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		if n > maxEventsLimit {
			n = maxEventsLimit
		}
		limit = n
	}

	events, next, err := h.journal.WalletEvents(r.Context(), string(wallet), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		h.logger.Errorw("Failed to read wallet events", "wallet", wallet, "error", err)
		h.writeError(w, http.StatusInternalServerError, "JOURNAL_ERROR", "failed to read events")
		return
	}
	if events == nil {
		events = []store.EventRecord{}
	}
	h.writeJSON(w, http.StatusOK, EventsPageDTO{Events: events, NextCursor: next})
}

// Faucet mints test balances to the caller. It answers FAUCET_DISABLED unless
// the development faucet is enabled.
func (h *Handler) Faucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Asset) == "" {
		h.writeError(w, http.StatusBadRequest, "INVALID_ASSET", "asset is required")
		return
	}
	amount, err := parseAmount(req.Amount, "faucet")
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	caller := h.principal(r)
	bal, err := h.svc.Faucet(r.Context(), caller, req.Asset, amount)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, BalanceDTO{Wallet: string(caller), Asset: req.Asset, Balance: amountString(bal)})
}

// Live updates

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.ws == nil {
		h.writeError(w, http.StatusServiceUnavailable, "STREAM_DISABLED", "websocket updates are not enabled")
		return
	}
	h.ws(w, r)
}

func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	if h.sse == nil {
		h.writeError(w, http.StatusServiceUnavailable, "STREAM_DISABLED", "event stream is not enabled")
		return
	}
	h.sse(w, r)
}

// Utility methods

func (h *Handler) principal(r *http.Request) farm.Address {
	addr, _ := PrincipalFrom(r.Context())
	return addr
}

func (h *Handler) poolID(w http.ResponseWriter, r *http.Request) (farm.PoolID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		h.writeError(w, http.StatusBadRequest, "INVALID_POOL_ID", fmt.Sprintf("invalid pool id %q", raw))
		return 0, false
	}
	return farm.PoolID(id), true
}

func (h *Handler) wallet(w http.ResponseWriter, r *http.Request) (farm.Address, bool) {
	addr, err := farm.ParseAddress(chi.URLParam(r, "wallet"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
		return "", false
	}
	return addr, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body: "+err.Error())
		return false
	}
	return true
}

func parseAmount(raw, operation string) (*uint256.Int, error) {
	amount, err := calc.ParseAmount(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", farm.ErrInvalidAmount, err)
	}
	if err := calc.ValidateAmount(amount, operation); err != nil {
		return nil, fmt.Errorf("%w: %v", farm.ErrInvalidAmount, err)
	}
	return amount, nil
}

// parseRewardAmount accepts base units, or a display amount such as "12.5"
// scaled by the reward token decimals.
func (h *Handler) parseRewardAmount(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, ".") {
		return parseAmount(raw, "fund")
	}
	amount, err := calc.ParseDisplayAmount(raw, h.config.Farm.RewardDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", farm.ErrInvalidAmount, err)
	}
	if err := calc.ValidateAmount(amount, "fund"); err != nil {
		return nil, fmt.Errorf("%w: %v", farm.ErrInvalidAmount, err)
	}
	return amount, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	if status >= http.StatusInternalServerError {
		h.logger.Errorw("API error", "code", code, "message", message, "status", status)
	} else {
		h.logger.Debugw("API error", "code", code, "message", message, "status", status)
	}
	writeErrorResponse(w, status, code, message)
}

func (h *Handler) writeOpError(w http.ResponseWriter, err error) {
	status, code, message := classify(err)
	if status == http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		h.logger.Errorw("Operation failed", "error", err)
	}
	h.writeError(w, status, code, message)
}
