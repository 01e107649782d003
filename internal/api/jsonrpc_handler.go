package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/leafsii/leafsii-farm/internal/farm"
)

type rpcMethod struct {
	// write methods act on behalf of the authenticated wallet.
	write bool
	call  func(h *Handler, r *http.Request, p *FarmParams) (interface{}, error)
}

var rpcMethods = map[string]rpcMethod{
	"farm_getState": {call: func(h *Handler, r *http.Request, _ *FarmParams) (interface{}, error) {
		state, err := h.svc.State(r.Context())
		if err != nil {
			return nil, err
		}
		rewards, err := h.svc.RewardVaultBalance(r.Context())
		if err != nil {
			return nil, err
		}
		return toStateDTO(state, rewards), nil
	}},
	"farm_getLockTiers": {call: func(h *Handler, r *http.Request, _ *FarmParams) (interface{}, error) {
		table, err := h.svc.Tiers(r.Context())
		if err != nil {
			return nil, err
		}
		return toLockTiersDTO(table), nil
	}},
	"farm_getPools": {call: func(h *Handler, r *http.Request, _ *FarmParams) (interface{}, error) {
		pools, err := h.svc.Pools(r.Context())
		if err != nil {
			return nil, err
		}
		out := make([]PoolDTO, len(pools))
		for i, p := range pools {
			out[i] = toPoolDTO(p)
		}
		return out, nil
	}},
	"farm_getPool": {call: func(h *Handler, r *http.Request, p *FarmParams) (interface{}, error) {
		pool, err := h.svc.Pool(r.Context(), farm.PoolID(p.PoolID))
		if err != nil {
			return nil, err
		}
		return toPoolDTO(pool), nil
	}},
	"farm_getPoolStats": {call: func(h *Handler, r *http.Request, p *FarmParams) (interface{}, error) {
		stats, err := h.svc.PoolStats(r.Context(), farm.PoolID(p.PoolID))
		if err != nil {
			return nil, err
		}
		return toPoolStatsDTO(stats), nil
	}},
	"farm_getPosition": {call: func(h *Handler, r *http.Request, p *FarmParams) (interface{}, error) {
		wallet, err := farm.ParseAddress(p.Wallet)
		if err != nil {
			return nil, err
		}
		view, err := h.svc.Position(r.Context(), farm.PoolID(p.PoolID), wallet)
		if err != nil {
			return nil, err
		}
		return toPositionViewDTO(view, h.config.Farm.RewardDecimals), nil
	}},
	"farm_getMetadata": {call: func(h *Handler, r *http.Request, p *FarmParams) (interface{}, error) {
		wallet, err := farm.ParseAddress(p.Wallet)
		if err != nil {
			return nil, err
		}
		value, err := h.svc.Metadata(r.Context(), wallet)
		if err != nil {
			return nil, err
		}
		return MetadataDTO{Wallet: string(wallet), Value: value}, nil
	}},
	"farm_createPosition": {write: true, call: func(h *Handler, r *http.Request, p *FarmParams) (interface{}, error) {
		pos, err := h.svc.CreatePosition(r.Context(), h.principal(r), farm.PoolID(p.PoolID))
		if err != nil {
			return nil, err
		}
		return toPositionDTO(pos), nil
	}},
	"farm_stake": {write: true, call: func(h *Handler, r *http.Request, p *FarmParams) (interface{}, error) {
		amount, err := parseAmount(p.Amount, "stake")
		if err != nil {
			return nil, err
		}
		pos, err := h.svc.Stake(r.Context(), h.principal(r), farm.PoolID(p.PoolID), amount, p.LockTier)
		if err != nil {
			return nil, err
		}
		return toPositionDTO(pos), nil
	}},
	"farm_unstake": {write: true, call: func(h *Handler, r *http.Request, p *FarmParams) (interface{}, error) {
		amount, err := parseAmount(p.Amount, "unstake")
		if err != nil {
			return nil, err
		}
		pos, reward, err := h.svc.Unstake(r.Context(), h.principal(r), farm.PoolID(p.PoolID), amount)
		if err != nil {
			return nil, err
		}
		return toPositionRewardDTO(pos, reward, h.config.Farm.RewardDecimals), nil
	}},
	"farm_harvest": {write: true, call: func(h *Handler, r *http.Request, p *FarmParams) (interface{}, error) {
		pos, reward, err := h.svc.Harvest(r.Context(), h.principal(r), farm.PoolID(p.PoolID))
		if err != nil {
			return nil, err
		}
		return toPositionRewardDTO(pos, reward, h.config.Farm.RewardDecimals), nil
	}},
}

// HandleJSONRPC handles JSON-RPC 2.0 requests
func (h *Handler) HandleJSONRPC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Parse JSON-RPC request
	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendJSONRPCError(w, nil, JSONRPCParseError, "Parse error", err.Error())
		return
	}

	// Validate JSON-RPC version
	if req.JSONRPC != "2.0" {
		h.sendJSONRPCError(w, req.ID, JSONRPCInvalidRequest, "Invalid Request", "jsonrpc must be '2.0'")
		return
	}

	method, ok := rpcMethods[req.Method]
	if !ok {
		h.sendJSONRPCError(w, req.ID, JSONRPCMethodNotFound, "Method not found", fmt.Sprintf("Method '%s' not found", req.Method))
		return
	}
	if method.write && h.principal(r) == "" {
		h.sendJSONRPCError(w, req.ID, JSONRPCFarmError, "UNAUTHORIZED", "bearer token required")
		return
	}

	var params FarmParams
	if req.Params != nil {
		// Params arrive as a generic value; round-trip them into the typed struct.
		paramsBytes, err := json.Marshal(req.Params)
		if err != nil {
			h.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "Invalid params", "Failed to parse parameters")
			return
		}
		if err := json.Unmarshal(paramsBytes, &params); err != nil {
			h.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "Invalid params", err.Error())
			return
		}
	}

	result, err := method.call(h, r, &params)
	if err != nil {
		status, code, message := classify(err)
		if status == http.StatusInternalServerError {
			h.logger.Errorw("JSON-RPC method failed", "method", req.Method, "error", err)
			h.sendJSONRPCError(w, req.ID, JSONRPCInternalError, "Internal error", message)
			return
		}
		h.sendJSONRPCError(w, req.ID, JSONRPCFarmError, code, message)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
	})
}

func (h *Handler) sendJSONRPCError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	errorResp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}

	w.WriteHeader(http.StatusOK) // JSON-RPC errors are sent with HTTP 200
	json.NewEncoder(w).Encode(errorResp)
}
