package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/leafsii/leafsii-farm/internal/farm"
	"github.com/leafsii/leafsii-farm/internal/ledger"
	"github.com/leafsii/leafsii-farm/internal/service"
)

type apiError struct {
	err    error
	status int
	code   string
}

var errorTable = []apiError{
	{farm.ErrInvalidLockDuration, http.StatusBadRequest, "INVALID_LOCK_DURATION"},
	{farm.ErrOverStakedAmount, http.StatusBadRequest, "OVER_STAKED_AMOUNT"},
	{farm.ErrArithmeticOverflow, http.StatusUnprocessableEntity, "ARITHMETIC_OVERFLOW"},
	{farm.ErrPoolClosed, http.StatusConflict, "POOL_CLOSED"},
	{farm.ErrIncompletePoolSet, http.StatusConflict, "INCOMPLETE_POOL_SET"},
	{farm.ErrUnauthorized, http.StatusForbidden, "UNAUTHORIZED"},
	{farm.ErrPoolNotEmpty, http.StatusConflict, "POOL_NOT_EMPTY"},
	{farm.ErrInvalidTierSequence, http.StatusBadRequest, "INVALID_TIER_SEQUENCE"},
	{farm.ErrPositionMismatch, http.StatusBadRequest, "POSITION_MISMATCH"},
	{farm.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{farm.ErrNotInitialized, http.StatusConflict, "NOT_INITIALIZED"},
	{farm.ErrMetadataTooLong, http.StatusBadRequest, "METADATA_TOO_LONG"},
	{farm.ErrInvalidAddress, http.StatusBadRequest, "INVALID_ADDRESS"},
	{ledger.ErrInsufficientBalance, http.StatusBadRequest, "INSUFFICIENT_BALANCE"},
	{ledger.ErrUnknownVault, http.StatusNotFound, "UNKNOWN_VAULT"},
	{service.ErrPoolNotFound, http.StatusNotFound, "POOL_NOT_FOUND"},
	{service.ErrPositionNotFound, http.StatusNotFound, "POSITION_NOT_FOUND"},
	{service.ErrAlreadyInitialized, http.StatusConflict, "ALREADY_INITIALIZED"},
	{service.ErrFaucetDisabled, http.StatusForbidden, "FAUCET_DISABLED"},
}

// classify maps an operation error onto an HTTP status and a stable code.
// Unknown errors are internal and their text is not exposed.
func classify(err error) (int, string, string) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, e.code, err.Error()
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", "internal error"
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:    code,
		Message: message,
	})
}
