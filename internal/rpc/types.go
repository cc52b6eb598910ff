package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pulse-net/pulse-chain/internal/chain"
	"github.com/pulse-net/pulse-chain/internal/mempool"
	"github.com/pulse-net/pulse-chain/pkg/crypto"
	"github.com/pulse-net/pulse-chain/pkg/types"
)

// Response is the JSON envelope for every REST endpoint.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BalanceResult is the /balance/{pubkey} payload.
type BalanceResult struct {
	PubKey  string  `json:"pubkey"`
	Balance float64 `json:"balance"`
}

// BlockListResult is the /blocks payload.
type BlockListResult struct {
	Blocks []*types.PulseBlock `json:"blocks"`
	Total  uint64              `json:"total"`
}

// writeJSON writes an envelope with the given status code.
func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// writeOK writes a success envelope.
func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// writeError writes a failure envelope with a status derived from the error
// kind.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), Response{Success: false, Error: err.Error()})
}

// statusFor maps core error kinds onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chain.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, chain.ErrStorageUnavailable),
		errors.Is(err, chain.ErrFlushFailed):
		return http.StatusInternalServerError
	case errors.Is(err, crypto.ErrBadSignature),
		errors.Is(err, crypto.ErrBadPublicKey),
		errors.Is(err, crypto.ErrBadEncoding),
		errors.Is(err, chain.ErrOutOfRange),
		errors.Is(err, chain.ErrMissingHeartbeat),
		errors.Is(err, chain.ErrInsufficientFunds),
		errors.Is(err, chain.ErrImplausibleBiometrics),
		errors.Is(err, mempool.ErrStaleTimestamp),
		errors.Is(err, mempool.ErrDuplicateSignature),
		errors.Is(err, mempool.ErrOutOfOrder),
		errors.Is(err, mempool.ErrDuplicateTxID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
