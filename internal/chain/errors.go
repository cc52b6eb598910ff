package chain

import "errors"

// Errors surfaced by the chain engine. The RPC layer maps these onto HTTP
// status codes with errors.Is; the signature/encoding errors from
// pkg/crypto and the admission errors from internal/mempool pass through
// wrapped and are matched the same way.
var (
	// ErrOutOfRange rejects field values outside their physiological or
	// numeric bounds (heart rate, negative amounts).
	ErrOutOfRange = errors.New("value out of range")

	// ErrMissingHeartbeat rejects a transaction whose liveness reference is
	// not in the recent-signatures set.
	ErrMissingHeartbeat = errors.New("referenced heartbeat not known")

	// ErrInsufficientFunds rejects a transaction exceeding the sender's
	// balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrImplausibleBiometrics rejects heartbeats that fail the sensor
	// plausibility checks.
	ErrImplausibleBiometrics = errors.New("implausible biometric signal")

	// ErrNotFound is returned for unknown block indices.
	ErrNotFound = errors.New("not found")

	// ErrShuttingDown rejects submissions during shutdown.
	ErrShuttingDown = errors.New("shutting down")

	// ErrStorageUnavailable wraps KV write failures during block commit.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrFlushFailed wraps a failed durability flush; the affected block is
	// discarded and rebuilt at a later tick.
	ErrFlushFailed = errors.New("storage flush failed")

	// ErrCorruptLedger means the persisted tip references an absent block
	// or a block whose hash does not recompute. The node must not start.
	ErrCorruptLedger = errors.New("corrupt ledger")
)
