// Package mempool manages pending heartbeats and transactions waiting for
// block inclusion. The containers hold no locks of their own: the chain
// engine owns them and serializes access under its state lock, so that the
// drain-and-commit critical section stays atomic.
package mempool

import (
	"errors"
	"fmt"

	"github.com/pulse-net/pulse-chain/pkg/types"
)

// Admission errors.
var (
	ErrStaleTimestamp     = errors.New("heartbeat timestamp outside freshness window")
	ErrDuplicateSignature = errors.New("heartbeat signature already accepted")
	ErrOutOfOrder         = errors.New("device already has a newer pending heartbeat")
	ErrDuplicateTxID      = errors.New("transaction id already known")
)

// Pool holds at most one pending verified heartbeat per device, plus the set
// of recently accepted signatures used to validate transaction liveness
// references and reject replays.
type Pool struct {
	pending map[string]*types.Heartbeat // device pubkey -> newest heartbeat
	// recentSigs maps accepted signatures to the originating heartbeat
	// timestamp so they can be pruned once they fall out of the window.
	recentSigs map[string]uint64
}

// NewPool creates an empty heartbeat pool.
func NewPool() *Pool {
	return &Pool{
		pending:    make(map[string]*types.Heartbeat),
		recentSigs: make(map[string]uint64),
	}
}

// Add admits a signature-verified heartbeat. nowMs is the node's wall clock
// and freshnessMs the acceptance window. On success the heartbeat replaces
// any pending one for the device and its signature joins the recent set.
func (p *Pool) Add(hb *types.Heartbeat, nowMs, freshnessMs uint64) error {
	if age := absDiff(nowMs, hb.Timestamp); age > freshnessMs {
		return fmt.Errorf("%w: age %dms, window %dms", ErrStaleTimestamp, age, freshnessMs)
	}
	if _, seen := p.recentSigs[hb.Signature]; seen {
		return ErrDuplicateSignature
	}
	if prev, ok := p.pending[hb.DevicePubKey]; ok && prev.Timestamp > hb.Timestamp {
		return fmt.Errorf("%w: pending %d, got %d", ErrOutOfOrder, prev.Timestamp, hb.Timestamp)
	}

	p.pending[hb.DevicePubKey] = hb
	p.recentSigs[hb.Signature] = hb.Timestamp
	return nil
}

// Size returns the number of pending heartbeats.
func (p *Pool) Size() int {
	return len(p.pending)
}

// HasSignature reports whether sig is in the recent-signatures set.
func (p *Pool) HasSignature(sig string) bool {
	_, ok := p.recentSigs[sig]
	return ok
}

// Drain removes and returns all pending heartbeats. The recent-signatures
// set is left intact; it is pruned separately at block commit.
func (p *Pool) Drain() []*types.Heartbeat {
	if len(p.pending) == 0 {
		return nil
	}
	out := make([]*types.Heartbeat, 0, len(p.pending))
	for _, hb := range p.pending {
		out = append(out, hb)
	}
	p.pending = make(map[string]*types.Heartbeat)
	return out
}

// Restore reinserts drained heartbeats after an aborted build. A heartbeat
// is skipped if its device submitted a newer one in the meantime.
func (p *Pool) Restore(hbs []*types.Heartbeat) {
	for _, hb := range hbs {
		if cur, ok := p.pending[hb.DevicePubKey]; ok && cur.Timestamp >= hb.Timestamp {
			continue
		}
		p.pending[hb.DevicePubKey] = hb
	}
}

// PruneSignatures drops recent signatures whose heartbeat timestamp is older
// than cutoffMs. Returns the number removed.
func (p *Pool) PruneSignatures(cutoffMs uint64) int {
	removed := 0
	for sig, ts := range p.recentSigs {
		if ts < cutoffMs {
			delete(p.recentSigs, sig)
			removed++
		}
	}
	return removed
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
