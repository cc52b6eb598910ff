// Package chain implements the Pulse ledger engine: heartbeat and
// transaction admission, the Proof-of-Life block builder, account state,
// and the query surface.
package chain

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulse-net/pulse-chain/internal/events"
	klog "github.com/pulse-net/pulse-chain/internal/log"
	"github.com/pulse-net/pulse-chain/internal/mempool"
	"github.com/pulse-net/pulse-chain/pkg/crypto"
	"github.com/pulse-net/pulse-chain/pkg/types"
)

// Config holds the consensus parameters of the engine.
type Config struct {
	// BlockTime is the block production interval.
	BlockTime time.Duration
	// NThreshold is the minimum number of live devices for a block.
	NThreshold int
	// Freshness is the heartbeat acceptance window.
	Freshness time.Duration
	// BaseReward is the minted reward per unit of weight.
	BaseReward float64
	// StrictBiometrics enables the sensor plausibility monitor.
	StrictBiometrics bool
	// SynthesizeGenesis creates an empty genesis block at startup. Used in
	// simulate mode, where no persisted chain exists to resume from.
	SynthesizeGenesis bool
	// Now overrides the millisecond wall clock. Tests use this; nil means
	// time.Now.
	Now func() uint64
}

// DefaultConfig returns the bootstrap parameters.
func DefaultConfig() Config {
	return Config{
		BlockTime:        5 * time.Second,
		NThreshold:       1,
		Freshness:        60 * time.Second,
		BaseReward:       1.0,
		StrictBiometrics: true,
	}
}

// Engine owns the chain state: the heartbeat pool, transaction queue,
// account map, tip pointer, and rolling statistics. One read-write mutex
// protects all of it; signature verification runs outside the lock, and the
// block builder holds the write lock for the whole drain-and-commit
// critical section, flush included, so memory never runs ahead of disk.
type Engine struct {
	cfg    Config
	store  *Store // nil = in-memory only (simulate mode)
	bus    *events.Bus
	logger zerolog.Logger

	shuttingDown atomic.Bool

	mu          sync.RWMutex
	pool        *mempool.Pool
	txq         *mempool.TxQueue
	accounts    map[string]*types.Account
	includedTxs map[string]struct{}
	hasTip      bool
	tipIndex    uint64
	tipHash     string
	totalMinted float64
	window      statsWindow
	bio         *BiometricMonitor
	// memChain mirrors the full chain in memory when no store is attached.
	memChain []*types.PulseBlock
}

// New creates an engine, resuming persisted state when store is non-nil.
// Returns ErrCorruptLedger if the persisted tip does not verify.
func New(cfg Config, store *Store, bus *events.Bus) (*Engine, error) {
	if cfg.Now == nil {
		cfg.Now = func() uint64 { return uint64(time.Now().UnixMilli()) }
	}
	if bus == nil {
		bus = events.New(events.DefaultBacklog)
	}

	e := &Engine{
		cfg:         cfg,
		store:       store,
		bus:         bus,
		logger:      klog.WithComponent("chain"),
		pool:        mempool.NewPool(),
		txq:         mempool.NewTxQueue(),
		accounts:    make(map[string]*types.Account),
		includedTxs: make(map[string]struct{}),
	}
	if cfg.StrictBiometrics {
		e.bio = NewBiometricMonitor()
	}

	if store != nil {
		if err := e.resume(); err != nil {
			return nil, err
		}
	} else if cfg.SynthesizeGenesis {
		genesis := NewGenesisBlock(cfg.Now())
		e.memChain = append(e.memChain, genesis)
		e.hasTip = true
		e.tipIndex = genesis.Index
		e.tipHash = genesis.BlockHash
		e.window.add(genesis)
		e.logger.Info().Str("hash", shortHash(genesis.BlockHash)).Msg("Genesis block synthesized")
	}

	return e, nil
}

// resume loads the tip, verifies ledger integrity, and rebuilds accounts,
// minted supply, the included-tx index, and the stats window.
func (e *Engine) resume() error {
	index, hash, found, err := e.store.GetTip()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if !found {
		e.logger.Info().Msg("Fresh chain, no persisted tip")
		return nil
	}

	tip, err := e.store.GetBlock(index)
	if err != nil {
		return fmt.Errorf("%w: tip %d missing: %v", ErrCorruptLedger, index, err)
	}
	if got := tip.ComputeHash(); got != hash || tip.BlockHash != hash {
		return fmt.Errorf("%w: tip %d hash mismatch: recomputed %s, stored %s",
			ErrCorruptLedger, index, got, hash)
	}

	accounts, err := e.store.LoadAccounts()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	e.accounts = accounts
	for _, acct := range accounts {
		e.totalMinted += acct.TotalEarned
	}

	// Rebuild the stats window from the last blocks and re-index included
	// transaction ids for duplicate rejection.
	start := uint64(0)
	if index+1 > types.StatsWindow {
		start = index + 1 - types.StatsWindow
	}
	for i := start; i <= index; i++ {
		blk, err := e.store.GetBlock(i)
		if err != nil {
			return fmt.Errorf("%w: block %d: %v", ErrCorruptLedger, i, err)
		}
		e.window.add(blk)
	}
	if err := e.store.ForEachBlock(func(blk *types.PulseBlock) error {
		for i := range blk.Transactions {
			e.includedTxs[blk.Transactions[i].TxID] = struct{}{}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	e.hasTip = true
	e.tipIndex = index
	e.tipHash = hash
	e.logger.Info().
		Uint64("height", index).
		Str("tip", shortHash(hash)).
		Int("accounts", len(accounts)).
		Msg("Chain resumed from database")
	return nil
}

// Bus returns the engine's event bus.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// SubmitHeartbeat verifies and admits one heartbeat into the pool.
// Verification runs outside the state lock; only the insertion takes it.
func (e *Engine) SubmitHeartbeat(hb *types.Heartbeat) error {
	if e.shuttingDown.Load() {
		return ErrShuttingDown
	}
	if hb.HeartRate < types.MinHeartRate || hb.HeartRate > types.MaxHeartRate {
		return fmt.Errorf("%w: heart rate %d outside [%d, %d]",
			ErrOutOfRange, hb.HeartRate, types.MinHeartRate, types.MaxHeartRate)
	}
	if err := crypto.VerifyHex(hb.DevicePubKey, hb.SignableBytes(), hb.Signature); err != nil {
		return err
	}

	e.mu.Lock()
	if e.bio != nil {
		if err := e.bio.Check(hb); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	if err := e.pool.Add(hb, e.cfg.Now(), uint64(e.cfg.Freshness.Milliseconds())); err != nil {
		e.mu.Unlock()
		return err
	}
	acct := e.accountLocked(hb.DevicePubKey)
	if hb.Timestamp > acct.LastHeartbeat {
		acct.LastHeartbeat = hb.Timestamp
	}
	poolSize := uint64(e.pool.Size())
	e.mu.Unlock()

	e.logger.Debug().
		Str("device", shortHash(hb.DevicePubKey)).
		Uint16("hr", hb.HeartRate).
		Float64("weight", hb.Weight()).
		Msg("Heartbeat accepted")
	e.bus.Publish(events.HeartbeatCount{Count: poolSize})
	return nil
}

// SubmitTransaction verifies and queues one transaction. The balance is
// checked against current state here and re-checked at commit.
func (e *Engine) SubmitTransaction(tx *types.Transaction) error {
	if e.shuttingDown.Load() {
		return ErrShuttingDown
	}
	if tx.Amount < 0 {
		return fmt.Errorf("%w: negative amount %f", ErrOutOfRange, tx.Amount)
	}
	if err := crypto.VerifyHex(tx.SenderPubKey, tx.SignableBytes(), tx.Signature); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.pool.HasSignature(tx.HeartbeatSignature) {
		return fmt.Errorf("%w: %s", ErrMissingHeartbeat, shortHash(tx.HeartbeatSignature))
	}
	if balance := e.balanceLocked(tx.SenderPubKey); tx.Amount > balance {
		return fmt.Errorf("%w: amount %f, balance %f", ErrInsufficientFunds, tx.Amount, balance)
	}
	if _, included := e.includedTxs[tx.TxID]; included || e.txq.Has(tx.TxID) {
		return mempool.ErrDuplicateTxID
	}
	if err := e.txq.Add(tx); err != nil {
		return err
	}

	e.logger.Debug().
		Str("tx", tx.TxID).
		Str("from", shortHash(tx.SenderPubKey)).
		Str("to", shortHash(tx.RecipientPubKey)).
		Float64("amount", tx.Amount).
		Msg("Transaction queued")
	return nil
}

// accountLocked returns the account for pubkey, creating it on first use.
// Caller holds the write lock.
func (e *Engine) accountLocked(pubkey string) *types.Account {
	acct, ok := e.accounts[pubkey]
	if !ok {
		acct = &types.Account{PubKey: pubkey}
		e.accounts[pubkey] = acct
	}
	return acct
}

// balanceLocked returns the balance for pubkey, zero for unknown accounts.
// Caller holds either lock.
func (e *Engine) balanceLocked(pubkey string) float64 {
	if acct, ok := e.accounts[pubkey]; ok {
		return acct.Balance
	}
	return 0
}

// ── Query surface ───────────────────────────────────────────────────────

// ChainInfo returns the chain summary.
func (e *Engine) ChainInfo() types.ChainInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	info := types.ChainInfo{HeartbeatPoolSize: e.pool.Size()}
	if e.hasTip {
		info.Height = e.tipIndex
		info.LatestHash = e.tipHash
	}
	return info
}

// Stats returns the derived network statistics.
func (e *Engine) Stats() types.NetworkStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.statsLocked()
}

func (e *Engine) statsLocked() types.NetworkStats {
	stats := types.NetworkStats{
		TotalMinted:    e.totalMinted,
		ActiveAccounts: len(e.accounts),
		CurrentTPS:     e.window.tps(),
		AvgBlockTime:   e.window.avgBlockTime(),
		TotalSecurity:  e.window.totalSecurity(),
	}
	if e.hasTip {
		stats.ChainLength = e.tipIndex + 1
	}
	return stats
}

// GetBlock returns the block at index, or ErrNotFound.
func (e *Engine) GetBlock(index uint64) (*types.PulseBlock, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.hasTip || index > e.tipIndex {
		return nil, fmt.Errorf("block %d: %w", index, ErrNotFound)
	}
	if e.store == nil {
		return e.memChain[index], nil
	}
	return e.store.GetBlock(index)
}

// LatestBlock returns the tip block, or ErrNotFound on an empty chain.
func (e *Engine) LatestBlock() (*types.PulseBlock, error) {
	e.mu.RLock()
	hasTip, tipIndex := e.hasTip, e.tipIndex
	e.mu.RUnlock()
	if !hasTip {
		return nil, fmt.Errorf("empty chain: %w", ErrNotFound)
	}
	return e.GetBlock(tipIndex)
}

// ListBlocks returns blocks[offset:offset+limit] oldest first, along with
// the total chain length. A negative limit means no limit.
func (e *Engine) ListBlocks(offset int, limit int) ([]*types.PulseBlock, uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.hasTip {
		return nil, 0, nil
	}
	total := e.tipIndex + 1
	if offset < 0 {
		offset = 0
	}
	if uint64(offset) >= total {
		return nil, total, nil
	}
	end := total
	if limit >= 0 && uint64(offset)+uint64(limit) < total {
		end = uint64(offset) + uint64(limit)
	}

	blocks := make([]*types.PulseBlock, 0, end-uint64(offset))
	for i := uint64(offset); i < end; i++ {
		if e.store == nil {
			blocks = append(blocks, e.memChain[i])
			continue
		}
		blk, err := e.store.GetBlock(i)
		if err != nil {
			return nil, 0, err
		}
		blocks = append(blocks, blk)
	}
	return blocks, total, nil
}

// Balance returns the balance for pubkey, zero for unknown accounts.
func (e *Engine) Balance(pubkey string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.balanceLocked(pubkey)
}

// Accounts returns a copy of all known accounts, sorted by pubkey.
func (e *Engine) Accounts() []*types.Account {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*types.Account, 0, len(e.accounts))
	for _, acct := range e.accounts {
		out = append(out, acct.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PubKey < out[j].PubKey })
	return out
}

// HeartbeatPoolSize returns the number of pending heartbeats.
func (e *Engine) HeartbeatPoolSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pool.Size()
}

// Subscribe registers an event bus subscriber.
func (e *Engine) Subscribe() *events.Subscription {
	return e.bus.Subscribe()
}

// Shutdown stops accepting submissions. The caller stops the block loop and
// closes the bus afterwards.
func (e *Engine) Shutdown() {
	e.shuttingDown.Store(true)
}

// shortHash abbreviates a hex string for logs.
func shortHash(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:16] + "..."
}
