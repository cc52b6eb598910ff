package chain

import (
	"fmt"
	"sort"

	"github.com/pulse-net/pulse-chain/internal/events"
	"github.com/pulse-net/pulse-chain/pkg/types"
)

// BuildBlock runs one block production attempt: drain the pools, apply the
// Proof-of-Life gate, mint rewards, apply transactions, hash, persist, and
// commit. Returns (nil, nil) when the gate is not met. The whole procedure,
// durability flush included, holds the write lock, so a successful return
// means memory and disk agree.
func (e *Engine) BuildBlock() (*types.PulseBlock, error) {
	now := e.cfg.Now()

	e.mu.Lock()

	// Snapshot and drain.
	heartbeats := e.pool.Drain()
	txs := e.txq.Drain()

	// Proof-of-Life gate.
	if len(heartbeats) < e.cfg.NThreshold {
		e.pool.Restore(heartbeats)
		e.txq.Restore(txs)
		e.mu.Unlock()
		e.logger.Debug().
			Int("live", len(heartbeats)).
			Int("threshold", e.cfg.NThreshold).
			Msg("Waiting for heartbeats")
		return nil, nil
	}

	// Deterministic order: ascending timestamp, pubkey breaks ties.
	sort.Slice(heartbeats, func(i, j int) bool {
		if heartbeats[i].Timestamp != heartbeats[j].Timestamp {
			return heartbeats[i].Timestamp < heartbeats[j].Timestamp
		}
		return heartbeats[i].DevicePubKey < heartbeats[j].DevicePubKey
	})

	// Weights and rewards, applied to copies so a failed persist rolls
	// back by discarding them.
	totalWeight := 0.0
	touched := make(map[string]*types.Account)
	clone := func(pubkey string) *types.Account {
		if acct, ok := touched[pubkey]; ok {
			return acct
		}
		var acct *types.Account
		if cur, ok := e.accounts[pubkey]; ok {
			acct = cur.Clone()
		} else {
			acct = &types.Account{PubKey: pubkey}
		}
		touched[pubkey] = acct
		return acct
	}

	minted := 0.0
	for _, hb := range heartbeats {
		w := hb.Weight()
		totalWeight += w

		reward := e.cfg.BaseReward * w
		acct := clone(hb.DevicePubKey)
		acct.Balance += reward
		acct.TotalEarned += reward
		acct.BlocksParticipated++
		if hb.Timestamp > acct.LastHeartbeat {
			acct.LastHeartbeat = hb.Timestamp
		}
		minted += reward
	}

	// Apply transactions in arrival order, re-checking balances against the
	// in-build view. Failures drop the transaction; they are not re-queued.
	included := make([]types.Transaction, 0, len(txs))
	for _, tx := range txs {
		sender := clone(tx.SenderPubKey)
		if tx.Amount > sender.Balance {
			e.logger.Warn().
				Str("tx", tx.TxID).
				Float64("amount", tx.Amount).
				Float64("balance", sender.Balance).
				Msg("Transaction dropped at commit: insufficient funds")
			continue
		}
		sender.Balance -= tx.Amount
		clone(tx.RecipientPubKey).Balance += tx.Amount
		included = append(included, *tx)
	}

	// Assemble.
	blk := &types.PulseBlock{
		Timestamp:    now,
		Heartbeats:   make([]types.Heartbeat, len(heartbeats)),
		Transactions: included,
		NLive:        uint64(len(heartbeats)),
		TotalWeight:  totalWeight,
		Security:     totalWeight,
	}
	for i, hb := range heartbeats {
		blk.Heartbeats[i] = *hb
	}
	if e.hasTip {
		blk.Index = e.tipIndex + 1
		blk.PreviousHash = e.tipHash
	}
	blk.BlockHash = blk.ComputeHash()

	// Persist: blocks, touched accounts, tip, then one flush. Any failure
	// discards the block and restores the pools; state is untouched.
	if e.store != nil {
		if err := e.persistBlock(blk, touched); err != nil {
			e.pool.Restore(heartbeats)
			e.txq.Restore(txs)
			e.mu.Unlock()
			e.logger.Error().Err(err).Uint64("index", blk.Index).Msg("Block discarded")
			return nil, err
		}
	}

	// Commit in-memory state.
	for pubkey, acct := range touched {
		e.accounts[pubkey] = acct
	}
	for i := range included {
		e.includedTxs[included[i].TxID] = struct{}{}
	}
	e.hasTip = true
	e.tipIndex = blk.Index
	e.tipHash = blk.BlockHash
	e.totalMinted += minted
	e.window.add(blk)
	if e.store == nil {
		e.memChain = append(e.memChain, blk)
	}

	// Prune expired signatures now that the window reference point moved.
	freshness := uint64(e.cfg.Freshness.Milliseconds())
	if now > freshness {
		e.pool.PruneSignatures(now - freshness)
	}

	stats := e.statsLocked()
	e.mu.Unlock()

	e.logger.Info().
		Uint64("index", blk.Index).
		Str("hash", shortHash(blk.BlockHash)).
		Uint64("n_live", blk.NLive).
		Int("txs", len(blk.Transactions)).
		Float64("weight", blk.TotalWeight).
		Float64("minted", minted).
		Msg("Pulse block committed")

	e.bus.Publish(events.NewBlock{Block: blk})
	e.bus.Publish(events.Stats{Stats: &stats})
	return blk, nil
}

// persistBlock writes the block, every touched account, and the tip, then
// flushes once. Caller holds the write lock.
func (e *Engine) persistBlock(blk *types.PulseBlock, touched map[string]*types.Account) error {
	if err := e.store.PutBlock(blk); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	for _, acct := range touched {
		if err := e.store.PutAccount(acct); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}
	if err := e.store.SetTip(blk.Index, blk.BlockHash); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := e.store.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrFlushFailed, err)
	}
	return nil
}
