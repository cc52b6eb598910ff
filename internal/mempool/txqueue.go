package mempool

import "github.com/pulse-net/pulse-chain/pkg/types"

// TxQueue holds pending transactions in arrival order. Like Pool, it is
// synchronized externally by the chain engine.
type TxQueue struct {
	txs []*types.Transaction
	ids map[string]struct{}
}

// NewTxQueue creates an empty transaction queue.
func NewTxQueue() *TxQueue {
	return &TxQueue{ids: make(map[string]struct{})}
}

// Add appends a transaction, rejecting duplicate pending tx ids.
func (q *TxQueue) Add(tx *types.Transaction) error {
	if _, ok := q.ids[tx.TxID]; ok {
		return ErrDuplicateTxID
	}
	q.txs = append(q.txs, tx)
	q.ids[tx.TxID] = struct{}{}
	return nil
}

// Has reports whether a tx id is pending.
func (q *TxQueue) Has(txID string) bool {
	_, ok := q.ids[txID]
	return ok
}

// Len returns the number of pending transactions.
func (q *TxQueue) Len() int {
	return len(q.txs)
}

// Drain removes and returns all pending transactions in arrival order.
func (q *TxQueue) Drain() []*types.Transaction {
	if len(q.txs) == 0 {
		return nil
	}
	out := q.txs
	q.txs = nil
	q.ids = make(map[string]struct{})
	return out
}

// Restore reinserts drained transactions at the front, preserving their
// original order ahead of anything that arrived since.
func (q *TxQueue) Restore(txs []*types.Transaction) {
	if len(txs) == 0 {
		return
	}
	merged := make([]*types.Transaction, 0, len(txs)+len(q.txs))
	merged = append(merged, txs...)
	merged = append(merged, q.txs...)
	q.txs = merged
	for _, tx := range txs {
		q.ids[tx.TxID] = struct{}{}
	}
}
