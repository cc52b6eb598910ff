package chain

import "github.com/pulse-net/pulse-chain/pkg/types"

// NewGenesisBlock builds the empty block at index 0 used when the node runs
// without persistence. A persisted chain never synthesizes one: its first
// real block takes index 0 with an empty previous hash.
func NewGenesisBlock(nowMs uint64) *types.PulseBlock {
	blk := &types.PulseBlock{
		Index:        0,
		Timestamp:    nowMs,
		PreviousHash: "",
		Heartbeats:   []types.Heartbeat{},
		Transactions: []types.Transaction{},
	}
	blk.BlockHash = blk.ComputeHash()
	return blk
}
