package mempool

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pulse-net/pulse-chain/pkg/types"
)

const (
	testNow       = uint64(1_700_000_000_000)
	testFreshness = uint64(60_000)
)

func testHeartbeat(pubkey string, ts uint64) *types.Heartbeat {
	return &types.Heartbeat{
		Timestamp:    ts,
		HeartRate:    72,
		Temperature:  36.6,
		DevicePubKey: pubkey,
		Signature:    fmt.Sprintf("sig-%s-%d", pubkey, ts),
	}
}

func TestPool_Add(t *testing.T) {
	p := NewPool()
	hb := testHeartbeat("dev-a", testNow)

	if err := p.Add(hb, testNow, testFreshness); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if p.Size() != 1 {
		t.Errorf("Size() = %d, want 1", p.Size())
	}
	if !p.HasSignature(hb.Signature) {
		t.Error("signature should be in the recent set after Add")
	}
}

func TestPool_Add_Stale(t *testing.T) {
	p := NewPool()

	tests := []struct {
		name string
		ts   uint64
	}{
		{"too old", testNow - testFreshness - 1},
		{"too far in future", testNow + testFreshness + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Add(testHeartbeat("dev-a", tt.ts), testNow, testFreshness)
			if !errors.Is(err, ErrStaleTimestamp) {
				t.Errorf("Add() error = %v, want ErrStaleTimestamp", err)
			}
		})
	}

	// Exactly at the window edge is accepted.
	if err := p.Add(testHeartbeat("dev-a", testNow-testFreshness), testNow, testFreshness); err != nil {
		t.Errorf("Add(edge) error: %v", err)
	}
}

func TestPool_Add_DuplicateSignature(t *testing.T) {
	p := NewPool()
	hb := testHeartbeat("dev-a", testNow)

	if err := p.Add(hb, testNow, testFreshness); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := p.Add(hb, testNow, testFreshness); !errors.Is(err, ErrDuplicateSignature) {
		t.Errorf("Add(duplicate) error = %v, want ErrDuplicateSignature", err)
	}

	// Still rejected after the heartbeat leaves the pool in a drain.
	p.Drain()
	if err := p.Add(hb, testNow, testFreshness); !errors.Is(err, ErrDuplicateSignature) {
		t.Errorf("Add(after drain) error = %v, want ErrDuplicateSignature", err)
	}
}

func TestPool_Add_OutOfOrder(t *testing.T) {
	p := NewPool()

	if err := p.Add(testHeartbeat("dev-a", testNow), testNow, testFreshness); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	err := p.Add(testHeartbeat("dev-a", testNow-1000), testNow, testFreshness)
	if !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("Add(older) error = %v, want ErrOutOfOrder", err)
	}
}

func TestPool_LastWriterWinsPerDevice(t *testing.T) {
	p := NewPool()

	p.Add(testHeartbeat("dev-a", testNow-5000), testNow, testFreshness)
	p.Add(testHeartbeat("dev-a", testNow), testNow, testFreshness)

	if p.Size() != 1 {
		t.Fatalf("Size() = %d, want 1 (one pending per device)", p.Size())
	}
	hbs := p.Drain()
	if hbs[0].Timestamp != testNow {
		t.Errorf("pending timestamp = %d, want the newer %d", hbs[0].Timestamp, testNow)
	}
}

func TestPool_DrainAndRestore(t *testing.T) {
	p := NewPool()
	hbA := testHeartbeat("dev-a", testNow)
	hbB := testHeartbeat("dev-b", testNow)
	p.Add(hbA, testNow, testFreshness)
	p.Add(hbB, testNow, testFreshness)

	drained := p.Drain()
	if len(drained) != 2 || p.Size() != 0 {
		t.Fatalf("Drain() returned %d, pool size %d", len(drained), p.Size())
	}
	// Signatures survive the drain.
	if !p.HasSignature(hbA.Signature) {
		t.Error("recent signature lost on Drain")
	}

	// A newer heartbeat for dev-a arrives before the restore.
	newer := testHeartbeat("dev-a", testNow+2000)
	p.Add(newer, testNow, testFreshness)

	p.Restore(drained)
	if p.Size() != 2 {
		t.Fatalf("Size() after restore = %d, want 2", p.Size())
	}
	for _, hb := range p.Drain() {
		if hb.DevicePubKey == "dev-a" && hb.Timestamp != newer.Timestamp {
			t.Error("Restore must not overwrite a newer pending heartbeat")
		}
	}
}

func TestPool_PruneSignatures(t *testing.T) {
	p := NewPool()
	old := testHeartbeat("dev-a", testNow-50_000)
	fresh := testHeartbeat("dev-b", testNow)
	p.Add(old, testNow, testFreshness)
	p.Add(fresh, testNow, testFreshness)

	removed := p.PruneSignatures(testNow - 10_000)
	if removed != 1 {
		t.Errorf("PruneSignatures() removed %d, want 1", removed)
	}
	if p.HasSignature(old.Signature) {
		t.Error("old signature should be pruned")
	}
	if !p.HasSignature(fresh.Signature) {
		t.Error("fresh signature should survive pruning")
	}
}

func TestTxQueue_OrderAndDuplicates(t *testing.T) {
	q := NewTxQueue()

	for i := 0; i < 3; i++ {
		tx := &types.Transaction{TxID: fmt.Sprintf("tx-%d", i)}
		if err := q.Add(tx); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}
	if err := q.Add(&types.Transaction{TxID: "tx-1"}); !errors.Is(err, ErrDuplicateTxID) {
		t.Errorf("Add(duplicate) error = %v, want ErrDuplicateTxID", err)
	}

	drained := q.Drain()
	if len(drained) != 3 {
		t.Fatalf("Drain() returned %d, want 3", len(drained))
	}
	for i, tx := range drained {
		if tx.TxID != fmt.Sprintf("tx-%d", i) {
			t.Errorf("position %d has %s, arrival order not preserved", i, tx.TxID)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len() after drain = %d, want 0", q.Len())
	}
}

func TestTxQueue_RestorePrefixesPending(t *testing.T) {
	q := NewTxQueue()
	q.Add(&types.Transaction{TxID: "a"})
	q.Add(&types.Transaction{TxID: "b"})
	drained := q.Drain()

	q.Add(&types.Transaction{TxID: "c"})
	q.Restore(drained)

	got := q.Drain()
	want := []string{"a", "b", "c"}
	for i, tx := range got {
		if tx.TxID != want[i] {
			t.Errorf("position %d = %s, want %s", i, tx.TxID, want[i])
		}
	}
}
