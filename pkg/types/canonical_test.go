package types

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

// Byte-level vectors against the device SDK encoding. These strings are the
// contract: a change to any of them breaks signature verification for every
// deployed device.

func TestHeartbeatSignableBytes_Vector(t *testing.T) {
	hb := Heartbeat{
		Timestamp:    1700000000000,
		HeartRate:    72,
		Motion:       Motion{X: 0.1, Y: 0.2, Z: 0.05},
		Temperature:  36.6,
		DevicePubKey: "04aabb",
	}

	want := `{"timestamp":1700000000000,"heart_rate":72,` +
		`"motion":{"x":0.1,"y":0.2,"z":0.05},"temperature":36.6,` +
		`"device_pubkey":"04aabb"}`
	if got := string(hb.SignableBytes()); got != want {
		t.Errorf("SignableBytes()\n got %s\nwant %s", got, want)
	}
}

func TestHeartbeatSignableBytes_IntegralFloats(t *testing.T) {
	// Integral float values still render with a decimal point; integers
	// never gain one.
	hb := Heartbeat{
		Timestamp:    1,
		HeartRate:    70,
		Motion:       Motion{},
		Temperature:  37,
		DevicePubKey: "04",
	}

	want := `{"timestamp":1,"heart_rate":70,` +
		`"motion":{"x":0.0,"y":0.0,"z":0.0},"temperature":37.0,` +
		`"device_pubkey":"04"}`
	if got := string(hb.SignableBytes()); got != want {
		t.Errorf("SignableBytes()\n got %s\nwant %s", got, want)
	}
}

func TestTransactionSignableBytes_Vector(t *testing.T) {
	tx := Transaction{
		TxID:               "tx-1",
		SenderPubKey:       "04aa",
		RecipientPubKey:    "04bb",
		Amount:             1.5,
		Timestamp:          1700000000123,
		HeartbeatSignature: "cafe",
	}

	want := `{"tx_id":"tx-1","sender_pubkey":"04aa",` +
		`"recipient_pubkey":"04bb","amount":1.5,"timestamp":1700000000123,` +
		`"heartbeat_signature":"cafe"}`
	if got := string(tx.SignableBytes()); got != want {
		t.Errorf("SignableBytes()\n got %s\nwant %s", got, want)
	}
}

func TestTransactionSignableBytes_WholeAmount(t *testing.T) {
	tx := Transaction{TxID: "t", Amount: 2}
	if got := string(tx.SignableBytes()); !strings.Contains(got, `"amount":2.0,`) {
		t.Errorf("whole amount should render with decimal point, got %s", got)
	}
}

func TestAppendQuoted_Escaping(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", `"plain"`},
		{`with"quote`, `"with\"quote"`},
		{`back\slash`, `"back\\slash"`},
		{"ctrl\x01", `"ctrl\u0001"`},
	}
	for _, tt := range tests {
		if got := string(appendQuoted(nil, tt.in)); got != tt.want {
			t.Errorf("appendQuoted(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSignableBytes_NoWhitespace(t *testing.T) {
	hb := Heartbeat{Timestamp: 5, HeartRate: 80, Temperature: 36.5, DevicePubKey: "04"}
	for _, c := range hb.SignableBytes() {
		if c == ' ' || c == '\n' || c == '\t' {
			t.Fatalf("signable bytes contain whitespace: %s", hb.SignableBytes())
		}
	}
}

func TestHeartbeatWeight(t *testing.T) {
	tests := []struct {
		name string
		hr   uint16
		m    Motion
		want float64
	}{
		{"resting still", 70, Motion{}, 0.6},
		{"resting moving", 70, Motion{X: 0.3, Y: 0.4}, 0.4 + 0.4*1.0 + 0.2},
		{"motion capped", 70, Motion{X: 9}, 0.4 + 0.4*2.0 + 0.2},
		{"elevated", 140, Motion{}, 0.4*2.0 + 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hb := Heartbeat{HeartRate: tt.hr, Motion: tt.m}
			if got := hb.Weight(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Weight() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMotionMagnitude(t *testing.T) {
	m := Motion{X: 3, Y: 4, Z: 0}
	if got := m.Magnitude(); math.Abs(got-5) > 1e-12 {
		t.Errorf("Magnitude() = %v, want 5", got)
	}
}

func TestBlockCanonicalBytes_Vector(t *testing.T) {
	blk := PulseBlock{
		Index:        3,
		Timestamp:    1700000005000,
		PreviousHash: "aa",
		Heartbeats: []Heartbeat{{
			Timestamp:    1700000004000,
			HeartRate:    70,
			Motion:       Motion{},
			Temperature:  36.5,
			DevicePubKey: "04aa",
			Signature:    "s1",
		}},
		Transactions: []Transaction{{
			TxID:               "t1",
			SenderPubKey:       "04aa",
			RecipientPubKey:    "04bb",
			Amount:             0.5,
			Timestamp:          1700000004500,
			HeartbeatSignature: "s1",
			Signature:          "s2",
		}},
		NLive:       1,
		TotalWeight: 0.6,
		Security:    0.6,
	}

	want := `{"index":3,"timestamp":1700000005000,"previous_hash":"aa",` +
		`"heartbeats":[{"timestamp":1700000004000,"heart_rate":70,` +
		`"motion":{"x":0.0,"y":0.0,"z":0.0},"temperature":36.5,` +
		`"device_pubkey":"04aa","signature":"s1"}],` +
		`"transactions":[{"tx_id":"t1","sender_pubkey":"04aa",` +
		`"recipient_pubkey":"04bb","amount":0.5,"timestamp":1700000004500,` +
		`"heartbeat_signature":"s1","signature":"s2"}],` +
		`"n_live":1,"total_weight":0.6,"security":0.6}`
	if got := string(blk.CanonicalBytes()); got != want {
		t.Errorf("CanonicalBytes()\n got %s\nwant %s", got, want)
	}
}

func TestBlockComputeHash_Deterministic(t *testing.T) {
	blk := PulseBlock{Index: 0, Timestamp: 1, PreviousHash: ""}
	h1 := blk.ComputeHash()
	h2 := blk.ComputeHash()
	if h1 != h2 {
		t.Errorf("ComputeHash() not deterministic: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("ComputeHash() length = %d, want 64 hex chars", len(h1))
	}
	if h1 != strings.ToLower(h1) {
		t.Error("ComputeHash() must be lowercase hex")
	}

	// Any field change must change the hash.
	blk2 := blk
	blk2.Timestamp = 2
	if blk2.ComputeHash() == h1 {
		t.Error("hash should change when a field changes")
	}
}

func TestBlockCanonicalJSON_RoundTrip(t *testing.T) {
	blk := PulseBlock{
		Index:        1,
		Timestamp:    42,
		PreviousHash: "prev",
		Heartbeats: []Heartbeat{{
			Timestamp: 40, HeartRate: 90, Temperature: 36.9,
			DevicePubKey: "04cc", Signature: "sig",
		}},
		NLive:       1,
		TotalWeight: 0.71,
		Security:    0.71,
	}
	blk.BlockHash = blk.ComputeHash()

	var decoded PulseBlock
	if err := json.Unmarshal(blk.CanonicalJSON(), &decoded); err != nil {
		t.Fatalf("Unmarshal(CanonicalJSON()) error: %v", err)
	}
	if decoded.BlockHash != blk.BlockHash {
		t.Errorf("round-trip block_hash = %s, want %s", decoded.BlockHash, blk.BlockHash)
	}
	if decoded.ComputeHash() != blk.BlockHash {
		t.Errorf("recomputed hash after round-trip = %s, want %s", decoded.ComputeHash(), blk.BlockHash)
	}
	if len(decoded.Heartbeats) != 1 || decoded.Heartbeats[0].DevicePubKey != "04cc" {
		t.Errorf("round-trip heartbeats = %+v", decoded.Heartbeats)
	}
}
