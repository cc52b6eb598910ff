package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pulse-net/pulse-chain/internal/chain"
	"github.com/pulse-net/pulse-chain/internal/events"
	"github.com/pulse-net/pulse-chain/internal/storage"
	"github.com/pulse-net/pulse-chain/pkg/crypto"
	"github.com/pulse-net/pulse-chain/pkg/types"
)

const startMs = uint64(1_700_000_000_000)

// testNode bundles an engine with a controllable clock and an HTTP test
// server mounted on the RPC handler.
type testNode struct {
	engine *chain.Engine
	now    uint64
	ts     *httptest.Server
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()
	n := &testNode{now: startMs}

	cfg := chain.DefaultConfig()
	cfg.BlockTime = 100 * time.Millisecond
	cfg.StrictBiometrics = false
	cfg.Now = func() uint64 { return n.now }

	engine, err := chain.New(cfg, chain.NewStore(storage.NewMemory()), events.New(16))
	if err != nil {
		t.Fatalf("chain.New() error: %v", err)
	}
	n.engine = engine

	srv := New("127.0.0.1:0", engine)
	n.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(n.ts.Close)
	return n
}

func (n *testNode) get(t *testing.T, path string) (*http.Response, Response) {
	t.Helper()
	resp, err := http.Get(n.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s error: %v", path, err)
	}
	defer resp.Body.Close()
	var env Response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s envelope: %v", path, err)
	}
	return resp, env
}

func (n *testNode) post(t *testing.T, path string, body any) (*http.Response, Response) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(n.ts.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s error: %v", path, err)
	}
	defer resp.Body.Close()
	var env Response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s envelope: %v", path, err)
	}
	return resp, env
}

func signedHeartbeat(t *testing.T, key *crypto.PrivateKey, ts uint64) *types.Heartbeat {
	t.Helper()
	hb := &types.Heartbeat{
		Timestamp:    ts,
		HeartRate:    72,
		Motion:       types.Motion{X: 0.1},
		Temperature:  36.6,
		DevicePubKey: key.PublicKeyHex(),
	}
	sig, err := key.SignData(hb.SignableBytes())
	if err != nil {
		t.Fatalf("SignData() error: %v", err)
	}
	hb.Signature = sig
	return hb
}

func TestHealth(t *testing.T) {
	n := newTestNode(t)
	resp, env := n.get(t, "/health")
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("GET /health = %d, success %v", resp.StatusCode, env.Success)
	}
	if env.Data != "ok" {
		t.Errorf("data = %v, want ok", env.Data)
	}
}

func TestSubmitHeartbeatEndpoint(t *testing.T) {
	n := newTestNode(t)
	key, _ := crypto.GenerateKey()

	resp, env := n.post(t, "/pulse", signedHeartbeat(t, key, n.now))
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("POST /pulse = %d, error %q", resp.StatusCode, env.Error)
	}

	_, env = n.get(t, "/chain")
	var info types.ChainInfo
	remarshal(t, env.Data, &info)
	if info.HeartbeatPoolSize != 1 {
		t.Errorf("pool size = %d, want 1", info.HeartbeatPoolSize)
	}
}

func TestSubmitHeartbeat_BadSignature(t *testing.T) {
	n := newTestNode(t)
	key, _ := crypto.GenerateKey()

	hb := signedHeartbeat(t, key, n.now)
	hb.Signature = strings.Repeat("ab", 64) // valid shape, wrong signature

	resp, env := n.post(t, "/pulse", hb)
	if resp.StatusCode != http.StatusBadRequest || env.Success {
		t.Fatalf("POST /pulse = %d, success %v", resp.StatusCode, env.Success)
	}
	if env.Error == "" {
		t.Error("error message missing from envelope")
	}
}

func TestSubmitHeartbeat_FieldValidation(t *testing.T) {
	n := newTestNode(t)
	key, _ := crypto.GenerateKey()

	tests := []struct {
		name   string
		mutate func(*types.Heartbeat)
	}{
		{"short pubkey", func(hb *types.Heartbeat) { hb.DevicePubKey = "04aa" }},
		{"missing signature", func(hb *types.Heartbeat) { hb.Signature = "" }},
		{"zero heart rate", func(hb *types.Heartbeat) { hb.HeartRate = 0 }},
		{"absurd temperature", func(hb *types.Heartbeat) { hb.Temperature = 90 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hb := signedHeartbeat(t, key, n.now)
			tt.mutate(hb)
			resp, env := n.post(t, "/pulse", hb)
			if resp.StatusCode != http.StatusBadRequest || env.Success {
				t.Errorf("status = %d, success %v, want 400 failure", resp.StatusCode, env.Success)
			}
		})
	}
}

func TestSubmitHeartbeat_MalformedBody(t *testing.T) {
	n := newTestNode(t)
	resp, err := http.Post(n.ts.URL+"/pulse", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestBlockEndpoints(t *testing.T) {
	n := newTestNode(t)
	key, _ := crypto.GenerateKey()

	// Produce two blocks.
	for i := 0; i < 2; i++ {
		n.now += 1000
		if _, env := n.post(t, "/pulse", signedHeartbeat(t, key, n.now)); !env.Success {
			t.Fatalf("pulse %d rejected: %s", i, env.Error)
		}
		n.now += 100
		if _, err := n.engine.BuildBlock(); err != nil {
			t.Fatalf("BuildBlock() error: %v", err)
		}
	}

	t.Run("chain info", func(t *testing.T) {
		_, env := n.get(t, "/chain")
		var info types.ChainInfo
		remarshal(t, env.Data, &info)
		if info.Height != 1 || info.LatestHash == "" {
			t.Errorf("chain info = %+v", info)
		}
	})

	t.Run("latest", func(t *testing.T) {
		_, env := n.get(t, "/block/latest")
		var blk types.PulseBlock
		remarshal(t, env.Data, &blk)
		if blk.Index != 1 {
			t.Errorf("latest index = %d, want 1", blk.Index)
		}
	})

	t.Run("by index", func(t *testing.T) {
		_, env := n.get(t, "/block/0")
		var blk types.PulseBlock
		remarshal(t, env.Data, &blk)
		if blk.Index != 0 {
			t.Errorf("block index = %d, want 0", blk.Index)
		}
	})

	t.Run("not found", func(t *testing.T) {
		resp, env := n.get(t, "/block/99")
		if resp.StatusCode != http.StatusNotFound || env.Success {
			t.Errorf("status = %d, success %v, want 404 failure", resp.StatusCode, env.Success)
		}
	})

	t.Run("bad index", func(t *testing.T) {
		resp, _ := n.get(t, "/block/abc")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("list all", func(t *testing.T) {
		_, env := n.get(t, "/blocks")
		var list BlockListResult
		remarshal(t, env.Data, &list)
		if list.Total != 2 || len(list.Blocks) != 2 {
			t.Errorf("list = %d blocks, total %d, want 2/2", len(list.Blocks), list.Total)
		}
		if list.Blocks[0].Index != 0 {
			t.Error("blocks must be oldest first")
		}
	})

	t.Run("list paged", func(t *testing.T) {
		_, env := n.get(t, "/blocks?offset=1&limit=5")
		var list BlockListResult
		remarshal(t, env.Data, &list)
		if list.Total != 2 || len(list.Blocks) != 1 || list.Blocks[0].Index != 1 {
			t.Errorf("paged list = %+v", list)
		}
	})

	t.Run("bad pagination", func(t *testing.T) {
		resp, _ := n.get(t, "/blocks?offset=-1")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestBalanceAndAccounts(t *testing.T) {
	n := newTestNode(t)
	key, _ := crypto.GenerateKey()

	n.post(t, "/pulse", signedHeartbeat(t, key, n.now))
	n.now += 100
	if _, err := n.engine.BuildBlock(); err != nil {
		t.Fatalf("BuildBlock() error: %v", err)
	}

	t.Run("known balance", func(t *testing.T) {
		_, env := n.get(t, "/balance/"+key.PublicKeyHex())
		var bal BalanceResult
		remarshal(t, env.Data, &bal)
		if bal.Balance <= 0 {
			t.Errorf("balance = %v, want > 0", bal.Balance)
		}
	})

	t.Run("unknown balance is zero", func(t *testing.T) {
		other, _ := crypto.GenerateKey()
		_, env := n.get(t, "/balance/"+other.PublicKeyHex())
		var bal BalanceResult
		remarshal(t, env.Data, &bal)
		if bal.Balance != 0 {
			t.Errorf("balance = %v, want 0", bal.Balance)
		}
	})

	t.Run("bad pubkey shape", func(t *testing.T) {
		resp, _ := n.get(t, "/balance/zzzz")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("accounts", func(t *testing.T) {
		_, env := n.get(t, "/accounts")
		var accounts []types.Account
		remarshal(t, env.Data, &accounts)
		if len(accounts) != 1 || accounts[0].PubKey != key.PublicKeyHex() {
			t.Errorf("accounts = %+v", accounts)
		}
	})
}

func TestSubmitTransactionEndpoint(t *testing.T) {
	n := newTestNode(t)
	sender, _ := crypto.GenerateKey()
	recipient, _ := crypto.GenerateKey()

	// Fund the sender and keep a fresh heartbeat pending.
	n.post(t, "/pulse", signedHeartbeat(t, sender, n.now))
	n.now += 100
	n.engine.BuildBlock()
	n.now += 1000
	hb := signedHeartbeat(t, sender, n.now)
	if _, env := n.post(t, "/pulse", hb); !env.Success {
		t.Fatalf("second pulse rejected: %s", env.Error)
	}

	makeTx := func(amount float64, to string) *types.Transaction {
		tx := &types.Transaction{
			TxID:               uuid.NewString(),
			SenderPubKey:       sender.PublicKeyHex(),
			RecipientPubKey:    to,
			Amount:             amount,
			Timestamp:          n.now,
			HeartbeatSignature: hb.Signature,
		}
		sig, err := sender.SignData(tx.SignableBytes())
		if err != nil {
			t.Fatalf("SignData() error: %v", err)
		}
		tx.Signature = sig
		return tx
	}

	t.Run("accepted", func(t *testing.T) {
		resp, env := n.post(t, "/tx", makeTx(0.1, recipient.PublicKeyHex()))
		if resp.StatusCode != http.StatusOK || !env.Success {
			t.Fatalf("POST /tx = %d, error %q", resp.StatusCode, env.Error)
		}
	})

	t.Run("self transfer", func(t *testing.T) {
		resp, _ := n.post(t, "/tx", makeTx(0.1, sender.PublicKeyHex()))
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("non-positive amount", func(t *testing.T) {
		resp, _ := n.post(t, "/tx", makeTx(0, recipient.PublicKeyHex()))
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("insufficient funds", func(t *testing.T) {
		resp, env := n.post(t, "/tx", makeTx(100, recipient.PublicKeyHex()))
		if resp.StatusCode != http.StatusBadRequest || env.Success {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
		if !strings.Contains(env.Error, "insufficient") {
			t.Errorf("error = %q, want insufficient funds", env.Error)
		}
	})
}

func TestWebSocketStream(t *testing.T) {
	n := newTestNode(t)
	key, _ := crypto.GenerateKey()

	wsURL := "ws" + strings.TrimPrefix(n.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial error: %v", err)
	}
	defer conn.Close()

	if _, env := n.post(t, "/pulse", signedHeartbeat(t, key, n.now)); !env.Success {
		t.Fatalf("pulse rejected: %s", env.Error)
	}
	n.now += 100
	if _, err := n.engine.BuildBlock(); err != nil {
		t.Fatalf("BuildBlock() error: %v", err)
	}

	// Expect heartbeat_count, then new_block, then stats, in order.
	wantTypes := []string{"heartbeat_count", "new_block", "stats"}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for _, want := range wantTypes {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error: %v", err)
		}
		var frame struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.Fatalf("frame decode error: %v", err)
		}
		if frame.Type != want {
			t.Fatalf("frame type = %s, want %s", frame.Type, want)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{MaxRequests: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		if !limiter.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if limiter.Allow("1.2.3.4") {
		t.Error("request over the limit should be denied")
	}
	// Other keys are unaffected.
	if !limiter.Allow("5.6.7.8") {
		t.Error("separate key should be allowed")
	}
}

// remarshal converts an envelope's generic data field into a typed value.
func remarshal(t *testing.T, data any, dst any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("remarshal encode: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("remarshal decode: %v", err)
	}
}
