package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/pulse-net/pulse-chain/pkg/types"
)

// maxBlockPageSize caps an explicit ?limit so one request cannot dump an
// unbounded chain slice.
const maxBlockPageSize = 200

// ── Query endpoints ─────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "ok")
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, s.queryLimiter) {
		return
	}
	writeOK(w, s.engine.Stats())
}

func (s *Server) handleChainInfo(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, s.queryLimiter) {
		return
	}
	writeOK(w, s.engine.ChainInfo())
}

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, s.queryLimiter) {
		return
	}

	// Omitted offset/limit return the entire chain, oldest first.
	offset := 0
	limit := -1
	q := r.URL.Query()
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadParam(w, "offset")
			return
		}
		offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadParam(w, "limit")
			return
		}
		if n > maxBlockPageSize {
			n = maxBlockPageSize
		}
		limit = n
	}

	blocks, total, err := s.engine.ListBlocks(offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if blocks == nil {
		blocks = []*types.PulseBlock{}
	}
	writeOK(w, BlockListResult{Blocks: blocks, Total: total})
}

func (s *Server) handleLatestBlock(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, s.queryLimiter) {
		return
	}
	blk, err := s.engine.LatestBlock()
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, blk)
}

func (s *Server) handleBlockByIndex(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, s.queryLimiter) {
		return
	}
	index, err := strconv.ParseUint(r.PathValue("index"), 10, 64)
	if err != nil {
		writeBadParam(w, "index")
		return
	}
	blk, err := s.engine.GetBlock(index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, blk)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, s.queryLimiter) {
		return
	}
	pubkey := r.PathValue("pubkey")
	if !validPubKeyParam(pubkey) {
		writeBadParam(w, "pubkey")
		return
	}
	writeOK(w, BalanceResult{PubKey: pubkey, Balance: s.engine.Balance(pubkey)})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, s.queryLimiter) {
		return
	}
	writeOK(w, s.engine.Accounts())
}

// ── Submission endpoints ────────────────────────────────────────────────

func (s *Server) handleSubmitHeartbeat(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, s.pulseLimiter) {
		return
	}

	var hb types.Heartbeat
	if !decodeBody(w, r, &hb) {
		return
	}

	// Shallow field validation before any signature work.
	if !validPubKeyParam(hb.DevicePubKey) {
		writeBadParam(w, "device_pubkey")
		return
	}
	if hb.Signature == "" {
		writeBadParam(w, "signature")
		return
	}
	if hb.HeartRate == 0 || hb.HeartRate > 300 {
		writeBadParam(w, "heart_rate")
		return
	}
	if hb.Temperature < 25.0 || hb.Temperature > 45.0 {
		writeBadParam(w, "temperature")
		return
	}

	if err := s.engine.SubmitHeartbeat(&hb); err != nil {
		s.logger.Debug().Err(err).Str("device", abbrev(hb.DevicePubKey)).Msg("Heartbeat rejected")
		writeError(w, err)
		return
	}
	writeOK(w, struct{}{})
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, s.pulseLimiter) {
		return
	}

	var tx types.Transaction
	if !decodeBody(w, r, &tx) {
		return
	}

	if tx.TxID == "" {
		writeBadParam(w, "tx_id")
		return
	}
	if !validPubKeyParam(tx.SenderPubKey) || !validPubKeyParam(tx.RecipientPubKey) {
		writeBadParam(w, "pubkey")
		return
	}
	if tx.SenderPubKey == tx.RecipientPubKey {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "cannot send to yourself"})
		return
	}
	if tx.Amount <= 0 {
		writeBadParam(w, "amount")
		return
	}
	if tx.Signature == "" {
		writeBadParam(w, "signature")
		return
	}

	if err := s.engine.SubmitTransaction(&tx); err != nil {
		s.logger.Debug().Err(err).Str("tx", tx.TxID).Msg("Transaction rejected")
		writeError(w, err)
		return
	}
	writeOK(w, struct{}{})
}

// ── Helpers ─────────────────────────────────────────────────────────────

// decodeBody parses a bounded JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Error:   fmt.Sprintf("malformed request body: %v", err),
		})
		return false
	}
	return true
}

func writeBadParam(w http.ResponseWriter, name string) {
	writeJSON(w, http.StatusBadRequest, Response{
		Success: false,
		Error:   "invalid " + name,
	})
}

// validPubKeyParam checks the shape of a hex pubkey before it reaches the
// core: 130 hex chars for an uncompressed SEC1 key.
func validPubKeyParam(pubkey string) bool {
	if len(pubkey) != 130 {
		return false
	}
	for _, c := range pubkey {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func abbrev(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:12] + "..."
}
