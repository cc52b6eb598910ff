// Package rpc implements the node's REST and WebSocket API.
package rpc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulse-net/pulse-chain/internal/chain"
	klog "github.com/pulse-net/pulse-chain/internal/log"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Per-IP rate limits, matching the device submission cadence: heartbeats
// arrive at most every few seconds, queries are dashboard-driven.
var (
	defaultPulseLimit = RateLimitConfig{MaxRequests: 30, Window: time.Minute}
	defaultQueryLimit = RateLimitConfig{MaxRequests: 120, Window: time.Minute}
)

// Server is the HTTP API server.
type Server struct {
	addr   string
	engine *chain.Engine
	server *http.Server
	ln     net.Listener
	logger zerolog.Logger

	pulseLimiter *RateLimiter
	queryLimiter *RateLimiter

	cleanupStop chan struct{}
}

// New creates an API server around the chain engine.
func New(addr string, engine *chain.Engine) *Server {
	s := &Server{
		addr:         addr,
		engine:       engine,
		logger:       klog.WithComponent("rpc"),
		pulseLimiter: NewRateLimiter(defaultPulseLimit),
		queryLimiter: NewRateLimiter(defaultQueryLimit),
		cleanupStop:  make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /chain", s.handleChainInfo)
	mux.HandleFunc("GET /blocks", s.handleBlocks)
	mux.HandleFunc("GET /block/latest", s.handleLatestBlock)
	mux.HandleFunc("GET /block/{index}", s.handleBlockByIndex)
	mux.HandleFunc("GET /balance/{pubkey}", s.handleBalance)
	mux.HandleFunc("GET /accounts", s.handleAccounts)
	mux.HandleFunc("POST /pulse", s.handleSubmitHeartbeat)
	mux.HandleFunc("POST /tx", s.handleSubmitTransaction)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	s.server = &http.Server{
		Handler:      cors(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// cors adds permissive CORS headers so browser dashboards and devices on
// other origins can reach the API.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	go s.runLimiterCleanup()

	return nil
}

// runLimiterCleanup prunes expired rate limit windows until Stop.
func (s *Server) runLimiterCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.cleanupStop:
			return
		case <-ticker.C:
			s.pulseLimiter.Cleanup()
			s.queryLimiter.Cleanup()
		}
	}
}

// Handler returns the root HTTP handler. Tests mount it on httptest
// servers.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	close(s.cleanupStop)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// allow applies a rate limiter to the request, writing a 429 when it trips.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, limiter *RateLimiter) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if limiter.Allow(host) {
		return true
	}
	writeJSON(w, http.StatusTooManyRequests, Response{
		Success: false,
		Error:   "rate limit exceeded",
	})
	return false
}
