// Package node assembles a runnable Pulse node: storage, chain engine,
// API server, the block production loop, and the optional device
// simulator.
package node

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulse-net/pulse-chain/config"
	"github.com/pulse-net/pulse-chain/internal/chain"
	"github.com/pulse-net/pulse-chain/internal/events"
	klog "github.com/pulse-net/pulse-chain/internal/log"
	"github.com/pulse-net/pulse-chain/internal/rpc"
	"github.com/pulse-net/pulse-chain/internal/storage"
)

// Node is a fully-initialized Pulse node.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	db        storage.DB // nil in simulate mode
	engine    *chain.Engine
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a Node. It performs all setup steps (logger,
// storage, engine, RPC) but does not start background goroutines; call
// Start for that. Returns chain.ErrCorruptLedger if the persisted state
// does not verify.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Logger ───────────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" && !cfg.Simulate {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = logsDir + "/pulsed.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	logger.Info().
		Int("port", cfg.Port).
		Uint64("block_time_ms", cfg.BlockTimeMs).
		Int("n_threshold", cfg.NThreshold).
		Uint64("freshness_ms", cfg.FreshnessMs).
		Bool("simulate", cfg.Simulate).
		Msg("Starting Pulse node")

	// ── 2. Storage ──────────────────────────────────────────────────
	var db storage.DB
	var store *chain.Store
	if !cfg.Simulate {
		badgerDB, err := storage.NewBadger(cfg.ChainDataDir())
		if err != nil {
			return nil, fmt.Errorf("open database at %s: %w", cfg.ChainDataDir(), err)
		}
		db = badgerDB
		store = chain.NewStore(db)
		logger.Info().Str("path", cfg.ChainDataDir()).Msg("Database opened")
	} else {
		logger.Info().Msg("Simulate mode: persistence disabled")
	}

	// ── 3. Chain engine ─────────────────────────────────────────────
	chainCfg := chain.Config{
		BlockTime:         cfg.BlockTime(),
		NThreshold:        cfg.NThreshold,
		Freshness:         cfg.Freshness(),
		BaseReward:        cfg.BaseReward,
		StrictBiometrics:  cfg.StrictBiometrics,
		SynthesizeGenesis: cfg.Simulate,
	}
	engine, err := chain.New(chainCfg, store, events.New(events.DefaultBacklog))
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	// ── 4. RPC server ───────────────────────────────────────────────
	rpcServer := rpc.New(fmt.Sprintf(":%d", cfg.Port), engine)

	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		engine:    engine,
		rpcServer: rpcServer,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Engine exposes the chain engine (tests and embedding binaries).
func (n *Node) Engine() *chain.Engine {
	return n.engine
}

// RPCAddr returns the bound API address once Start has run.
func (n *Node) RPCAddr() string {
	return n.rpcServer.Addr()
}

// Start launches the API server, the block production loop, and the
// simulator when enabled.
func (n *Node) Start() error {
	if err := n.rpcServer.Start(); err != nil {
		return err
	}
	n.logger.Info().Str("addr", n.rpcServer.Addr()).Msg("API server started")

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.runBlockLoop()
	}()

	if n.cfg.Simulate {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runSimulator()
		}()
	}

	return nil
}

// runBlockLoop drives block production at the configured interval. A single
// goroutine owns the tip; a tick that fires while a build is still running
// is dropped, not queued.
func (n *Node) runBlockLoop() {
	ticker := time.NewTicker(n.cfg.BlockTime())
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if _, err := n.engine.BuildBlock(); err != nil {
				n.logger.Error().Err(err).Msg("Block build failed; retrying next tick")
			}
			// Drop any tick that accumulated during the build.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// Stop shuts the node down: submissions are rejected, the in-flight block
// finishes, background loops stop, the event bus closes, and storage is
// flushed.
func (n *Node) Stop() {
	n.logger.Info().Msg("Shutting down")

	n.engine.Shutdown()
	n.cancel()
	n.wg.Wait()

	if err := n.rpcServer.Stop(); err != nil {
		n.logger.Warn().Err(err).Msg("API server shutdown")
	}

	// The producer is stopped; subscribers get a clean close.
	n.engine.Bus().Close()

	if n.db != nil {
		if err := n.db.Flush(); err != nil {
			n.logger.Error().Err(err).Msg("Final flush failed")
		}
		if err := n.db.Close(); err != nil {
			n.logger.Error().Err(err).Msg("Database close failed")
		}
	}

	n.logger.Info().Msg("Shutdown complete")
}
