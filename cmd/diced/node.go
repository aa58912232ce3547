package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"DiceVault/internal/api"
	"DiceVault/internal/config"
	"DiceVault/internal/dice"
	"DiceVault/internal/journal"
	"DiceVault/internal/journal/postgres"
	"DiceVault/internal/journal/sqlite"
	"DiceVault/internal/ledger"
	"DiceVault/internal/logger"
	"DiceVault/internal/metrics"
	"DiceVault/internal/oracle"
	"DiceVault/internal/replay"
	"DiceVault/internal/storage"
)

// pruneInterval is how often expired replay claims are removed.
const pruneInterval = time.Minute

// Node is a running settlement node.
type Node struct {
	cfg     *config.Config
	storage *storage.Storage
	journal journal.Journal
	metrics *metrics.Metrics
	engine  *dice.Engine
	ledger  *ledger.Ledger
	api     *api.Server

	stopPrune chan struct{}
	wg        sync.WaitGroup
}

// NewNode opens storage and the journal and wires the engine.
func NewNode(ctx context.Context, cfg *config.Config) (*Node, error) {
	n := &Node{cfg: cfg}

	db, err := openStorage(cfg.DataPath)
	if err != nil {
		return nil, err
	}
	n.storage = db

	if err := n.initJournal(ctx); err != nil {
		n.Close()
		return nil, err
	}

	n.metrics = metrics.New()
	n.ledger = ledger.New(n.storage)
	n.engine = dice.New(dice.Config{
		Ledger:  n.ledger,
		Oracle:  oracle.NewMonotonic(oracle.System{}),
		Journal: n.journal,
		Metrics: n.metrics,
	})

	return n, nil
}

// openStorage creates the data directory and opens the Pebble store in it.
func openStorage(dataPath string) (*storage.Storage, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.New(filepath.Join(dataPath, "db"))
	if err != nil {
		return nil, fmt.Errorf("init storage:\n%w", err)
	}

	return db, nil
}

// initJournal opens the configured receipt backend.
func (n *Node) initJournal(ctx context.Context) error {
	switch n.cfg.Journal {
	case config.JournalSQLite:
		j, err := sqlite.Open(n.cfg.JournalDSN)
		if err != nil {
			return fmt.Errorf("open sqlite journal:\n%w", err)
		}
		n.journal = j
	case config.JournalPostgres:
		j, err := postgres.Open(ctx, n.cfg.JournalDSN)
		if err != nil {
			return fmt.Errorf("open postgres journal:\n%w", err)
		}
		n.journal = j
	default:
		n.journal = journal.Nop{}
	}

	return nil
}

// Run starts the HTTP API and blocks until a shutdown signal.
func (n *Node) Run() error {
	n.api = api.New(api.Config{
		Addr:    n.cfg.HTTPAddress,
		Engine:  n.engine,
		Ledger:  n.ledger,
		Metrics: n.metrics,
		Faucet:  n.cfg.Faucet,
	})

	if err := n.api.Start(); err != nil {
		n.Close()
		return fmt.Errorf("start api:\n%w", err)
	}

	if n.cfg.Faucet {
		logger.Warn("faucet enabled: anyone can mint")
	}

	n.startPruneLoop()

	return n.waitForShutdown()
}

// startPruneLoop periodically drops replay claims that can no longer be
// replayed because their instruction expired.
func (n *Node) startPruneLoop() {
	n.stopPrune = make(chan struct{})
	log := logger.With("component", "replay")

	n.wg.Add(1)

	go func() {
		defer n.wg.Done()

		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				removed, err := replay.Prune(n.storage, n.engine.Now())
				if err != nil {
					log.Warnw("prune failed", "error", err)
					continue
				}
				if removed > 0 {
					log.Debugw("pruned replay claims", "count", removed)
				}
			case <-n.stopPrune:
				return
			}
		}
	}()
}

// waitForShutdown blocks until SIGINT or SIGTERM is received.
func (n *Node) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return n.Close()
}

// Close shuts down all node components gracefully.
func (n *Node) Close() error {
	if n.api != nil {
		if err := n.api.Stop(); err != nil {
			logger.Warn("api shutdown", "error", err)
		}
	}

	if n.stopPrune != nil {
		close(n.stopPrune)
		n.stopPrune = nil
		n.wg.Wait()
	}

	if n.journal != nil {
		n.journal.Close()
	}

	if n.storage != nil {
		return n.storage.Close()
	}

	return nil
}
