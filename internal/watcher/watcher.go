// Package watcher implements the deposit detection loop: it consumes the
// chain's new-block feed, filters transactions addressed to the treasury
// wallet and hands each qualifying transfer to the crediting step. No error
// in the detection or credit path is ever allowed to stop the loop.
package watcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"deposit-bridge-go/internal/metrics"
	"deposit-bridge-go/internal/models"
)

// Source is the chain RPC surface the watcher consumes.
type Source interface {
	Height(ctx context.Context) (uint64, error)
	SubscribeNewBlocks(ctx context.Context) (<-chan uint64, <-chan error, func(), error)
	BlockWithTransactions(ctx context.Context, number uint64) (*models.Block, error)
}

// Crediting is the downstream credit step invoked per qualifying deposit.
type Crediting interface {
	Credit(ctx context.Context, dep models.DepositEvent) error
}

// Config for a Watcher.
type Config struct {
	Chain    Source
	Ledger   Crediting
	Treasury string
}

// Watcher observes new blocks and credits treasury deposits.
type Watcher struct {
	chain    Source
	ledger   Crediting
	treasury string

	unsubscribe func()
	stopOnce    sync.Once
	stopping    atomic.Bool
	doneChan    chan struct{}
	started     bool
}

// New builds a Watcher; call Start to begin observing.
func New(cfg Config) *Watcher {
	return &Watcher{
		chain:    cfg.Chain,
		ledger:   cfg.Ledger,
		treasury: strings.ToLower(cfg.Treasury),
		doneChan: make(chan struct{}),
	}
}

// Start probes the endpoint and launches the watch loop. The initial height
// probe is a startup precondition: its failure is returned to the caller,
// which is expected to treat it as fatal.
func (w *Watcher) Start(ctx context.Context) error {
	height, err := w.chain.Height(ctx)
	if err != nil {
		return fmt.Errorf("initial connectivity probe failed: %w", err)
	}

	blocks, errs, unsubscribe, err := w.chain.SubscribeNewBlocks(ctx)
	if err != nil {
		return fmt.Errorf("unable to subscribe to new blocks: %w", err)
	}
	w.unsubscribe = unsubscribe
	w.started = true

	zap.L().Info("Deposit watcher started",
		zap.String("treasury", w.treasury),
		zap.Uint64("current_height", height))

	go w.run(ctx, blocks, errs)
	return nil
}

// Stop unsubscribes from the block feed and waits for the loop to drain.
// Safe to call multiple times and safe to call when Start never ran.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		if !w.started {
			return
		}
		w.stopping.Store(true)
		w.unsubscribe()
		<-w.doneChan
		zap.L().Info("Deposit watcher stopped")
	})
}

func (w *Watcher) run(ctx context.Context, blocks <-chan uint64, errs <-chan error) {
	defer close(w.doneChan)

	for {
		select {
		case number, ok := <-blocks:
			if !ok {
				if !w.stopping.Load() {
					// The feed goroutine ended on its own, typically after a
					// subscription error. Nothing resubscribes; the process
					// must be restarted to resume crediting.
					zap.L().Error("Block feed ended, no further blocks will be processed")
				}
				return
			}
			metrics.LastBlockSeen.Set(float64(number))
			w.processBlock(ctx, number)
		case err, ok := <-errs:
			if !ok {
				return
			}
			// Feed errors are advisory; the watcher keeps consuming what
			// still arrives rather than terminating.
			zap.L().Error("Block feed error", zap.Error(err))
		case <-ctx.Done():
			return
		}
	}
}

// processBlock fetches full block detail and credits every qualifying
// transaction. RPC failure aborts this block only; a failing credit call is
// isolated to its transaction.
func (w *Watcher) processBlock(ctx context.Context, number uint64) {
	block, err := w.chain.BlockWithTransactions(ctx, number)
	if err != nil {
		metrics.BlockFetchErrors.Inc()
		zap.L().Error("Unable to fetch block detail, skipping block",
			zap.Uint64("block_number", number),
			zap.Error(err))
		return
	}

	metrics.BlocksProcessed.Inc()
	if len(block.Transactions) == 0 {
		return
	}

	for _, tx := range block.Transactions {
		if !w.isTreasuryDeposit(tx) {
			continue
		}

		metrics.DepositsDetected.Inc()
		dep := models.DepositEvent{
			From:        tx.From,
			ValueWei:    tx.Value,
			TxHash:      tx.Hash,
			BlockNumber: block.Number,
		}
		if err := w.ledger.Credit(ctx, dep); err != nil {
			metrics.CreditsDropped.WithLabelValues("credit_error").Inc()
			zap.L().Error("Failed to credit deposit",
				zap.String("tx_hash", tx.Hash),
				zap.String("from", tx.From),
				zap.Uint64("block_number", block.Number),
				zap.Error(err))
		}
	}
}

// isTreasuryDeposit is the filter predicate: destination present and equal to
// the treasury address (case-insensitive), sender present, positive value.
// Anything else is silently skipped.
func (w *Watcher) isTreasuryDeposit(tx models.Transaction) bool {
	if tx.To == "" || !strings.EqualFold(tx.To, w.treasury) {
		return false
	}
	if tx.From == "" {
		return false
	}
	return tx.Value != nil && tx.Value.Sign() > 0
}
