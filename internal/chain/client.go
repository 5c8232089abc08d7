// Package chain wraps the Ethereum RPC endpoint behind the three calls the
// watcher needs: current height, a new-block feed and block-by-number with
// full transaction detail. Websocket endpoints get a real newHeads
// subscription; HTTP endpoints fall back to height polling.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"deposit-bridge-go/internal/models"
)

// notifyBuffer sizes the block-number channel so a slow credit path cannot
// starve delivery of new-block notifications.
const notifyBuffer = 64

// Client is a connection to one Ethereum RPC endpoint.
type Client struct {
	ec           *ethclient.Client
	signer       types.Signer
	pollInterval time.Duration
	rl           ratelimit.Limiter
}

// New dials the endpoint and resolves the chain id, which is needed to
// recover transaction senders.
func New(ctx context.Context, cfg models.ChainConfig) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("unable to dial rpc endpoint %s: %w", cfg.RPCURL, err)
	}

	chainId, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("unable to resolve chain id: %w", err)
	}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 10
	}

	return &Client{
		ec:           ec,
		signer:       types.LatestSignerForChainID(chainId),
		pollInterval: cfg.PollInterval,
		rl:           ratelimit.New(rps),
	}, nil
}

// Close tears down the underlying RPC connection.
func (c *Client) Close() {
	c.ec.Close()
}

// Height returns the current block height. Used as the startup connectivity
// probe: a failure here is fatal, not retried.
func (c *Client) Height(ctx context.Context) (uint64, error) {
	return c.ec.BlockNumber(ctx)
}

// SubscribeNewBlocks returns a channel of new block numbers, a channel of
// feed errors and an idempotent unsubscribe func. Feed errors are advisory:
// the watcher logs them and keeps consuming.
func (c *Client) SubscribeNewBlocks(ctx context.Context) (<-chan uint64, <-chan error, func(), error) {
	blocks := make(chan uint64, notifyBuffer)
	errs := make(chan error, 1)
	stop := make(chan struct{})

	unsubscribe := func() {
		select {
		case <-stop:
			// already closed
		default:
			close(stop)
		}
	}

	heads := make(chan *types.Header, notifyBuffer)
	sub, err := c.ec.SubscribeNewHead(ctx, heads)
	if err != nil {
		zap.L().Info("Head subscription unavailable, falling back to polling",
			zap.Duration("poll_interval", c.pollInterval),
			zap.Error(err))
		go c.pollHeights(ctx, blocks, errs, stop)
		return blocks, errs, unsubscribe, nil
	}

	go func() {
		defer close(blocks)
		defer sub.Unsubscribe()

		for {
			select {
			case head := <-heads:
				select {
				case blocks <- head.Number.Uint64():
				default:
					// Buffer full; drop the notification rather than block
					// the feed. Missed blocks are not reprocessed.
					zap.L().Warn("Block notification dropped, consumer too slow",
						zap.Uint64("block_number", head.Number.Uint64()))
				}
			case err := <-sub.Err():
				if err != nil {
					errs <- err
				}
				return
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return blocks, errs, unsubscribe, nil
}

// pollHeights emits every height in (last, current] on each tick, in order.
func (c *Client) pollHeights(ctx context.Context, blocks chan<- uint64, errs chan<- error, stop <-chan struct{}) {
	defer close(blocks)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var last uint64
	primed := false
	if height, err := c.Height(ctx); err == nil {
		last = height
		primed = true
	}

	for {
		select {
		case <-ticker.C:
			current, err := c.Height(ctx)
			if err != nil {
				select {
				case errs <- err:
				default:
				}
				continue
			}
			if !primed {
				// First reachable height after a failed initial probe marks
				// the starting point; history is not replayed.
				last = current
				primed = true
				continue
			}
			for n := last + 1; n <= current; n++ {
				select {
				case blocks <- n:
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
			}
			if current > last {
				last = current
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// BlockWithTransactions fetches the full block and reduces each transaction
// to the fields the deposit filter needs. Contract creations surface with an
// empty To; transactions whose sender cannot be recovered surface with an
// empty From. Both are skipped downstream.
func (c *Client) BlockWithTransactions(ctx context.Context, number uint64) (*models.Block, error) {
	c.rl.Take()

	block, err := c.ec.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, fmt.Errorf("unable to fetch block %d: %w", number, err)
	}

	view := &models.Block{
		Number:       block.NumberU64(),
		Transactions: make([]models.Transaction, 0, len(block.Transactions())),
	}

	for _, tx := range block.Transactions() {
		entry := models.Transaction{
			Hash:  tx.Hash().Hex(),
			Value: tx.Value(),
		}
		if to := tx.To(); to != nil {
			entry.To = to.Hex()
		}
		if from, err := types.Sender(c.signer, tx); err == nil {
			entry.From = from.Hex()
		}
		view.Transactions = append(view.Transactions, entry)
	}

	return view, nil
}
