package rpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	wcommon "github.com/fjord-labs/walletcore/internal/common"
	"github.com/fjord-labs/walletcore/internal/config"
	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/retry"
)

// Client wraps the chain's JSON-RPC surface with a shared rate limiter,
// per-call timeouts and transient-error retries. One Client is shared across
// reads, gas estimation and writes.
type Client struct {
	eth         *ethclient.Client
	limiter     *rate.Limiter
	callTimeout time.Duration
	retry       *retry.Config
	log         *logger.Logger
}

// NewClient connects to the configured endpoint.
func NewClient(ctx context.Context, cfg config.ChainConfig, log *logger.Logger) (*Client, error) {
	rpcClient, err := gethrpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}

	return &Client{
		eth:         ethclient.NewClient(rpcClient),
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		callTimeout: cfg.CallTimeout.Duration,
		retry:       cfg.Retry,
		log:         log.WithComponent(wcommon.ComponentRPC),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.eth.Close()
}

// call runs one rate-limited, retried RPC call with the per-call timeout.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, c.retry, op, retry.Transient, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
		return fn(callCtx)
	})
}

// LatestBlockNumber returns the chain head number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.call(ctx, "eth_blockNumber", func(ctx context.Context) error {
		var err error
		n, err = c.eth.BlockNumber(ctx)
		return err
	})
	return n, err
}

// LatestHeader returns the chain head header.
func (c *Client) LatestHeader(ctx context.Context) (*types.Header, error) {
	var h *types.Header
	err := c.call(ctx, "eth_getBlockByNumber", func(ctx context.Context) error {
		var err error
		h, err = c.eth.HeaderByNumber(ctx, nil)
		return err
	})
	return h, err
}

// PendingNonce returns the next nonce for an account including pending txs.
func (c *Client) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	var n uint64
	err := c.call(ctx, "eth_getTransactionCount", func(ctx context.Context) error {
		var err error
		n, err = c.eth.PendingNonceAt(ctx, account)
		return err
	})
	return n, err
}

// EstimateGas simulates the call and returns the gas estimate.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.call(ctx, "eth_estimateGas", func(ctx context.Context) error {
		var err error
		gas, err = c.eth.EstimateGas(ctx, msg)
		return err
	})
	return gas, err
}

// SuggestGasTipCap returns the suggested priority fee.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var tip *big.Int
	err := c.call(ctx, "eth_maxPriorityFeePerGas", func(ctx context.Context) error {
		var err error
		tip, err = c.eth.SuggestGasTipCap(ctx)
		return err
	})
	return tip, err
}

// SendTransaction submits a signed transaction. Not retried here: the
// submitter owns the retry loop because retrying requires fee escalation.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.eth.SendTransaction(callCtx, tx)
}

// TransactionReceipt returns the receipt for a mined transaction.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return c.eth.TransactionReceipt(callCtx, txHash)
}

// CallContract executes a read-only contract call at the latest block.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var out []byte
	err := c.call(ctx, "eth_call", func(ctx context.Context) error {
		var err error
		out, err = c.eth.CallContract(ctx, msg, nil)
		return err
	})
	return out, err
}
