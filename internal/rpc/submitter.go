package rpc

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	wcommon "github.com/fjord-labs/walletcore/internal/common"
	"github.com/fjord-labs/walletcore/internal/config"
	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/metrics"
)

// EthSender is the slice of the RPC surface the submitter needs. *Client
// implements it; tests substitute a fake.
type EthSender interface {
	LatestHeader(ctx context.Context) (*types.Header, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Compile-time check.
var _ EthSender = (*Client)(nil)

// Signer signs transactions for one account.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Call describes one contract call to submit.
type Call struct {
	To    *common.Address
	Value *big.Int
	Data  []byte
}

// Submitter turns a contract call into a confirmed receipt or a terminal
// error. Exactly one submission may be in flight per signing account; the
// per-account lock is a blocking acquire, callers wait their turn.
type Submitter struct {
	client  EthSender
	cfg     config.SubmitterConfig
	chainID *big.Int
	log     *logger.Logger

	mu    sync.Mutex
	locks map[common.Address]*sync.Mutex
}

// NewSubmitter creates a transaction submitter.
func NewSubmitter(client EthSender, cfg config.SubmitterConfig, chainID uint64, log *logger.Logger) *Submitter {
	return &Submitter{
		client:  client,
		cfg:     cfg,
		chainID: new(big.Int).SetUint64(chainID),
		log:     log.WithComponent(wcommon.ComponentSubmitter),
		locks:   make(map[common.Address]*sync.Mutex),
	}
}

func (s *Submitter) accountLock(account common.Address) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[account]
	if !ok {
		l = &sync.Mutex{}
		s.locks[account] = l
	}
	return l
}

// Submit signs, sends and confirms one call. Retryable failures escalate
// fees and resubmit up to the attempt cap; any other failure surfaces
// immediately.
func (s *Submitter) Submit(ctx context.Context, signer Signer, call Call) (*types.Receipt, error) {
	lock := s.accountLock(signer.Address())
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	defer func() { metrics.TxSubmitDone(time.Since(start)) }()

	id := uuid.New()
	log := s.log.WithAccount(signer.Address().Hex()).With("submission_id", id.String())

	var prevMaxFee, prevTip *big.Int
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		receipt, maxFee, tip, err := s.attempt(ctx, signer, call, prevMaxFee, prevTip)
		if err == nil {
			metrics.TxSubmitAttempt("success")
			log.Infow("transaction confirmed",
				"attempt", attempt,
				"tx_hash", receipt.TxHash.Hex(),
				"block", receipt.BlockNumber,
				"gas_used", receipt.GasUsed)
			return receipt, nil
		}
		if !IsRetryableSubmission(err) {
			metrics.TxSubmitAttempt("fatal")
			return nil, fmt.Errorf("transaction submission failed: %w", err)
		}

		metrics.TxSubmitAttempt("retryable")
		log.Warnw("transaction attempt failed, escalating fees",
			"attempt", attempt,
			"max_attempts", s.cfg.MaxAttempts,
			"err", err)
		prevMaxFee, prevTip = maxFee, tip
		lastErr = err
	}

	metrics.TxSubmitAttempt("exhausted")
	return nil, fmt.Errorf("%w after %d attempts (last error: %v)",
		ErrAttemptsExhausted, s.cfg.MaxAttempts, lastErr)
}

// attempt runs one full submit-and-confirm cycle. It returns the fee fields
// it used so a retry can floor its own fees above them.
func (s *Submitter) attempt(ctx context.Context, signer Signer, call Call, prevMaxFee, prevTip *big.Int) (*types.Receipt, *big.Int, *big.Int, error) {
	from := signer.Address()
	msg := ethereum.CallMsg{From: from, To: call.To, Value: call.Value, Data: call.Data}

	var (
		header   *types.Header
		gasLimit uint64
		nonce    uint64
		tip      *big.Int
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		header, err = s.client.LatestHeader(gCtx)
		return err
	})
	g.Go(func() error {
		est, err := s.client.EstimateGas(gCtx, msg)
		if err != nil {
			return err
		}
		gasLimit = est * s.cfg.GasLimitPercent / 100
		return nil
	})
	g.Go(func() error {
		var err error
		nonce, err = s.client.PendingNonce(gCtx, from)
		return err
	})
	g.Go(func() error {
		var err error
		tip, err = s.client.SuggestGasTipCap(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	maxFee := new(big.Int).Mul(header.BaseFee, big.NewInt(int64(s.cfg.FeeSafetyPercent)))
	maxFee.Div(maxFee, big.NewInt(100))
	maxFee.Add(maxFee, tip)

	// Fee-replacement floor: a resubmission must outbid the previous
	// attempt or the pool rejects it as underpriced.
	if prevMaxFee != nil {
		maxFee = feeFloor(maxFee, prevMaxFee, s.cfg.ReplacementFeePercent)
	}
	if prevTip != nil {
		tip = feeFloor(tip, prevTip, s.cfg.ReplacementFeePercent)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: maxFee,
		Gas:       gasLimit,
		To:        call.To,
		Value:     call.Value,
		Data:      call.Data,
	})
	signed, err := signer.SignTx(tx, s.chainID)
	if err != nil {
		return nil, maxFee, tip, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return nil, maxFee, tip, err
	}

	receipt, err := s.waitForReceipt(ctx, signed.Hash())
	if err != nil {
		return nil, maxFee, tip, err
	}
	return receipt, maxFee, tip, nil
}

// feeFloor returns the larger of the market fee and percent% of the
// previous attempt's fee.
func feeFloor(market, prev *big.Int, percent uint64) *big.Int {
	floor := new(big.Int).Mul(prev, new(big.Int).SetUint64(percent))
	floor.Div(floor, big.NewInt(100))
	if market.Cmp(floor) >= 0 {
		return market
	}
	return floor
}

// waitForReceipt polls for the receipt until the configured timeout.
func (s *Submitter) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	deadline := time.Now().Add(s.cfg.ReceiptTimeout.Duration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, txHash.Hex())
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
