package rpc

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wcommon "github.com/fjord-labs/walletcore/internal/common"
	"github.com/fjord-labs/walletcore/internal/config"
	"github.com/fjord-labs/walletcore/internal/logger"
)

var (
	relayer   = common.HexToAddress("0x5555555555555555555555555555555555555555")
	entryAddr = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
)

// fakeSender scripts the RPC surface: per-call send errors, withheld receipts.
type fakeSender struct {
	mu sync.Mutex

	baseFee     *big.Int
	tip         *big.Int
	gasEstimate uint64
	nonce       uint64

	sendErrs         []error // consumed one per SendTransaction, then success
	withholdReceipts int     // successful sends that never confirm

	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
}

func (f *fakeSender) LatestHeader(ctx context.Context) (*types.Header, error) {
	return &types.Header{BaseFee: new(big.Int).Set(f.baseFee), Number: big.NewInt(100)}, nil
}

func (f *fakeSender) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeSender) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return f.gasEstimate, nil
}

func (f *fakeSender) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.tip), nil
}

func (f *fakeSender) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, tx)
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	if f.withholdReceipts > 0 {
		f.withholdReceipts--
		return nil
	}
	if f.receipts == nil {
		f.receipts = make(map[common.Hash]*types.Receipt)
	}
	f.receipts[tx.Hash()] = &types.Receipt{
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(101),
		GasUsed:     21_000,
		Status:      types.ReceiptStatusSuccessful,
	}
	return nil
}

func (f *fakeSender) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, errors.New("not found")
	}
	return r, nil
}

// fakeSigner passes transactions through unsigned; the fake sender never
// recovers the sender address.
type fakeSigner struct{ addr common.Address }

func (s fakeSigner) Address() common.Address { return s.addr }
func (s fakeSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return tx, nil
}

func testSubmitterConfig() config.SubmitterConfig {
	return config.SubmitterConfig{
		MaxAttempts:           3,
		GasLimitPercent:       150,
		FeeSafetyPercent:      200,
		ReplacementFeePercent: 120,
		// expires before the first poll tick so timeout paths are immediate
		ReceiptTimeout: wcommon.NewDuration(time.Nanosecond),
	}
}

func TestSubmitFirstAttemptSucceeds(t *testing.T) {
	sender := &fakeSender{baseFee: big.NewInt(1000), tip: big.NewInt(50), gasEstimate: 100_000, nonce: 7}
	s := NewSubmitter(sender, testSubmitterConfig(), 8453, logger.NewNopLogger())

	receipt, err := s.Submit(context.Background(), fakeSigner{relayer}, Call{To: &entryAddr, Data: []byte{0x01}})
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, uint64(21_000), receipt.GasUsed)

	require.Len(t, sender.sent, 1)
	tx := sender.sent[0]
	// gas estimate padded by 50%, base fee doubled plus tip
	assert.Equal(t, uint64(150_000), tx.Gas())
	assert.Equal(t, int64(2050), tx.GasFeeCap().Int64())
	assert.Equal(t, int64(50), tx.GasTipCap().Int64())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, big.NewInt(8453), tx.ChainId())
}

func TestSubmitEscalatesFeesOnUnderpriced(t *testing.T) {
	sender := &fakeSender{
		baseFee: big.NewInt(1000), tip: big.NewInt(50), gasEstimate: 100_000,
		sendErrs: []error{errors.New("replacement transaction underpriced")},
	}
	s := NewSubmitter(sender, testSubmitterConfig(), 8453, logger.NewNopLogger())

	_, err := s.Submit(context.Background(), fakeSigner{relayer}, Call{To: &entryAddr})
	require.NoError(t, err)

	require.Len(t, sender.sent, 2)
	first, second := sender.sent[0], sender.sent[1]
	assert.Equal(t, int64(2050), first.GasFeeCap().Int64())
	// market fees are unchanged, so the retry sits exactly on the 120% floor
	assert.Equal(t, int64(2460), second.GasFeeCap().Int64())
	assert.Equal(t, int64(60), second.GasTipCap().Int64())
}

func TestSubmitRetriesOnReceiptTimeout(t *testing.T) {
	sender := &fakeSender{
		baseFee: big.NewInt(1000), tip: big.NewInt(50), gasEstimate: 100_000,
		withholdReceipts: 1,
	}
	s := NewSubmitter(sender, testSubmitterConfig(), 8453, logger.NewNopLogger())

	receipt, err := s.Submit(context.Background(), fakeSigner{relayer}, Call{To: &entryAddr})
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Len(t, sender.sent, 2)
}

func TestSubmitFatalErrorSurfacesImmediately(t *testing.T) {
	sender := &fakeSender{
		baseFee: big.NewInt(1000), tip: big.NewInt(50), gasEstimate: 100_000,
		sendErrs: []error{errors.New("execution reverted")},
	}
	s := NewSubmitter(sender, testSubmitterConfig(), 8453, logger.NewNopLogger())

	_, err := s.Submit(context.Background(), fakeSigner{relayer}, Call{To: &entryAddr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution reverted")
	assert.Len(t, sender.sent, 1)
}

func TestSubmitExhaustsAttempts(t *testing.T) {
	sender := &fakeSender{
		baseFee: big.NewInt(1000), tip: big.NewInt(50), gasEstimate: 100_000,
		sendErrs: []error{
			errors.New("transaction underpriced"),
			errors.New("transaction underpriced"),
			errors.New("transaction underpriced"),
		},
	}
	s := NewSubmitter(sender, testSubmitterConfig(), 8453, logger.NewNopLogger())

	_, err := s.Submit(context.Background(), fakeSigner{relayer}, Call{To: &entryAddr})
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Len(t, sender.sent, 3)
}

func TestFeeFloor(t *testing.T) {
	// market above the floor wins
	assert.Equal(t, int64(5000), feeFloor(big.NewInt(5000), big.NewInt(1000), 120).Int64())
	// floor wins when the market has not moved
	assert.Equal(t, int64(1200), feeFloor(big.NewInt(1000), big.NewInt(1000), 120).Int64())
}

func TestIsRetryableSubmission(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
	}{
		{errors.New("replacement transaction underpriced"), true},
		{errors.New("transaction underpriced"), true},
		{errors.New("nonce too low"), true},
		{errors.New("already known"), true},
		{ErrReceiptTimeout, true},
		{errors.New("execution reverted"), false},
		{errors.New("insufficient funds for gas * price + value"), false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.retryable, IsRetryableSubmission(tc.err), tc.err.Error())
	}
}
