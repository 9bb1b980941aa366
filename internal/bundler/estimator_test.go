package bundler

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wcommon "github.com/fjord-labs/walletcore/internal/common"
	"github.com/fjord-labs/walletcore/internal/config"
	"github.com/fjord-labs/walletcore/internal/logger"
)

type fakeQuoter struct {
	maxFee      *big.Int
	maxPriority *big.Int
	err         error
	calls       int
}

func (q *fakeQuoter) GasPriceQuote(ctx context.Context) (*big.Int, *big.Int, error) {
	q.calls++
	if q.err != nil {
		return nil, nil, q.err
	}
	return new(big.Int).Set(q.maxFee), new(big.Int).Set(q.maxPriority), nil
}

// fakeChain answers paymaster view calls in refresh order: priceMarkup first,
// previousPrice second.
type fakeChain struct {
	markup    *big.Int
	prevPrice *big.Int
	calls     int
}

func (c *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	c.calls++
	if c.calls%2 == 1 {
		return common.BigToHash(c.markup).Bytes(), nil
	}
	return common.BigToHash(c.prevPrice).Bytes(), nil
}

func testBundlerConfig(ttl time.Duration) config.BundlerConfig {
	var cfg config.BundlerConfig
	cfg.RPCURL = "http://localhost:4337"
	cfg.Paymaster.Address = common.HexToAddress("0x6666666666666666666666666666666666666666")
	cfg.GasPriceCacheTTL = wcommon.NewDuration(ttl)
	return cfg
}

func TestSponsorshipFee(t *testing.T) {
	// 500k gas at 1 gwei = 5e14 wei; at 4000.00 sponsor tokens per 1e18 wei
	// that is 2.00, times a 1.1x markup
	maxFee := big.NewInt(1_000_000_000)
	prevPrice := big.NewInt(4_000_000_000)
	markup := big.NewInt(11_000_000)

	fee := sponsorshipFee(maxFee, markup, prevPrice)
	assert.Equal(t, int64(2_200_000), fee.Int64())
	assert.Equal(t, "2.20", wcommon.FormatUnits(fee, sponsorTokenDecimals))
}

func TestEstimateFeeRefreshesOnce(t *testing.T) {
	quoter := &fakeQuoter{maxFee: big.NewInt(1_000_000_000), maxPriority: big.NewInt(100_000)}
	chain := &fakeChain{markup: big.NewInt(11_000_000), prevPrice: big.NewInt(4_000_000_000)}

	e, err := NewEstimator(chain, quoter, testBundlerConfig(time.Hour), logger.NewNopLogger())
	require.NoError(t, err)

	est, err := e.EstimateFee(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2_200_000), est.FeeAmount.Int64())
	assert.Equal(t, "2.20", est.Dollars)
	assert.Equal(t, int64(100_000), est.MaxPriorityFeePerGas.Int64())

	// second read inside the TTL is served from cache
	again, err := e.EstimateFee(context.Background())
	require.NoError(t, err)
	assert.Same(t, est, again)
	assert.Equal(t, 1, quoter.calls)
	assert.Equal(t, 2, chain.calls)
}

func TestEstimateFeeServesStaleOnRefreshFailure(t *testing.T) {
	quoter := &fakeQuoter{maxFee: big.NewInt(1_000_000_000), maxPriority: big.NewInt(100_000)}
	chain := &fakeChain{markup: big.NewInt(11_000_000), prevPrice: big.NewInt(4_000_000_000)}

	// zero TTL: every read attempts a refresh
	e, err := NewEstimator(chain, quoter, testBundlerConfig(0), logger.NewNopLogger())
	require.NoError(t, err)

	est, err := e.EstimateFee(context.Background())
	require.NoError(t, err)

	quoter.err = errors.New("bundler unavailable")
	stale, err := e.EstimateFee(context.Background())
	require.NoError(t, err)
	assert.Same(t, est, stale)
}

func TestEstimateFeeFailsWithoutCache(t *testing.T) {
	quoter := &fakeQuoter{err: errors.New("bundler unavailable")}
	chain := &fakeChain{markup: big.NewInt(1), prevPrice: big.NewInt(1)}

	e, err := NewEstimator(chain, quoter, testBundlerConfig(time.Hour), logger.NewNopLogger())
	require.NoError(t, err)

	_, err = e.EstimateFee(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bundler unavailable")
}
