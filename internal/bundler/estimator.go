package bundler

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"

	wcommon "github.com/fjord-labs/walletcore/internal/common"
	"github.com/fjord-labs/walletcore/internal/config"
	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/metrics"
)

// Fixed gas components of a sponsored user operation. These mirror the
// constants the paymaster contract itself charges with, so the off-chain
// estimate matches the on-chain fee.
const (
	preVerificationGas = 50_000
	verificationGas    = 150_000
	callGas            = 300_000
)

// priceMarkupDenominator is the fixed-point scale of the paymaster's markup.
const priceMarkupDenominator = 10_000_000

// sponsorTokenDecimals is the decimal scale of the fee-sponsor token.
const sponsorTokenDecimals = 6

const paymasterABIJSON = `[
	{"name":"priceMarkup","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"name":"previousPrice","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]}
]`

// ChainReader is the read-only chain surface the estimator needs.
type ChainReader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// Quoter supplies the bundler's current gas price.
type Quoter interface {
	GasPriceQuote(ctx context.Context) (maxFee, maxPriority *big.Int, err error)
}

// FeeEstimate is one cached snapshot of the sponsorship fee inputs and the
// fee they imply.
type FeeEstimate struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PriceMarkup          *big.Int
	PreviousPrice        *big.Int
	FeeAmount            *big.Int // sponsor-token base units
	Dollars              string
}

// Estimator computes the expected sponsorship fee for a user operation. The
// on-chain constants behind the estimate are refreshed lazily on read once
// they exceed the configured TTL; an idle process makes no chain calls.
type Estimator struct {
	chain  ChainReader
	quoter Quoter
	cfg    config.BundlerConfig
	abi    abi.ABI
	log    *logger.Logger

	mu        sync.Mutex
	cached    *FeeEstimate
	fetchedAt time.Time
}

// NewEstimator creates a sponsorship fee estimator.
func NewEstimator(chain ChainReader, quoter Quoter, cfg config.BundlerConfig, log *logger.Logger) (*Estimator, error) {
	parsed, err := abi.JSON(strings.NewReader(paymasterABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse paymaster abi: %w", err)
	}
	return &Estimator{
		chain:  chain,
		quoter: quoter,
		cfg:    cfg,
		abi:    parsed,
		log:    log.WithComponent(wcommon.ComponentBundler),
	}, nil
}

// EstimateFee returns the current sponsorship fee estimate, refreshing the
// cached constants if they are older than the TTL.
func (e *Estimator) EstimateFee(ctx context.Context) (*FeeEstimate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cached != nil && time.Since(e.fetchedAt) < e.cfg.GasPriceCacheTTL.Duration {
		return e.cached, nil
	}

	est, err := e.refresh(ctx)
	if err != nil {
		// stale is better than nothing when the refresh fails
		if e.cached != nil {
			e.log.Warnw("fee constant refresh failed, serving stale estimate", "err", err)
			return e.cached, nil
		}
		return nil, err
	}

	e.cached = est
	e.fetchedAt = time.Now()
	metrics.BundlerCacheRefresh()
	return est, nil
}

func (e *Estimator) refresh(ctx context.Context) (*FeeEstimate, error) {
	maxFee, maxPriority, err := e.quoter.GasPriceQuote(ctx)
	if err != nil {
		return nil, err
	}

	markup, err := e.readUint(ctx, "priceMarkup")
	if err != nil {
		return nil, err
	}
	prevPrice, err := e.readUint(ctx, "previousPrice")
	if err != nil {
		return nil, err
	}

	est := &FeeEstimate{
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: maxPriority,
		PriceMarkup:          markup,
		PreviousPrice:        prevPrice,
	}
	est.FeeAmount = sponsorshipFee(maxFee, markup, prevPrice)
	est.Dollars = wcommon.FormatUnits(est.FeeAmount, sponsorTokenDecimals)

	e.log.Debugw("refreshed fee constants",
		"max_fee_per_gas", maxFee,
		"price_markup", markup,
		"previous_price", prevPrice,
		"fee_dollars", est.Dollars)
	return est, nil
}

// sponsorshipFee mirrors the paymaster's own charge calculation: fixed gas
// components priced at the current fee, converted to the sponsor token at
// the last settled price, with the markup applied.
func sponsorshipFee(maxFeePerGas, markup, previousPrice *big.Int) *big.Int {
	totalGas := big.NewInt(preVerificationGas + verificationGas + callGas)

	feeWei := new(big.Int).Mul(totalGas, maxFeePerGas)

	// previousPrice is sponsor-token base units per 1e18 wei
	amount := new(big.Int).Mul(feeWei, previousPrice)
	amount.Div(amount, big.NewInt(1e18))

	amount.Mul(amount, markup)
	amount.Div(amount, big.NewInt(priceMarkupDenominator))
	return amount
}

func (e *Estimator) readUint(ctx context.Context, method string) (*big.Int, error) {
	data, err := e.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}
	paymaster := e.cfg.Paymaster.Address
	out, err := e.chain.CallContract(ctx, ethereum.CallMsg{To: &paymaster, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to read paymaster %s: %w", method, err)
	}
	vals, err := e.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode paymaster %s: %w", method, err)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected paymaster %s result type %T", method, vals[0])
	}
	return v, nil
}
