package coins

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	wcommon "github.com/fjord-labs/walletcore/internal/common"
	"github.com/fjord-labs/walletcore/internal/index"
	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/store"
)

// MintLookup reports whether a transfer coordinate is backed by a bridge
// mint. Mint-backed inbounds are settled by the bridge flow and must not
// enter the pending ledger.
type MintLookup interface {
	MintAt(coord store.LogCoordinate) bool
}

// ForeignTransfer is a raw transfer with resolved token metadata attached.
type ForeignTransfer struct {
	store.Transfer
	Symbol   string
	Decimals uint8
	Dollars  string
}

// pendingKey identifies one ledger bucket.
type pendingKey struct {
	Account common.Address
	Token   common.Address
}

// ForeignIndexer tracks foreign-token balances sitting in tracked accounts
// awaiting conversion. Inbound receipts accumulate per (account, token);
// an outbound leg collapses the accumulated records into a single remainder.
type ForeignIndexer struct {
	index.Base
	store    *store.Store
	accounts AccountSet
	mints    MintLookup
	homeCoin common.Address

	feed *index.Feed[ForeignTransfer]

	mu      sync.RWMutex
	pending map[pendingKey][]*store.PendingSwap
	meta    map[common.Address]*store.TokenMeta
}

// Tokens always proposed for conversion regardless of size.
var alwaysSwapSymbols = map[string]bool{
	"WETH": true,
	"USDC": true,
	"USDT": true,
	"DAI":  true,
}

// NewForeign creates the foreign-coin indexer.
func NewForeign(s *store.Store, accounts AccountSet, mints MintLookup, homeCoin common.Address, log *logger.Logger) *ForeignIndexer {
	f := &ForeignIndexer{
		Base:     index.NewBase(wcommon.ComponentForeign, log),
		store:    s,
		accounts: accounts,
		mints:    mints,
		homeCoin: homeCoin,
		pending:  make(map[pendingKey][]*store.PendingSwap),
		meta:     make(map[common.Address]*store.TokenMeta),
	}
	f.feed = index.NewFeed[ForeignTransfer](&f.Base)
	return f
}

// AddListener registers a callback for newly observed foreign receipts.
func (f *ForeignIndexer) AddListener(fn func([]ForeignTransfer)) {
	f.feed.AddListener(fn)
}

// Init restores the persisted pending ledger.
func (f *ForeignIndexer) Init(ctx context.Context) error {
	rows, err := f.store.LoadPendingSwaps(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		k := pendingKey{Account: row.Account, Token: row.Token}
		f.pending[k] = append(f.pending[k], row)
	}
	f.Log().Infow("restored pending swap ledger", "records", len(rows))
	return nil
}

// Load processes foreign-token transfers in [from, to].
func (f *ForeignIndexer) Load(ctx context.Context, from, to uint64) error {
	if f.Stale(from) {
		return nil
	}
	start := time.Now()

	transfers, err := f.store.LoadTransfers(ctx, from, to)
	if err != nil {
		return err
	}

	var batch []ForeignTransfer
	for _, t := range transfers {
		if t.Token == nil || *t.Token == f.homeCoin {
			continue
		}
		switch {
		case f.accounts.IsAccount(t.To):
			ft, err := f.inbound(ctx, t)
			if err != nil {
				return err
			}
			if ft != nil {
				batch = append(batch, *ft)
			}
		case f.accounts.IsAccount(t.From):
			if err := f.outbound(ctx, t); err != nil {
				return err
			}
		}
	}

	f.Advance(to, start)
	f.feed.Publish(batch)
	return nil
}

// inbound records a foreign receipt in the pending ledger and returns the
// enriched transfer, or nil when the receipt is mint-backed.
func (f *ForeignIndexer) inbound(ctx context.Context, t *store.Transfer) (*ForeignTransfer, error) {
	if f.mints != nil && f.mints.MintAt(t.Coordinate()) {
		return nil, nil
	}

	meta, err := f.tokenMeta(ctx, *t.Token)
	if err != nil {
		return nil, err
	}

	row := &store.PendingSwap{
		Account:    t.To,
		Token:      *t.Token,
		Amount:     new(big.Int).Set(t.Amount),
		FirstBlock: t.BlockNum,
		LastBlock:  t.BlockNum,
		TxHash:     t.TxHash,
		LogIdx:     t.LogIdx,
	}
	if err := f.store.InsertPendingSwap(ctx, row); err != nil {
		return nil, err
	}

	k := pendingKey{Account: t.To, Token: *t.Token}
	f.mu.Lock()
	f.pending[k] = append(f.pending[k], row)
	f.mu.Unlock()

	ft := &ForeignTransfer{Transfer: *t}
	if meta != nil {
		ft.Symbol = meta.Symbol
		ft.Decimals = meta.Decimals
		ft.Dollars = wcommon.FormatUnits(t.Amount, meta.Decimals)
	}
	return ft, nil
}

// outbound collapses the pending records for (account, token) into a single
// remainder sized to whatever balance the outbound leg did not consume. This
// handles several small inbound receipts being swapped together in one batch.
func (f *ForeignIndexer) outbound(ctx context.Context, t *store.Transfer) error {
	k := pendingKey{Account: t.From, Token: *t.Token}

	f.mu.Lock()
	defer f.mu.Unlock()

	rows := f.pending[k]
	if len(rows) == 0 {
		return nil
	}

	total := new(big.Int)
	for _, row := range rows {
		total.Add(total, row.Amount)
	}
	remainder := new(big.Int).Sub(total, t.Amount)

	if remainder.Sign() <= 0 {
		if err := f.store.ReplacePendingSwaps(ctx, k.Account, k.Token, nil); err != nil {
			return err
		}
		delete(f.pending, k)
		return nil
	}

	first := rows[0]
	replacement := &store.PendingSwap{
		Account:    k.Account,
		Token:      k.Token,
		Amount:     remainder,
		FirstBlock: first.FirstBlock,
		LastBlock:  t.BlockNum,
		TxHash:     t.TxHash,
		LogIdx:     t.LogIdx,
	}
	if err := f.store.ReplacePendingSwaps(ctx, k.Account, k.Token, replacement); err != nil {
		return err
	}
	f.pending[k] = []*store.PendingSwap{replacement}
	return nil
}

func (f *ForeignIndexer) tokenMeta(ctx context.Context, token common.Address) (*store.TokenMeta, error) {
	f.mu.RLock()
	meta, ok := f.meta[token]
	f.mu.RUnlock()
	if ok {
		return meta, nil
	}
	meta, err := f.store.GetTokenMeta(ctx, token)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.meta[token] = meta
	f.mu.Unlock()
	return meta, nil
}

// Proposal is one pending balance worth surfacing for conversion.
type Proposal struct {
	Token    common.Address
	Symbol   string
	Decimals uint8
	Amount   *big.Int
	Dollars  string
}

// ProposedSwaps returns the account's pending balances that pass the dust
// policy: below roughly ten cents they are suppressed unless the token is on
// the always-show list.
func (f *ForeignIndexer) ProposedSwaps(ctx context.Context, account common.Address) ([]Proposal, error) {
	f.mu.RLock()
	type bucket struct {
		token common.Address
		total *big.Int
	}
	var buckets []bucket
	for k, rows := range f.pending {
		if k.Account != account {
			continue
		}
		total := new(big.Int)
		for _, row := range rows {
			total.Add(total, row.Amount)
		}
		buckets = append(buckets, bucket{token: k.Token, total: total})
	}
	f.mu.RUnlock()

	var out []Proposal
	for _, b := range buckets {
		meta, err := f.tokenMeta(ctx, b.token)
		if err != nil {
			return nil, err
		}
		p := Proposal{Token: b.token, Amount: b.total}
		if meta != nil {
			p.Symbol = meta.Symbol
			p.Decimals = meta.Decimals
			p.Dollars = wcommon.FormatUnits(b.total, meta.Decimals)
		}
		if isDust(b.total, p.Decimals) && !alwaysSwapSymbols[p.Symbol] {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// isDust treats amounts below a tenth of a whole unit as not worth surfacing.
func isDust(amount *big.Int, decimals uint8) bool {
	if decimals == 0 {
		return amount.Sign() == 0
	}
	tenth := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-1)), nil)
	return amount.Cmp(tenth) < 0
}
