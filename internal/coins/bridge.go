package coins

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	wcommon "github.com/fjord-labs/walletcore/internal/common"
	"github.com/fjord-labs/walletcore/internal/index"
	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/store"
)

// BridgeIndexer follows CCTP mints into tracked accounts. The mints are the
// receiving half of cross-chain hand-offs; the foreign indexer consults the
// mint coordinates to keep bridged receipts out of the pending-swap ledger.
type BridgeIndexer struct {
	index.Base
	store    *store.Store
	accounts AccountSet

	feed *index.Feed[store.BridgeMint]

	mu     sync.RWMutex
	coords map[store.LogCoordinate]bool
	mints  map[common.Address][]*store.BridgeMint
}

// NewBridge creates the bridge indexer.
func NewBridge(s *store.Store, accounts AccountSet, log *logger.Logger) *BridgeIndexer {
	b := &BridgeIndexer{
		Base:     index.NewBase(wcommon.ComponentBridge, log),
		store:    s,
		accounts: accounts,
		coords:   make(map[store.LogCoordinate]bool),
		mints:    make(map[common.Address][]*store.BridgeMint),
	}
	b.feed = index.NewFeed[store.BridgeMint](&b.Base)
	return b
}

// AddListener registers a callback for newly observed mints.
func (b *BridgeIndexer) AddListener(fn func([]store.BridgeMint)) {
	b.feed.AddListener(fn)
}

// Load ingests mints in [from, to].
func (b *BridgeIndexer) Load(ctx context.Context, from, to uint64) error {
	if b.Stale(from) {
		return nil
	}
	start := time.Now()

	rows, err := b.store.LoadBridgeMints(ctx, from, to)
	if err != nil {
		return err
	}

	var batch []store.BridgeMint
	b.mu.Lock()
	for _, m := range rows {
		coord := store.LogCoordinate{TxHash: m.TxHash, LogIdx: m.LogIdx}
		b.coords[coord] = true
		if b.accounts.IsAccount(m.Recipient) {
			b.mints[m.Recipient] = append(b.mints[m.Recipient], m)
			batch = append(batch, *m)
		}
	}
	b.mu.Unlock()

	b.Advance(to, start)
	b.feed.Publish(batch)
	return nil
}

// MintAt reports whether a log coordinate belongs to a bridge mint. The mint
// log directly precedes the minted token's transfer log in the same
// transaction, so both coordinates answer true.
func (b *BridgeIndexer) MintAt(coord store.LogCoordinate) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.coords[coord] {
		return true
	}
	if coord.LogIdx == 0 {
		return false
	}
	return b.coords[store.LogCoordinate{TxHash: coord.TxHash, LogIdx: coord.LogIdx - 1}]
}

// Mints returns the bridged receipts observed for one account.
func (b *BridgeIndexer) Mints(account common.Address) []store.BridgeMint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]store.BridgeMint, 0, len(b.mints[account]))
	for _, m := range b.mints[account] {
		out = append(out, *m)
	}
	return out
}
