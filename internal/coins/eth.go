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

// EthIndexer follows trace-derived native transfers into tracked accounts.
// Trace extraction lags and occasionally stalls upstream, so this indexer
// runs on the watcher's slow schedule and is allowed to fall behind without
// holding up the log-based pipeline.
type EthIndexer struct {
	index.Base
	store    *store.Store
	accounts AccountSet

	feed *index.Feed[store.EthTransfer]

	mu       sync.RWMutex
	receipts map[common.Address][]*store.EthTransfer
}

// NewEth creates the native-transfer indexer.
func NewEth(s *store.Store, accounts AccountSet, log *logger.Logger) *EthIndexer {
	e := &EthIndexer{
		Base:     index.NewBase(wcommon.ComponentEth, log),
		store:    s,
		accounts: accounts,
		receipts: make(map[common.Address][]*store.EthTransfer),
	}
	e.feed = index.NewFeed[store.EthTransfer](&e.Base)
	return e
}

// AddListener registers a callback for newly observed native receipts.
func (e *EthIndexer) AddListener(fn func([]store.EthTransfer)) {
	e.feed.AddListener(fn)
}

// Load ingests native transfers in [from, to].
func (e *EthIndexer) Load(ctx context.Context, from, to uint64) error {
	if e.Stale(from) {
		return nil
	}
	start := time.Now()

	rows, err := e.store.LoadEthTransfers(ctx, from, to)
	if err != nil {
		return err
	}

	var batch []store.EthTransfer
	e.mu.Lock()
	for _, t := range rows {
		if !e.accounts.IsAccount(t.To) {
			continue
		}
		e.receipts[t.To] = append(e.receipts[t.To], t)
		batch = append(batch, *t)
	}
	e.mu.Unlock()

	e.Advance(to, start)
	e.feed.Publish(batch)
	return nil
}

// Receipts returns the native transfers observed into one account.
func (e *EthIndexer) Receipts(account common.Address) []store.EthTransfer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]store.EthTransfer, 0, len(e.receipts[account]))
	for _, t := range e.receipts[account] {
		out = append(out, *t)
	}
	return out
}
