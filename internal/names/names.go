// Package names indexes the on-chain account name registry into a bijective
// in-memory name⇄address mapping. Registrations are append-only: a name, once
// bound, is never rebound or deleted.
package names

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

// NamedAccount is one registered account.
type NamedAccount struct {
	Name string         `json:"name"`
	Addr common.Address `json:"addr"`
}

// Indexer maintains the name registry view.
type Indexer struct {
	index.Base
	store *store.Store
	feed  *index.Feed[NamedAccount]

	mu     sync.RWMutex
	byName map[string]common.Address
	byAddr map[common.Address]string
}

// New creates a name registry indexer.
func New(s *store.Store, log *logger.Logger) *Indexer {
	i := &Indexer{
		Base:   index.NewBase(wcommon.ComponentNames, log),
		store:  s,
		byName: make(map[string]common.Address),
		byAddr: make(map[common.Address]string),
	}
	i.feed = index.NewFeed[NamedAccount](&i.Base)
	return i
}

// AddListener registers a callback for newly registered accounts.
func (i *Indexer) AddListener(fn func([]NamedAccount)) {
	i.feed.AddListener(fn)
}

// Load applies Registered events in [from, to].
func (i *Indexer) Load(ctx context.Context, from, to uint64) error {
	if i.Stale(from) {
		return nil
	}
	start := time.Now()

	rows, err := i.store.LoadNameRegistrations(ctx, from, to)
	if err != nil {
		return err
	}

	batch := make([]NamedAccount, 0, len(rows))

	i.mu.Lock()
	for _, row := range rows {
		if _, exists := i.byName[row.Name]; exists {
			// registry contract enforces first-write-wins; a duplicate row is
			// a re-observed registration, not a rebind
			continue
		}
		i.byName[row.Name] = row.Addr
		i.byAddr[row.Addr] = row.Name
		batch = append(batch, NamedAccount{Name: row.Name, Addr: row.Addr})
	}
	i.mu.Unlock()

	i.Advance(to, start)
	if len(batch) > 0 {
		i.Log().Infof("registered %d accounts in [%d,%d]", len(batch), from, to)
	}
	i.feed.Publish(batch)
	return nil
}

// Resolve returns the address bound to a name.
func (i *Indexer) Resolve(name string) (common.Address, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	addr, ok := i.byName[name]
	return addr, ok
}

// NameOf returns the name bound to an address.
func (i *Indexer) NameOf(addr common.Address) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	name, ok := i.byAddr[addr]
	return name, ok
}

// IsAccount reports whether the address belongs to a registered account.
// The coin indexers use this to decide which transfers to track.
func (i *Indexer) IsAccount(addr common.Address) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.byAddr[addr]
	return ok
}
