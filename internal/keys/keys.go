// Package keys indexes device signing-key rotations. For every account it
// re-derives the complete key record set from the account's full log history
// on each update rather than diffing incrementally: replay is O(n) per
// update, but per-account key counts are capped small on-chain and full
// replay is robust to out-of-order delivery within a batch.
package keys

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	wcommon "github.com/fjord-labs/walletcore/internal/common"
	"github.com/fjord-labs/walletcore/internal/index"
	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/store"
)

// Record is one add/remove lifecycle of a device key on an account. A key
// re-added after removal gets a fresh record.
type Record struct {
	Account        common.Address `json:"account"`
	KeySlot        uint8          `json:"key_slot"`
	PublicKeyDER   []byte         `json:"public_key_der"`
	AddedAtBlock   uint64         `json:"added_at_block"`
	RemovedAtBlock *uint64        `json:"removed_at_block,omitempty"`
}

// Active reports whether the key is currently usable.
func (r *Record) Active() bool { return r.RemovedAtBlock == nil }

// Change is one key rotation delivered to listeners.
type Change struct {
	Account common.Address `json:"account"`
	Change  string         `json:"change"`
	KeySlot uint8          `json:"key_slot"`
}

// Indexer maintains per-account key records.
type Indexer struct {
	index.Base
	store *store.Store
	feed  *index.Feed[Change]

	mu        sync.RWMutex
	byAccount map[common.Address][]*Record
	byKey     map[string][]common.Address // DER pubkey hex -> accounts
}

// New creates a key registry indexer.
func New(s *store.Store, log *logger.Logger) *Indexer {
	i := &Indexer{
		Base:      index.NewBase(wcommon.ComponentKeys, log),
		store:     s,
		byAccount: make(map[common.Address][]*Record),
		byKey:     make(map[string][]common.Address),
	}
	i.feed = index.NewFeed[Change](&i.Base)
	return i
}

// AddListener registers a callback for key rotations.
func (i *Indexer) AddListener(fn func([]Change)) {
	i.feed.AddListener(fn)
}

// Load applies key rotation events in [from, to]. Every account touched by
// the batch has its record set re-derived from its complete history.
func (i *Indexer) Load(ctx context.Context, from, to uint64) error {
	if i.Stale(from) {
		return nil
	}
	start := time.Now()

	rows, err := i.store.LoadKeyChanges(ctx, from, to)
	if err != nil {
		return err
	}

	touched := make(map[common.Address]struct{})
	batch := make([]Change, 0, len(rows))
	for _, row := range rows {
		touched[row.Account] = struct{}{}
		batch = append(batch, Change{Account: row.Account, Change: row.Change, KeySlot: row.KeySlot})
	}

	for account := range touched {
		history, err := i.store.LoadKeyHistory(ctx, account)
		if err != nil {
			return err
		}
		records, err := Replay(history, to)
		if err != nil {
			return err
		}
		i.install(account, records)
	}

	i.Advance(to, start)
	i.feed.Publish(batch)
	return nil
}

func (i *Indexer) install(account common.Address, records []*Record) {
	i.mu.Lock()
	defer i.mu.Unlock()

	// drop stale reverse-index entries for this account
	for _, old := range i.byAccount[account] {
		k := hex.EncodeToString(old.PublicKeyDER)
		accounts := i.byKey[k]
		for n, a := range accounts {
			if a == account {
				i.byKey[k] = append(accounts[:n], accounts[n+1:]...)
				break
			}
		}
		if len(i.byKey[k]) == 0 {
			delete(i.byKey, k)
		}
	}

	i.byAccount[account] = records
	for _, r := range records {
		if !r.Active() {
			continue
		}
		k := hex.EncodeToString(r.PublicKeyDER)
		i.byKey[k] = append(i.byKey[k], account)
	}
}

// Replay derives the record set for one account from its full rotation
// history. Ordering is deterministic: primary key is block number, with an
// absent block treated as currentBlock+1 so it sorts last; secondary key is
// log index, absent sorting last.
func Replay(history []*store.KeyChange, currentBlock uint64) ([]*Record, error) {
	sorted := make([]*store.KeyChange, len(history))
	copy(sorted, history)

	sort.SliceStable(sorted, func(a, b int) bool {
		ba, bb := effectiveBlock(sorted[a], currentBlock), effectiveBlock(sorted[b], currentBlock)
		if ba != bb {
			return ba < bb
		}
		return effectiveLogIdx(sorted[a]) < effectiveLogIdx(sorted[b])
	})

	var records []*Record
	open := make(map[string]*Record) // pubkey hex -> open record

	for _, ev := range sorted {
		k := hex.EncodeToString(ev.PublicKey)
		switch ev.Change {
		case store.KeyAdded:
			if _, isOpen := open[k]; isOpen {
				// same key added twice without removal: re-observed log
				continue
			}
			r := &Record{
				Account:      ev.Account,
				KeySlot:      ev.KeySlot,
				PublicKeyDER: ev.PublicKey,
				AddedAtBlock: effectiveBlock(ev, currentBlock),
			}
			open[k] = r
			records = append(records, r)
		case store.KeyRemoved:
			r, isOpen := open[k]
			if !isOpen {
				return nil, index.Invariant(wcommon.ComponentKeys,
					"removal of key %s on %s with no matching addition", k, ev.Account.Hex())
			}
			removedAt := effectiveBlock(ev, currentBlock)
			r.RemovedAtBlock = &removedAt
			delete(open, k)
		default:
			return nil, index.Invariant(wcommon.ComponentKeys, "unknown key change %q", ev.Change)
		}
	}

	return records, nil
}

func effectiveBlock(ev *store.KeyChange, currentBlock uint64) uint64 {
	if ev.BlockNum == nil {
		return currentBlock + 1
	}
	return *ev.BlockNum
}

func effectiveLogIdx(ev *store.KeyChange) uint64 {
	if ev.LogIdx == nil {
		return ^uint64(0)
	}
	return *ev.LogIdx
}

// ActiveKeys returns the currently active key records for an account.
func (i *Indexer) ActiveKeys(account common.Address) []*Record {
	i.mu.RLock()
	defer i.mu.RUnlock()

	var active []*Record
	for _, r := range i.byAccount[account] {
		if r.Active() {
			active = append(active, r)
		}
	}
	return active
}

// Records returns all records (including removed) for an account.
func (i *Indexer) Records(account common.Address) []*Record {
	i.mu.RLock()
	defer i.mu.RUnlock()

	records := make([]*Record, len(i.byAccount[account]))
	copy(records, i.byAccount[account])
	return records
}

// AccountsForKey returns accounts that currently list the given DER public key.
func (i *Indexer) AccountsForKey(pubKeyDER []byte) []common.Address {
	i.mu.RLock()
	defer i.mu.RUnlock()

	owners := i.byKey[hex.EncodeToString(pubKeyDER)]
	return append([]common.Address(nil), owners...)
}
