// Package notes indexes ephemeral payment links. A note's identity is the
// one-time "owner" public key address embedded in the link; its lifecycle is
// pending → claimed (redeemed by someone else) or cancelled (redeemed back by
// the sender).
package notes

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

// Status is a note's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusCancelled Status = "cancelled"
)

// Note is one ephemeral payment link.
type Note struct {
	Owner    common.Address  `json:"owner"`
	Sender   common.Address  `json:"sender"`
	Claimer  *common.Address `json:"claimer,omitempty"`
	Amount   *big.Int        `json:"amount"`
	Dollars  string          `json:"dollars"`
	Status   Status          `json:"status"`
	BlockNum uint64          `json:"block_num"`
}

// Event is one observed note transition delivered to listeners.
type Event struct {
	Note Note        `json:"note"`
	Kind string      `json:"kind"`
	Tx   common.Hash `json:"tx"`
}

// Indexer maintains the note map and enforces lifecycle invariants.
type Indexer struct {
	index.Base
	store    *store.Store
	decimals uint8
	feed     *index.Feed[Event]

	mu    sync.RWMutex
	notes map[common.Address]*Note

	// (txHash, logIdx) of note logs, consumed by home-coin classification
	coords map[store.LogCoordinate]coordEntry
}

// New creates a note indexer. decimals is the home coin's display precision.
func New(s *store.Store, decimals uint8, log *logger.Logger) *Indexer {
	i := &Indexer{
		Base:     index.NewBase(wcommon.ComponentNotes, log),
		store:    s,
		decimals: decimals,
		notes:    make(map[common.Address]*Note),
		coords:   make(map[store.LogCoordinate]coordEntry),
	}
	i.feed = index.NewFeed[Event](&i.Base)
	return i
}

// AddListener registers a callback for note transitions.
func (i *Indexer) AddListener(fn func([]Event)) {
	i.feed.AddListener(fn)
}

// Load applies note lifecycle events in [from, to]. Invariant violations are
// hard errors: the batch aborts, the cursor stays put and the next tick
// retries the same range.
func (i *Indexer) Load(ctx context.Context, from, to uint64) error {
	if i.Stale(from) {
		return nil
	}
	start := time.Now()

	rows, err := i.store.LoadNoteEvents(ctx, from, to)
	if err != nil {
		return err
	}

	var batch []Event

	i.mu.Lock()
	for _, row := range rows {
		ev, err := i.applyLocked(row)
		if err != nil {
			i.mu.Unlock()
			return err
		}
		batch = append(batch, ev)
	}
	i.mu.Unlock()

	i.Advance(to, start)
	i.feed.Publish(batch)
	return nil
}

func (i *Indexer) applyLocked(row *store.NoteEvent) (Event, error) {
	coord := store.LogCoordinate{TxHash: row.TxHash, LogIdx: row.LogIdx}

	switch row.Kind {
	case store.NoteCreated:
		if _, exists := i.notes[row.Owner]; exists {
			return Event{}, index.Invariant(wcommon.ComponentNotes,
				"duplicate create for owner %s", row.Owner.Hex())
		}
		n := &Note{
			Owner:    row.Owner,
			Sender:   row.Sender,
			Amount:   row.Amount,
			Dollars:  wcommon.FormatUnits(row.Amount, i.decimals),
			Status:   StatusPending,
			BlockNum: row.BlockNum,
		}
		i.notes[row.Owner] = n
		i.coords[coord] = coordEntry{owner: row.Owner, kind: store.NoteCreated}
		return Event{Note: *n, Kind: store.NoteCreated, Tx: row.TxHash}, nil

	case store.NoteRedeemed:
		n, exists := i.notes[row.Owner]
		if !exists {
			return Event{}, index.Invariant(wcommon.ComponentNotes,
				"redeem of unknown note owner %s", row.Owner.Hex())
		}
		if n.Status != StatusPending {
			return Event{}, index.Invariant(wcommon.ComponentNotes,
				"redeem of %s note owner %s", n.Status, row.Owner.Hex())
		}
		if row.Amount == nil || n.Amount.Cmp(row.Amount) != 0 {
			return Event{}, index.Invariant(wcommon.ComponentNotes,
				"redeem amount mismatch for owner %s: note %s, redeem %s",
				row.Owner.Hex(), n.Amount, row.Amount)
		}
		if row.Redeemer == nil {
			return Event{}, index.Invariant(wcommon.ComponentNotes,
				"redeem without redeemer for owner %s", row.Owner.Hex())
		}

		if *row.Redeemer == n.Sender {
			n.Status = StatusCancelled
		} else {
			n.Status = StatusClaimed
		}
		n.Claimer = row.Redeemer
		i.coords[coord] = coordEntry{owner: row.Owner, kind: store.NoteRedeemed}
		return Event{Note: *n, Kind: store.NoteRedeemed, Tx: row.TxHash}, nil

	default:
		return Event{}, index.Invariant(wcommon.ComponentNotes, "unknown note event kind %q", row.Kind)
	}
}

// Get returns the note owned by the given one-time key address.
func (i *Indexer) Get(owner common.Address) (Note, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	n, ok := i.notes[owner]
	if !ok {
		return Note{}, false
	}
	return *n, true
}

// coordEntry remembers which note log sits at a (txHash, logIdx).
type coordEntry struct {
	owner common.Address
	kind  string
}

// EventAt returns the note and event kind ("created" or "redeemed") whose
// log sits at the given (txHash, logIdx), if any. Home-coin classification
// checks the log immediately preceding a transfer through this.
func (i *Indexer) EventAt(coord store.LogCoordinate) (Note, string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.coords[coord]
	if !ok {
		return Note{}, "", false
	}
	n := i.notes[e.owner]
	return *n, e.kind, true
}
