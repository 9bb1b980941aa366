// Package requests indexes payment requests. A request's identity is its
// numeric id; lifecycle created → fulfilled or cancelled, terminal states
// mutually exclusive. A fulfillment log is keyed back to the originating
// transfer through a (txHash, logIdx) coordinate so transfer classification
// can label the transfer as having fulfilled a request.
package requests

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

// Status is a request's lifecycle state.
type Status string

const (
	StatusCreated   Status = "created"
	StatusFulfilled Status = "fulfilled"
	StatusCancelled Status = "cancelled"
)

// Request is one payment request.
type Request struct {
	ID        *big.Int        `json:"id"`
	Recipient common.Address  `json:"recipient"`
	Fulfiller *common.Address `json:"fulfiller,omitempty"`
	Amount    *big.Int        `json:"amount"`
	Status    Status          `json:"status"`
	BlockNum  uint64          `json:"block_num"`
}

// Event is one observed request transition delivered to listeners.
type Event struct {
	Request Request `json:"request"`
	Status  Status  `json:"status"`
}

// Indexer maintains the request map.
type Indexer struct {
	index.Base
	store *store.Store
	feed  *index.Feed[Event]

	mu       sync.RWMutex
	requests map[string]*Request // decimal id -> request

	// coordinate of the transfer a fulfillment correlates to -> request id.
	// The fulfillment log lands at logIdx; the transfer it settles is the
	// log immediately before it, so the key is (txHash, logIdx-1).
	fulfillCoords map[store.LogCoordinate]string
}

// New creates a request indexer.
func New(s *store.Store, log *logger.Logger) *Indexer {
	i := &Indexer{
		Base:          index.NewBase(wcommon.ComponentRequests, log),
		store:         s,
		requests:      make(map[string]*Request),
		fulfillCoords: make(map[store.LogCoordinate]string),
	}
	i.feed = index.NewFeed[Event](&i.Base)
	return i
}

// AddListener registers a callback for request transitions.
func (i *Indexer) AddListener(fn func([]Event)) {
	i.feed.AddListener(fn)
}

// Load applies request lifecycle events in [from, to].
func (i *Indexer) Load(ctx context.Context, from, to uint64) error {
	if i.Stale(from) {
		return nil
	}
	start := time.Now()

	rows, err := i.store.LoadRequestEvents(ctx, from, to)
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

func (i *Indexer) applyLocked(row *store.RequestEvent) (Event, error) {
	if row.RequestID == nil {
		return Event{}, index.Invariant(wcommon.ComponentRequests, "request event without id")
	}
	id := row.RequestID.String()

	switch row.Status {
	case store.RequestCreated:
		if _, exists := i.requests[id]; exists {
			return Event{}, index.Invariant(wcommon.ComponentRequests, "duplicate create for request %s", id)
		}
		r := &Request{
			ID:        row.RequestID,
			Recipient: row.Recipient,
			Amount:    row.Amount,
			Status:    StatusCreated,
			BlockNum:  row.BlockNum,
		}
		i.requests[id] = r
		return Event{Request: *r, Status: StatusCreated}, nil

	case store.RequestCancelled:
		r, exists := i.requests[id]
		if !exists {
			return Event{}, index.Invariant(wcommon.ComponentRequests, "cancel of unknown request %s", id)
		}
		if r.Status != StatusCreated {
			return Event{}, index.Invariant(wcommon.ComponentRequests,
				"cancel of %s request %s", r.Status, id)
		}
		r.Status = StatusCancelled
		return Event{Request: *r, Status: StatusCancelled}, nil

	case store.RequestFulfilled:
		r, exists := i.requests[id]
		if !exists {
			return Event{}, index.Invariant(wcommon.ComponentRequests, "fulfillment of unknown request %s", id)
		}
		if r.Status != StatusCreated {
			return Event{}, index.Invariant(wcommon.ComponentRequests,
				"fulfillment of %s request %s", r.Status, id)
		}
		r.Status = StatusFulfilled
		r.Fulfiller = row.Fulfiller
		if row.LogIdx > 0 {
			i.fulfillCoords[store.LogCoordinate{TxHash: row.TxHash, LogIdx: row.LogIdx - 1}] = id
		}
		return Event{Request: *r, Status: StatusFulfilled}, nil

	default:
		return Event{}, index.Invariant(wcommon.ComponentRequests, "unknown request status %q", row.Status)
	}
}

// Get returns the request with the given id.
func (i *Indexer) Get(id *big.Int) (Request, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	r, ok := i.requests[id.String()]
	if !ok {
		return Request{}, false
	}
	return *r, true
}

// FulfilledAt returns the request fulfilled by the transfer at the given
// coordinate, if any.
func (i *Indexer) FulfilledAt(coord store.LogCoordinate) (Request, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	id, ok := i.fulfillCoords[coord]
	if !ok {
		return Request{}, false
	}
	r := i.requests[id]
	return *r, true
}
