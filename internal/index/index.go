// Package index defines the contract every domain indexer implements and the
// shared cursor/listener machinery they embed. The watcher schedules units of
// this interface in dependency layers.
package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/metrics"
)

// ErrStaleBatch marks a batch whose range the indexer has already processed.
// The watcher logs and skips it; it is not a failure.
var ErrStaleBatch = errors.New("stale batch: range already processed")

// InvariantError reports a domain invariant violation: duplicate note
// creation, redeem of an unknown note, malformed event shape. These surface
// as hard errors because they indicate either a reorg edge case or a decoder
// bug upstream, and must not be masked.
type InvariantError struct {
	Indexer string
	Detail  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: invariant violation: %s", e.Indexer, e.Detail)
}

// Invariant builds an InvariantError.
func Invariant(indexer, format string, args ...any) error {
	return &InvariantError{Indexer: indexer, Detail: fmt.Sprintf(format, args...)}
}

// Indexer is one named unit that, given a block range, loads rows from the
// upstream store and updates its own in-memory state. Implementations own
// their entity maps and mutate them only from within Load (single writer).
type Indexer interface {
	// Name identifies the indexer in logs, metrics and status.
	Name() string

	// LastBlock returns the upper bound of the last applied batch.
	LastBlock() uint64

	// Load applies rows in [from, to]. A range at or below the indexer's own
	// cursor must be a no-op (idempotent re-tick guard).
	Load(ctx context.Context, from, to uint64) error

	// Status reports a snapshot for the health surface.
	Status() Status
}

// Status is one indexer's health snapshot.
type Status struct {
	Name      string `json:"name"`
	LastBlock uint64 `json:"last_block"`
	LastLoadS int64  `json:"last_load_s"`
	Listeners int    `json:"listeners"`
}

// Base carries the cursor guard and status bookkeeping every indexer embeds.
type Base struct {
	name string
	log  *logger.Logger

	last      atomic.Uint64
	lastLoadS atomic.Int64
	listeners atomic.Int32
}

// NewBase creates the embedded base for a named indexer.
func NewBase(name string, log *logger.Logger) Base {
	return Base{name: name, log: log.WithComponent(name)}
}

// Name returns the indexer name.
func (b *Base) Name() string { return b.name }

// Log returns the component logger.
func (b *Base) Log() *logger.Logger { return b.log }

// LastBlock returns the cursor.
func (b *Base) LastBlock() uint64 { return b.last.Load() }

// Stale reports whether [from, to] has already been applied. The upstream
// scheduler may legitimately re-deliver a range after a failed tick; an
// overlapping range is logged and skipped, never queued or failed.
func (b *Base) Stale(from uint64) bool {
	last := b.last.Load()
	if from <= last && last != 0 {
		b.log.Debugf("skipping stale batch from=%d last=%d", from, last)
		metrics.StaleBatchInc(b.name)
		return true
	}
	return false
}

// Advance moves the cursor to the applied upper bound and records load time.
func (b *Base) Advance(to uint64, start time.Time) {
	b.last.Store(to)
	b.lastLoadS.Store(time.Now().Unix())
	metrics.BatchApplied(b.name, to, time.Since(start))
}

// Status reports the base snapshot.
func (b *Base) Status() Status {
	return Status{
		Name:      b.name,
		LastBlock: b.last.Load(),
		LastLoadS: b.lastLoadS.Load(),
		Listeners: int(b.listeners.Load()),
	}
}

func (b *Base) listenerAdded() { b.listeners.Add(1) }

// Feed is the typed listener fan-out each indexer publishes its batch of
// newly observed domain events on. Dispatch is synchronous and in-process;
// this is the sole hand-off point to the notification/API layers.
type Feed[T any] struct {
	mu        sync.RWMutex
	base      *Base
	listeners []func([]T)
}

// NewFeed creates a feed bound to the indexer's base for listener accounting.
func NewFeed[T any](base *Base) *Feed[T] {
	return &Feed[T]{base: base}
}

// AddListener registers a callback invoked with each published batch.
func (f *Feed[T]) AddListener(fn func([]T)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
	if f.base != nil {
		f.base.listenerAdded()
	}
}

// Publish delivers a non-empty batch to every registered listener.
func (f *Feed[T]) Publish(batch []T) {
	if len(batch) == 0 {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, fn := range f.listeners {
		fn(batch)
	}
}
