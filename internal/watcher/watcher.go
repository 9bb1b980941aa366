// Package watcher schedules the domain indexers in dependency layers: within
// a layer indexers load concurrently, layers run strictly in order, so a
// later layer always observes an earlier layer's state for the same range.
package watcher

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	wcommon "github.com/fjord-labs/walletcore/internal/common"
	"github.com/fjord-labs/walletcore/internal/config"
	"github.com/fjord-labs/walletcore/internal/index"
	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/metrics"
	"github.com/fjord-labs/walletcore/internal/store"
)

// CursorSource exposes the upstream ETL's cursor and pool occupancy.
type CursorSource interface {
	LatestCursor(ctx context.Context) (uint64, error)
	Pool() store.PoolStatus
}

// ChainHead reads the chain tip, used for lag reporting only; the upstream
// cursor alone gates how far indexers may read.
type ChainHead interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// Wakeup is a coalesced change-notification channel.
type Wakeup interface {
	C() <-chan struct{}
}

// Watcher drives indexing ticks from change notifications with an interval
// fallback. Ticks never overlap and never queue: a tick arriving while one
// is running is skipped, the next timer fire or notification retries.
type Watcher struct {
	cfg    config.WatcherConfig
	cursor CursorSource
	chain  ChainHead
	log    *logger.Logger

	layers [][]index.Indexer
	slow   []index.Indexer

	ticking     atomic.Bool
	slowTicking atomic.Bool

	local     atomic.Uint64
	slowLocal atomic.Uint64
	lastGood  atomic.Int64
	chainTip  atomic.Uint64
}

// New creates a watcher over the given cursor source.
func New(cfg config.WatcherConfig, cursor CursorSource, chain ChainHead, log *logger.Logger) *Watcher {
	return &Watcher{
		cfg:    cfg,
		cursor: cursor,
		chain:  chain,
		log:    log.WithComponent(wcommon.ComponentWatcher),
	}
}

// Add registers layers of indexers in dependency order.
func (w *Watcher) Add(layers ...[]index.Indexer) {
	w.layers = append(w.layers, layers...)
}

// AddSlow registers indexers driven by the slow schedule. They may lag the
// main pipeline by several batches without stalling it.
func (w *Watcher) AddSlow(indexers ...index.Indexer) {
	w.slow = append(w.slow, indexers...)
}

// Init replays history in bounded batches until the local cursor catches up
// with the upstream cursor.
func (w *Watcher) Init(ctx context.Context) error {
	target, err := w.cursor.LatestCursor(ctx)
	if err != nil {
		return err
	}
	w.log.Infow("catching up", "target", target, "batch_size", w.cfg.BatchSize)

	for w.local.Load() < target {
		if err := ctx.Err(); err != nil {
			return err
		}
		from, to := w.nextRange(w.local.Load(), target)
		if err := w.indexRange(ctx, w.layers, from, to); err != nil {
			return err
		}
		w.local.Store(to)
	}
	for w.slowLocal.Load() < target {
		if err := ctx.Err(); err != nil {
			return err
		}
		from, to := w.nextRange(w.slowLocal.Load(), target)
		if err := w.indexRange(ctx, [][]index.Indexer{w.slow}, from, to); err != nil {
			return err
		}
		w.slowLocal.Store(to)
	}

	w.lastGood.Store(time.Now().Unix())
	w.log.Infow("caught up", "cursor", w.local.Load())
	return nil
}

// Watch runs ticks until the context is cancelled. A nil wakeup leaves only
// the interval fallback.
func (w *Watcher) Watch(ctx context.Context, wakeup Wakeup) {
	ticker := time.NewTicker(w.cfg.TickInterval.Duration)
	defer ticker.Stop()
	slowTicker := time.NewTicker(w.cfg.SlowTickInterval.Duration)
	defer slowTicker.Stop()

	var notifyCh <-chan struct{}
	if wakeup != nil {
		notifyCh = wakeup.C()
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Infow("watcher stopped")
			return
		case <-notifyCh:
			w.Tick(ctx)
		case <-ticker.C:
			w.Tick(ctx)
		case <-slowTicker.C:
			go w.SlowTick(ctx)
		}
	}
}

// Tick runs one indexing pass over the layered indexers. Overlapping calls
// are skipped, not queued.
func (w *Watcher) Tick(ctx context.Context) {
	if !w.ticking.CompareAndSwap(false, true) {
		metrics.TickOutcome("busy")
		return
	}
	defer w.ticking.Store(false)

	if err := w.tick(ctx); err != nil {
		metrics.TickOutcome("error")
		w.log.Errorw("tick failed", "err", err)
		return
	}
	metrics.TickOutcome("ok")
}

func (w *Watcher) tick(ctx context.Context) error {
	target, err := w.cursor.LatestCursor(ctx)
	if err != nil {
		return err
	}
	if w.chain != nil {
		if tip, err := w.chain.LatestBlockNumber(ctx); err == nil {
			w.chainTip.Store(tip)
		}
	}

	local := w.local.Load()
	if target <= local {
		w.lastGood.Store(time.Now().Unix())
		metrics.GoodTick(time.Now())
		return nil
	}

	from, to := w.nextRange(local, target)
	if err := w.indexRange(ctx, w.layers, from, to); err != nil {
		return err
	}
	w.local.Store(to)
	w.lastGood.Store(time.Now().Unix())
	metrics.GoodTick(time.Now())
	return nil
}

// SlowTick advances the slow indexers. It has its own exclusion flag and
// cursor so a stalled trace source cannot hold up the main pipeline.
func (w *Watcher) SlowTick(ctx context.Context) {
	if len(w.slow) == 0 {
		return
	}
	if !w.slowTicking.CompareAndSwap(false, true) {
		return
	}
	defer w.slowTicking.Store(false)

	target, err := w.cursor.LatestCursor(ctx)
	if err != nil {
		w.log.Errorw("slow tick failed", "err", err)
		return
	}
	local := w.slowLocal.Load()
	if target <= local {
		return
	}
	from, to := w.nextRange(local, target)
	if err := w.indexRange(ctx, [][]index.Indexer{w.slow}, from, to); err != nil {
		w.log.Errorw("slow tick failed", "err", err)
		return
	}
	w.slowLocal.Store(to)
}

// nextRange caps the pending range to one batch.
func (w *Watcher) nextRange(local, target uint64) (from, to uint64) {
	from = local + 1
	to = target
	if to-from+1 > w.cfg.BatchSize {
		to = from + w.cfg.BatchSize - 1
	}
	return from, to
}

// indexRange applies [from, to]: concurrent within a layer, sequential
// across layers. An error aborts the pass; indexers that finished keep
// their cursors and skip the range as stale on the retry tick.
func (w *Watcher) indexRange(ctx context.Context, layers [][]index.Indexer, from, to uint64) error {
	for _, layer := range layers {
		g, gCtx := errgroup.WithContext(ctx)
		for _, idx := range layer {
			g.Go(func() error {
				return idx.Load(gCtx, from, to)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// Status is the watcher's health snapshot.
type Status struct {
	LastGoodTickS  int64            `json:"last_good_tick_s"`
	UpstreamCursor uint64           `json:"upstream_cursor"`
	LocalCursor    uint64           `json:"local_cursor"`
	SlowCursor     uint64           `json:"slow_cursor"`
	ChainTip       uint64           `json:"chain_tip"`
	Pool           store.PoolStatus `json:"pool"`
	Indexers       []index.Status   `json:"indexers"`
}

// Status reports the snapshot for the health surface. The upstream cursor
// is read best-effort; a failed read reports zero rather than failing the
// status endpoint.
func (w *Watcher) Status(ctx context.Context) Status {
	upstream, err := w.cursor.LatestCursor(ctx)
	if err != nil {
		upstream = 0
	}

	var indexers []index.Status
	for _, layer := range w.layers {
		for _, idx := range layer {
			indexers = append(indexers, idx.Status())
		}
	}
	for _, idx := range w.slow {
		indexers = append(indexers, idx.Status())
	}

	return Status{
		LastGoodTickS:  w.lastGood.Load(),
		UpstreamCursor: upstream,
		LocalCursor:    w.local.Load(),
		SlowCursor:     w.slowLocal.Load(),
		ChainTip:       w.chainTip.Load(),
		Pool:           w.cursor.Pool(),
		Indexers:       indexers,
	}
}
