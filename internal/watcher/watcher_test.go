package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wcommon "github.com/fjord-labs/walletcore/internal/common"
	"github.com/fjord-labs/walletcore/internal/config"
	"github.com/fjord-labs/walletcore/internal/index"
	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/store"
)

type fakeCursor struct {
	mu     sync.Mutex
	cursor uint64
}

func (c *fakeCursor) LatestCursor(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor, nil
}

func (c *fakeCursor) Pool() store.PoolStatus { return store.PoolStatus{OpenConnections: 1} }

func (c *fakeCursor) set(v uint64) {
	c.mu.Lock()
	c.cursor = v
	c.mu.Unlock()
}

type loadRange struct{ from, to uint64 }

// fakeIndexer records its loads into an optional shared sequence so tests can
// assert cross-layer ordering.
type fakeIndexer struct {
	name string
	seq  *callSeq

	mu     sync.Mutex
	loads  []loadRange
	last   uint64
	block  chan struct{} // when set, Load parks until closed
	parked chan struct{}
}

type callSeq struct {
	mu    sync.Mutex
	names []string
}

func (s *callSeq) add(name string) {
	s.mu.Lock()
	s.names = append(s.names, name)
	s.mu.Unlock()
}

func (f *fakeIndexer) Name() string      { return f.name }
func (f *fakeIndexer) LastBlock() uint64 { f.mu.Lock(); defer f.mu.Unlock(); return f.last }
func (f *fakeIndexer) Status() index.Status {
	return index.Status{Name: f.name, LastBlock: f.LastBlock()}
}

func (f *fakeIndexer) Load(ctx context.Context, from, to uint64) error {
	if f.block != nil {
		close(f.parked)
		<-f.block
	}
	f.mu.Lock()
	f.loads = append(f.loads, loadRange{from, to})
	f.last = to
	f.mu.Unlock()
	if f.seq != nil {
		f.seq.add(f.name)
	}
	return nil
}

func (f *fakeIndexer) ranges() []loadRange {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]loadRange, len(f.loads))
	copy(out, f.loads)
	return out
}

func testWatcherConfig(batch uint64) config.WatcherConfig {
	return config.WatcherConfig{
		TickInterval:     wcommon.NewDuration(time.Hour),
		SlowTickInterval: wcommon.NewDuration(time.Hour),
		BatchSize:        batch,
	}
}

func TestInitCatchesUpInBatches(t *testing.T) {
	cursor := &fakeCursor{cursor: 250}
	idx := &fakeIndexer{name: "names"}
	slow := &fakeIndexer{name: "eth"}

	w := New(testWatcherConfig(100), cursor, nil, logger.NewNopLogger())
	w.Add([]index.Indexer{idx})
	w.AddSlow(slow)

	require.NoError(t, w.Init(context.Background()))

	want := []loadRange{{1, 100}, {101, 200}, {201, 250}}
	assert.Equal(t, want, idx.ranges())
	assert.Equal(t, want, slow.ranges())

	st := w.Status(context.Background())
	assert.Equal(t, uint64(250), st.LocalCursor)
	assert.Equal(t, uint64(250), st.SlowCursor)
	assert.Equal(t, uint64(250), st.UpstreamCursor)
	assert.Len(t, st.Indexers, 2)
}

func TestTickAppliesLayersInOrder(t *testing.T) {
	cursor := &fakeCursor{cursor: 50}
	seq := &callSeq{}
	a := &fakeIndexer{name: "a", seq: seq}
	b := &fakeIndexer{name: "b", seq: seq}
	c := &fakeIndexer{name: "c", seq: seq}

	w := New(testWatcherConfig(1000), cursor, nil, logger.NewNopLogger())
	w.Add([]index.Indexer{a, b}, []index.Indexer{c})

	w.Tick(context.Background())

	require.Len(t, seq.names, 3)
	// the second layer runs only after the whole first layer finished
	assert.Equal(t, "c", seq.names[2])
	assert.ElementsMatch(t, []string{"a", "b"}, seq.names[:2])
	assert.Equal(t, []loadRange{{1, 50}}, c.ranges())
}

func TestTickIsIdempotentAtCursor(t *testing.T) {
	cursor := &fakeCursor{cursor: 50}
	idx := &fakeIndexer{name: "names"}

	w := New(testWatcherConfig(1000), cursor, nil, logger.NewNopLogger())
	w.Add([]index.Indexer{idx})

	w.Tick(context.Background())
	w.Tick(context.Background())

	// no new blocks upstream: the second tick loads nothing
	assert.Equal(t, []loadRange{{1, 50}}, idx.ranges())

	cursor.set(60)
	w.Tick(context.Background())
	assert.Equal(t, []loadRange{{1, 50}, {51, 60}}, idx.ranges())
}

func TestTickSkipsWhenBusy(t *testing.T) {
	cursor := &fakeCursor{cursor: 50}
	idx := &fakeIndexer{
		name:   "names",
		block:  make(chan struct{}),
		parked: make(chan struct{}),
	}

	w := New(testWatcherConfig(1000), cursor, nil, logger.NewNopLogger())
	w.Add([]index.Indexer{idx})

	done := make(chan struct{})
	go func() {
		w.Tick(context.Background())
		close(done)
	}()
	<-idx.parked

	// overlapping tick returns immediately without loading
	w.Tick(context.Background())
	assert.Empty(t, idx.ranges())

	close(idx.block)
	<-done
	assert.Equal(t, []loadRange{{1, 50}}, idx.ranges())
}

func TestSlowTickLagsIndependently(t *testing.T) {
	cursor := &fakeCursor{cursor: 50}
	fast := &fakeIndexer{name: "names"}
	slow := &fakeIndexer{name: "eth"}

	w := New(testWatcherConfig(1000), cursor, nil, logger.NewNopLogger())
	w.Add([]index.Indexer{fast})
	w.AddSlow(slow)

	w.Tick(context.Background())
	assert.Equal(t, []loadRange{{1, 50}}, fast.ranges())
	assert.Empty(t, slow.ranges())

	w.SlowTick(context.Background())
	assert.Equal(t, []loadRange{{1, 50}}, slow.ranges())

	st := w.Status(context.Background())
	assert.Equal(t, uint64(50), st.LocalCursor)
	assert.Equal(t, uint64(50), st.SlowCursor)
}

func TestNextRangeCapsBatch(t *testing.T) {
	w := New(testWatcherConfig(100), &fakeCursor{}, nil, logger.NewNopLogger())

	from, to := w.nextRange(0, 250)
	assert.Equal(t, uint64(1), from)
	assert.Equal(t, uint64(100), to)

	from, to = w.nextRange(200, 250)
	assert.Equal(t, uint64(201), from)
	assert.Equal(t, uint64(250), to)
}
