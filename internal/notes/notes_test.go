package notes_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjord-labs/walletcore/internal/index"
	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/notes"
	"github.com/fjord-labs/walletcore/internal/store"
	"github.com/fjord-labs/walletcore/internal/store/storetest"
)

var (
	alice  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	owner1 = common.HexToAddress("0xeeee00000000000000000000000000000000eee1")
	owner2 = common.HexToAddress("0xeeee00000000000000000000000000000000eee2")
	tx1    = common.HexToHash("0xaaaa000000000000000000000000000000000000000000000000000000000001")
	tx2    = common.HexToHash("0xaaaa000000000000000000000000000000000000000000000000000000000002")
)

func TestNoteLifecycle(t *testing.T) {
	st, conn := storetest.New(t)
	idx := notes.New(st, 6, logger.NewNopLogger())

	storetest.InsertNoteEvent(t, conn, store.NoteEvent{
		Kind: store.NoteCreated, Owner: owner1, Sender: alice,
		Amount: big.NewInt(5_000_000), BlockNum: 100, LogIdx: 3, TxHash: tx1,
	})

	var events []notes.Event
	idx.AddListener(func(batch []notes.Event) { events = append(events, batch...) })

	require.NoError(t, idx.Load(context.Background(), 1, 100))

	n, ok := idx.Get(owner1)
	require.True(t, ok)
	assert.Equal(t, notes.StatusPending, n.Status)
	assert.Equal(t, "5.00", n.Dollars)
	assert.Equal(t, alice, n.Sender)
	require.Len(t, events, 1)
	assert.Equal(t, store.NoteCreated, events[0].Kind)

	// claim by someone other than the sender
	storetest.InsertNoteEvent(t, conn, store.NoteEvent{
		Kind: store.NoteRedeemed, Owner: owner1, Sender: alice, Redeemer: &bob,
		Amount: big.NewInt(5_000_000), BlockNum: 110, LogIdx: 1, TxHash: tx2,
	})
	require.NoError(t, idx.Load(context.Background(), 101, 110))

	n, ok = idx.Get(owner1)
	require.True(t, ok)
	assert.Equal(t, notes.StatusClaimed, n.Status)
	require.NotNil(t, n.Claimer)
	assert.Equal(t, bob, *n.Claimer)
}

func TestSelfRedeemCancels(t *testing.T) {
	st, conn := storetest.New(t)
	idx := notes.New(st, 6, logger.NewNopLogger())

	storetest.InsertNoteEvent(t, conn, store.NoteEvent{
		Kind: store.NoteCreated, Owner: owner1, Sender: alice,
		Amount: big.NewInt(1_990_000), BlockNum: 100, LogIdx: 0, TxHash: tx1,
	})
	storetest.InsertNoteEvent(t, conn, store.NoteEvent{
		Kind: store.NoteRedeemed, Owner: owner1, Sender: alice, Redeemer: &alice,
		Amount: big.NewInt(1_990_000), BlockNum: 105, LogIdx: 0, TxHash: tx2,
	})

	require.NoError(t, idx.Load(context.Background(), 1, 110))

	n, ok := idx.Get(owner1)
	require.True(t, ok)
	assert.Equal(t, notes.StatusCancelled, n.Status)
}

func TestRedeemAmountMismatchAborts(t *testing.T) {
	st, conn := storetest.New(t)
	idx := notes.New(st, 6, logger.NewNopLogger())

	storetest.InsertNoteEvent(t, conn, store.NoteEvent{
		Kind: store.NoteCreated, Owner: owner1, Sender: alice,
		Amount: big.NewInt(5_000_000), BlockNum: 100, LogIdx: 0, TxHash: tx1,
	})
	storetest.InsertNoteEvent(t, conn, store.NoteEvent{
		Kind: store.NoteRedeemed, Owner: owner1, Sender: alice, Redeemer: &bob,
		Amount: big.NewInt(4_000_000), BlockNum: 105, LogIdx: 0, TxHash: tx2,
	})

	err := idx.Load(context.Background(), 1, 110)
	require.Error(t, err)
	var inv *index.InvariantError
	assert.ErrorAs(t, err, &inv)

	// cursor did not advance, the failed range stays retryable
	assert.Zero(t, idx.LastBlock())
}

func TestRedeemUnknownOwnerAborts(t *testing.T) {
	st, conn := storetest.New(t)
	idx := notes.New(st, 6, logger.NewNopLogger())

	storetest.InsertNoteEvent(t, conn, store.NoteEvent{
		Kind: store.NoteRedeemed, Owner: owner2, Sender: alice, Redeemer: &bob,
		Amount: big.NewInt(1), BlockNum: 100, LogIdx: 0, TxHash: tx1,
	})

	err := idx.Load(context.Background(), 1, 100)
	var inv *index.InvariantError
	require.ErrorAs(t, err, &inv)
}

func TestStaleRangeIsNoOp(t *testing.T) {
	st, conn := storetest.New(t)
	idx := notes.New(st, 6, logger.NewNopLogger())

	storetest.InsertNoteEvent(t, conn, store.NoteEvent{
		Kind: store.NoteCreated, Owner: owner1, Sender: alice,
		Amount: big.NewInt(5_000_000), BlockNum: 100, LogIdx: 0, TxHash: tx1,
	})
	require.NoError(t, idx.Load(context.Background(), 1, 101))

	// re-delivering an overlapping range must not trip the duplicate-create
	// invariant
	require.NoError(t, idx.Load(context.Background(), 100, 101))
	assert.Equal(t, uint64(101), idx.LastBlock())
}

func TestEventAt(t *testing.T) {
	st, conn := storetest.New(t)
	idx := notes.New(st, 6, logger.NewNopLogger())

	storetest.InsertNoteEvent(t, conn, store.NoteEvent{
		Kind: store.NoteCreated, Owner: owner1, Sender: alice,
		Amount: big.NewInt(5_000_000), BlockNum: 100, LogIdx: 7, TxHash: tx1,
	})
	require.NoError(t, idx.Load(context.Background(), 1, 100))

	n, kind, ok := idx.EventAt(store.LogCoordinate{TxHash: tx1, LogIdx: 7})
	require.True(t, ok)
	assert.Equal(t, store.NoteCreated, kind)
	assert.Equal(t, owner1, n.Owner)

	_, _, ok = idx.EventAt(store.LogCoordinate{TxHash: tx1, LogIdx: 8})
	assert.False(t, ok)
}
