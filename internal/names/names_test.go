package names_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/names"
	"github.com/fjord-labs/walletcore/internal/store"
	"github.com/fjord-labs/walletcore/internal/store/storetest"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	carol = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func TestLoadAndResolve(t *testing.T) {
	st, conn := storetest.New(t)
	idx := names.New(st, logger.NewNopLogger())

	storetest.InsertNameRegistration(t, conn, store.NameRegistration{Name: "alice", Addr: alice, BlockNum: 10, LogIdx: 0})
	storetest.InsertNameRegistration(t, conn, store.NameRegistration{Name: "bob", Addr: bob, BlockNum: 11, LogIdx: 2})

	var published []names.NamedAccount
	idx.AddListener(func(batch []names.NamedAccount) { published = append(published, batch...) })

	require.NoError(t, idx.Load(context.Background(), 1, 20))

	addr, ok := idx.Resolve("alice")
	require.True(t, ok)
	assert.Equal(t, alice, addr)

	name, ok := idx.NameOf(bob)
	require.True(t, ok)
	assert.Equal(t, "bob", name)

	assert.True(t, idx.IsAccount(alice))
	assert.False(t, idx.IsAccount(carol))

	assert.Len(t, published, 2)
	assert.Equal(t, uint64(20), idx.LastBlock())
}

func TestFirstWriteWins(t *testing.T) {
	st, conn := storetest.New(t)
	idx := names.New(st, logger.NewNopLogger())

	storetest.InsertNameRegistration(t, conn, store.NameRegistration{Name: "alice", Addr: alice, BlockNum: 10, LogIdx: 0})
	require.NoError(t, idx.Load(context.Background(), 1, 10))

	// a later row for the same name is a re-observation, not a rebind
	storetest.InsertNameRegistration(t, conn, store.NameRegistration{Name: "alice", Addr: carol, BlockNum: 15, LogIdx: 0})
	require.NoError(t, idx.Load(context.Background(), 11, 20))

	addr, ok := idx.Resolve("alice")
	require.True(t, ok)
	assert.Equal(t, alice, addr)
}

func TestStaleRangeIsNoOp(t *testing.T) {
	st, conn := storetest.New(t)
	idx := names.New(st, logger.NewNopLogger())

	storetest.InsertNameRegistration(t, conn, store.NameRegistration{Name: "alice", Addr: alice, BlockNum: 10, LogIdx: 0})
	require.NoError(t, idx.Load(context.Background(), 1, 20))

	var published int
	idx.AddListener(func(batch []names.NamedAccount) { published += len(batch) })

	require.NoError(t, idx.Load(context.Background(), 1, 20))
	assert.Zero(t, published)
	assert.Equal(t, uint64(20), idx.LastBlock())
}
