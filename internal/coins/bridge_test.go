package coins

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/store"
	"github.com/fjord-labs/walletcore/internal/store/storetest"
)

func TestBridgeMintTracking(t *testing.T) {
	st, conn := storetest.New(t)
	b := NewBridge(st, accountSet{alice: true}, logger.NewNopLogger())

	mintTx := common.HexToHash("0xcccc000000000000000000000000000000000000000000000000000000000001")
	storetest.InsertBridgeMint(t, conn, store.BridgeMint{
		BlockNum: 100, LogIdx: 4, TxHash: mintTx,
		Recipient: alice, Amount: big.NewInt(25_000_000), SourceDomain: 3,
	})
	storetest.InsertBridgeMint(t, conn, store.BridgeMint{
		BlockNum: 100, LogIdx: 8, TxHash: mintTx,
		Recipient: outsider, Amount: big.NewInt(1), SourceDomain: 0,
	})

	var published []store.BridgeMint
	b.AddListener(func(batch []store.BridgeMint) { published = append(published, batch...) })

	require.NoError(t, b.Load(context.Background(), 1, 100))

	// only tracked recipients reach listeners and per-account views
	require.Len(t, published, 1)
	assert.Equal(t, alice, published[0].Recipient)

	mints := b.Mints(alice)
	require.Len(t, mints, 1)
	assert.Equal(t, uint32(3), mints[0].SourceDomain)
	assert.Empty(t, b.Mints(outsider))
}

func TestBridgeMintAtCoversTransferLog(t *testing.T) {
	st, conn := storetest.New(t)
	b := NewBridge(st, accountSet{alice: true}, logger.NewNopLogger())

	mintTx := common.HexToHash("0xcccc000000000000000000000000000000000000000000000000000000000002")
	storetest.InsertBridgeMint(t, conn, store.BridgeMint{
		BlockNum: 100, LogIdx: 4, TxHash: mintTx,
		Recipient: outsider, Amount: big.NewInt(1), SourceDomain: 0,
	})
	require.NoError(t, b.Load(context.Background(), 1, 100))

	// untracked mints still answer coordinate lookups
	assert.True(t, b.MintAt(store.LogCoordinate{TxHash: mintTx, LogIdx: 4}))
	// the minted token's own transfer log sits one index later
	assert.True(t, b.MintAt(store.LogCoordinate{TxHash: mintTx, LogIdx: 5}))
	assert.False(t, b.MintAt(store.LogCoordinate{TxHash: mintTx, LogIdx: 6}))
	assert.False(t, b.MintAt(store.LogCoordinate{TxHash: mintTx, LogIdx: 0}))
}
