package coins

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/store"
	"github.com/fjord-labs/walletcore/internal/store/storetest"
)

func TestEthReceipts(t *testing.T) {
	st, conn := storetest.New(t)
	e := NewEth(st, accountSet{alice: true}, logger.NewNopLogger())

	storetest.InsertEthTransfer(t, conn, store.EthTransfer{
		BlockNum: 100, TraceIdx: 0, TxHash: swapTx,
		From: outsider, To: alice, Amount: big.NewInt(1_000_000_000),
	})
	storetest.InsertEthTransfer(t, conn, store.EthTransfer{
		BlockNum: 100, TraceIdx: 1, TxHash: swapTx,
		From: outsider, To: outsider, Amount: big.NewInt(5),
	})

	var published []store.EthTransfer
	e.AddListener(func(batch []store.EthTransfer) { published = append(published, batch...) })

	require.NoError(t, e.Load(context.Background(), 1, 100))

	require.Len(t, published, 1)
	assert.Equal(t, alice, published[0].To)

	receipts := e.Receipts(alice)
	require.Len(t, receipts, 1)
	assert.Equal(t, int64(1_000_000_000), receipts[0].Amount.Int64())
	assert.Empty(t, e.Receipts(outsider))

	// stale range is ignored
	require.NoError(t, e.Load(context.Background(), 50, 100))
	assert.Len(t, e.Receipts(alice), 1)
}
