// Package storetest provides an in-memory sqlite fixture mirroring the
// upstream event tables, for indexer tests.
package storetest

import (
	"database/sql"
	"path"
	"testing"

	gethcommon "github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/fjord-labs/walletcore/internal/db"
	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/store"
	"github.com/fjord-labs/walletcore/internal/store/migrations"
)

// ChainID is the chain id every fixture row carries.
const ChainID uint64 = 8453

// upstream table shapes, owned by the ETL in production
const schema = `
CREATE TABLE index_cursor (
	chain_id     BIGINT PRIMARY KEY,
	latest_block BIGINT NOT NULL
);

CREATE TABLE erc20_transfers (
	chain_id  BIGINT NOT NULL,
	block_num BIGINT NOT NULL,
	tx_idx    BIGINT NOT NULL,
	log_idx   BIGINT NOT NULL,
	tx_hash   VARCHAR(66) NOT NULL,
	token     VARCHAR(42),
	from_addr VARCHAR(42) NOT NULL,
	to_addr   VARCHAR(42) NOT NULL,
	amount    VARCHAR NOT NULL
);

CREATE TABLE user_ops (
	chain_id  BIGINT NOT NULL,
	block_num BIGINT NOT NULL,
	log_idx   BIGINT NOT NULL,
	tx_hash   VARCHAR(66) NOT NULL,
	op_hash   VARCHAR(66) NOT NULL,
	sender    VARCHAR(42) NOT NULL,
	paymaster VARCHAR(42),
	nonce     VARCHAR NOT NULL
);

CREATE TABLE key_rotations (
	chain_id   BIGINT NOT NULL,
	change     VARCHAR NOT NULL,
	account    VARCHAR(42) NOT NULL,
	key_slot   INTEGER NOT NULL,
	public_key BLOB NOT NULL,
	block_num  BIGINT,
	log_idx    BIGINT,
	tx_hash    VARCHAR(66) NOT NULL
);

CREATE TABLE note_events (
	chain_id  BIGINT NOT NULL,
	kind      VARCHAR NOT NULL,
	owner     VARCHAR(42) NOT NULL,
	sender    VARCHAR(42) NOT NULL,
	redeemer  VARCHAR(42),
	amount    VARCHAR NOT NULL,
	block_num BIGINT NOT NULL,
	log_idx   BIGINT NOT NULL,
	tx_hash   VARCHAR(66) NOT NULL
);

CREATE TABLE request_events (
	chain_id   BIGINT NOT NULL,
	status     VARCHAR NOT NULL,
	request_id VARCHAR NOT NULL,
	recipient  VARCHAR(42) NOT NULL,
	fulfiller  VARCHAR(42),
	amount     VARCHAR NOT NULL,
	block_num  BIGINT NOT NULL,
	log_idx    BIGINT NOT NULL,
	tx_hash    VARCHAR(66) NOT NULL
);

CREATE TABLE name_registrations (
	chain_id  BIGINT NOT NULL,
	name      VARCHAR NOT NULL,
	addr      VARCHAR(42) NOT NULL,
	block_num BIGINT NOT NULL,
	log_idx   BIGINT NOT NULL
);

CREATE TABLE eth_transfers (
	chain_id  BIGINT NOT NULL,
	block_num BIGINT NOT NULL,
	trace_idx BIGINT NOT NULL,
	tx_hash   VARCHAR(66) NOT NULL,
	from_addr VARCHAR(42) NOT NULL,
	to_addr   VARCHAR(42) NOT NULL,
	amount    VARCHAR NOT NULL
);

CREATE TABLE bridge_mints (
	chain_id      BIGINT NOT NULL,
	block_num     BIGINT NOT NULL,
	log_idx       BIGINT NOT NULL,
	tx_hash       VARCHAR(66) NOT NULL,
	recipient     VARCHAR(42) NOT NULL,
	amount        VARCHAR NOT NULL,
	source_domain BIGINT NOT NULL
);

CREATE TABLE token_meta (
	token    VARCHAR(42) PRIMARY KEY,
	symbol   VARCHAR NOT NULL,
	decimals INTEGER NOT NULL
);
`

// New creates a sqlite-backed store seeded with the upstream table shapes
// and the derived-table migrations applied.
func New(t *testing.T) (*store.Store, *sql.DB) {
	t.Helper()

	conn, err := db.NewSQLiteDB(path.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Exec(schema)
	require.NoError(t, err)
	require.NoError(t, migrations.Run(logger.NewNopLogger(), conn, "sqlite3"))

	return store.New(conn, "sqlite3", ChainID, logger.NewNopLogger()), conn
}

// SetCursor writes the upstream "latest indexed block" row.
func SetCursor(t *testing.T, conn *sql.DB, block uint64) {
	t.Helper()
	_, err := conn.Exec(`
		INSERT INTO index_cursor (chain_id, latest_block) VALUES (?, ?)
		ON CONFLICT (chain_id) DO UPDATE SET latest_block = excluded.latest_block`,
		ChainID, block)
	require.NoError(t, err)
}

// InsertTransfer seeds one erc20_transfers row.
func InsertTransfer(t *testing.T, conn *sql.DB, row store.Transfer) {
	t.Helper()
	var token any
	if row.Token != nil {
		token = row.Token.Hex()
	}
	_, err := conn.Exec(`
		INSERT INTO erc20_transfers
			(chain_id, block_num, tx_idx, log_idx, tx_hash, token, from_addr, to_addr, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ChainID, row.BlockNum, row.TxIdx, row.LogIdx, row.TxHash.Hex(),
		token, row.From.Hex(), row.To.Hex(), row.Amount.String())
	require.NoError(t, err)
}

// InsertUserOp seeds one user_ops row.
func InsertUserOp(t *testing.T, conn *sql.DB, row store.UserOp) {
	t.Helper()
	var paymaster any
	if row.Paymaster != nil {
		paymaster = row.Paymaster.Hex()
	}
	_, err := conn.Exec(`
		INSERT INTO user_ops
			(chain_id, block_num, log_idx, tx_hash, op_hash, sender, paymaster, nonce)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ChainID, row.BlockNum, row.LogIdx, row.TxHash.Hex(), row.OpHash.Hex(),
		row.Sender.Hex(), paymaster, row.Nonce.String())
	require.NoError(t, err)
}

// InsertKeyChange seeds one key_rotations row.
func InsertKeyChange(t *testing.T, conn *sql.DB, row store.KeyChange) {
	t.Helper()
	var blockNum, logIdx any
	if row.BlockNum != nil {
		blockNum = *row.BlockNum
	}
	if row.LogIdx != nil {
		logIdx = *row.LogIdx
	}
	_, err := conn.Exec(`
		INSERT INTO key_rotations
			(chain_id, change, account, key_slot, public_key, block_num, log_idx, tx_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ChainID, row.Change, row.Account.Hex(), row.KeySlot, row.PublicKey,
		blockNum, logIdx, row.TxHash.Hex())
	require.NoError(t, err)
}

// InsertNoteEvent seeds one note_events row.
func InsertNoteEvent(t *testing.T, conn *sql.DB, row store.NoteEvent) {
	t.Helper()
	var redeemer any
	if row.Redeemer != nil {
		redeemer = row.Redeemer.Hex()
	}
	_, err := conn.Exec(`
		INSERT INTO note_events
			(chain_id, kind, owner, sender, redeemer, amount, block_num, log_idx, tx_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ChainID, row.Kind, row.Owner.Hex(), row.Sender.Hex(), redeemer,
		row.Amount.String(), row.BlockNum, row.LogIdx, row.TxHash.Hex())
	require.NoError(t, err)
}

// InsertRequestEvent seeds one request_events row.
func InsertRequestEvent(t *testing.T, conn *sql.DB, row store.RequestEvent) {
	t.Helper()
	var fulfiller any
	if row.Fulfiller != nil {
		fulfiller = row.Fulfiller.Hex()
	}
	_, err := conn.Exec(`
		INSERT INTO request_events
			(chain_id, status, request_id, recipient, fulfiller, amount, block_num, log_idx, tx_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ChainID, row.Status, row.RequestID.String(), row.Recipient.Hex(), fulfiller,
		row.Amount.String(), row.BlockNum, row.LogIdx, row.TxHash.Hex())
	require.NoError(t, err)
}

// InsertNameRegistration seeds one name_registrations row.
func InsertNameRegistration(t *testing.T, conn *sql.DB, row store.NameRegistration) {
	t.Helper()
	_, err := conn.Exec(`
		INSERT INTO name_registrations (chain_id, name, addr, block_num, log_idx)
		VALUES (?, ?, ?, ?, ?)`,
		ChainID, row.Name, row.Addr.Hex(), row.BlockNum, row.LogIdx)
	require.NoError(t, err)
}

// InsertEthTransfer seeds one eth_transfers row.
func InsertEthTransfer(t *testing.T, conn *sql.DB, row store.EthTransfer) {
	t.Helper()
	_, err := conn.Exec(`
		INSERT INTO eth_transfers
			(chain_id, block_num, trace_idx, tx_hash, from_addr, to_addr, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ChainID, row.BlockNum, row.TraceIdx, row.TxHash.Hex(),
		row.From.Hex(), row.To.Hex(), row.Amount.String())
	require.NoError(t, err)
}

// InsertBridgeMint seeds one bridge_mints row.
func InsertBridgeMint(t *testing.T, conn *sql.DB, row store.BridgeMint) {
	t.Helper()
	_, err := conn.Exec(`
		INSERT INTO bridge_mints
			(chain_id, block_num, log_idx, tx_hash, recipient, amount, source_domain)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ChainID, row.BlockNum, row.LogIdx, row.TxHash.Hex(),
		row.Recipient.Hex(), row.Amount.String(), row.SourceDomain)
	require.NoError(t, err)
}

// InsertTokenMeta seeds one token_meta row.
func InsertTokenMeta(t *testing.T, conn *sql.DB, token gethcommon.Address, symbol string, decimals uint8) {
	t.Helper()
	_, err := conn.Exec(`
		INSERT INTO token_meta (token, symbol, decimals) VALUES (?, ?, ?)`,
		token.Hex(), symbol, decimals)
	require.NoError(t, err)
}
