package store

import (
	"context"
	"database/sql"
	"fmt"

	gethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/fjord-labs/walletcore/internal/common"
	"github.com/fjord-labs/walletcore/internal/db"
	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/metrics"
	"github.com/russross/meddler"
)

// Store provides typed, read-only access to the decoded event tables the
// upstream extraction pipeline maintains, plus the single-row cursor that
// gates how far the watcher may safely read.
type Store struct {
	conn    *sql.DB
	driver  string
	chainID uint64
	log     *logger.Logger
}

// New creates a Store over an open connection.
func New(conn *sql.DB, driver string, chainID uint64, log *logger.Logger) *Store {
	db.SetMeddlerDriver(driver)
	return &Store{
		conn:    conn,
		driver:  driver,
		chainID: chainID,
		log:     log.WithComponent(common.ComponentStore),
	}
}

// ChainID returns the chain this store reads rows for.
func (s *Store) ChainID() uint64 { return s.chainID }

// DB exposes the underlying connection for the derived tables this core owns.
func (s *Store) DB() *sql.DB { return s.conn }

// Driver returns the configured sql driver name.
func (s *Store) Driver() string { return s.driver }

// LatestCursor reads the extraction pipeline's "latest indexed block" row.
func (s *Store) LatestCursor(ctx context.Context) (uint64, error) {
	defer metrics.ObserveStoreQuery("latest_cursor")()

	var latest uint64
	q := db.Rebind(s.driver, `SELECT latest_block FROM index_cursor WHERE chain_id = ?`)
	err := s.conn.QueryRowContext(ctx, q, s.chainID).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("failed to read index cursor: %w", err)
	}
	return latest, nil
}

// LoadTransfers returns token transfer rows in [from, to], ordered by block
// number then log index.
func (s *Store) LoadTransfers(ctx context.Context, from, to uint64) ([]*Transfer, error) {
	defer metrics.ObserveStoreQuery("transfers")()

	var rows []*Transfer
	q := db.Rebind(s.driver, `
		SELECT * FROM erc20_transfers
		WHERE chain_id = ? AND block_num >= ? AND block_num <= ?
		ORDER BY block_num, log_idx`)
	if err := meddler.QueryAll(s.conn, &rows, q, s.chainID, from, to); err != nil {
		return nil, fmt.Errorf("failed to load transfers [%d,%d]: %w", from, to, err)
	}
	return rows, nil
}

// LoadTransfersByTx returns all transfer rows of one transaction, ordered by
// log index. Used by the swap matcher to walk the within-tx transfer graph.
func (s *Store) LoadTransfersByTx(ctx context.Context, txHash gethcommon.Hash) ([]*Transfer, error) {
	defer metrics.ObserveStoreQuery("transfers_by_tx")()

	var rows []*Transfer
	q := db.Rebind(s.driver, `
		SELECT * FROM erc20_transfers
		WHERE chain_id = ? AND tx_hash = ?
		ORDER BY log_idx`)
	if err := meddler.QueryAll(s.conn, &rows, q, s.chainID, txHash.Hex()); err != nil {
		return nil, fmt.Errorf("failed to load transfers for tx: %w", err)
	}
	return rows, nil
}

// LoadUserOps returns user-operation rows in [from, to].
func (s *Store) LoadUserOps(ctx context.Context, from, to uint64) ([]*UserOp, error) {
	defer metrics.ObserveStoreQuery("user_ops")()

	var rows []*UserOp
	q := db.Rebind(s.driver, `
		SELECT * FROM user_ops
		WHERE chain_id = ? AND block_num >= ? AND block_num <= ?
		ORDER BY block_num, log_idx`)
	if err := meddler.QueryAll(s.conn, &rows, q, s.chainID, from, to); err != nil {
		return nil, fmt.Errorf("failed to load user ops [%d,%d]: %w", from, to, err)
	}
	return rows, nil
}

// LoadKeyChanges returns key rotation rows in [from, to]. Rows with NULL
// block numbers are included regardless of range; the key registry orders
// them deterministically during replay.
func (s *Store) LoadKeyChanges(ctx context.Context, from, to uint64) ([]*KeyChange, error) {
	defer metrics.ObserveStoreQuery("key_changes")()

	var rows []*KeyChange
	q := db.Rebind(s.driver, `
		SELECT * FROM key_rotations
		WHERE chain_id = ? AND (block_num IS NULL OR (block_num >= ? AND block_num <= ?))
		ORDER BY block_num, log_idx`)
	if err := meddler.QueryAll(s.conn, &rows, q, s.chainID, from, to); err != nil {
		return nil, fmt.Errorf("failed to load key changes [%d,%d]: %w", from, to, err)
	}
	return rows, nil
}

// LoadKeyHistory returns the complete key rotation history for one account.
// The key registry re-derives the account's key set from this full history.
func (s *Store) LoadKeyHistory(ctx context.Context, account gethcommon.Address) ([]*KeyChange, error) {
	defer metrics.ObserveStoreQuery("key_history")()

	var rows []*KeyChange
	q := db.Rebind(s.driver, `
		SELECT * FROM key_rotations
		WHERE chain_id = ? AND account = ?`)
	if err := meddler.QueryAll(s.conn, &rows, q, s.chainID, account.Hex()); err != nil {
		return nil, fmt.Errorf("failed to load key history: %w", err)
	}
	return rows, nil
}

// LoadNoteEvents returns note lifecycle rows in [from, to].
func (s *Store) LoadNoteEvents(ctx context.Context, from, to uint64) ([]*NoteEvent, error) {
	defer metrics.ObserveStoreQuery("note_events")()

	var rows []*NoteEvent
	q := db.Rebind(s.driver, `
		SELECT * FROM note_events
		WHERE chain_id = ? AND block_num >= ? AND block_num <= ?
		ORDER BY block_num, log_idx`)
	if err := meddler.QueryAll(s.conn, &rows, q, s.chainID, from, to); err != nil {
		return nil, fmt.Errorf("failed to load note events [%d,%d]: %w", from, to, err)
	}
	return rows, nil
}

// LoadRequestEvents returns request lifecycle rows in [from, to].
func (s *Store) LoadRequestEvents(ctx context.Context, from, to uint64) ([]*RequestEvent, error) {
	defer metrics.ObserveStoreQuery("request_events")()

	var rows []*RequestEvent
	q := db.Rebind(s.driver, `
		SELECT * FROM request_events
		WHERE chain_id = ? AND block_num >= ? AND block_num <= ?
		ORDER BY block_num, log_idx`)
	if err := meddler.QueryAll(s.conn, &rows, q, s.chainID, from, to); err != nil {
		return nil, fmt.Errorf("failed to load request events [%d,%d]: %w", from, to, err)
	}
	return rows, nil
}

// LoadNameRegistrations returns name registry rows in [from, to].
func (s *Store) LoadNameRegistrations(ctx context.Context, from, to uint64) ([]*NameRegistration, error) {
	defer metrics.ObserveStoreQuery("name_registrations")()

	var rows []*NameRegistration
	q := db.Rebind(s.driver, `
		SELECT * FROM name_registrations
		WHERE chain_id = ? AND block_num >= ? AND block_num <= ?
		ORDER BY block_num, log_idx`)
	if err := meddler.QueryAll(s.conn, &rows, q, s.chainID, from, to); err != nil {
		return nil, fmt.Errorf("failed to load name registrations [%d,%d]: %w", from, to, err)
	}
	return rows, nil
}

// LoadEthTransfers returns trace-derived native transfers in [from, to].
func (s *Store) LoadEthTransfers(ctx context.Context, from, to uint64) ([]*EthTransfer, error) {
	defer metrics.ObserveStoreQuery("eth_transfers")()

	var rows []*EthTransfer
	q := db.Rebind(s.driver, `
		SELECT * FROM eth_transfers
		WHERE chain_id = ? AND block_num >= ? AND block_num <= ?
		ORDER BY block_num, trace_idx`)
	if err := meddler.QueryAll(s.conn, &rows, q, s.chainID, from, to); err != nil {
		return nil, fmt.Errorf("failed to load eth transfers [%d,%d]: %w", from, to, err)
	}
	return rows, nil
}

// LoadBridgeMints returns CCTP mint rows in [from, to].
func (s *Store) LoadBridgeMints(ctx context.Context, from, to uint64) ([]*BridgeMint, error) {
	defer metrics.ObserveStoreQuery("bridge_mints")()

	var rows []*BridgeMint
	q := db.Rebind(s.driver, `
		SELECT * FROM bridge_mints
		WHERE chain_id = ? AND block_num >= ? AND block_num <= ?
		ORDER BY block_num, log_idx`)
	if err := meddler.QueryAll(s.conn, &rows, q, s.chainID, from, to); err != nil {
		return nil, fmt.Errorf("failed to load bridge mints [%d,%d]: %w", from, to, err)
	}
	return rows, nil
}

// GetTokenMeta resolves metadata for one token, if known.
func (s *Store) GetTokenMeta(ctx context.Context, token gethcommon.Address) (*TokenMeta, error) {
	defer metrics.ObserveStoreQuery("token_meta")()

	var meta TokenMeta
	q := db.Rebind(s.driver, `SELECT * FROM token_meta WHERE token = ?`)
	err := meddler.QueryRow(s.conn, &meta, q, token.Hex())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load token meta: %w", err)
	}
	return &meta, nil
}

// PoolStatus reports connection-pool occupancy for the health surface.
type PoolStatus struct {
	OpenConnections int `json:"open_connections"`
	InUse           int `json:"in_use"`
	Idle            int `json:"idle"`
}

// Pool returns current connection-pool occupancy.
func (s *Store) Pool() PoolStatus {
	st := s.conn.Stats()
	return PoolStatus{
		OpenConnections: st.OpenConnections,
		InUse:           st.InUse,
		Idle:            st.Idle,
	}
}
