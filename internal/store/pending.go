package store

import (
	"context"
	"fmt"
	"math/big"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"

	"github.com/fjord-labs/walletcore/internal/db"
	"github.com/fjord-labs/walletcore/internal/metrics"
)

// PendingSwap is a derived row this core owns: foreign-token value received
// by an account that has not been matched to an outbound conversion yet.
type PendingSwap struct {
	ID         int64              `meddler:"id,pk"`
	ChainID    uint64             `meddler:"chain_id"`
	Account    gethcommon.Address `meddler:"account,address"`
	Token      gethcommon.Address `meddler:"token,address"`
	Amount     *big.Int           `meddler:"amount,bigint"`
	FirstBlock uint64             `meddler:"first_block"`
	LastBlock  uint64             `meddler:"last_block"`
	TxHash     gethcommon.Hash    `meddler:"tx_hash,hash"`
	LogIdx     uint64             `meddler:"log_idx"`
}

// LoadPendingSwaps returns every unmatched inbound record for the chain.
func (s *Store) LoadPendingSwaps(ctx context.Context) ([]*PendingSwap, error) {
	defer metrics.ObserveStoreQuery("pending_swaps")()

	var rows []*PendingSwap
	q := db.Rebind(s.driver, `
		SELECT * FROM pending_swaps
		WHERE chain_id = ?
		ORDER BY first_block, log_idx`)
	if err := meddler.QueryAll(s.conn, &rows, q, s.chainID); err != nil {
		return nil, fmt.Errorf("failed to load pending swaps: %w", err)
	}
	return rows, nil
}

// InsertPendingSwap records a new unmatched inbound receipt.
func (s *Store) InsertPendingSwap(ctx context.Context, row *PendingSwap) error {
	defer metrics.ObserveStoreQuery("insert_pending_swap")()

	row.ChainID = s.chainID
	if err := meddler.Insert(s.conn, "pending_swaps", row); err != nil {
		return fmt.Errorf("failed to insert pending swap: %w", err)
	}
	return nil
}

// ReplacePendingSwaps clears all records for one (account, token) pair and,
// when remainder is non-nil, writes the single replacement record. Runs in
// one transaction so readers never see the pair half-collapsed.
func (s *Store) ReplacePendingSwaps(ctx context.Context, account, token gethcommon.Address, remainder *PendingSwap) error {
	defer metrics.ObserveStoreQuery("replace_pending_swaps")()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin pending swap tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := db.Rebind(s.driver, `
		DELETE FROM pending_swaps
		WHERE chain_id = ? AND account = ? AND token = ?`)
	if _, err := tx.ExecContext(ctx, q, s.chainID, account.Hex(), token.Hex()); err != nil {
		return fmt.Errorf("failed to clear pending swaps: %w", err)
	}
	if remainder != nil {
		remainder.ChainID = s.chainID
		if err := meddler.Insert(tx, "pending_swaps", remainder); err != nil {
			return fmt.Errorf("failed to insert pending swap remainder: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pending swap tx: %w", err)
	}
	return nil
}
