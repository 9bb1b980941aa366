package coins

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/fjord-labs/walletcore/internal/store"
)

// FindStartLeg returns the first transfer in the transaction sent by the
// given address, or nil.
func FindStartLeg(txTransfers []*store.Transfer, from common.Address) *store.Transfer {
	for _, t := range txTransfers {
		if t.From == from {
			return t
		}
	}
	return nil
}

// FindTerminalLeg reconciles a multi-leg swap inside one transaction. It
// starts at the leg sent by `from` and repeatedly follows the next unvisited
// transfer whose sender equals the current leg's recipient
// (user→router→pool→user), marking visited log indices so the walk
// terminates even when the graph contains cycles.
//
// The terminal leg is returned only when its token differs from the starting
// leg's token; a same-token terminal means the funds merely passed through
// intermediaries, which is not a swap.
func FindTerminalLeg(txTransfers []*store.Transfer, from common.Address) *store.Transfer {
	start := FindStartLeg(txTransfers, from)
	if start == nil {
		return nil
	}

	visited := map[uint64]bool{start.LogIdx: true}
	current := start

	for {
		next := nextLeg(txTransfers, current.To, visited)
		if next == nil {
			break
		}
		visited[next.LogIdx] = true
		current = next
	}

	if current == start {
		return nil
	}
	if sameToken(start.Token, current.Token) {
		return nil
	}
	return current
}

func nextLeg(txTransfers []*store.Transfer, from common.Address, visited map[uint64]bool) *store.Transfer {
	for _, t := range txTransfers {
		if visited[t.LogIdx] {
			continue
		}
		if t.From == from {
			return t
		}
	}
	return nil
}

func sameToken(a, b *common.Address) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// groupByTx buckets a batch of transfers by transaction hash, preserving
// log-index order within each bucket.
func groupByTx(transfers []*store.Transfer) map[common.Hash][]*store.Transfer {
	byTx := make(map[common.Hash][]*store.Transfer)
	for _, t := range transfers {
		byTx[t.TxHash] = append(byTx[t.TxHash], t)
	}
	return byTx
}
