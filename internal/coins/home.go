package coins

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	wcommon "github.com/fjord-labs/walletcore/internal/common"
	"github.com/fjord-labs/walletcore/internal/index"
	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/notes"
	"github.com/fjord-labs/walletcore/internal/requests"
	"github.com/fjord-labs/walletcore/internal/store"
)

// AccountSet answers whether an address belongs to a tracked wallet account.
// The name registry provides it; home-coin indexing runs in a later layer.
type AccountSet interface {
	IsAccount(addr common.Address) bool
}

// HomeIndexer classifies home-coin transfers touching tracked accounts into
// clogs: note create/claim, request fulfillment, swap legs or plain
// transfers, with paymaster fees netted per user operation.
type HomeIndexer struct {
	index.Base
	store    *store.Store
	accounts AccountSet
	notes    *notes.Indexer
	requests *requests.Indexer

	homeCoin common.Address
	sponsor  common.Address // paymaster fee sponsor

	feed *index.Feed[Clog]

	mu      sync.RWMutex
	history map[common.Address][]*Clog
}

// NewHome creates the home-coin indexer.
func NewHome(
	s *store.Store,
	accounts AccountSet,
	noteIdx *notes.Indexer,
	requestIdx *requests.Indexer,
	homeCoin common.Address,
	sponsor common.Address,
	log *logger.Logger,
) *HomeIndexer {
	h := &HomeIndexer{
		Base:     index.NewBase(wcommon.ComponentHomeCoin, log),
		store:    s,
		accounts: accounts,
		notes:    noteIdx,
		requests: requestIdx,
		homeCoin: homeCoin,
		sponsor:  sponsor,
		history:  make(map[common.Address][]*Clog),
	}
	h.feed = index.NewFeed[Clog](&h.Base)
	return h
}

// AddListener registers a callback for newly classified clogs.
func (h *HomeIndexer) AddListener(fn func([]Clog)) {
	h.feed.AddListener(fn)
}

// Load classifies home-coin transfers in [from, to].
func (h *HomeIndexer) Load(ctx context.Context, from, to uint64) error {
	if h.Stale(from) {
		return nil
	}
	start := time.Now()

	transfers, err := h.store.LoadTransfers(ctx, from, to)
	if err != nil {
		return err
	}
	ops, err := h.store.LoadUserOps(ctx, from, to)
	if err != nil {
		return err
	}

	opByTx := make(map[common.Hash]*store.UserOp, len(ops))
	for _, op := range ops {
		opByTx[op.TxHash] = op
	}
	byTx := groupByTx(transfers)

	var clogs []*Clog
	for _, t := range transfers {
		if !h.isHomeCoin(t.Token) {
			continue
		}
		if !h.touchesTracked(t) {
			continue
		}
		clogs = append(clogs, h.classify(t, byTx[t.TxHash], opByTx[t.TxHash]))
	}

	clogs = h.netFees(clogs)

	batch := make([]Clog, 0, len(clogs))
	h.mu.Lock()
	for _, c := range clogs {
		if h.accounts.IsAccount(c.From) {
			h.history[c.From] = append(h.history[c.From], c)
		}
		if c.To != c.From && h.accounts.IsAccount(c.To) {
			h.history[c.To] = append(h.history[c.To], c)
		}
		batch = append(batch, *c)
	}
	h.mu.Unlock()

	h.Advance(to, start)
	h.feed.Publish(batch)
	return nil
}

func (h *HomeIndexer) isHomeCoin(token *common.Address) bool {
	return token != nil && *token == h.homeCoin
}

// touchesTracked keeps transfers involving a tracked account or the fee
// sponsor. Sponsor legs survive classification so netFees can fold them.
func (h *HomeIndexer) touchesTracked(t *store.Transfer) bool {
	return h.accounts.IsAccount(t.From) || h.accounts.IsAccount(t.To) ||
		t.From == h.sponsor || t.To == h.sponsor
}

// classify attaches exactly one of the note / request / swap / plain
// contexts, first match winning in that priority order.
func (h *HomeIndexer) classify(t *store.Transfer, txTransfers []*store.Transfer, op *store.UserOp) *Clog {
	c := &Clog{
		Type:     ClogSimpleTransfer,
		Token:    t.Token,
		From:     t.From,
		To:       t.To,
		Amount:   t.Amount,
		BlockNum: t.BlockNum,
		LogIdx:   t.LogIdx,
		TxHash:   t.TxHash,
	}

	if op != nil {
		opHash := op.OpHash
		c.OpHash = &opHash
		c.OpNonce = op.Nonce
	}

	// (1) note context: the transfer immediately follows a note log
	if t.LogIdx > 0 {
		prev := store.LogCoordinate{TxHash: t.TxHash, LogIdx: t.LogIdx - 1}
		if note, kind, ok := h.notes.EventAt(prev); ok {
			owner := note.Owner
			c.NoteOwner = &owner
			if kind == store.NoteCreated {
				c.Type = ClogCreateLink
			} else {
				c.Type = ClogClaimLink
			}
			return c
		}
	}

	// (2) request fulfillment at this transfer's own coordinate
	if req, ok := h.requests.FulfilledAt(t.Coordinate()); ok {
		c.RequestID = req.ID
		return c
	}

	// (3) swap context from the reconciliation matcher
	if h.accounts.IsAccount(t.From) {
		if start := FindStartLeg(txTransfers, t.From); start != nil && start.LogIdx == t.LogIdx {
			if term := FindTerminalLeg(txTransfers, t.From); term != nil {
				c.Type = ClogOutboundSwap
				c.Swap = &SwapLeg{Token: term.Token, Amount: term.Amount}
				return c
			}
		}
	}
	if h.accounts.IsAccount(t.To) {
		if start := FindStartLeg(txTransfers, t.To); start != nil && start.LogIdx != t.LogIdx {
			if term := FindTerminalLeg(txTransfers, t.To); term != nil && term.LogIdx == t.LogIdx {
				c.Type = ClogInboundSwap
				c.Swap = &SwapLeg{Token: start.Token, Amount: start.Amount}
				return c
			}
		}
	}

	// (4) plain transfer
	return c
}

// netFees folds paymaster fee legs. Transfers are grouped by user-operation
// hash; amounts moved to the sponsor are charges, amounts moved from the
// sponsor are refunds. The net fee lands on the other transfer(s) of the op
// and the sponsor-only legs are dropped from the output.
func (h *HomeIndexer) netFees(clogs []*Clog) []*Clog {
	byOp := make(map[common.Hash][]*Clog)
	for _, c := range clogs {
		if c.OpHash != nil {
			byOp[*c.OpHash] = append(byOp[*c.OpHash], c)
		}
	}

	dropped := make(map[store.LogCoordinate]bool)
	for _, group := range byOp {
		fee := new(big.Int)
		var sponsorLegs int
		for _, c := range group {
			if c.To == h.sponsor {
				fee.Add(fee, c.Amount)
				dropped[c.Coordinate()] = true
				sponsorLegs++
			} else if c.From == h.sponsor {
				fee.Sub(fee, c.Amount)
				dropped[c.Coordinate()] = true
				sponsorLegs++
			}
		}
		if sponsorLegs == 0 {
			continue
		}
		for _, c := range group {
			if !dropped[c.Coordinate()] {
				c.Fee = fee
			}
		}
	}

	out := clogs[:0]
	for _, c := range clogs {
		if dropped[c.Coordinate()] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// History returns the classified clogs for one account since the given block.
func (h *HomeIndexer) History(account common.Address, sinceBlock uint64) []Clog {
	h.mu.RLock()
	defer h.mu.RUnlock()

	all := h.history[account]
	i := sort.Search(len(all), func(n int) bool { return all[n].BlockNum >= sinceBlock })

	out := make([]Clog, 0, len(all)-i)
	for _, c := range all[i:] {
		out = append(out, *c)
	}
	return out
}
