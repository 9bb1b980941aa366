// Package coins indexes value movements for tracked accounts: the home coin,
// foreign ERC-20 tokens, trace-derived native transfers and CCTP bridge
// hand-offs. Its central output is the Clog ("combined log"): the unified,
// API-facing event derived from one or more raw transfer logs plus correlated
// note, request and fee context.
package coins

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fjord-labs/walletcore/internal/store"
)

// ClogType tags the variant of a combined log.
type ClogType string

const (
	ClogSimpleTransfer ClogType = "simpleTransfer"
	ClogCreateLink     ClogType = "createLink"
	ClogClaimLink      ClogType = "claimLink"
	ClogInboundSwap    ClogType = "inboundSwap"
	ClogOutboundSwap   ClogType = "outboundSwap"
)

// SwapLeg describes the opposite side of a reconciled swap.
type SwapLeg struct {
	Token  *common.Address `json:"token"` // nil = native asset
	Amount *big.Int        `json:"amount"`
}

// Clog is the unified representation of one transaction's effect on an
// account. Exactly one of the note/request/swap contexts applies; callers
// never see raw paymaster fee legs, only the netted fee.
type Clog struct {
	Type     ClogType        `json:"type"`
	Token    *common.Address `json:"token"` // nil = native asset
	From     common.Address  `json:"from"`
	To       common.Address  `json:"to"`
	Amount   *big.Int        `json:"amount"`
	BlockNum uint64          `json:"block_num"`
	LogIdx   uint64          `json:"log_idx"`
	TxHash   common.Hash     `json:"tx_hash"`

	// user-operation correlation, when the transfer occurred inside one
	OpHash  *common.Hash `json:"op_hash,omitempty"`
	OpNonce *big.Int     `json:"op_nonce,omitempty"`

	// note context (createLink / claimLink)
	NoteOwner *common.Address `json:"note_owner,omitempty"`

	// request-fulfillment context
	RequestID *big.Int `json:"request_id,omitempty"`

	// swap context (inboundSwap / outboundSwap)
	Swap *SwapLeg `json:"swap,omitempty"`

	// net paymaster fee for the user operation, after refund crediting
	Fee *big.Int `json:"fee,omitempty"`
}

// Coordinate returns the (txHash, logIdx) key of the underlying transfer.
func (c *Clog) Coordinate() store.LogCoordinate {
	return store.LogCoordinate{TxHash: c.TxHash, LogIdx: c.LogIdx}
}
