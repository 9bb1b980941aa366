package store

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Rows in this package mirror the decoded event tables the upstream ETL
// maintains, keyed by (chain_id, block_num, log_idx). They are read-only
// from this process's point of view. Malformed rows fail decoding instead
// of being silently coerced.

// Transfer is one decoded ERC-20 value-movement log.
// A nil Token marks the native asset.
type Transfer struct {
	ChainID  uint64          `meddler:"chain_id"`
	BlockNum uint64          `meddler:"block_num"`
	TxIdx    uint64          `meddler:"tx_idx"`
	LogIdx   uint64          `meddler:"log_idx"`
	TxHash   common.Hash     `meddler:"tx_hash,hash"`
	Token    *common.Address `meddler:"token,address"`
	From     common.Address  `meddler:"from_addr,address"`
	To       common.Address  `meddler:"to_addr,address"`
	Amount   *big.Int        `meddler:"amount,bigint"`
}

// Coordinate returns the (txHash, logIdx) key of the transfer.
func (t *Transfer) Coordinate() LogCoordinate {
	return LogCoordinate{TxHash: t.TxHash, LogIdx: t.LogIdx}
}

// LogCoordinate identifies one log within one transaction.
type LogCoordinate struct {
	TxHash common.Hash
	LogIdx uint64
}

// UserOp is one decoded ERC-4337 UserOperationEvent log.
type UserOp struct {
	ChainID   uint64          `meddler:"chain_id"`
	BlockNum  uint64          `meddler:"block_num"`
	LogIdx    uint64          `meddler:"log_idx"`
	TxHash    common.Hash     `meddler:"tx_hash,hash"`
	OpHash    common.Hash     `meddler:"op_hash,hash"`
	Sender    common.Address  `meddler:"sender,address"`
	Paymaster *common.Address `meddler:"paymaster,address"`
	Nonce     *big.Int        `meddler:"nonce,bigint"`
}

// KeyChange records one SigningKeyAdded / SigningKeyRemoved log.
// Block number and log index may be absent for rows observed before the
// extraction pipeline backfilled coordinates; ordering treats them as
// "current block + 1" so they sort last.
type KeyChange struct {
	ChainID   uint64         `meddler:"chain_id"`
	Change    string         `meddler:"change"` // "added" or "removed"
	Account   common.Address `meddler:"account,address"`
	KeySlot   uint8          `meddler:"key_slot"`
	PublicKey []byte         `meddler:"public_key"` // DER-encoded P-256 key
	BlockNum  *uint64        `meddler:"block_num"`
	LogIdx    *uint64        `meddler:"log_idx"`
	TxHash    common.Hash    `meddler:"tx_hash,hash"`
}

const (
	KeyAdded   = "added"
	KeyRemoved = "removed"
)

// NoteEvent records one NoteCreated / NoteRedeemed log. The ephemeral owner
// address is the note's identity.
type NoteEvent struct {
	ChainID  uint64          `meddler:"chain_id"`
	Kind     string          `meddler:"kind"` // "created" or "redeemed"
	Owner    common.Address  `meddler:"owner,address"`
	Sender   common.Address  `meddler:"sender,address"`
	Redeemer *common.Address `meddler:"redeemer,address"`
	Amount   *big.Int        `meddler:"amount,bigint"`
	BlockNum uint64          `meddler:"block_num"`
	LogIdx   uint64          `meddler:"log_idx"`
	TxHash   common.Hash     `meddler:"tx_hash,hash"`
}

const (
	NoteCreated  = "created"
	NoteRedeemed = "redeemed"
)

// RequestEvent records one RequestCreated / RequestCancelled / RequestFulfilled log.
type RequestEvent struct {
	ChainID   uint64          `meddler:"chain_id"`
	Status    string          `meddler:"status"` // "created", "cancelled" or "fulfilled"
	RequestID *big.Int        `meddler:"request_id,bigint"`
	Recipient common.Address  `meddler:"recipient,address"`
	Fulfiller *common.Address `meddler:"fulfiller,address"`
	Amount    *big.Int        `meddler:"amount,bigint"`
	BlockNum  uint64          `meddler:"block_num"`
	LogIdx    uint64          `meddler:"log_idx"`
	TxHash    common.Hash     `meddler:"tx_hash,hash"`
}

const (
	RequestCreated   = "created"
	RequestCancelled = "cancelled"
	RequestFulfilled = "fulfilled"
)

// NameRegistration records one Registered log from the account name registry.
type NameRegistration struct {
	ChainID  uint64         `meddler:"chain_id"`
	Name     string         `meddler:"name"`
	Addr     common.Address `meddler:"addr,address"`
	BlockNum uint64         `meddler:"block_num"`
	LogIdx   uint64         `meddler:"log_idx"`
}

// TokenMeta describes an ERC-20 token observed by the extraction pipeline.
type TokenMeta struct {
	Token    common.Address `meddler:"token,address"`
	Symbol   string         `meddler:"symbol"`
	Decimals uint8          `meddler:"decimals"`
}

// EthTransfer is one native-asset value movement derived from transaction
// traces. The trace source is markedly less reliable than log extraction,
// which is why its indexer runs on the slow schedule.
type EthTransfer struct {
	ChainID  uint64         `meddler:"chain_id"`
	BlockNum uint64         `meddler:"block_num"`
	TraceIdx uint64         `meddler:"trace_idx"`
	TxHash   common.Hash    `meddler:"tx_hash,hash"`
	From     common.Address `meddler:"from_addr,address"`
	To       common.Address `meddler:"to_addr,address"`
	Amount   *big.Int       `meddler:"amount,bigint"`
}

// BridgeMint is one decoded CCTP MintAndWithdraw log, the receiving half of
// a cross-chain bridge hand-off.
type BridgeMint struct {
	ChainID      uint64         `meddler:"chain_id"`
	BlockNum     uint64         `meddler:"block_num"`
	LogIdx       uint64         `meddler:"log_idx"`
	TxHash       common.Hash    `meddler:"tx_hash,hash"`
	Recipient    common.Address `meddler:"recipient,address"`
	Amount       *big.Int       `meddler:"amount,bigint"`
	SourceDomain uint32         `meddler:"source_domain"`
}
