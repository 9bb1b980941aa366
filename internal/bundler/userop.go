package bundler

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	wcommon "github.com/fjord-labs/walletcore/internal/common"
	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/rpc"
)

// UserOperation is an ERC-4337 v0.6 user operation.
type UserOperation struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
	Signature            []byte
}

const entryPointABIJSON = `[
	{"name":"handleOps","type":"function","stateMutability":"nonpayable","inputs":[
		{"name":"ops","type":"tuple[]","components":[
			{"name":"sender","type":"address"},
			{"name":"nonce","type":"uint256"},
			{"name":"initCode","type":"bytes"},
			{"name":"callData","type":"bytes"},
			{"name":"callGasLimit","type":"uint256"},
			{"name":"verificationGasLimit","type":"uint256"},
			{"name":"preVerificationGas","type":"uint256"},
			{"name":"maxFeePerGas","type":"uint256"},
			{"name":"maxPriorityFeePerGas","type":"uint256"},
			{"name":"paymasterAndData","type":"bytes"},
			{"name":"signature","type":"bytes"}
		]},
		{"name":"beneficiary","type":"address"}
	],"outputs":[]}
]`

// Sender submits user operations through the entry point, riding on the
// reliable submission path for fee escalation and receipt confirmation.
type Sender struct {
	submitter  *rpc.Submitter
	estimator  *Estimator
	entryPoint common.Address
	abi        abi.ABI
	log        *logger.Logger
}

// NewSender creates a user-operation sender.
func NewSender(submitter *rpc.Submitter, estimator *Estimator, entryPoint common.Address, log *logger.Logger) (*Sender, error) {
	parsed, err := abi.JSON(strings.NewReader(entryPointABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse entry point abi: %w", err)
	}
	return &Sender{
		submitter:  submitter,
		estimator:  estimator,
		entryPoint: entryPoint,
		abi:        parsed,
		log:        log.WithComponent(wcommon.ComponentBundler),
	}, nil
}

// SendUserOp fills the operation's unset gas fields from the current fee
// estimate, wraps it in a handleOps call and submits it. The relayer key is
// the bundle beneficiary.
func (s *Sender) SendUserOp(ctx context.Context, relayer rpc.Signer, op UserOperation) (*types.Receipt, error) {
	if op.MaxFeePerGas == nil || op.CallGasLimit == nil {
		est, err := s.estimator.EstimateFee(ctx)
		if err != nil {
			return nil, err
		}
		if op.MaxFeePerGas == nil {
			op.MaxFeePerGas = est.MaxFeePerGas
		}
		if op.MaxPriorityFeePerGas == nil {
			op.MaxPriorityFeePerGas = est.MaxPriorityFeePerGas
		}
		if op.CallGasLimit == nil {
			op.CallGasLimit = big.NewInt(callGas)
		}
		if op.VerificationGasLimit == nil {
			op.VerificationGasLimit = big.NewInt(verificationGas)
		}
		if op.PreVerificationGas == nil {
			op.PreVerificationGas = big.NewInt(preVerificationGas)
		}
	}

	data, err := s.abi.Pack("handleOps", []UserOperation{op}, relayer.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to pack handleOps: %w", err)
	}

	s.log.Infow("submitting user operation",
		"sender", op.Sender.Hex(),
		"nonce", op.Nonce,
		"entry_point", s.entryPoint.Hex())

	entryPoint := s.entryPoint
	return s.submitter.Submit(ctx, relayer, rpc.Call{To: &entryPoint, Data: data})
}
