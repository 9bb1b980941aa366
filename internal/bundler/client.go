package bundler

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// GasPrice is one fee tier from the bundler's gas-price quote.
type GasPrice struct {
	MaxFeePerGas         *hexutil.Big `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big `json:"maxPriorityFeePerGas"`
}

// gasPriceQuote mirrors the bundler's tiered quote response.
type gasPriceQuote struct {
	Slow     GasPrice `json:"slow"`
	Standard GasPrice `json:"standard"`
	Fast     GasPrice `json:"fast"`
}

// Client talks to the ERC-4337 bundler's RPC surface.
type Client struct {
	rpc *gethrpc.Client
}

// NewClient connects to the bundler endpoint.
func NewClient(ctx context.Context, endpoint string) (*Client, error) {
	rpcClient, err := gethrpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial bundler endpoint: %w", err)
	}
	return &Client{rpc: rpcClient}, nil
}

// Close closes the bundler connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// GasPriceQuote fetches the bundler's current standard-tier gas price.
func (c *Client) GasPriceQuote(ctx context.Context) (maxFee, maxPriority *big.Int, err error) {
	var quote gasPriceQuote
	if err := c.rpc.CallContext(ctx, &quote, "pimlico_getUserOperationGasPrice"); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch bundler gas price: %w", err)
	}
	if quote.Standard.MaxFeePerGas == nil || quote.Standard.MaxPriorityFeePerGas == nil {
		return nil, nil, fmt.Errorf("bundler gas price quote missing standard tier")
	}
	return quote.Standard.MaxFeePerGas.ToInt(), quote.Standard.MaxPriorityFeePerGas.ToInt(), nil
}
