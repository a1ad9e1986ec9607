package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mantlegpt/mantlebot/pkg/logger"
)

// Asset identifies which of the two supported assets an operation concerns.
type Asset string

const (
	// AssetNative is the chain's base coin; 18 decimals, also pays gas.
	AssetNative Asset = "NATIVE"
	// AssetToken is the single supported ERC-20 token.
	AssetToken Asset = "TOKEN"
)

// NativeDecimals is fixed by the chain.
const NativeDecimals uint8 = 18

// RPCError wraps any failure talking to the ledger, timeouts included.
// Callers must not assume the wrapped operation is idempotent: a failed
// broadcast is never retried here.
type RPCError struct {
	Op  string
	Err error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("chain rpc %s: %v", e.Op, e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }

func rpcErr(op string, err error) error {
	return &RPCError{Op: op, Err: err}
}

// FeeEstimate is a point-in-time gas quote for a specific transfer. It may be
// stale by broadcast time; totals are always recomputed from these exact
// values, never from a fresh quote.
type FeeEstimate struct {
	GasLimit uint64
	GasPrice *big.Int
}

// Cost returns gasLimit * gasPrice in the smallest native unit.
func (f FeeEstimate) Cost() *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(f.GasLimit), f.GasPrice)
}

// Config describes the single chain the gateway talks to.
type Config struct {
	RPC          string
	ChainID      int64
	TokenAddress common.Address
	Timeout      time.Duration
}

// Gateway talks to one EVM chain and one ERC-20 contract on it.
type Gateway struct {
	client  *ethclient.Client
	chainID *big.Int
	token   common.Address
	timeout time.Duration

	decMu     sync.Mutex
	decimals  uint8
	decLoaded bool
}

// Dial connects to the configured RPC endpoint and verifies its chain ID.
func Dial(ctx context.Context, cfg Config) (*Gateway, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPC)
	if err != nil {
		return nil, rpcErr("dial", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, rpcErr("chain_id", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		client.Close()
		return nil, rpcErr("chain_id", fmt.Errorf("chain ID mismatch: expected %d, got %d", cfg.ChainID, chainID.Int64()))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logger.InfoCF("blockchain", "Connected to chain", map[string]any{
		"rpc":     cfg.RPC,
		"chainId": chainID.Int64(),
		"token":   cfg.TokenAddress.Hex(),
	})

	return &Gateway{
		client:  client,
		chainID: chainID,
		token:   cfg.TokenAddress,
		timeout: timeout,
	}, nil
}

// Close disconnects from the RPC endpoint.
func (g *Gateway) Close() {
	g.client.Close()
	logger.InfoCF("blockchain", "Disconnected from chain", map[string]any{
		"chainId": g.chainID.Int64(),
	})
}

// opCtx bounds a single network call so a confirm can never block forever.
func (g *Gateway) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}
