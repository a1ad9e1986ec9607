package blockchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlegpt/mantlebot/pkg/logger"
)

// ERC-20 function selectors, hand-packed instead of binding a full ABI since
// the contract surface is exactly three methods.
var (
	balanceOfSig = []byte{0x70, 0xa0, 0x82, 0x31} // balanceOf(address)
	decimalsSig  = []byte{0x31, 0x3c, 0xe5, 0x67} // decimals()
	transferSig  = []byte{0xa9, 0x05, 0x9c, 0xbb} // transfer(address,uint256)
)

// NativeBalance returns the base-coin balance in wei.
func (g *Gateway) NativeBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	ctx, cancel := g.opCtx(ctx)
	defer cancel()

	balance, err := g.client.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, rpcErr("balance", err)
	}
	return balance, nil
}

// TokenBalance returns the ERC-20 balance in the token's smallest unit.
func (g *Gateway) TokenBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	ctx, cancel := g.opCtx(ctx)
	defer cancel()

	callData := append(append([]byte{}, balanceOfSig...), common.LeftPadBytes(address.Bytes(), 32)...)

	result, err := g.client.CallContract(ctx, ethereum.CallMsg{
		To:   &g.token,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, rpcErr("token_balance", err)
	}
	if len(result) == 0 {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(result), nil
}

// TokenDecimals fetches the token's decimal count once and caches it for the
// process lifetime; a deployed contract's decimals are assumed immutable.
func (g *Gateway) TokenDecimals(ctx context.Context) (uint8, error) {
	g.decMu.Lock()
	defer g.decMu.Unlock()

	if g.decLoaded {
		return g.decimals, nil
	}

	ctx, cancel := g.opCtx(ctx)
	defer cancel()

	result, err := g.client.CallContract(ctx, ethereum.CallMsg{
		To:   &g.token,
		Data: decimalsSig,
	}, nil)
	if err != nil {
		return 0, rpcErr("token_decimals", err)
	}
	if len(result) < 32 {
		return 0, rpcErr("token_decimals", fmt.Errorf("invalid decimals result length: %d", len(result)))
	}

	// ABI-encoded uint8: the value sits in the last byte of the 32-byte word.
	g.decimals = result[31]
	g.decLoaded = true

	logger.InfoCF("blockchain", "Token decimals cached", map[string]any{
		"token":    g.token.Hex(),
		"decimals": g.decimals,
	})

	return g.decimals, nil
}

// transferCallData packs transfer(to, amount) for the supported token.
func transferCallData(to common.Address, amount *big.Int) []byte {
	callData := make([]byte, 0, 4+32+32)
	callData = append(callData, transferSig...)
	callData = append(callData, common.LeftPadBytes(to.Bytes(), 32)...)
	callData = append(callData, common.LeftPadBytes(amount.Bytes(), 32)...)
	return callData
}
