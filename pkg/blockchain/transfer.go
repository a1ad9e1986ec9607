package blockchain

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mantlegpt/mantlebot/pkg/logger"
)

const (
	// Fallback when token gas estimation fails; enough for a plain ERC-20
	// transfer on most chains.
	defaultTokenGasLimit = uint64(100000)
	tokenGasBuffer       = uint64(10000)
)

// EstimateTransferCost quotes gas for a specific native transfer. Both values
// are point-in-time; the caller computes totals from them and reuses them
// verbatim at broadcast.
func (g *Gateway) EstimateTransferCost(ctx context.Context, from, to common.Address, amount *big.Int) (FeeEstimate, error) {
	ctx, cancel := g.opCtx(ctx)
	defer cancel()

	gasPrice, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return FeeEstimate{}, rpcErr("gas_price", err)
	}

	gasLimit, err := g.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: amount,
	})
	if err != nil {
		return FeeEstimate{}, rpcErr("estimate_gas", err)
	}

	return FeeEstimate{GasLimit: gasLimit, GasPrice: gasPrice}, nil
}

// EstimateTokenTransferCost quotes gas for transferring the supported token.
// The fee is paid in the native asset.
func (g *Gateway) EstimateTokenTransferCost(ctx context.Context, from, to common.Address, amount *big.Int) (FeeEstimate, error) {
	ctx, cancel := g.opCtx(ctx)
	defer cancel()

	gasPrice, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return FeeEstimate{}, rpcErr("gas_price", err)
	}

	callData := transferCallData(to, amount)
	gasLimit, err := g.client.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &g.token,
		Data: callData,
	})
	if err != nil {
		logger.WarnCF("blockchain", "Token gas estimation failed, using default", map[string]any{
			"error": err.Error(),
		})
		gasLimit = defaultTokenGasLimit
	} else {
		gasLimit += tokenGasBuffer
	}

	return FeeEstimate{GasLimit: gasLimit, GasPrice: gasPrice}, nil
}

// SendNative signs and broadcasts a native transfer using the exact gas
// parameters the caller obtained at estimation time. It is not retried on
// failure: resubmitting risks a double spend.
func (g *Gateway) SendNative(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, amount *big.Int, gasLimit uint64, gasPrice *big.Int) (common.Hash, error) {
	ctx, cancel := g.opCtx(ctx)
	defer cancel()

	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := g.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, rpcErr("nonce", err)
	}

	tx := types.NewTransaction(nonce, to, amount, gasLimit, gasPrice, nil)
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), key)
	if err != nil {
		return common.Hash{}, rpcErr("sign", err)
	}

	if err := g.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, rpcErr("broadcast", err)
	}

	logger.InfoCF("blockchain", "Native transfer broadcast", map[string]any{
		"from":    from.Hex(),
		"to":      to.Hex(),
		"amount":  amount.String(),
		"tx_hash": signedTx.Hash().Hex(),
	})

	return signedTx.Hash(), nil
}

// SendToken signs and broadcasts an ERC-20 transfer. Gas parameters are
// chosen internally; the fee comes out of the native balance.
func (g *Gateway) SendToken(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, amount *big.Int) (common.Hash, error) {
	ctx, cancel := g.opCtx(ctx)
	defer cancel()

	from := crypto.PubkeyToAddress(key.PublicKey)
	callData := transferCallData(to, amount)

	nonce, err := g.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, rpcErr("nonce", err)
	}

	gasPrice, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, rpcErr("gas_price", err)
	}

	gasLimit := defaultTokenGasLimit
	estimated, err := g.client.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &g.token,
		Data: callData,
	})
	if err != nil {
		logger.WarnCF("blockchain", "Gas estimation failed, using default", map[string]any{
			"error": err.Error(),
		})
	} else {
		gasLimit = estimated + tokenGasBuffer
	}

	tx := types.NewTransaction(nonce, g.token, big.NewInt(0), gasLimit, gasPrice, callData)
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), key)
	if err != nil {
		return common.Hash{}, rpcErr("sign", err)
	}

	if err := g.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, rpcErr("broadcast", err)
	}

	logger.InfoCF("blockchain", "Token transfer broadcast", map[string]any{
		"from":    from.Hex(),
		"to":      to.Hex(),
		"token":   g.token.Hex(),
		"amount":  amount.String(),
		"tx_hash": signedTx.Hash().Hex(),
	})

	return signedTx.Hash(), nil
}
