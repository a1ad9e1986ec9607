// Package custody composes the vault, wallet store, pending ledger and chain
// gateway into the confirm/cancel transfer state machine. All cross-cutting
// invariants live here: per-user mutual exclusion, gas-aware sufficiency
// checks, exact unit arithmetic and error translation.
package custody

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/errgroup"

	"github.com/mantlegpt/mantlebot/pkg/blockchain"
	"github.com/mantlegpt/mantlebot/pkg/logger"
	"github.com/mantlegpt/mantlebot/pkg/pending"
	"github.com/mantlegpt/mantlebot/pkg/vault"
	"github.com/mantlegpt/mantlebot/pkg/wallet"
)

// Gateway is the ledger-facing surface the orchestrator needs. Satisfied by
// *blockchain.Gateway; tests substitute a scripted fake.
type Gateway interface {
	NativeBalance(ctx context.Context, address common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, address common.Address) (*big.Int, error)
	TokenDecimals(ctx context.Context) (uint8, error)
	EstimateTransferCost(ctx context.Context, from, to common.Address, amount *big.Int) (blockchain.FeeEstimate, error)
	EstimateTokenTransferCost(ctx context.Context, from, to common.Address, amount *big.Int) (blockchain.FeeEstimate, error)
	SendNative(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, amount *big.Int, gasLimit uint64, gasPrice *big.Int) (common.Hash, error)
	SendToken(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, amount *big.Int) (common.Hash, error)
}

// AssetAmount is a smallest-unit balance plus what is needed to render it.
type AssetAmount struct {
	Amount   *big.Int
	Decimals uint8
	Symbol   string
}

// Format renders the amount as an exact decimal string.
func (a AssetAmount) Format() string {
	return FormatUnits(a.Amount, a.Decimals)
}

// Balances holds both asset balances for a user.
type Balances struct {
	Native AssetAmount
	Token  AssetAmount
}

// Receipt describes a broadcast transfer.
type Receipt struct {
	Hash   common.Hash
	Amount string
	Symbol string
	Asset  blockchain.Asset
	To     common.Address
}

// Service is the transaction orchestrator. It never mutates store or ledger
// state directly beyond their public operations, and serializes everything per
// user so concurrent messages cannot partially interleave.
type Service struct {
	store   *wallet.Store
	ledger  *pending.Ledger
	gateway Gateway
	vault   *vault.Vault

	nativeSymbol string
	tokenSymbol  string

	mu        sync.Mutex
	userLocks map[int64]*sync.Mutex
}

func NewService(store *wallet.Store, ledger *pending.Ledger, gateway Gateway, v *vault.Vault, nativeSymbol, tokenSymbol string) *Service {
	return &Service{
		store:        store,
		ledger:       ledger,
		gateway:      gateway,
		vault:        v,
		nativeSymbol: nativeSymbol,
		tokenSymbol:  tokenSymbol,
		userLocks:    make(map[int64]*sync.Mutex),
	}
}

// userLock returns the mutex serializing all mutations for one user.
func (s *Service) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	return l
}

// NativeSymbol returns the display symbol of the base coin.
func (s *Service) NativeSymbol() string { return s.nativeSymbol }

// TokenSymbol returns the display symbol of the supported token.
func (s *Service) TokenSymbol() string { return s.tokenSymbol }

// CreateWallet generates a fresh custodial account for the user, replacing
// any existing one.
func (s *Service) CreateWallet(userID int64) (common.Address, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	return s.store.Create(userID)
}

// ConnectWallet imports externally supplied key material for the user,
// replacing any existing account.
func (s *Service) ConnectWallet(userID int64, rawKey string) (common.Address, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	return s.store.Connect(userID, rawKey)
}

// GetAddress returns the user's address without touching the network.
func (s *Service) GetAddress(userID int64) (common.Address, error) {
	acct, ok := s.store.Get(userID)
	if !ok {
		return common.Address{}, ErrNoWallet
	}
	return acct.Address, nil
}

// GetBalances fetches both asset balances concurrently.
func (s *Service) GetBalances(ctx context.Context, userID int64) (Balances, error) {
	acct, ok := s.store.Get(userID)
	if !ok {
		return Balances{}, ErrNoWallet
	}

	var balances Balances
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		native, err := s.gateway.NativeBalance(gctx, acct.Address)
		if err != nil {
			return err
		}
		balances.Native = AssetAmount{Amount: native, Decimals: blockchain.NativeDecimals, Symbol: s.nativeSymbol}
		return nil
	})
	g.Go(func() error {
		token, err := s.gateway.TokenBalance(gctx, acct.Address)
		if err != nil {
			return err
		}
		decimals, err := s.gateway.TokenDecimals(gctx)
		if err != nil {
			return err
		}
		balances.Token = AssetAmount{Amount: token, Decimals: decimals, Symbol: s.tokenSymbol}
		return nil
	})

	if err := g.Wait(); err != nil {
		return Balances{}, err
	}
	return balances, nil
}

// SubmitTransferIntent records a resolved transfer intent as the user's
// pending transaction. A user with a transfer already awaiting confirmation
// must confirm or cancel it first; nothing is silently overwritten.
func (s *Service) SubmitTransferIntent(userID int64, amount string, asset blockchain.Asset, to string) (pending.Transfer, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if _, exists := s.ledger.Peek(userID); exists {
		return pending.Transfer{}, ErrTransferPending
	}

	if !common.IsHexAddress(to) {
		return pending.Transfer{}, fmt.Errorf("%w: %q", ErrInvalidAddress, to)
	}

	// Syntactic validation only; the token's decimal count is applied at
	// confirm time once fetched from the ledger.
	if _, err := ParseUnits(amount, blockchain.NativeDecimals); err != nil {
		return pending.Transfer{}, err
	}

	transfer := pending.Transfer{
		UserID:    userID,
		Amount:    amount,
		Asset:     asset,
		To:        common.HexToAddress(to),
		CreatedAt: time.Now(),
	}
	s.ledger.Put(transfer)

	logger.InfoCF("custody", "Transfer pending confirmation", map[string]any{
		"user_id": userID,
		"amount":  amount,
		"asset":   string(asset),
		"to":      transfer.To.Hex(),
	})

	return transfer, nil
}

// PeekPending returns the user's pending transfer without consuming it.
func (s *Service) PeekPending(userID int64) (pending.Transfer, bool) {
	return s.ledger.Peek(userID)
}

// CancelPending drops the user's pending transfer.
func (s *Service) CancelPending(userID int64) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if !s.ledger.Remove(userID) {
		return ErrNoPendingTransaction
	}

	logger.InfoCF("custody", "Transfer cancelled", map[string]any{"user_id": userID})
	return nil
}

// ConfirmPending broadcasts the user's pending transfer. The entry is
// consumed atomically before any network work, under the same per-user lock
// the rest of the state machine uses, so two racing confirms produce exactly
// one broadcast. Success and failure both leave the entry consumed; a failed
// send must be re-initiated, never retried.
func (s *Service) ConfirmPending(ctx context.Context, userID int64) (Receipt, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	transfer, ok := s.ledger.Take(userID)
	if !ok {
		return Receipt{}, ErrNoPendingTransaction
	}

	acct, hasWallet := s.store.Get(userID)
	if !hasWallet {
		return Receipt{}, ErrNoWallet
	}

	var (
		receipt Receipt
		err     error
	)
	if transfer.Asset == blockchain.AssetToken {
		receipt, err = s.confirmToken(ctx, acct, transfer)
	} else {
		receipt, err = s.confirmNative(ctx, acct, transfer)
	}
	if err != nil {
		logger.WarnCF("custody", "Transfer confirmation failed", map[string]any{
			"user_id": userID,
			"asset":   string(transfer.Asset),
			"error":   err.Error(),
		})
		return Receipt{}, err
	}

	logger.InfoCF("custody", "Transfer confirmed", map[string]any{
		"user_id": userID,
		"asset":   string(transfer.Asset),
		"tx_hash": receipt.Hash.Hex(),
	})
	return receipt, nil
}

func (s *Service) confirmNative(ctx context.Context, acct wallet.Account, transfer pending.Transfer) (Receipt, error) {
	amount, err := ParseUnits(transfer.Amount, blockchain.NativeDecimals)
	if err != nil {
		return Receipt{}, err
	}

	balance, err := s.gateway.NativeBalance(ctx, acct.Address)
	if err != nil {
		return Receipt{}, err
	}

	// Fast pure-amount rejection before spending an estimation call.
	if amount.Cmp(balance) > 0 {
		return Receipt{}, &InsufficientFundsError{
			Symbol:    s.nativeSymbol,
			Decimals:  blockchain.NativeDecimals,
			Requested: amount,
			Available: balance,
		}
	}

	est, err := s.gateway.EstimateTransferCost(ctx, acct.Address, transfer.To, amount)
	if err != nil {
		return Receipt{}, &TransferFailedError{Err: err}
	}

	gasCost := est.Cost()
	total := new(big.Int).Add(amount, gasCost)
	if balance.Cmp(total) < 0 {
		return Receipt{}, &InsufficientFundsError{
			Symbol:    s.nativeSymbol,
			Decimals:  blockchain.NativeDecimals,
			Requested: amount,
			Available: balance,
			GasCost:   gasCost,
		}
	}

	key, err := s.signingKey(acct)
	if err != nil {
		return Receipt{}, &TransferFailedError{Err: err}
	}

	hash, err := s.gateway.SendNative(ctx, key, transfer.To, amount, est.GasLimit, est.GasPrice)
	if err != nil {
		return Receipt{}, &TransferFailedError{Err: err}
	}

	return Receipt{
		Hash:   hash,
		Amount: FormatUnits(amount, blockchain.NativeDecimals),
		Symbol: s.nativeSymbol,
		Asset:  blockchain.AssetNative,
		To:     transfer.To,
	}, nil
}

func (s *Service) confirmToken(ctx context.Context, acct wallet.Account, transfer pending.Transfer) (Receipt, error) {
	decimals, err := s.gateway.TokenDecimals(ctx)
	if err != nil {
		return Receipt{}, err
	}

	amount, err := ParseUnits(transfer.Amount, decimals)
	if err != nil {
		return Receipt{}, err
	}

	tokenBalance, err := s.gateway.TokenBalance(ctx, acct.Address)
	if err != nil {
		return Receipt{}, err
	}

	if amount.Cmp(tokenBalance) > 0 {
		return Receipt{}, &InsufficientFundsError{
			Symbol:    s.tokenSymbol,
			Decimals:  decimals,
			Requested: amount,
			Available: tokenBalance,
		}
	}

	// Gas for a token transfer is paid in the native asset; check that the
	// native balance can cover the fee before broadcasting.
	est, err := s.gateway.EstimateTokenTransferCost(ctx, acct.Address, transfer.To, amount)
	if err != nil {
		return Receipt{}, &TransferFailedError{Err: err}
	}
	nativeBalance, err := s.gateway.NativeBalance(ctx, acct.Address)
	if err != nil {
		return Receipt{}, &TransferFailedError{Err: err}
	}
	gasCost := est.Cost()
	if nativeBalance.Cmp(gasCost) < 0 {
		return Receipt{}, &InsufficientFundsError{
			Symbol:    s.nativeSymbol,
			Decimals:  blockchain.NativeDecimals,
			Requested: big.NewInt(0),
			Available: nativeBalance,
			GasCost:   gasCost,
		}
	}

	key, err := s.signingKey(acct)
	if err != nil {
		return Receipt{}, &TransferFailedError{Err: err}
	}

	hash, err := s.gateway.SendToken(ctx, key, transfer.To, amount)
	if err != nil {
		return Receipt{}, &TransferFailedError{Err: err}
	}

	return Receipt{
		Hash:   hash,
		Amount: FormatUnits(amount, decimals),
		Symbol: s.tokenSymbol,
		Asset:  blockchain.AssetToken,
		To:     transfer.To,
	}, nil
}

// signingKey unlocks the account's private key. The decrypted bytes are wiped
// once the ecdsa key is built; they must never reach a log or error message.
func (s *Service) signingKey(acct wallet.Account) (*ecdsa.PrivateKey, error) {
	raw, err := s.vault.Decrypt(acct.Key)
	if err != nil {
		return nil, err
	}
	defer clear(raw)

	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("stored key material is corrupt")
	}
	return key, nil
}
