package custody

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/mantlegpt/mantlebot/pkg/blockchain"
	"github.com/mantlegpt/mantlebot/pkg/pending"
	"github.com/mantlegpt/mantlebot/pkg/vault"
	"github.com/mantlegpt/mantlebot/pkg/wallet"
)

var (
	testTo   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testHash = common.HexToHash("0xabc0000000000000000000000000000000000000000000000000000000000001")
)

// mnt converts a decimal string to wei for test setup.
func mnt(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := ParseUnits(s, 18)
	require.NoError(t, err)
	return v
}

// fakeGateway scripts chain responses and counts broadcasts.
type fakeGateway struct {
	mu sync.Mutex

	nativeBalance *big.Int
	tokenBalance  *big.Int
	decimals      uint8
	fee           blockchain.FeeEstimate
	tokenFee      blockchain.FeeEstimate
	sendErr       error
	sendDelay     time.Duration

	estimateCalls    int
	nativeBroadcasts int
	tokenBroadcasts  int
	sentNative       []*big.Int
	sentToken        []*big.Int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		nativeBalance: big.NewInt(0),
		tokenBalance:  big.NewInt(0),
		decimals:      6,
		fee:           blockchain.FeeEstimate{GasLimit: 1000, GasPrice: big.NewInt(1_000_000_000_000)}, // 0.001 native
		tokenFee:      blockchain.FeeEstimate{GasLimit: 1000, GasPrice: big.NewInt(1_000_000_000_000)},
	}
}

func (f *fakeGateway) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.nativeBalance), nil
}

func (f *fakeGateway) TokenBalance(context.Context, common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.tokenBalance), nil
}

func (f *fakeGateway) TokenDecimals(context.Context) (uint8, error) {
	return f.decimals, nil
}

func (f *fakeGateway) EstimateTransferCost(context.Context, common.Address, common.Address, *big.Int) (blockchain.FeeEstimate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimateCalls++
	return f.fee, nil
}

func (f *fakeGateway) EstimateTokenTransferCost(context.Context, common.Address, common.Address, *big.Int) (blockchain.FeeEstimate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimateCalls++
	return f.tokenFee, nil
}

func (f *fakeGateway) SendNative(_ context.Context, _ *ecdsa.PrivateKey, _ common.Address, amount *big.Int, _ uint64, _ *big.Int) (common.Hash, error) {
	time.Sleep(f.sendDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.nativeBroadcasts++
	f.sentNative = append(f.sentNative, new(big.Int).Set(amount))
	return testHash, nil
}

func (f *fakeGateway) SendToken(_ context.Context, _ *ecdsa.PrivateKey, _ common.Address, amount *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.tokenBroadcasts++
	f.sentToken = append(f.sentToken, new(big.Int).Set(amount))
	return testHash, nil
}

func newTestService(t *testing.T, gw Gateway) *Service {
	t.Helper()
	v, err := vault.New("101112131415161718191a1b1c1d1e1f202122232425262728292a2b2c2d2e2f")
	require.NoError(t, err)
	store := wallet.NewStore(v)
	ledger := pending.NewLedger(5*time.Minute, time.Minute)
	return NewService(store, ledger, gw, v, "MNT", "USDT")
}

func submitNative(t *testing.T, s *Service, userID int64, amount string) {
	t.Helper()
	_, err := s.SubmitTransferIntent(userID, amount, blockchain.AssetNative, testTo.Hex())
	require.NoError(t, err)
}

func TestGetBalancesNoWallet(t *testing.T) {
	s := newTestService(t, newFakeGateway())
	_, err := s.GetBalances(context.Background(), 1)
	require.ErrorIs(t, err, ErrNoWallet)
}

func TestGetBalances(t *testing.T) {
	gw := newFakeGateway()
	gw.nativeBalance = mnt(t, "2.5")
	gw.tokenBalance = big.NewInt(1_500_000)

	s := newTestService(t, gw)
	_, err := s.CreateWallet(1)
	require.NoError(t, err)

	balances, err := s.GetBalances(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "2.5", balances.Native.Format())
	require.Equal(t, "1.5", balances.Token.Format())
	require.Equal(t, "MNT", balances.Native.Symbol)
	require.Equal(t, "USDT", balances.Token.Symbol)
}

func TestGetAddress(t *testing.T) {
	s := newTestService(t, newFakeGateway())

	_, err := s.GetAddress(5)
	require.ErrorIs(t, err, ErrNoWallet)

	created, err := s.CreateWallet(5)
	require.NoError(t, err)

	addr, err := s.GetAddress(5)
	require.NoError(t, err)
	require.Equal(t, created, addr)
}

func TestCancelNoPending(t *testing.T) {
	s := newTestService(t, newFakeGateway())
	require.ErrorIs(t, s.CancelPending(1), ErrNoPendingTransaction)
}

func TestConfirmNoPending(t *testing.T) {
	s := newTestService(t, newFakeGateway())
	_, err := s.ConfirmPending(context.Background(), 1)
	require.ErrorIs(t, err, ErrNoPendingTransaction)
}

func TestSubmitValidatesInput(t *testing.T) {
	s := newTestService(t, newFakeGateway())

	_, err := s.SubmitTransferIntent(1, "5", blockchain.AssetNative, "not-an-address")
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, err = s.SubmitTransferIntent(1, "five", blockchain.AssetNative, testTo.Hex())
	require.ErrorIs(t, err, ErrInvalidAmount)

	// Neither attempt may leave a pending entry behind.
	_, exists := s.PeekPending(1)
	require.False(t, exists)
}

func TestSubmitRejectsWhilePending(t *testing.T) {
	s := newTestService(t, newFakeGateway())
	submitNative(t, s, 1, "1.0")

	_, err := s.SubmitTransferIntent(1, "2.0", blockchain.AssetNative, testTo.Hex())
	require.ErrorIs(t, err, ErrTransferPending)

	// The original intent is untouched.
	got, exists := s.PeekPending(1)
	require.True(t, exists)
	require.Equal(t, "1.0", got.Amount)
}

func TestCancelConsumesPending(t *testing.T) {
	s := newTestService(t, newFakeGateway())
	submitNative(t, s, 1, "1.0")

	require.NoError(t, s.CancelPending(1))
	require.ErrorIs(t, s.CancelPending(1), ErrNoPendingTransaction)
}

func TestConfirmNativeSuccess(t *testing.T) {
	gw := newFakeGateway()
	gw.nativeBalance = mnt(t, "10.0") // transfer 5.0 + 0.001 gas fits

	s := newTestService(t, gw)
	_, err := s.CreateWallet(1)
	require.NoError(t, err)
	submitNative(t, s, 1, "5.0")

	receipt, err := s.ConfirmPending(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, testHash, receipt.Hash)
	require.Equal(t, "5", receipt.Amount)
	require.Equal(t, "MNT", receipt.Symbol)

	require.Equal(t, 1, gw.nativeBroadcasts)
	require.Equal(t, 0, mnt(t, "5.0").Cmp(gw.sentNative[0]))

	// Entry consumed by success.
	_, exists := s.PeekPending(1)
	require.False(t, exists)
}

func TestConfirmNativeExactTotalSucceeds(t *testing.T) {
	gw := newFakeGateway()
	gw.nativeBalance = mnt(t, "5.001") // amount + gas exactly

	s := newTestService(t, gw)
	_, err := s.CreateWallet(1)
	require.NoError(t, err)
	submitNative(t, s, 1, "5.0")

	_, err = s.ConfirmPending(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, gw.nativeBroadcasts)
}

func TestConfirmNativeAmountPlusGasInsufficient(t *testing.T) {
	gw := newFakeGateway()
	gw.nativeBalance = mnt(t, "5.0") // covers the amount but not the gas

	s := newTestService(t, gw)
	_, err := s.CreateWallet(1)
	require.NoError(t, err)
	submitNative(t, s, 1, "5.0")

	_, err = s.ConfirmPending(context.Background(), 1)

	var insufficient *InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.IncludesGas())
	require.Equal(t, 0, gw.nativeBroadcasts)

	// Failure consumed the entry too; only a new intent can retry.
	_, confirmErr := s.ConfirmPending(context.Background(), 1)
	require.ErrorIs(t, confirmErr, ErrNoPendingTransaction)
}

func TestConfirmNativeAmountOnlyInsufficient(t *testing.T) {
	gw := newFakeGateway()
	gw.nativeBalance = mnt(t, "1.0")

	s := newTestService(t, gw)
	_, err := s.CreateWallet(1)
	require.NoError(t, err)
	submitNative(t, s, 1, "5.0")

	_, err = s.ConfirmPending(context.Background(), 1)

	var insufficient *InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	require.False(t, insufficient.IncludesGas())
	require.Equal(t, 0, insufficient.Requested.Cmp(mnt(t, "5.0")))
	require.Equal(t, 0, insufficient.Available.Cmp(mnt(t, "1.0")))

	// The fast rejection happens before any estimation call.
	require.Equal(t, 0, gw.estimateCalls)
}

func TestConcurrentConfirmSingleBroadcast(t *testing.T) {
	gw := newFakeGateway()
	gw.nativeBalance = mnt(t, "10.0")
	gw.sendDelay = 20 * time.Millisecond

	s := newTestService(t, gw)
	_, err := s.CreateWallet(1)
	require.NoError(t, err)
	submitNative(t, s, 1, "5.0")

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.ConfirmPending(context.Background(), 1)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrNoPendingTransaction)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, gw.nativeBroadcasts)
}

func TestConfirmTokenExactConversion(t *testing.T) {
	gw := newFakeGateway()
	gw.decimals = 6
	gw.tokenBalance = big.NewInt(2_000_000)
	gw.nativeBalance = mnt(t, "1.0") // plenty for gas

	s := newTestService(t, gw)
	_, err := s.CreateWallet(1)
	require.NoError(t, err)
	_, err = s.SubmitTransferIntent(1, "1.5", blockchain.AssetToken, testTo.Hex())
	require.NoError(t, err)

	receipt, err := s.ConfirmPending(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "1.5", receipt.Amount)
	require.Equal(t, "USDT", receipt.Symbol)

	require.Equal(t, 1, gw.tokenBroadcasts)
	require.Equal(t, int64(1_500_000), gw.sentToken[0].Int64())
}

func TestConfirmTokenInsufficientBalance(t *testing.T) {
	gw := newFakeGateway()
	gw.decimals = 6
	gw.tokenBalance = big.NewInt(1_000_000)
	gw.nativeBalance = mnt(t, "1.0")

	s := newTestService(t, gw)
	_, err := s.CreateWallet(1)
	require.NoError(t, err)
	_, err = s.SubmitTransferIntent(1, "1.5", blockchain.AssetToken, testTo.Hex())
	require.NoError(t, err)

	_, err = s.ConfirmPending(context.Background(), 1)

	var insufficient *InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	require.False(t, insufficient.IncludesGas())
	require.Equal(t, "USDT", insufficient.Symbol)
	require.Equal(t, 0, gw.tokenBroadcasts)
}

func TestConfirmTokenInsufficientNativeForGas(t *testing.T) {
	gw := newFakeGateway()
	gw.decimals = 6
	gw.tokenBalance = big.NewInt(2_000_000)
	gw.nativeBalance = big.NewInt(0) // cannot pay the fee

	s := newTestService(t, gw)
	_, err := s.CreateWallet(1)
	require.NoError(t, err)
	_, err = s.SubmitTransferIntent(1, "1.5", blockchain.AssetToken, testTo.Hex())
	require.NoError(t, err)

	_, err = s.ConfirmPending(context.Background(), 1)

	var insufficient *InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.IncludesGas())
	require.Equal(t, "MNT", insufficient.Symbol)
	require.Equal(t, 0, gw.tokenBroadcasts)
}

func TestConfirmBroadcastFailureConsumesEntry(t *testing.T) {
	gw := newFakeGateway()
	gw.nativeBalance = mnt(t, "10.0")
	gw.sendErr = errors.New("nonce too low")

	s := newTestService(t, gw)
	_, err := s.CreateWallet(1)
	require.NoError(t, err)
	submitNative(t, s, 1, "5.0")

	_, err = s.ConfirmPending(context.Background(), 1)

	var failed *TransferFailedError
	require.ErrorAs(t, err, &failed)
	require.ErrorIs(t, err, gw.sendErr)

	_, exists := s.PeekPending(1)
	require.False(t, exists)
}

func TestConfirmWithoutWallet(t *testing.T) {
	s := newTestService(t, newFakeGateway())
	submitNative(t, s, 1, "5.0")

	_, err := s.ConfirmPending(context.Background(), 1)
	require.ErrorIs(t, err, ErrNoWallet)
}

func TestCreateWalletReplacesAccount(t *testing.T) {
	s := newTestService(t, newFakeGateway())

	first, err := s.CreateWallet(1)
	require.NoError(t, err)
	second, err := s.CreateWallet(1)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	addr, err := s.GetAddress(1)
	require.NoError(t, err)
	require.Equal(t, second, addr)
}
