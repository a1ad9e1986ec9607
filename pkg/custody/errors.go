package custody

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrNoWallet is returned when an operation requires an account the user
	// does not have.
	ErrNoWallet = errors.New("no wallet for user")

	// ErrNoPendingTransaction is returned by confirm/cancel with nothing
	// pending.
	ErrNoPendingTransaction = errors.New("no pending transaction")

	// ErrTransferPending is returned when a new transfer intent arrives while
	// one is already awaiting confirmation. The user must confirm or cancel
	// first; pending transfers are never silently overwritten.
	ErrTransferPending = errors.New("a transfer is already pending confirmation")

	// ErrInvalidAmount is returned when an amount string cannot be parsed as
	// a plain decimal number for the asset.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidAddress is returned when a destination is not a valid hex
	// address.
	ErrInvalidAddress = errors.New("invalid destination address")
)

// InsufficientFundsError carries the shortfall figures so the transport can
// show the user both what they asked for and what they have. GasCost is nil
// for the amount-only variant.
type InsufficientFundsError struct {
	Symbol    string
	Decimals  uint8
	Requested *big.Int
	Available *big.Int
	GasCost   *big.Int
}

func (e *InsufficientFundsError) Error() string {
	if e.GasCost == nil {
		return fmt.Sprintf("insufficient funds: requested %s %s, available %s %s",
			FormatUnits(e.Requested, e.Decimals), e.Symbol,
			FormatUnits(e.Available, e.Decimals), e.Symbol)
	}
	total := new(big.Int).Add(e.Requested, e.GasCost)
	return fmt.Sprintf("insufficient funds for amount plus gas: need %s %s (%s %s + %s %s gas), available %s %s",
		FormatUnits(total, e.Decimals), e.Symbol,
		FormatUnits(e.Requested, e.Decimals), e.Symbol,
		FormatUnits(e.GasCost, e.Decimals), e.Symbol,
		FormatUnits(e.Available, e.Decimals), e.Symbol)
}

// IncludesGas reports whether this is the amount+gas variant.
func (e *InsufficientFundsError) IncludesGas() bool { return e.GasCost != nil }

// TransferFailedError wraps a broadcast that was attempted but rejected or
// erred. There is no retry path: the user must re-initiate the transfer.
type TransferFailedError struct {
	Err error
}

func (e *TransferFailedError) Error() string {
	return fmt.Sprintf("transfer failed: %v", e.Err)
}

func (e *TransferFailedError) Unwrap() error { return e.Err }
