// Package chain provides the narrow transfer contract the settlement
// pipeline depends on, with one adapter per supported platform. Adapters
// are long-lived: they are constructed once at process start and injected,
// reconnect/retry policy lives inside them rather than in request state.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// ErrUnavailable marks a transient RPC failure. Callers treat it as
// retryable; it never implies any partial on-chain state change.
var ErrUnavailable = errors.New("chain rpc unavailable")

// Payment is one observed inbound transfer.
type Payment struct {
	Amount *big.Rat
	TxID   string
	From   string
}

// PaymentQuery narrows a payment-history lookup. Adapters use the fields
// their platform supports: Algorand filters by address and asset id,
// Ethereum resolves the claimed funding transaction hash.
type PaymentQuery struct {
	Address string
	Asset   string
	TxID    string
}

// Adapter is the per-platform "send value / query payments" contract.
// Both operations respect the context deadline; a timeout is a failure.
type Adapter interface {
	// Platform names the chain this adapter serves.
	Platform() string

	// Address returns the hot-wallet address depositors should fund.
	Address() string

	// Send transfers amount (in the chain's base units) from the hot
	// wallet to recipient and returns the chain transaction id. An error
	// means the transfer was not confirmed sent; no receipt may be
	// recorded for it.
	Send(ctx context.Context, recipient string, amount *big.Rat) (string, error)

	// Payments returns observed transfers matching the query.
	Payments(ctx context.Context, q PaymentQuery) ([]Payment, error)
}

// baseUnits converts an exact rational amount to integer base units, or
// fails if the amount is fractional: chains cannot move half a unit, and
// silently rounding would break amount conservation.
func baseUnits(amount *big.Rat) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if !amount.IsInt() {
		return nil, fmt.Errorf("amount %s is not a whole number of base units", amount.RatString())
	}
	return new(big.Int).Set(amount.Num()), nil
}
