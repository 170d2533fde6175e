package exchange

import "errors"

var (
	// ErrValidation marks malformed or missing intent fields. Terminal for
	// the intent; no order is created.
	ErrValidation = errors.New("invalid intent")

	// ErrAuthentication marks a failed signature check or an unsupported
	// platform. Terminal; the offending payload is audited.
	ErrAuthentication = errors.New("signature verification failed")

	// ErrDepositUnconfirmed marks a deposit-backed order with no matching
	// observed on-chain payment. Expected outcome, not an anomaly.
	ErrDepositUnconfirmed = errors.New("deposit not confirmed on chain")

	// ErrAlreadyFilled is returned by MarkFilled to the loser of a
	// concurrent matching race. Recovered internally, never surfaced.
	ErrAlreadyFilled = errors.New("order already filled")

	// ErrChainAdapter marks a transient failure talking to a chain RPC.
	// Retryable by the caller; order and receipt state stay intact.
	ErrChainAdapter = errors.New("chain adapter unavailable")

	// ErrUnknownOrder is returned for order ids not present in the store.
	ErrUnknownOrder = errors.New("unknown order")
)
