package exchange

import (
	"encoding/json"
	"math/big"
	"time"
)

// Platform identifies which chain an order's sell side settles on.
type Platform string

const (
	PlatformEthereum Platform = "Ethereum"
	PlatformAlgorand Platform = "Algorand"
)

func (p Platform) Valid() bool {
	return p == PlatformEthereum || p == PlatformAlgorand
}

// Fill records the terminal state of a matched order. It is set exactly
// once, together with the counterparty link, through OrderStore.MarkFilled.
type Fill struct {
	At             time.Time
	CounterpartyID uint64
}

// Order is a resting or filled entry in the book. Amounts are exact
// rationals: ratio comparisons in the matching predicate and remainder
// arithmetic on splits must not drift, so floats are never used.
type Order struct {
	ID         uint64
	SenderPK   string
	ReceiverPK string

	BuyCurrency  string
	SellCurrency string
	BuyAmount    *big.Rat
	SellAmount   *big.Rat

	Platform  Platform
	Signature string
	TxID      string // on-chain payment funding the sell side, if deposit-backed

	// CreatorID links a child order to the partially filled order it was
	// split from; zero for originally submitted orders.
	CreatorID uint64

	// Fill is nil while the order rests unfilled.
	Fill *Fill

	CreatedAt time.Time
}

// Filled reports whether the order has been matched.
func (o *Order) Filled() bool { return o.Fill != nil }

// Clone returns a deep copy safe to hand outside the store's locks.
func (o *Order) Clone() *Order {
	c := *o
	c.BuyAmount = new(big.Rat).Set(o.BuyAmount)
	c.SellAmount = new(big.Rat).Set(o.SellAmount)
	if o.Fill != nil {
		f := *o.Fill
		c.Fill = &f
	}
	return &c
}

// Receipt is the immutable record of one executed transfer. A receipt
// exists if and only if the chain adapter confirmed the send.
type Receipt struct {
	OrderID    uint64
	TxID       string
	Platform   Platform
	ReceiverPK string
	CreatedAt  time.Time
}

// AuditEntry is an append-only snapshot of a rejected intent.
type AuditEntry struct {
	Seq     uint64
	At      time.Time
	Reason  string
	Payload json.RawMessage
}

// MatchedPair is one fill event: the incoming (taker) order and the
// resting (maker) order it crossed, snapshotted after MarkFilled.
type MatchedPair struct {
	Taker *Order
	Maker *Order
}

// Persistence is the durable backing of the order store and audit log.
// The store owns all invariants; the persistence layer only keeps bytes.
type Persistence interface {
	PutOrder(o *Order) error
	Orders() ([]*Order, error)
	PutReceipt(r *Receipt) error
	Receipts() ([]*Receipt, error)
	AppendAudit(e *AuditEntry) error
	AuditEntries() ([]*AuditEntry, error)
}
