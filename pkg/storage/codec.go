package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/crossdex/crossdex/pkg/exchange"
)

// Stored DTOs keep amounts as exact ratio strings ("3/2", "100"); parsing
// them back through big.Rat.SetString loses nothing.

type storedOrder struct {
	ID           uint64     `json:"id"`
	SenderPK     string     `json:"sender_pk"`
	ReceiverPK   string     `json:"receiver_pk"`
	BuyCurrency  string     `json:"buy_currency"`
	SellCurrency string     `json:"sell_currency"`
	BuyAmount    string     `json:"buy_amount"`
	SellAmount   string     `json:"sell_amount"`
	Platform     string     `json:"platform"`
	Signature    string     `json:"signature"`
	TxID         string     `json:"tx_id,omitempty"`
	CreatorID    uint64     `json:"creator_id,omitempty"`
	FilledAt     *time.Time `json:"filled_at,omitempty"`
	Counterparty uint64     `json:"counterparty_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func encodeOrder(o *exchange.Order) ([]byte, error) {
	so := storedOrder{
		ID:           o.ID,
		SenderPK:     o.SenderPK,
		ReceiverPK:   o.ReceiverPK,
		BuyCurrency:  o.BuyCurrency,
		SellCurrency: o.SellCurrency,
		BuyAmount:    o.BuyAmount.RatString(),
		SellAmount:   o.SellAmount.RatString(),
		Platform:     string(o.Platform),
		Signature:    o.Signature,
		TxID:         o.TxID,
		CreatorID:    o.CreatorID,
		CreatedAt:    o.CreatedAt,
	}
	if o.Fill != nil {
		at := o.Fill.At
		so.FilledAt = &at
		so.Counterparty = o.Fill.CounterpartyID
	}
	return json.Marshal(so)
}

func decodeOrder(data []byte) (*exchange.Order, error) {
	var so storedOrder
	if err := json.Unmarshal(data, &so); err != nil {
		return nil, err
	}

	buy, err := parseRat(so.BuyAmount)
	if err != nil {
		return nil, fmt.Errorf("order %d buy_amount: %w", so.ID, err)
	}
	sell, err := parseRat(so.SellAmount)
	if err != nil {
		return nil, fmt.Errorf("order %d sell_amount: %w", so.ID, err)
	}

	o := &exchange.Order{
		ID:           so.ID,
		SenderPK:     so.SenderPK,
		ReceiverPK:   so.ReceiverPK,
		BuyCurrency:  so.BuyCurrency,
		SellCurrency: so.SellCurrency,
		BuyAmount:    buy,
		SellAmount:   sell,
		Platform:     exchange.Platform(so.Platform),
		Signature:    so.Signature,
		TxID:         so.TxID,
		CreatorID:    so.CreatorID,
		CreatedAt:    so.CreatedAt,
	}
	if so.FilledAt != nil {
		o.Fill = &exchange.Fill{At: *so.FilledAt, CounterpartyID: so.Counterparty}
	}
	return o, nil
}

func parseRat(s string) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	return r, nil
}

func idKey(prefix string, id uint64) []byte {
	k := make([]byte, len(prefix), len(prefix)+8)
	copy(k, prefix)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return append(k, b[:]...)
}
