package exchange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/crossdex/crossdex/pkg/crypto"
)

// Intent is the inbound trade request envelope.
type Intent struct {
	Sig     string          `json:"sig"`
	Payload json.RawMessage `json:"payload"`
}

type intentPayload struct {
	SenderPK     string      `json:"sender_pk"`
	ReceiverPK   string      `json:"receiver_pk"`
	BuyCurrency  string      `json:"buy_currency"`
	SellCurrency string      `json:"sell_currency"`
	BuyAmount    json.Number `json:"buy_amount"`
	SellAmount   json.Number `json:"sell_amount"`
	Platform     Platform    `json:"platform"`
	TxID         string      `json:"tx_id"`
}

var payloadFields = []string{
	"sender_pk", "receiver_pk",
	"buy_currency", "sell_currency",
	"buy_amount", "sell_amount",
	"platform",
}

// ParseIntent validates the envelope and payload schema and converts the
// payload into an unadmitted Order. It also returns the canonical payload
// bytes the signature must cover. requireTxID is set in deposit-backed
// mode, where the funding transaction reference is mandatory.
func ParseIntent(raw []byte, requireTxID bool) (*Intent, *Order, []byte, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	for _, f := range []string{"sig", "payload"} {
		if _, ok := envelope[f]; !ok {
			return nil, nil, nil, fmt.Errorf("%w: missing field %q", ErrValidation, f)
		}
	}

	var in Intent
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(in.Payload, &fields); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: payload: %v", ErrValidation, err)
	}
	required := payloadFields
	if requireTxID {
		required = append(append([]string{}, payloadFields...), "tx_id")
	}
	for _, f := range required {
		if _, ok := fields[f]; !ok {
			return nil, nil, nil, fmt.Errorf("%w: payload missing field %q", ErrValidation, f)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(in.Payload))
	dec.UseNumber()
	var p intentPayload
	if err := dec.Decode(&p); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: payload: %v", ErrValidation, err)
	}

	buy, err := parseAmount(p.BuyAmount)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: buy_amount: %v", ErrValidation, err)
	}
	sell, err := parseAmount(p.SellAmount)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: sell_amount: %v", ErrValidation, err)
	}

	canonical, err := crypto.CanonicalJSON(in.Payload)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	order := &Order{
		SenderPK:     p.SenderPK,
		ReceiverPK:   p.ReceiverPK,
		BuyCurrency:  p.BuyCurrency,
		SellCurrency: p.SellCurrency,
		BuyAmount:    buy,
		SellAmount:   sell,
		Platform:     p.Platform,
		Signature:    in.Sig,
		TxID:         p.TxID,
	}
	return &in, order, canonical, nil
}

func parseAmount(n json.Number) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(n.String())
	if !ok {
		return nil, fmt.Errorf("not a number: %q", n.String())
	}
	if r.Sign() <= 0 {
		return nil, fmt.Errorf("must be positive, got %s", r.RatString())
	}
	return r, nil
}
