package api

// REST and WebSocket message types.

// OrderRecord is one order-book row. Amounts are exact ratio strings.
type OrderRecord struct {
	SenderPK     string `json:"sender_pk"`
	ReceiverPK   string `json:"receiver_pk"`
	BuyCurrency  string `json:"buy_currency"`
	SellCurrency string `json:"sell_currency"`
	BuyAmount    string `json:"buy_amount"`
	SellAmount   string `json:"sell_amount"`
	Signature    string `json:"signature"`
	TxID         string `json:"tx_id,omitempty"`
}

// OrderBookResponse is the full book dump returned by GET /order_book.
type OrderBookResponse struct {
	Data []OrderRecord `json:"data"`
}

// AddressRequest selects which platform's deposit address to return.
type AddressRequest struct {
	Platform string `json:"platform"`
}

// FillEvent is broadcast on the "fills" channel after settlement.
type FillEvent struct {
	Type         string `json:"type"`
	TakerID      uint64 `json:"taker_id"`
	MakerID      uint64 `json:"maker_id"`
	BuyCurrency  string `json:"buy_currency"`
	SellCurrency string `json:"sell_currency"`
	ReportID     string `json:"report_id"`
	Settled      int    `json:"settled"`
	Failed       int    `json:"failed"`
	Timestamp    int64  `json:"timestamp"`
}

// WSSubscribeRequest is the client -> server subscription message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
