package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crossdex/crossdex/pkg/api"
	"github.com/crossdex/crossdex/pkg/chain"
	"github.com/crossdex/crossdex/pkg/crypto"
	"github.com/crossdex/crossdex/pkg/exchange"
	"github.com/crossdex/crossdex/pkg/storage"
)

// stubAdapter satisfies chain.Adapter without any RPC backend.
type stubAdapter struct {
	platform string
	addr     string
}

func (a *stubAdapter) Platform() string { return a.platform }
func (a *stubAdapter) Address() string  { return a.addr }

func (a *stubAdapter) Send(context.Context, string, *big.Rat) (string, error) {
	return a.platform + "-tx", nil
}

func (a *stubAdapter) Payments(context.Context, chain.PaymentQuery) ([]chain.Payment, error) {
	return nil, nil
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	log := zap.NewNop().Sugar()

	db, err := storage.NewPebbleStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := exchange.NewOrderStore(db, log)
	require.NoError(t, err)
	audit, err := exchange.NewAuditLog(db, log)
	require.NoError(t, err)

	adapters := map[exchange.Platform]chain.Adapter{
		exchange.PlatformEthereum: &stubAdapter{platform: "Ethereum", addr: "0xHOT"},
		exchange.PlatformAlgorand: &stubAdapter{platform: "Algorand", addr: "ALGOHOT"},
	}
	settler := exchange.NewSettler(store, adapters, time.Second, log)
	matcher := exchange.NewMatcher(store, log)
	ex := exchange.New(store, matcher, settler, audit, false, log)

	srv := api.NewServer(ex, map[string]chain.Adapter{
		"Ethereum": adapters[exchange.PlatformEthereum],
		"Algorand": adapters[exchange.PlatformAlgorand],
	}, log)
	return srv.Handler()
}

// signedTradeBody builds a /trade request body signed with a fresh
// Ethereum key.
func signedTradeBody(t *testing.T, buyCur, sellCur, buy, sell string) []byte {
	t.Helper()

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	addr := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	payload, err := json.Marshal(map[string]interface{}{
		"sender_pk":     addr,
		"receiver_pk":   "0x000000000000000000000000000000000000dEaD",
		"buy_currency":  buyCur,
		"sell_currency": sellCur,
		"buy_amount":    json.Number(buy),
		"sell_amount":   json.Number(sell),
		"platform":      "Ethereum",
	})
	require.NoError(t, err)

	canonical, err := crypto.CanonicalJSON(payload)
	require.NoError(t, err)
	sig, err := crypto.SignEthereum(canonical, key)
	require.NoError(t, err)

	body, err := json.Marshal(exchange.Intent{Sig: sig, Payload: payload})
	require.NoError(t, err)
	return body
}

func postJSON(h http.Handler, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func getJSON(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestTrade_AcceptsSignedIntent(t *testing.T) {
	h := newTestHandler(t)

	w := postJSON(h, "/trade", signedTradeBody(t, "ALGO", "ETH", "100", "100"))
	require.Equal(t, http.StatusOK, w.Code)

	var accepted bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.True(t, accepted)
}

func TestTrade_RejectsWithBareFalse(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("not json at all")},
		{"missing sig", []byte(`{"payload":{}}`)},
		{"missing payload", []byte(`{"sig":"0xabc"}`)},
		{"forged signature", func() []byte {
			body := signedTradeBody(t, "ALGO", "ETH", "100", "100")
			var in exchange.Intent
			require.NoError(t, json.Unmarshal(body, &in))
			in.Sig = "0x" + string(bytes.Repeat([]byte("ab"), 65))
			forged, err := json.Marshal(in)
			require.NoError(t, err)
			return forged
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(h, "/trade", tt.body)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "false", string(bytes.TrimSpace(w.Body.Bytes())))
		})
	}

	// None of the rejected intents may have reached the book.
	w := getJSON(h, "/order_book")
	var book api.OrderBookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	assert.Empty(t, book.Data)
}

func TestOrderBook_IdempotentRead(t *testing.T) {
	h := newTestHandler(t)

	w := postJSON(h, "/trade", signedTradeBody(t, "ALGO", "ETH", "100", "50"))
	require.Equal(t, http.StatusOK, w.Code)

	first := getJSON(h, "/order_book")
	require.Equal(t, http.StatusOK, first.Code)

	var book api.OrderBookResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &book))
	require.Len(t, book.Data, 1)
	assert.Equal(t, "ALGO", book.Data[0].BuyCurrency)
	assert.Equal(t, "100", book.Data[0].BuyAmount)
	assert.Equal(t, "50", book.Data[0].SellAmount)

	second := getJSON(h, "/order_book")
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestAddress(t *testing.T) {
	h := newTestHandler(t)

	t.Run("known platform", func(t *testing.T) {
		w := postJSON(h, "/address", []byte(`{"platform":"Ethereum"}`))
		require.Equal(t, http.StatusOK, w.Code)

		var addr string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &addr))
		assert.Equal(t, "0xHOT", addr)
	})

	t.Run("unknown platform", func(t *testing.T) {
		w := postJSON(h, "/address", []byte(`{"platform":"Bitcoin"}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := postJSON(h, "/address", []byte("{"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t)

	w := getJSON(h, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

// A /ws client served through Handler() alone must register, subscribe
// and receive fill events; no separate Start call is involved.
func TestWebSocket_FillBroadcast(t *testing.T) {
	h := newTestHandler(t)
	ts := httptest.NewServer(h)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(api.WSSubscribeRequest{
		Op:       "subscribe",
		Channels: []string{"fills"},
	}))
	// Let the read pump apply the subscription before the fill happens.
	time.Sleep(100 * time.Millisecond)

	w := postJSON(h, "/trade", signedTradeBody(t, "ALGO", "ETH", "100", "100"))
	require.Equal(t, http.StatusOK, w.Code)
	w = postJSON(h, "/trade", signedTradeBody(t, "ETH", "ALGO", "100", "100"))
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev api.FillEvent
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "fill", ev.Type)
	assert.NotZero(t, ev.TakerID)
	assert.NotZero(t, ev.MakerID)
	assert.Equal(t, 2, ev.Settled)
	assert.Equal(t, 0, ev.Failed)
}
