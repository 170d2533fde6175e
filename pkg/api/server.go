package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/crossdex/crossdex/pkg/chain"
	"github.com/crossdex/crossdex/pkg/exchange"
)

// Server is the REST/WebSocket request layer in front of the exchange.
// It owns no order state: every mutation goes through the exchange
// pipeline, every read is a store snapshot.
type Server struct {
	ex       *exchange.Exchange
	adapters map[string]chain.Adapter
	router   *mux.Router
	hub      *Hub
	log      *zap.SugaredLogger
}

func NewServer(ex *exchange.Exchange, adapters map[string]chain.Adapter, log *zap.SugaredLogger) *Server {
	s := &Server{
		ex:       ex,
		adapters: adapters,
		router:   mux.NewRouter(),
		hub:      NewHub(log),
		log:      log,
	}
	s.setupRoutes()

	// The hub must serve registrations as soon as routes exist; /ws is
	// reachable through Handler() without Start.
	go s.hub.Run()

	ex.OnSettled(s.broadcastFills)
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/trade", s.handleTrade).Methods("POST")
	s.router.HandleFunc("/order_book", s.handleOrderBook).Methods("GET")
	s.router.HandleFunc("/address", s.handleAddress).Methods("POST")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the fully wrapped HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Start serves until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Infow("api server starting", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// handleTrade accepts a signed intent and answers with a bare JSON
// boolean: true when the order was admitted, false for any rejection.
func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondJSON(w, false)
		return
	}

	if err := s.ex.SubmitIntent(r.Context(), body); err != nil {
		s.log.Infow("trade rejected", "err", err)
		respondJSON(w, false)
		return
	}
	respondJSON(w, true)
}

// handleOrderBook dumps every order. Pure read, stable across repeated
// calls absent new admissions.
func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	orders := s.ex.Store().Snapshot()

	resp := OrderBookResponse{Data: make([]OrderRecord, 0, len(orders))}
	for _, o := range orders {
		resp.Data = append(resp.Data, OrderRecord{
			SenderPK:     o.SenderPK,
			ReceiverPK:   o.ReceiverPK,
			BuyCurrency:  o.BuyCurrency,
			SellCurrency: o.SellCurrency,
			BuyAmount:    o.BuyAmount.RatString(),
			SellAmount:   o.SellAmount.RatString(),
			Signature:    o.Signature,
			TxID:         o.TxID,
		})
	}
	respondJSON(w, resp)
}

// handleAddress returns the hot-wallet deposit address for a platform.
func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	var req AddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	adapter, ok := s.adapters[req.Platform]
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid platform", req.Platform)
		return
	}
	respondJSON(w, adapter.Address())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) broadcastFills(pairs []exchange.MatchedPair, report *exchange.ExecutionReport) {
	for _, p := range pairs {
		s.hub.BroadcastToChannel("fills", FillEvent{
			Type:         "fill",
			TakerID:      p.Taker.ID,
			MakerID:      p.Maker.ID,
			BuyCurrency:  p.Taker.BuyCurrency,
			SellCurrency: p.Taker.SellCurrency,
			ReportID:     report.ID,
			Settled:      len(report.Settled),
			Failed:       len(report.Failed),
			Timestamp:    time.Now().UnixMilli(),
		})
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: message})
}
