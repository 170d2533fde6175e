package exchange

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OrderStore owns the lifecycle of Order and Receipt records. Matching and
// settlement mutate them only through Admit, MarkFilled, SpawnChild and
// RecordReceipt, so the "exactly one counterparty, exactly one fill" and
// "receipt iff confirmed send" invariants are enforced at one choke point.
//
// Locking: mu guards the maps and the id sequence. Each order carries its
// own mutex; MarkFilled locks the two orders of a pair in ascending id
// order, so conflicting fills serialize without a global matching lock.
type OrderStore struct {
	log *zap.SugaredLogger
	db  Persistence

	mu       sync.RWMutex
	orders   map[uint64]*orderSlot
	receipts map[uint64]*Receipt
	seq      uint64
}

type orderSlot struct {
	mu sync.Mutex
	o  *Order
}

// NewOrderStore opens a store over the given persistence, reloading any
// surviving orders and receipts.
func NewOrderStore(db Persistence, log *zap.SugaredLogger) (*OrderStore, error) {
	s := &OrderStore{
		log:      log,
		db:       db,
		orders:   make(map[uint64]*orderSlot),
		receipts: make(map[uint64]*Receipt),
	}

	orders, err := db.Orders()
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	for _, o := range orders {
		s.orders[o.ID] = &orderSlot{o: o}
		if o.ID > s.seq {
			s.seq = o.ID
		}
	}

	receipts, err := db.Receipts()
	if err != nil {
		return nil, fmt.Errorf("load receipts: %w", err)
	}
	for _, r := range receipts {
		s.receipts[r.OrderID] = r
	}

	if len(orders) > 0 || len(receipts) > 0 {
		log.Infow("order store reloaded", "orders", len(orders), "receipts", len(receipts))
	}
	return s, nil
}

func validateOrder(o *Order) error {
	if o.SenderPK == "" || o.ReceiverPK == "" {
		return fmt.Errorf("%w: missing party key", ErrValidation)
	}
	if o.BuyCurrency == "" || o.SellCurrency == "" {
		return fmt.Errorf("%w: missing currency", ErrValidation)
	}
	if !o.Platform.Valid() {
		return fmt.Errorf("%w: unknown platform %q", ErrValidation, o.Platform)
	}
	if o.BuyAmount == nil || o.BuyAmount.Sign() <= 0 {
		return fmt.Errorf("%w: buy_amount must be positive", ErrValidation)
	}
	if o.SellAmount == nil || o.SellAmount.Sign() <= 0 {
		return fmt.Errorf("%w: sell_amount must be positive", ErrValidation)
	}
	return nil
}

// Admit validates the order, assigns its identity and persists it unfilled.
func (s *OrderStore) Admit(o *Order) (uint64, error) {
	if err := validateOrder(o); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.seq++
	o.ID = s.seq
	s.mu.Unlock()

	o.Fill = nil
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	// Persist before publishing: the moment the order is in the map a
	// concurrent MarkFilled may rewrite it under the slot lock, so no
	// unlocked read of it may happen after this point.
	if err := s.db.PutOrder(o); err != nil {
		return 0, fmt.Errorf("persist order %d: %w", o.ID, err)
	}

	s.mu.Lock()
	s.orders[o.ID] = &orderSlot{o: o}
	s.mu.Unlock()

	s.log.Infow("order admitted",
		"id", o.ID,
		"platform", o.Platform,
		"buy", o.BuyCurrency, "buy_amount", o.BuyAmount.RatString(),
		"sell", o.SellCurrency, "sell_amount", o.SellAmount.RatString(),
		"creator", o.CreatorID,
	)
	return o.ID, nil
}

// Get returns a copy of the order, detached from the store's locks.
func (s *OrderStore) Get(id uint64) (*Order, bool) {
	s.mu.RLock()
	slot, ok := s.orders[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.o.Clone(), true
}

// FindCompatible returns ids of resting, unfilled orders satisfying the
// matching predicate against the given order, oldest first. Candidates are
// only a hint: fill state is re-checked under lock in MarkFilled.
func (s *OrderStore) FindCompatible(n *Order) []uint64 {
	s.mu.RLock()
	ids := make([]uint64, 0, len(s.orders))
	for id := range s.orders {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	// FIFO price-time priority: admission order is the tie-break.
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []uint64
	for _, id := range ids {
		if id == n.ID {
			continue
		}
		s.mu.RLock()
		slot, ok := s.orders[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		slot.mu.Lock()
		ok = !slot.o.Filled() && Compatible(slot.o, n)
		slot.mu.Unlock()
		if ok {
			out = append(out, id)
		}
	}
	return out
}

// MarkFilled atomically sets the fill timestamp and mutual counterparty
// links on both orders. If either is already filled it returns
// ErrAlreadyFilled and changes nothing; exactly one of any set of
// concurrent attempts on an order can succeed.
func (s *OrderStore) MarkFilled(aID, bID uint64, at time.Time) error {
	if aID == bID {
		return fmt.Errorf("%w: order cannot match itself", ErrValidation)
	}

	s.mu.RLock()
	sa, oka := s.orders[aID]
	sb, okb := s.orders[bID]
	s.mu.RUnlock()
	if !oka || !okb {
		return ErrUnknownOrder
	}

	// Lock pair in id order to avoid deadlock with a concurrent
	// MarkFilled(b, a).
	first, second := sa, sb
	if bID < aID {
		first, second = sb, sa
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if sa.o.Filled() || sb.o.Filled() {
		return ErrAlreadyFilled
	}

	sa.o.Fill = &Fill{At: at, CounterpartyID: bID}
	sb.o.Fill = &Fill{At: at, CounterpartyID: aID}

	if err := s.db.PutOrder(sa.o); err != nil {
		return fmt.Errorf("persist fill %d: %w", aID, err)
	}
	if err := s.db.PutOrder(sb.o); err != nil {
		return fmt.Errorf("persist fill %d: %w", bID, err)
	}

	s.log.Infow("orders filled", "taker", aID, "maker", bID, "at", at)
	return nil
}

// SpawnChild admits a new unfilled order carrying the unconsumed remainder
// of a partially filled parent.
func (s *OrderStore) SpawnChild(parent *Order, buyAmount, sellAmount *big.Rat) (*Order, error) {
	child := &Order{
		SenderPK:     parent.SenderPK,
		ReceiverPK:   parent.ReceiverPK,
		BuyCurrency:  parent.BuyCurrency,
		SellCurrency: parent.SellCurrency,
		BuyAmount:    new(big.Rat).Set(buyAmount),
		SellAmount:   new(big.Rat).Set(sellAmount),
		Platform:     parent.Platform,
		Signature:    parent.Signature,
		TxID:         parent.TxID,
		CreatorID:    parent.ID,
	}
	if _, err := s.Admit(child); err != nil {
		return nil, err
	}
	return child, nil
}

// RecordReceipt stores the settlement receipt for an order. At most one
// receipt can ever exist per order id.
func (s *OrderStore) RecordReceipt(r *Receipt) error {
	s.mu.Lock()
	if _, dup := s.receipts[r.OrderID]; dup {
		s.mu.Unlock()
		return fmt.Errorf("receipt already recorded for order %d", r.OrderID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.receipts[r.OrderID] = r
	s.mu.Unlock()

	if err := s.db.PutReceipt(r); err != nil {
		return fmt.Errorf("persist receipt for order %d: %w", r.OrderID, err)
	}
	return nil
}

// Receipt returns the settlement receipt for an order, if any.
func (s *OrderStore) Receipt(orderID uint64) (*Receipt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[orderID]
	return r, ok
}

// Snapshot returns copies of every order, in admission order. Pure read.
func (s *OrderStore) Snapshot() []*Order {
	s.mu.RLock()
	slots := make([]*orderSlot, 0, len(s.orders))
	for _, slot := range s.orders {
		slots = append(slots, slot)
	}
	s.mu.RUnlock()

	out := make([]*Order, 0, len(slots))
	for _, slot := range slots {
		slot.mu.Lock()
		out = append(out, slot.o.Clone())
		slot.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
