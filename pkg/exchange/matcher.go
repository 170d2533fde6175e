package exchange

import (
	"errors"
	"math/big"
	"time"

	"go.uber.org/zap"
)

// Compatible is the continuous double-auction matching predicate between a
// resting order e and an incoming order n: currencies must cross, and e
// must offer at least n's required rate. The rate condition
//
//	e.sell/e.buy >= n.buy/n.sell
//
// is evaluated in the cross-multiplied, divide-free form
//
//	e.sell * n.sell >= n.buy * e.buy
//
// which is algebraically equivalent for positive amounts and exact under
// rational arithmetic.
func Compatible(e, n *Order) bool {
	if e.BuyCurrency != n.SellCurrency || e.SellCurrency != n.BuyCurrency {
		return false
	}
	lhs := new(big.Rat).Mul(e.SellAmount, n.SellAmount)
	rhs := new(big.Rat).Mul(e.BuyAmount, n.BuyAmount)
	return lhs.Cmp(rhs) >= 0
}

// MatchResult reports the fill events of one admission cycle: the incoming
// order's fill (if any) plus the fills of every remainder child spawned and
// re-matched within the same cycle.
type MatchResult struct {
	Pairs    []MatchedPair
	Children []uint64 // ids of spawned remainder orders, matched or resting
}

// Matcher runs the book-crossing algorithm against the order store. It
// holds no locks of its own: all fill-state transitions go through
// OrderStore.MarkFilled, and remainder children are drained through an
// explicit work queue rather than recursion, so no order lock is ever held
// while another order is being matched.
type Matcher struct {
	store *OrderStore
	log   *zap.SugaredLogger
}

func NewMatcher(store *OrderStore, log *zap.SugaredLogger) *Matcher {
	return &Matcher{store: store, log: log}
}

// Process matches a newly admitted order against the book. Each order gets
// at most one fill event per pass, with a single remainder child when the
// quantities do not cross exactly; children run back through the same
// routine before Process returns.
func (m *Matcher) Process(orderID uint64) (*MatchResult, error) {
	res := &MatchResult{}
	queue := []uint64{orderID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		pair, childID, err := m.matchOne(id)
		if err != nil {
			return res, err
		}
		if pair != nil {
			res.Pairs = append(res.Pairs, *pair)
		}
		if childID != 0 {
			res.Children = append(res.Children, childID)
			queue = append(queue, childID)
		}
	}
	return res, nil
}

// matchOne commits the first viable match for the order, or leaves it
// resting. When every candidate was lost to a concurrent fill, the book is
// re-queried once before giving up: the racing winner has consumed the
// candidate, so the refreshed query sees the true remaining liquidity.
func (m *Matcher) matchOne(id uint64) (*MatchedPair, uint64, error) {
	n, ok := m.store.Get(id)
	if !ok {
		return nil, 0, ErrUnknownOrder
	}
	if n.Filled() {
		// A concurrent incoming order already consumed this one; its
		// winner owns the settlement.
		return nil, 0, nil
	}

	for attempt := 0; attempt < 2; attempt++ {
		raced := false

		for _, eid := range m.store.FindCompatible(n) {
			err := m.store.MarkFilled(n.ID, eid, time.Now())
			if errors.Is(err, ErrAlreadyFilled) {
				if cur, ok := m.store.Get(n.ID); ok && cur.Filled() {
					// Lost n itself to a concurrent match.
					return nil, 0, nil
				}
				raced = true
				continue
			}
			if err != nil {
				return nil, 0, err
			}

			taker, _ := m.store.Get(n.ID)
			maker, _ := m.store.Get(eid)
			childID, err := m.spawnRemainder(taker, maker)
			if err != nil {
				return nil, 0, err
			}
			return &MatchedPair{Taker: taker, Maker: maker}, childID, nil
		}

		if !raced {
			break
		}
		m.log.Debugw("matching race lost, re-querying book", "order", n.ID)
	}

	return nil, 0, nil
}

// spawnRemainder splits whichever side of a fill was not fully consumed.
// With taker n and maker e:
//
//	n.sell < e.buy  -> e partially satisfied, child carries e's leftover
//	n.buy  > e.sell -> n partially satisfied, child carries n's leftover
//
// The leftover keeps the parent's price: child.sell = child.buy * sell/buy.
// Exactly one branch can hold, since both would contradict the matching
// predicate.
func (m *Matcher) spawnRemainder(n, e *Order) (uint64, error) {
	var parent *Order
	switch {
	case n.SellAmount.Cmp(e.BuyAmount) < 0:
		parent = e
	case n.BuyAmount.Cmp(e.SellAmount) > 0:
		parent = n
	default:
		return 0, nil
	}

	var consumed *big.Rat
	if parent == e {
		consumed = n.SellAmount
	} else {
		consumed = e.SellAmount
	}

	buy := new(big.Rat).Sub(parent.BuyAmount, consumed)
	rate := new(big.Rat).Quo(parent.SellAmount, parent.BuyAmount)
	sell := new(big.Rat).Mul(buy, rate)

	child, err := m.store.SpawnChild(parent, buy, sell)
	if err != nil {
		return 0, err
	}
	m.log.Infow("remainder order spawned",
		"parent", parent.ID, "child", child.ID,
		"buy_amount", buy.RatString(), "sell_amount", sell.RatString(),
	)
	return child.ID, nil
}
