package exchange_test

import (
	"math/big"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/crossdex/crossdex/pkg/exchange"
)

func newTestMatcher(t *testing.T) (*exchange.OrderStore, *exchange.Matcher) {
	t.Helper()
	store := newTestStore(t)
	return store, exchange.NewMatcher(store, zap.NewNop().Sugar())
}

func TestCompatible(t *testing.T) {
	tests := []struct {
		name        string
		eBuy, eSell string // resting amounts
		nBuy, nSell string // incoming amounts
		eCur, nCur  string // "buy sell" currency pairs
		want        bool
	}{
		{"exact cross", "100", "100", "100", "100", "X Y", "Y X", true},
		{"resting offers better rate", "100", "200", "100", "100", "X Y", "Y X", true},
		{"resting rate too poor", "200", "100", "100", "100", "X Y", "Y X", false},
		{"boundary equality holds", "3", "1", "1", "3", "X Y", "Y X", true},
		{"currencies do not cross", "100", "100", "100", "100", "X Y", "X Y", false},
		{"one-sided currency mismatch", "100", "100", "100", "100", "X Y", "Y Z", false},
		{"fractional rates compared exactly", "3", "1", "1", "1/3", "X Y", "Y X", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eCur := strings.Fields(tt.eCur)
			nCur := strings.Fields(tt.nCur)
			e := order(t, eCur[0], eCur[1], tt.eBuy, tt.eSell)
			n := order(t, nCur[0], nCur[1], tt.nBuy, tt.nSell)
			if got := exchange.Compatible(e, n); got != tt.want {
				t.Errorf("Compatible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProcess_ExactCross(t *testing.T) {
	store, matcher := newTestMatcher(t)

	eID, _ := store.Admit(order(t, "X", "Y", "100", "100"))
	nID, _ := store.Admit(order(t, "Y", "X", "100", "100"))

	res, err := matcher.Process(nID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(res.Pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(res.Pairs))
	}
	if len(res.Children) != 0 {
		t.Errorf("exact cross spawned %d children", len(res.Children))
	}
	if res.Pairs[0].Taker.ID != nID || res.Pairs[0].Maker.ID != eID {
		t.Errorf("pair = taker %d maker %d, want %d/%d",
			res.Pairs[0].Taker.ID, res.Pairs[0].Maker.ID, nID, eID)
	}
	if len(store.Snapshot()) != 2 {
		t.Error("unexpected extra orders in book")
	}
}

func TestProcess_NoMatchRests(t *testing.T) {
	store, matcher := newTestMatcher(t)

	store.Admit(order(t, "X", "Y", "100", "100"))
	nID, _ := store.Admit(order(t, "Z", "W", "100", "100"))

	res, err := matcher.Process(nID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(res.Pairs) != 0 {
		t.Errorf("incompatible currencies matched: %d pairs", len(res.Pairs))
	}
	n, _ := store.Get(nID)
	if n.Filled() {
		t.Error("unmatched order marked filled")
	}
}

// Amount conservation on split: resting E(buy=100, sell=100) partially
// consumed by N(sell=40) leaves a child with buy = 60 and sell = 60;
// child.buy + N.sell reconstructs E.buy exactly.
func TestProcess_PartialFillSpawnsMakerChild(t *testing.T) {
	store, matcher := newTestMatcher(t)

	eID, _ := store.Admit(order(t, "X", "Y", "100", "100"))
	nID, _ := store.Admit(order(t, "Y", "X", "40", "40"))

	res, err := matcher.Process(nID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(res.Pairs) != 1 || len(res.Children) != 1 {
		t.Fatalf("pairs=%d children=%d, want 1/1", len(res.Pairs), len(res.Children))
	}

	child, ok := store.Get(res.Children[0])
	if !ok {
		t.Fatal("child not in store")
	}
	if child.CreatorID != eID {
		t.Errorf("child creator = %d, want maker %d", child.CreatorID, eID)
	}
	if child.BuyAmount.Cmp(rat(t, "60")) != 0 {
		t.Errorf("child buy = %s, want 60", child.BuyAmount.RatString())
	}
	if child.SellAmount.Cmp(rat(t, "60")) != 0 {
		t.Errorf("child sell = %s, want 60", child.SellAmount.RatString())
	}

	sum := new(big.Rat).Add(child.BuyAmount, rat(t, "40"))
	if sum.Cmp(rat(t, "100")) != 0 {
		t.Errorf("conservation broken: child.buy + consumed = %s, want 100", sum.RatString())
	}
}

// The symmetric case: the incoming order is bigger than the resting one,
// so the taker's remainder becomes the child.
func TestProcess_PartialFillSpawnsTakerChild(t *testing.T) {
	store, matcher := newTestMatcher(t)

	eID, _ := store.Admit(order(t, "X", "Y", "50", "50"))
	nID, _ := store.Admit(order(t, "Y", "X", "110", "110"))

	res, err := matcher.Process(nID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(res.Pairs) != 1 || len(res.Children) != 1 {
		t.Fatalf("pairs=%d children=%d, want 1/1", len(res.Pairs), len(res.Children))
	}
	if res.Pairs[0].Maker.ID != eID {
		t.Errorf("maker = %d, want %d", res.Pairs[0].Maker.ID, eID)
	}

	child, _ := store.Get(res.Children[0])
	if child.CreatorID != nID {
		t.Errorf("child creator = %d, want taker %d", child.CreatorID, nID)
	}
	if child.BuyAmount.Cmp(rat(t, "60")) != 0 || child.SellAmount.Cmp(rat(t, "60")) != 0 {
		t.Errorf("child amounts = %s/%s, want 60/60",
			child.BuyAmount.RatString(), child.SellAmount.RatString())
	}
}

// Child orders re-enter matching within the same admission cycle: a large
// incoming order sweeps two resting orders through its remainder child.
func TestProcess_ChildRematchesInSameCycle(t *testing.T) {
	store, matcher := newTestMatcher(t)

	e1, _ := store.Admit(order(t, "X", "Y", "50", "50"))
	e2, _ := store.Admit(order(t, "X", "Y", "60", "60"))
	nID, _ := store.Admit(order(t, "Y", "X", "110", "110"))

	res, err := matcher.Process(nID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(res.Pairs) != 2 {
		t.Fatalf("pairs = %d, want 2 (taker fill + child fill)", len(res.Pairs))
	}
	if res.Pairs[0].Maker.ID != e1 {
		t.Errorf("first maker = %d, want FIFO-first %d", res.Pairs[0].Maker.ID, e1)
	}
	if res.Pairs[1].Maker.ID != e2 {
		t.Errorf("child matched maker %d, want %d", res.Pairs[1].Maker.ID, e2)
	}

	// 50 + 60 consumed exactly: the child crossed e2 with no grandchild.
	if len(res.Children) != 1 {
		t.Errorf("children = %d, want 1", len(res.Children))
	}
}

func TestProcess_FIFOTieBreak(t *testing.T) {
	store, matcher := newTestMatcher(t)

	oldest, _ := store.Admit(order(t, "X", "Y", "100", "100"))
	store.Admit(order(t, "X", "Y", "100", "100"))
	nID, _ := store.Admit(order(t, "Y", "X", "100", "100"))

	res, err := matcher.Process(nID)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(res.Pairs) != 1 || res.Pairs[0].Maker.ID != oldest {
		t.Errorf("matched maker %d, want oldest %d", res.Pairs[0].Maker.ID, oldest)
	}
}

// Two incoming orders racing for one resting order: exactly one wins,
// the other rests unfilled.
func TestProcess_ConcurrentIncomingSingleWinner(t *testing.T) {
	store, matcher := newTestMatcher(t)

	resting, _ := store.Admit(order(t, "X", "Y", "10", "10"))

	const contenders = 8
	ids := make([]uint64, contenders)
	for i := range ids {
		ids[i], _ = store.Admit(order(t, "Y", "X", "10", "10"))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	totalPairs := 0
	for _, id := range ids {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			res, err := matcher.Process(id)
			if err != nil {
				t.Errorf("process %d: %v", id, err)
				return
			}
			mu.Lock()
			totalPairs += len(res.Pairs)
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	if totalPairs != 1 {
		t.Errorf("fill events = %d, want exactly 1", totalPairs)
	}
	r, _ := store.Get(resting)
	if !r.Filled() {
		t.Error("resting order not filled by the winner")
	}

	filledContenders := 0
	for _, id := range ids {
		if o, _ := store.Get(id); o.Filled() {
			filledContenders++
		}
	}
	if filledContenders != 1 {
		t.Errorf("filled contenders = %d, want 1", filledContenders)
	}
}
