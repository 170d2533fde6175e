package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crossdex/crossdex/pkg/chain"
)

// FailedTransfer reports one settlement leg that was not executed. The
// order stays filled; re-driving the transfer is a caller concern.
type FailedTransfer struct {
	OrderID uint64
	Reason  string
}

// ExecutionReport is the per-leg outcome of one settlement batch.
type ExecutionReport struct {
	ID      string
	Settled []*Receipt
	Failed  []FailedTransfer
}

// Settler confirms deposits before admission and executes the transfers
// implied by matched pairs. It never holds order locks across chain I/O:
// every adapter call runs on a snapshot with its own deadline.
type Settler struct {
	store    *OrderStore
	adapters map[Platform]chain.Adapter
	timeout  time.Duration
	log      *zap.SugaredLogger
}

func NewSettler(store *OrderStore, adapters map[Platform]chain.Adapter, timeout time.Duration, log *zap.SugaredLogger) *Settler {
	return &Settler{store: store, adapters: adapters, timeout: timeout, log: log}
}

func (s *Settler) adapter(p Platform) (chain.Adapter, error) {
	a, ok := s.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for platform %q", ErrChainAdapter, p)
	}
	return a, nil
}

// VerifyDeposit checks that the order's sender made an on-chain payment
// exactly equal to the sell amount. Orders failing the check never enter
// the book.
func (s *Settler) VerifyDeposit(ctx context.Context, o *Order) error {
	a, err := s.adapter(o.Platform)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payments, err := a.Payments(ctx, chain.PaymentQuery{
		Address: o.SenderPK,
		Asset:   o.SellCurrency,
		TxID:    o.TxID,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChainAdapter, err)
	}

	for _, p := range payments {
		if p.Amount != nil && p.Amount.Cmp(o.SellAmount) == 0 {
			return nil
		}
	}
	return ErrDepositUnconfirmed
}

// Execute settles matched pairs. Each pair yields two legs: the sell
// amount of each order is sent, on that order's platform, to its
// counterparty's receiving address. Legs are independent; one failed
// transfer neither blocks nor rolls back the others, and a receipt is
// recorded only when the adapter confirmed the send.
func (s *Settler) Execute(ctx context.Context, pairs []MatchedPair) *ExecutionReport {
	report := &ExecutionReport{ID: uuid.NewString()}
	for _, pair := range pairs {
		s.settleLeg(ctx, report, pair.Taker, pair.Maker)
		s.settleLeg(ctx, report, pair.Maker, pair.Taker)
	}

	s.log.Infow("settlement batch executed",
		"report", report.ID,
		"settled", len(report.Settled),
		"failed", len(report.Failed),
	)
	return report
}

func (s *Settler) settleLeg(ctx context.Context, report *ExecutionReport, leg, counterparty *Order) {
	fail := func(reason string) {
		s.log.Warnw("transfer not executed", "order", leg.ID, "reason", reason)
		report.Failed = append(report.Failed, FailedTransfer{OrderID: leg.ID, Reason: reason})
	}

	a, err := s.adapter(leg.Platform)
	if err != nil {
		fail(err.Error())
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	txID, err := a.Send(sendCtx, counterparty.ReceiverPK, leg.SellAmount)
	cancel()
	if err != nil {
		fail(err.Error())
		return
	}

	receipt := &Receipt{
		OrderID:    leg.ID,
		TxID:       txID,
		Platform:   leg.Platform,
		ReceiverPK: counterparty.ReceiverPK,
	}
	if err := s.store.RecordReceipt(receipt); err != nil {
		// The transfer went out but the receipt could not be stored;
		// surface it as failed so the operator reconciles by tx id.
		fail(fmt.Sprintf("sent as %s but receipt not recorded: %v", txID, err))
		return
	}

	report.Settled = append(report.Settled, receipt)
	s.log.Infow("transfer executed",
		"order", leg.ID,
		"platform", leg.Platform,
		"tx", txID,
		"receiver", counterparty.ReceiverPK,
		"amount", leg.SellAmount.RatString(),
	)
}
