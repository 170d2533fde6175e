package exchange

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/crossdex/crossdex/pkg/crypto"
)

// Exchange drives the full intent pipeline: schema validation, signature
// authentication, deposit confirmation, admission, matching, settlement.
// It is safe for concurrent use across distinct intents; conflicting
// mutations of the same order serialize inside the store.
type Exchange struct {
	store   *OrderStore
	matcher *Matcher
	settler *Settler
	audit   *AuditLog
	log     *zap.SugaredLogger

	requireDeposit bool

	// onSettled, when set, is invoked after each settlement batch
	// (used by the API layer to stream fill events).
	onSettled func(pairs []MatchedPair, report *ExecutionReport)
}

func New(store *OrderStore, matcher *Matcher, settler *Settler, audit *AuditLog, requireDeposit bool, log *zap.SugaredLogger) *Exchange {
	return &Exchange{
		store:          store,
		matcher:        matcher,
		settler:        settler,
		audit:          audit,
		requireDeposit: requireDeposit,
		log:            log,
	}
}

// OnSettled registers the settlement notification hook.
func (x *Exchange) OnSettled(fn func(pairs []MatchedPair, report *ExecutionReport)) {
	x.onSettled = fn
}

// Store exposes the order book for pure reads.
func (x *Exchange) Store() *OrderStore { return x.store }

// Audit exposes the rejection trail for diagnosis.
func (x *Exchange) Audit() *AuditLog { return x.audit }

// SubmitIntent processes one inbound trade intent. Validation,
// authentication and deposit failures are terminal for the intent and
// returned as typed errors; no partial order is ever created. Transfer
// execution failures do not fail the intent: the order is admitted and
// matched, and the unexecuted legs are reported per order id.
func (x *Exchange) SubmitIntent(ctx context.Context, raw []byte) error {
	in, order, canonical, err := ParseIntent(raw, x.requireDeposit)
	if err != nil {
		x.audit.Record(raw, err.Error())
		return err
	}

	if !crypto.VerifyIntent(canonical, in.Sig, order.SenderPK, string(order.Platform)) {
		x.audit.Record(in.Payload, ErrAuthentication.Error())
		return ErrAuthentication
	}

	if x.requireDeposit {
		// Chain I/O happens before admission; no order state exists yet
		// and no lock is held.
		if err := x.settler.VerifyDeposit(ctx, order); err != nil {
			if errors.Is(err, ErrDepositUnconfirmed) {
				// Expected outcome, not an anomaly: rejected but not audited.
				x.log.Infow("deposit unconfirmed, intent rejected",
					"sender", order.SenderPK, "tx", order.TxID)
				return err
			}
			return err
		}
	}

	id, err := x.store.Admit(order)
	if err != nil {
		x.audit.Record(in.Payload, err.Error())
		return err
	}

	res, err := x.matcher.Process(id)
	if err != nil {
		return err
	}
	if len(res.Pairs) == 0 {
		return nil
	}

	report := x.settler.Execute(ctx, res.Pairs)
	if x.onSettled != nil {
		x.onSettled(res.Pairs, report)
	}
	return nil
}
