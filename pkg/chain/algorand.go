package chain

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/indexer"
	sdkcrypto "github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"go.uber.org/zap"
)

// AlgorandAdapter drives payments through algod and observes deposits
// through the indexer. Both clients live for the process lifetime.
type AlgorandAdapter struct {
	algod   *algod.Client
	indexer *indexer.Client
	account sdkcrypto.Account
	retries int
	log     *zap.SugaredLogger
}

// AlgorandConfig carries the endpoints and hot-wallet mnemonic.
type AlgorandConfig struct {
	AlgodURL     string
	AlgodToken   string
	IndexerURL   string
	IndexerToken string
	Mnemonic     string
}

func NewAlgorand(cfg AlgorandConfig, retries int, log *zap.SugaredLogger) (*AlgorandAdapter, error) {
	algodClient, err := algod.MakeClient(cfg.AlgodURL, cfg.AlgodToken)
	if err != nil {
		return nil, fmt.Errorf("algod client: %w", err)
	}
	indexerClient, err := indexer.MakeClient(cfg.IndexerURL, cfg.IndexerToken)
	if err != nil {
		return nil, fmt.Errorf("indexer client: %w", err)
	}

	sk, err := mnemonic.ToPrivateKey(cfg.Mnemonic)
	if err != nil {
		return nil, fmt.Errorf("parse hot-wallet mnemonic: %w", err)
	}
	account, err := sdkcrypto.AccountFromPrivateKey(sk)
	if err != nil {
		return nil, fmt.Errorf("derive hot-wallet account: %w", err)
	}

	a := &AlgorandAdapter{
		algod:   algodClient,
		indexer: indexerClient,
		account: account,
		retries: retries,
		log:     log,
	}
	log.Infow("algorand adapter ready",
		"algod", cfg.AlgodURL, "indexer", cfg.IndexerURL,
		"hot_wallet", account.Address.String(),
	)
	return a, nil
}

func (a *AlgorandAdapter) Platform() string { return "Algorand" }
func (a *AlgorandAdapter) Address() string  { return a.account.Address.String() }

// Send pays amount microalgos to recipient and returns the transaction id
// once algod accepted the signed transaction.
func (a *AlgorandAdapter) Send(ctx context.Context, recipient string, amount *big.Rat) (string, error) {
	units, err := baseUnits(amount)
	if err != nil {
		return "", err
	}
	if !units.IsUint64() {
		return "", fmt.Errorf("amount %s out of range", units.String())
	}

	var txID string
	err = a.withRetry(ctx, "send", func() error {
		params, err := a.algod.SuggestedParams().Do(ctx)
		if err != nil {
			return err
		}
		txn, err := transaction.MakePaymentTxn(a.account.Address.String(), recipient, units.Uint64(), nil, "", params)
		if err != nil {
			return err
		}
		id, stx, err := sdkcrypto.SignTransaction(a.account.PrivateKey, txn)
		if err != nil {
			return err
		}
		if _, err := a.algod.SendRawTransaction(stx).Do(ctx); err != nil {
			return err
		}
		txID = id
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	a.log.Infow("algo transfer sent", "to", recipient, "microalgos", units.String(), "tx", txID)
	return txID, nil
}

// Payments lists the sender's observed transfers, filtered by asset id
// when the queried asset is a nonzero ASA.
func (a *AlgorandAdapter) Payments(ctx context.Context, q PaymentQuery) ([]Payment, error) {
	query := a.indexer.LookupAccountTransactions(q.Address)
	if assetID, err := strconv.ParseUint(q.Asset, 10, 64); err == nil && assetID != 0 {
		query = query.AssetID(assetID)
	}

	var out []Payment
	err := a.withRetry(ctx, "payments", func() error {
		resp, err := query.Do(ctx)
		if err != nil {
			return err
		}

		out = out[:0]
		for _, txn := range resp.Transactions {
			amount := txn.PaymentTransaction.Amount
			if txn.AssetTransferTransaction.Amount > 0 {
				amount = txn.AssetTransferTransaction.Amount
			}
			if amount == 0 {
				continue
			}
			out = append(out, Payment{
				Amount: new(big.Rat).SetUint64(amount),
				TxID:   txn.Id,
				From:   txn.Sender,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (a *AlgorandAdapter) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= a.retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.Warnw("algorand rpc attempt failed", "op", op, "attempt", attempt+1, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		}
	}
	return err
}
