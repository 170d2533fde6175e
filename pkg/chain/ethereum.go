package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const ethTransferGasLimit = 21000

// EthereumAdapter sends value and resolves funding payments over a single
// long-lived RPC client.
type EthereumAdapter struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	addr    common.Address
	chainID *big.Int
	signer  types.Signer
	retries int
	log     *zap.SugaredLogger
}

// DialEthereum connects the RPC endpoint and loads the hot-wallet key.
func DialEthereum(ctx context.Context, rpcURL, privateKeyHex string, retries int, log *zap.SugaredLogger) (*EthereumAdapter, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}

	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse hot-wallet key: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}

	a := &EthereumAdapter{
		client:  client,
		key:     key,
		addr:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		signer:  types.LatestSignerForChainID(chainID),
		retries: retries,
		log:     log,
	}
	log.Infow("ethereum adapter ready", "rpc", rpcURL, "chain_id", chainID, "hot_wallet", a.addr.Hex())
	return a, nil
}

func (a *EthereumAdapter) Platform() string { return "Ethereum" }
func (a *EthereumAdapter) Address() string  { return a.addr.Hex() }

// Send transfers amount wei to recipient and returns the transaction hash
// once the node accepted it.
func (a *EthereumAdapter) Send(ctx context.Context, recipient string, amount *big.Rat) (string, error) {
	if !common.IsHexAddress(recipient) {
		return "", fmt.Errorf("invalid recipient address %q", recipient)
	}
	value, err := baseUnits(amount)
	if err != nil {
		return "", err
	}
	to := common.HexToAddress(recipient)

	var txHash string
	err = a.withRetry(ctx, "send", func() error {
		nonce, err := a.client.PendingNonceAt(ctx, a.addr)
		if err != nil {
			return err
		}
		gasPrice, err := a.client.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}

		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &to,
			Value:    value,
			Gas:      ethTransferGasLimit,
			GasPrice: gasPrice,
		})
		signed, err := types.SignTx(tx, a.signer, a.key)
		if err != nil {
			return err
		}
		if err := a.client.SendTransaction(ctx, signed); err != nil {
			return err
		}
		txHash = signed.Hash().Hex()
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	a.log.Infow("eth transfer sent", "to", to.Hex(), "wei", value.String(), "tx", txHash)
	return txHash, nil
}

// Payments resolves the claimed funding transaction and reports it as an
// observed payment when its sender matches the queried address. A pending
// transaction is not yet a payment.
func (a *EthereumAdapter) Payments(ctx context.Context, q PaymentQuery) ([]Payment, error) {
	if q.TxID == "" {
		return nil, nil
	}

	var out []Payment
	err := a.withRetry(ctx, "payments", func() error {
		tx, pending, err := a.client.TransactionByHash(ctx, common.HexToHash(q.TxID))
		if errors.Is(err, ethereum.NotFound) {
			// Unknown hash: no such payment, not an RPC failure.
			return nil
		}
		if err != nil {
			return err
		}
		if pending || tx.To() == nil {
			return nil
		}

		from, err := types.Sender(a.signer, tx)
		if err != nil {
			return err
		}
		if q.Address != "" && from != common.HexToAddress(q.Address) {
			return nil
		}

		out = []Payment{{
			Amount: new(big.Rat).SetInt(tx.Value()),
			TxID:   q.TxID,
			From:   from.Hex(),
		}}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

// withRetry re-attempts transient RPC failures with a short backoff,
// giving up when the context expires.
func (a *EthereumAdapter) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= a.retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.Warnw("eth rpc attempt failed", "op", op, "attempt", attempt+1, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
		}
	}
	return err
}
