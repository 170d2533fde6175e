// Command sign-intent generates a throwaway keypair, signs a sample trade
// intent in the canonical payload encoding and prints the submission JSON
// for POST /trade. Useful for exercising a devnet node end to end.
package main

import (
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/crossdex/crossdex/pkg/crypto"
)

func main() {
	platform := flag.String("platform", "Ethereum", "Ethereum or Algorand")
	buyCurrency := flag.String("buy", "ALGO", "asset to buy")
	sellCurrency := flag.String("sell", "ETH", "asset to sell")
	buyAmount := flag.String("buy-amount", "100", "buy amount")
	sellAmount := flag.String("sell-amount", "100", "sell amount")
	receiver := flag.String("receiver", "", "receiving address on the counter platform")
	txID := flag.String("tx-id", "", "funding transaction reference (deposit-backed mode)")
	flag.Parse()

	payload := map[string]interface{}{
		"receiver_pk":   *receiver,
		"buy_currency":  *buyCurrency,
		"sell_currency": *sellCurrency,
		"buy_amount":    json.Number(*buyAmount),
		"sell_amount":   json.Number(*sellAmount),
		"platform":      *platform,
		"tx_id":         *txID,
	}

	var sig string
	switch *platform {
	case crypto.PlatformEthereum:
		key, err := ethcrypto.GenerateKey()
		if err != nil {
			fatal("generate key: %v", err)
		}
		addr := ethcrypto.PubkeyToAddress(key.PublicKey)
		payload["sender_pk"] = addr.Hex()
		fmt.Printf("sender:      %s\n", addr.Hex())
		fmt.Printf("private key: %x (keep secret)\n\n", ethcrypto.FromECDSA(key))

		canonical := mustCanonical(payload)
		sig, err = crypto.SignEthereum(canonical, key)
		if err != nil {
			fatal("sign: %v", err)
		}

	case crypto.PlatformAlgorand:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			fatal("generate key: %v", err)
		}
		addr := crypto.EncodeAlgorandAddress(pub)
		payload["sender_pk"] = addr
		fmt.Printf("sender:      %s\n", addr)
		fmt.Printf("seed:        %x (keep secret)\n\n", priv.Seed())

		sig = crypto.SignAlgorand(mustCanonical(payload), priv)

	default:
		fatal("unknown platform %q", *platform)
	}

	intent := map[string]interface{}{
		"sig":     sig,
		"payload": payload,
	}
	out, err := json.MarshalIndent(intent, "", "  ")
	if err != nil {
		fatal("marshal intent: %v", err)
	}

	fmt.Println("intent for POST /trade:")
	fmt.Println(string(out))
}

func mustCanonical(payload map[string]interface{}) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		fatal("marshal payload: %v", err)
	}
	canonical, err := crypto.CanonicalJSON(raw)
	if err != nil {
		fatal("canonicalize payload: %v", err)
	}
	return canonical
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
