package params

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Ethereum holds the connection and hot-wallet settings for the Ethereum side.
type Ethereum struct {
	RPC        string
	PrivateKey string // hex, no 0x prefix required
}

// Algorand holds algod/indexer endpoints and the hot-wallet mnemonic.
type Algorand struct {
	AlgodURL     string
	AlgodToken   string
	IndexerURL   string
	IndexerToken string
	Mnemonic     string
}

type Config struct {
	ListenAddr string
	DataDir    string
	LogFile    string

	// RequireDeposit gates admission on an observed on-chain payment
	// equal to the order's sell amount.
	RequireDeposit bool

	// RequestTimeout bounds every chain RPC call (deposit queries and sends).
	// A timed-out call is treated as a failure, never as success.
	RequestTimeout time.Duration

	// ChainRetries caps internal retries for transient RPC errors.
	ChainRetries int

	Ethereum Ethereum
	Algorand Algorand
}

func Default() Config {
	return Config{
		ListenAddr:     ":8545",
		DataDir:        "data",
		LogFile:        "data/crossdexd.log",
		RequireDeposit: true,
		RequestTimeout: 10 * time.Second,
		ChainRetries:   3,
		Ethereum: Ethereum{
			RPC: "http://localhost:8545",
		},
		Algorand: Algorand{
			AlgodURL:   "http://localhost:4001",
			IndexerURL: "http://localhost:8980",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("REQUIRE_DEPOSIT"); v != "" {
		cfg.RequireDeposit = v == "true"
	}
	if v := os.Getenv("REQUEST_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.RequestTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("CHAIN_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ChainRetries = n
		}
	}

	if v := os.Getenv("ETH_RPC"); v != "" {
		cfg.Ethereum.RPC = v
	}
	if v := os.Getenv("ETH_PRIVATE_KEY"); v != "" {
		cfg.Ethereum.PrivateKey = v
	}

	if v := os.Getenv("ALGOD_URL"); v != "" {
		cfg.Algorand.AlgodURL = v
	}
	if v := os.Getenv("ALGOD_TOKEN"); v != "" {
		cfg.Algorand.AlgodToken = v
	}
	if v := os.Getenv("INDEXER_URL"); v != "" {
		cfg.Algorand.IndexerURL = v
	}
	if v := os.Getenv("INDEXER_TOKEN"); v != "" {
		cfg.Algorand.IndexerToken = v
	}
	if v := os.Getenv("ALGO_MNEMONIC"); v != "" {
		cfg.Algorand.Mnemonic = v
	}

	return cfg
}
