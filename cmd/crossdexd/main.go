package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/crossdex/crossdex/params"
	"github.com/crossdex/crossdex/pkg/api"
	"github.com/crossdex/crossdex/pkg/chain"
	"github.com/crossdex/crossdex/pkg/exchange"
	"github.com/crossdex/crossdex/pkg/storage"
	"github.com/crossdex/crossdex/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("starting crossdexd", "listen", cfg.ListenAddr, "require_deposit", cfg.RequireDeposit)

	// ---- Persistence ----
	db, err := storage.NewPebbleStore(cfg.DataDir + "/crossdex")
	if err != nil {
		sugar.Fatalw("open store", "err", err)
	}
	defer db.Close()

	store, err := exchange.NewOrderStore(db, sugar)
	if err != nil {
		sugar.Fatalw("order store", "err", err)
	}
	audit, err := exchange.NewAuditLog(db, sugar)
	if err != nil {
		sugar.Fatalw("audit log", "err", err)
	}

	// ---- Chain adapters: constructed once, injected everywhere ----
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	eth, err := chain.DialEthereum(ctx, cfg.Ethereum.RPC, cfg.Ethereum.PrivateKey, cfg.ChainRetries, sugar)
	cancel()
	if err != nil {
		sugar.Fatalw("ethereum adapter", "err", err)
	}

	algo, err := chain.NewAlgorand(chain.AlgorandConfig{
		AlgodURL:     cfg.Algorand.AlgodURL,
		AlgodToken:   cfg.Algorand.AlgodToken,
		IndexerURL:   cfg.Algorand.IndexerURL,
		IndexerToken: cfg.Algorand.IndexerToken,
		Mnemonic:     cfg.Algorand.Mnemonic,
	}, cfg.ChainRetries, sugar)
	if err != nil {
		sugar.Fatalw("algorand adapter", "err", err)
	}

	adapters := map[exchange.Platform]chain.Adapter{
		exchange.PlatformEthereum: eth,
		exchange.PlatformAlgorand: algo,
	}

	// ---- Core pipeline ----
	settler := exchange.NewSettler(store, adapters, cfg.RequestTimeout, sugar)
	matcher := exchange.NewMatcher(store, sugar)
	ex := exchange.New(store, matcher, settler, audit, cfg.RequireDeposit, sugar)

	server := api.NewServer(ex, map[string]chain.Adapter{
		string(exchange.PlatformEthereum): eth,
		string(exchange.PlatformAlgorand): algo,
	}, sugar)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(cfg.ListenAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		sugar.Fatalw("api server stopped", "err", err)
	case sig := <-sigCh:
		sugar.Infow("shutting down", "signal", sig.String())
	}
}
