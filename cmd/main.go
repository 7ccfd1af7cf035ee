// Command paperhands runs the paper-trading service: it discovers the top
// Kraken USD pairs, polls their prices, and exposes a simulated trading
// account over HTTP.
//
// Usage:
//
//	paperhands --config config.yaml
//	paperhands --setup   (interactive configuration wizard)
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/paperhands/paperhands/config"
	"github.com/paperhands/paperhands/internal/clients"
	"github.com/paperhands/paperhands/internal/services/ledger"
	"github.com/paperhands/paperhands/internal/services/market"
	"github.com/paperhands/paperhands/internal/services/portfolio"
	"github.com/paperhands/paperhands/internal/setup"
	"github.com/paperhands/paperhands/internal/storage"
	"github.com/paperhands/paperhands/internal/storage/equity"
	"github.com/paperhands/paperhands/internal/web"
)

func main() {
	flags := config.ParseFlags()
	cfg, err := config.Get(flags)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.Setup {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		cfg, err = config.Get(flags)
		if err != nil {
			log.Fatal(err)
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store storage.Storage
	switch cfg.Storage {
	case "postgres":
		store, err = storage.NewPostgres(cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
	default:
		store = storage.NewMemory()
	}
	defer store.Close()

	journal, err := equity.NewJournal(cfg.EquityWALDir)
	if err != nil {
		logger.Fatal("equity journal init failed", zap.Error(err))
	}
	defer journal.Close()

	kraken := clients.NewKrakenClient(logger)

	discovery := market.NewDiscovery(kraken, market.DiscoveryConfig{
		QuoteAsset: cfg.QuoteAsset,
		MinPrice:   cfg.MinPrice,
		MaxPairs:   cfg.MaxPairs,
	}, logger)

	universe, err := discovery.Discover(ctx)
	if err != nil {
		logger.Fatal("pair discovery failed", zap.Error(err))
	}

	cache := market.NewPriceCache()
	broadcaster := market.NewBroadcaster(logger)
	ingestor := market.NewIngestor(kraken, universe, cache, broadcaster, market.IngestorConfig{
		PollInterval: cfg.PollInterval,
		FetchTimeout: cfg.FetchTimeout,
	}, logger)

	// warm the cache before serving; failure here is not fatal, the
	// periodic loop keeps retrying
	if _, err := ingestor.RefreshNow(ctx); err != nil {
		logger.Warn("initial price refresh failed", zap.Error(err))
	}
	ingestor.Start(ctx)

	book := ledger.New(store, journal, cfg.InitialBalance, logger)
	valuer := portfolio.NewValuer(book, cache, ingestor, logger)

	server := web.NewServer(cfg.ListenAddr, ingestor, cache, broadcaster, book, valuer, journal, logger)

	if len(cfg.TLSDomains) > 0 {
		err = server.StartWithAutoTLS(ctx, cfg.TLSDomains, "")
	} else {
		err = server.Start(ctx)
	}
	if err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}
