package market

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paperhands/paperhands/internal/clients"
	"github.com/paperhands/paperhands/internal/domain"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultFetchTimeout = 8 * time.Second
)

// ErrNoPriceData is returned when an ingestion cycle yields no valid
// snapshot. The cycle is dropped and the cache keeps its prior contents.
var ErrNoPriceData = errors.New("no valid price data in ticker response")

// ErrUnknownSymbol is returned for symbols outside the trading universe.
var ErrUnknownSymbol = errors.New("symbol not in trading universe")

type tickerClient interface {
	FetchTicker(ctx context.Context, pairIDs []string) (map[string]clients.Ticker, error)
}

// IngestorConfig tunes the refresh loop.
type IngestorConfig struct {
	// PollInterval fixed period between refresh cycles.
	PollInterval time.Duration
	// FetchTimeout upper bound on one upstream call.
	FetchTimeout time.Duration
}

// Ingestor polls the upstream ticker endpoint for the discovered universe,
// writes parsed snapshots to the cache and publishes each batch.
type Ingestor struct {
	client      tickerClient
	universe    domain.Universe
	cache       *PriceCache
	broadcaster *Broadcaster
	cfg         IngestorConfig
	logger      *zap.Logger
}

// NewIngestor creates an Ingestor for a fixed universe.
func NewIngestor(client tickerClient, universe domain.Universe, cache *PriceCache, broadcaster *Broadcaster, cfg IngestorConfig, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Ingestor{
		client:      client,
		universe:    universe,
		cache:       cache,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger,
	}
}

// Start launches the periodic refresh loop and returns. Cycles run one at
// a time: the next tick is only handled after the previous cycle finished.
// The loop stops when ctx is cancelled.
func (i *Ingestor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(i.cfg.PollInterval)
		defer ticker.Stop()

		i.logger.Info("price ingestion started",
			zap.Int("universe_size", len(i.universe)),
			zap.Duration("interval", i.cfg.PollInterval))

		for {
			select {
			case <-ctx.Done():
				i.logger.Info("price ingestion stopped")
				return
			case <-ticker.C:
				if _, err := i.RefreshNow(ctx); err != nil {
					i.logger.Warn("refresh cycle failed", zap.Error(err))
				}
			}
		}
	}()
}

// RefreshNow performs one fetch-parse-cache-publish cycle and returns the
// published batch. A cycle that produces zero valid snapshots fails with
// ErrNoPriceData and leaves the cache untouched.
func (i *Ingestor) RefreshNow(ctx context.Context) ([]domain.PriceSnapshot, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, i.cfg.FetchTimeout)
	defer cancel()

	tickers, err := i.client.FetchTicker(fetchCtx, i.universe.PairIDs())
	if err != nil {
		return nil, errors.Wrap(err, "ticker fetch")
	}

	now := time.Now().UTC()
	batch := make([]domain.PriceSnapshot, 0, len(i.universe))
	for _, pair := range i.universe {
		ticker, ok := tickers[pair.ID]
		if !ok {
			continue
		}
		snapshot, err := parseSnapshot(pair.Symbol, ticker, now)
		if err != nil {
			i.logger.Warn("skipping malformed ticker entry",
				zap.String("pair", pair.ID),
				zap.Error(err))
			continue
		}
		batch = append(batch, snapshot)
	}

	if len(batch) == 0 {
		return nil, ErrNoPriceData
	}

	i.cache.SetBatch(batch)
	i.broadcaster.Publish(batch)

	return batch, nil
}

// FetchSymbol fetches a fresh snapshot for a single symbol of the
// universe, bypassing the cache. Used as the valuation fallback when a
// holding's symbol has not been ingested yet.
func (i *Ingestor) FetchSymbol(ctx context.Context, symbol string) (domain.PriceSnapshot, error) {
	pairID, ok := i.universe.PairIDFor(symbol)
	if !ok {
		return domain.PriceSnapshot{}, errors.Wrap(ErrUnknownSymbol, symbol)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, i.cfg.FetchTimeout)
	defer cancel()

	tickers, err := i.client.FetchTicker(fetchCtx, []string{pairID})
	if err != nil {
		return domain.PriceSnapshot{}, errors.Wrapf(err, "ticker fetch for %s", symbol)
	}

	ticker, ok := tickers[pairID]
	if !ok {
		return domain.PriceSnapshot{}, fmt.Errorf("no ticker data for %s", symbol)
	}
	return parseSnapshot(symbol, ticker, time.Now().UTC())
}

// parseSnapshot converts a raw ticker payload into a PriceSnapshot.
// change24hPercent is the change over the session open, rounded half-up
// to 4 decimal places before scaling to percent; zero when open is zero.
func parseSnapshot(symbol string, t clients.Ticker, now time.Time) (domain.PriceSnapshot, error) {
	if len(t.Close) < 1 || len(t.High) < 2 || len(t.Low) < 2 || len(t.Volume) < 2 {
		return domain.PriceSnapshot{}, fmt.Errorf("incomplete ticker fields")
	}

	price, err := decimal.NewFromString(t.Close[0])
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("parse close price: %w", err)
	}
	high, err := decimal.NewFromString(t.High[1])
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("parse 24h high: %w", err)
	}
	low, err := decimal.NewFromString(t.Low[1])
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("parse 24h low: %w", err)
	}
	volume, err := decimal.NewFromString(t.Volume[1])
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("parse 24h volume: %w", err)
	}
	open, err := decimal.NewFromString(t.Open)
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("parse session open: %w", err)
	}

	change := price.Sub(open)
	changePercent := decimal.Zero
	if open.IsPositive() {
		changePercent = change.Div(open).Round(4).Mul(decimal.NewFromInt(100))
	}

	return domain.PriceSnapshot{
		Symbol:           symbol,
		Price:            price,
		Change24h:        change,
		Change24hPercent: changePercent,
		Volume24h:        volume,
		High24h:          high,
		Low24h:           low,
		UpdatedAt:        now,
	}, nil
}
