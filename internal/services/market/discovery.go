// Package market implements the market data pipeline: pair discovery,
// periodic price ingestion, the price cache and the update broadcaster.
package market

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paperhands/paperhands/internal/clients"
	"github.com/paperhands/paperhands/internal/domain"
)

// krakenAliases maps exchange-specific asset codes to canonical tickers.
// Codes without an alias pass through unchanged.
var krakenAliases = map[string]string{
	"XXBT": "BTC",
	"XETH": "ETH",
	"XXRP": "XRP",
	"XXLM": "XLM",
	"XLTC": "LTC",
}

// CanonicalSymbol maps an exchange asset code to the ticker used
// across the system.
func CanonicalSymbol(assetCode string) string {
	if symbol, ok := krakenAliases[assetCode]; ok {
		return symbol
	}
	return assetCode
}

// DiscoveryError signals that no usable trading universe could be built.
// It is fatal to startup: the ingestor cannot run without a universe.
type DiscoveryError struct {
	Reason string
	Err    error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pair discovery failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("pair discovery failed: %s", e.Reason)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// DiscoveryConfig bounds the discovered universe.
type DiscoveryConfig struct {
	// QuoteAsset exchange code of the quote currency, e.g. "ZUSD".
	QuoteAsset string
	// MinPrice pairs trading below this last price are excluded.
	MinPrice decimal.Decimal
	// MaxPairs universe size cap.
	MaxPairs int
}

// DefaultDiscoveryConfig returns the production defaults: top 20 USD pairs
// trading at or above one cent.
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		QuoteAsset: "ZUSD",
		MinPrice:   decimal.NewFromFloat(0.01),
		MaxPairs:   20,
	}
}

type catalogClient interface {
	FetchPairCatalog(ctx context.Context) (map[string]clients.PairInfo, error)
	FetchTicker(ctx context.Context, pairIDs []string) (map[string]clients.Ticker, error)
}

// Discovery builds the tradable universe once at startup.
type Discovery struct {
	client catalogClient
	cfg    DiscoveryConfig
	logger *zap.Logger
}

// NewDiscovery creates a Discovery.
func NewDiscovery(client catalogClient, cfg DiscoveryConfig, logger *zap.Logger) *Discovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discovery{client: client, cfg: cfg, logger: logger}
}

type rankedPair struct {
	id       string
	symbol   string
	notional decimal.Decimal
}

// Discover fetches the pair catalog, keeps online pairs quoted in the
// configured currency, drops pairs below the minimum price, ranks the
// rest by 24h notional volume and truncates to the configured size.
func (d *Discovery) Discover(ctx context.Context) (domain.Universe, error) {
	catalog, err := d.client.FetchPairCatalog(ctx)
	if err != nil {
		return nil, &DiscoveryError{Reason: "pair catalog fetch", Err: err}
	}

	candidates := make(map[string]string) // pair id -> canonical symbol
	for pairID, info := range catalog {
		if info.Quote != d.cfg.QuoteAsset || info.Status != "online" {
			continue
		}
		candidates[pairID] = CanonicalSymbol(info.Base)
	}
	if len(candidates) == 0 {
		return nil, &DiscoveryError{Reason: fmt.Sprintf("no online %s pairs in catalog", d.cfg.QuoteAsset)}
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tickers, err := d.client.FetchTicker(ctx, ids)
	if err != nil {
		return nil, &DiscoveryError{Reason: "ticker fetch", Err: err}
	}

	ranked := make([]rankedPair, 0, len(ids))
	for _, id := range ids {
		ticker, ok := tickers[id]
		if !ok {
			// catalog entries without ticker data are dropped silently
			continue
		}
		price, volume, err := lastPriceAndVolume(ticker)
		if err != nil {
			d.logger.Debug("skipping pair with malformed ticker",
				zap.String("pair", id),
				zap.Error(err))
			continue
		}
		if price.LessThan(d.cfg.MinPrice) {
			continue
		}
		ranked = append(ranked, rankedPair{
			id:       id,
			symbol:   candidates[id],
			notional: volume.Mul(price),
		})
	}

	// descending notional volume; ties broken by ascending pair id so the
	// result is reproducible regardless of upstream ordering
	sort.SliceStable(ranked, func(i, j int) bool {
		if cmp := ranked[i].notional.Cmp(ranked[j].notional); cmp != 0 {
			return cmp > 0
		}
		return ranked[i].id < ranked[j].id
	})

	if d.cfg.MaxPairs > 0 && len(ranked) > d.cfg.MaxPairs {
		ranked = ranked[:d.cfg.MaxPairs]
	}

	universe := make(domain.Universe, 0, len(ranked))
	for _, r := range ranked {
		universe = append(universe, domain.Pair{ID: r.id, Symbol: r.symbol})
	}

	d.logger.Info("trading universe discovered",
		zap.Int("catalog_candidates", len(candidates)),
		zap.Int("universe_size", len(universe)))

	return universe, nil
}

func lastPriceAndVolume(t clients.Ticker) (price, volume decimal.Decimal, err error) {
	if len(t.Close) < 1 || len(t.Volume) < 2 {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("incomplete ticker fields")
	}
	price, err = decimal.NewFromString(t.Close[0])
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("parse close price: %w", err)
	}
	volume, err = decimal.NewFromString(t.Volume[1])
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("parse 24h volume: %w", err)
	}
	return price, volume, nil
}
