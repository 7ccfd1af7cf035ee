package market

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperhands/paperhands/internal/clients"
)

type fakeCatalogClient struct {
	catalog    map[string]clients.PairInfo
	tickers    map[string]clients.Ticker
	catalogErr error
	tickerErr  error
}

func (f *fakeCatalogClient) FetchPairCatalog(context.Context) (map[string]clients.PairInfo, error) {
	return f.catalog, f.catalogErr
}

func (f *fakeCatalogClient) FetchTicker(context.Context, []string) (map[string]clients.Ticker, error) {
	return f.tickers, f.tickerErr
}

func usdPair(base string) clients.PairInfo {
	return clients.PairInfo{Base: base, Quote: "ZUSD", Status: "online"}
}

func ticker(close, volume string) clients.Ticker {
	return clients.Ticker{
		Close:  []string{close, "1"},
		High:   []string{close, close},
		Low:    []string{close, close},
		Volume: []string{"0", volume},
		Open:   close,
	}
}

func TestCanonicalSymbol(t *testing.T) {
	assert.Equal(t, "BTC", CanonicalSymbol("XXBT"))
	assert.Equal(t, "ETH", CanonicalSymbol("XETH"))
	assert.Equal(t, "LTC", CanonicalSymbol("XLTC"))
	assert.Equal(t, "SOL", CanonicalSymbol("SOL"))
}

func TestDiscoverFiltersAndRanks(t *testing.T) {
	client := &fakeCatalogClient{
		catalog: map[string]clients.PairInfo{
			"XXBTZUSD": usdPair("XXBT"),
			"XETHZUSD": usdPair("XETH"),
			"SOLUSD":   usdPair("SOL"),
			"XXBTZEUR": {Base: "XXBT", Quote: "ZEUR", Status: "online"},
			"OLDUSD":   {Base: "OLD", Quote: "ZUSD", Status: "delisted"},
			"SHIBUSD":  usdPair("SHIB"),
		},
		tickers: map[string]clients.Ticker{
			"XXBTZUSD": ticker("50000", "100"),  // notional 5,000,000
			"XETHZUSD": ticker("3000", "2000"),  // notional 6,000,000
			"SOLUSD":   ticker("150", "10000"),  // notional 1,500,000
			"SHIBUSD":  ticker("0.005", "1e9"),  // below min price
		},
	}

	d := NewDiscovery(client, DefaultDiscoveryConfig(), nil)
	universe, err := d.Discover(context.Background())
	require.NoError(t, err)

	require.Len(t, universe, 3)
	assert.Equal(t, "ETH", universe[0].Symbol)
	assert.Equal(t, "BTC", universe[1].Symbol)
	assert.Equal(t, "SOL", universe[2].Symbol)
	assert.Equal(t, "XETHZUSD", universe[0].ID)
}

func TestDiscoverTieBreaksByPairID(t *testing.T) {
	client := &fakeCatalogClient{
		catalog: map[string]clients.PairInfo{
			"BBBUSD": usdPair("BBB"),
			"AAAUSD": usdPair("AAA"),
		},
		tickers: map[string]clients.Ticker{
			"BBBUSD": ticker("10", "100"),
			"AAAUSD": ticker("10", "100"),
		},
	}

	d := NewDiscovery(client, DefaultDiscoveryConfig(), nil)
	universe, err := d.Discover(context.Background())
	require.NoError(t, err)

	require.Len(t, universe, 2)
	assert.Equal(t, "AAAUSD", universe[0].ID)
	assert.Equal(t, "BBBUSD", universe[1].ID)
}

func TestDiscoverTruncatesToMaxPairs(t *testing.T) {
	catalog := make(map[string]clients.PairInfo)
	tickers := make(map[string]clients.Ticker)
	for _, p := range []struct{ id, base, vol string }{
		{"AUSD", "A", "500"},
		{"BUSD", "B", "400"},
		{"CUSD", "C", "300"},
		{"DUSD", "D", "200"},
	} {
		catalog[p.id] = usdPair(p.base)
		tickers[p.id] = ticker("10", p.vol)
	}

	cfg := DefaultDiscoveryConfig()
	cfg.MaxPairs = 2
	d := NewDiscovery(&fakeCatalogClient{catalog: catalog, tickers: tickers}, cfg, nil)

	universe, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, universe, 2)
	assert.Equal(t, "A", universe[0].Symbol)
	assert.Equal(t, "B", universe[1].Symbol)
}

func TestDiscoverSkipsMalformedTickers(t *testing.T) {
	client := &fakeCatalogClient{
		catalog: map[string]clients.PairInfo{
			"GOODUSD": usdPair("GOOD"),
			"BADUSD":  usdPair("BAD"),
			"GONEUSD": usdPair("GONE"),
		},
		tickers: map[string]clients.Ticker{
			"GOODUSD": ticker("10", "100"),
			"BADUSD":  {Close: []string{"not-a-number"}, Volume: []string{"0", "1"}},
			// GONEUSD absent from ticker response
		},
	}

	d := NewDiscovery(client, DefaultDiscoveryConfig(), nil)
	universe, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, universe, 1)
	assert.Equal(t, "GOOD", universe[0].Symbol)
}

func TestDiscoverErrors(t *testing.T) {
	t.Run("catalog fetch failure", func(t *testing.T) {
		d := NewDiscovery(&fakeCatalogClient{catalogErr: errors.New("boom")}, DefaultDiscoveryConfig(), nil)
		_, err := d.Discover(context.Background())
		var derr *DiscoveryError
		require.ErrorAs(t, err, &derr)
	})

	t.Run("no usable pairs", func(t *testing.T) {
		d := NewDiscovery(&fakeCatalogClient{
			catalog: map[string]clients.PairInfo{
				"XXBTZEUR": {Base: "XXBT", Quote: "ZEUR", Status: "online"},
			},
		}, DefaultDiscoveryConfig(), nil)
		_, err := d.Discover(context.Background())
		var derr *DiscoveryError
		require.ErrorAs(t, err, &derr)
	})

	t.Run("ticker fetch failure", func(t *testing.T) {
		d := NewDiscovery(&fakeCatalogClient{
			catalog:   map[string]clients.PairInfo{"XXBTZUSD": usdPair("XXBT")},
			tickerErr: errors.New("boom"),
		}, DefaultDiscoveryConfig(), nil)
		_, err := d.Discover(context.Background())
		var derr *DiscoveryError
		require.ErrorAs(t, err, &derr)
	})
}

func TestDiscoverMinPriceBoundary(t *testing.T) {
	client := &fakeCatalogClient{
		catalog: map[string]clients.PairInfo{
			"EXACTUSD": usdPair("EXACT"),
			"BELOWUSD": usdPair("BELOW"),
		},
		tickers: map[string]clients.Ticker{
			"EXACTUSD": ticker("0.01", "100"),
			"BELOWUSD": ticker("0.0099", "100"),
		},
	}

	cfg := DiscoveryConfig{QuoteAsset: "ZUSD", MinPrice: decimal.NewFromFloat(0.01), MaxPairs: 20}
	d := NewDiscovery(client, cfg, nil)
	universe, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, universe, 1)
	assert.Equal(t, "EXACT", universe[0].Symbol)
}
