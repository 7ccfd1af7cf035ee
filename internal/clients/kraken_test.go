package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperhands/paperhands/pkg/retrier"
)

func fastRetrier() *retrier.Retrier {
	return retrier.New(
		retrier.WithInitialInterval(time.Millisecond),
		retrier.WithMaxInterval(5*time.Millisecond),
		retrier.WithMaxRetries(2),
	)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *KrakenClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewKrakenClient(nil, WithBaseURL(srv.URL), WithRetrier(fastRetrier()))
}

func TestFetchPairCatalog(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/public/AssetPairs", r.URL.Path)
		w.Write([]byte(`{
			"error": [],
			"result": {
				"XXBTZUSD": {"base": "XXBT", "quote": "ZUSD", "status": "online"},
				"SOLUSD":   {"base": "SOL",  "quote": "ZUSD", "status": "online"},
				"XXBTZEUR": {"base": "XXBT", "quote": "ZEUR", "status": "online"}
			}
		}`))
	})

	catalog, err := client.FetchPairCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog, 3)
	assert.Equal(t, PairInfo{Base: "XXBT", Quote: "ZUSD", Status: "online"}, catalog["XXBTZUSD"])
	assert.Equal(t, "ZEUR", catalog["XXBTZEUR"].Quote)
}

func TestFetchTicker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/public/Ticker", r.URL.Path)
		assert.Equal(t, "XXBTZUSD,SOLUSD", r.URL.Query().Get("pair"))
		w.Write([]byte(`{
			"error": [],
			"result": {
				"XXBTZUSD": {
					"c": ["50000.1", "0.01"],
					"h": ["51000.0", "51500.0"],
					"l": ["49000.0", "48500.0"],
					"v": ["120.5", "240.7"],
					"o": "49500.0"
				},
				"SOLUSD": {
					"c": ["150.0", "1.0"],
					"h": ["155.0", "156.0"],
					"l": ["148.0", "147.0"],
					"v": ["1000", "2000"],
					"o": "149.0"
				}
			}
		}`))
	})

	tickers, err := client.FetchTicker(context.Background(), []string{"XXBTZUSD", "SOLUSD"})
	require.NoError(t, err)
	require.Len(t, tickers, 2)

	btc := tickers["XXBTZUSD"]
	assert.Equal(t, "50000.1", btc.Close[0])
	assert.Equal(t, "51500.0", btc.High[1])
	assert.Equal(t, "48500.0", btc.Low[1])
	assert.Equal(t, "240.7", btc.Volume[1])
	assert.Equal(t, "49500.0", btc.Open)
}

func TestFetchTickerNoPairs(t *testing.T) {
	client := NewKrakenClient(nil)
	_, err := client.FetchTicker(context.Background(), nil)
	require.Error(t, err)
}

func TestAPIErrorArray(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": ["EQuery:Unknown asset pair"], "result": {}}`))
	})

	_, err := client.FetchTicker(context.Background(), []string{"NOPE"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EQuery:Unknown asset pair")
}

func TestMissingResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": []}`))
	})

	_, err := client.FetchPairCatalog(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no result")
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"error": [], "result": {"XXBTZUSD": {"base": "XXBT", "quote": "ZUSD", "status": "online"}}}`))
	})

	catalog, err := client.FetchPairCatalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, catalog, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FetchPairCatalog(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}
