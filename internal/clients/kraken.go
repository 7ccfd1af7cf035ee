// Package clients contains thin HTTP clients for external services.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/paperhands/paperhands/pkg/retrier"
)

const (
	defaultKrakenBaseURL = "https://api.kraken.com"
	defaultTimeout       = 10 * time.Second
)

// PairInfo describes one entry of the exchange pair catalog.
type PairInfo struct {
	Base   string `json:"base"`
	Quote  string `json:"quote"`
	Status string `json:"status"`
}

// Ticker is the raw ticker payload for one pair. Kraken encodes most
// fields as arrays of decimal strings: c[0] is the last close, h[1]/l[1]/v[1]
// are the rolling 24h high/low/volume, o is the session open.
type Ticker struct {
	Close  []string `json:"c"`
	High   []string `json:"h"`
	Low    []string `json:"l"`
	Volume []string `json:"v"`
	Open   string   `json:"o"`
}

// KrakenClient is a read-only client for the Kraken public market data API.
type KrakenClient struct {
	baseURL    string
	httpClient *http.Client
	retrier    *retrier.Retrier
	logger     *zap.Logger
}

// KrakenOption configures the client.
type KrakenOption func(*KrakenClient)

// WithBaseURL overrides the API base URL (used by tests).
func WithBaseURL(u string) KrakenOption {
	return func(c *KrakenClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) KrakenOption {
	return func(c *KrakenClient) {
		c.httpClient = hc
	}
}

// WithRetrier overrides the retry policy for upstream calls.
func WithRetrier(r *retrier.Retrier) KrakenOption {
	return func(c *KrakenClient) {
		c.retrier = r
	}
}

// NewKrakenClient creates a Kraken public API client.
func NewKrakenClient(logger *zap.Logger, opts ...KrakenOption) *KrakenClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &KrakenClient{
		baseURL:    defaultKrakenBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		retrier:    retrier.New(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPairCatalog returns the full tradable pair catalog keyed by pair id.
func (c *KrakenClient) FetchPairCatalog(ctx context.Context) (map[string]PairInfo, error) {
	var catalog map[string]PairInfo
	if err := c.getResult(ctx, "/0/public/AssetPairs", &catalog); err != nil {
		return nil, errors.Wrap(err, "fetch pair catalog")
	}
	return catalog, nil
}

// FetchTicker returns ticker payloads for the given pair ids in one
// batched call. Pairs the exchange does not report on are simply absent
// from the result.
func (c *KrakenClient) FetchTicker(ctx context.Context, pairIDs []string) (map[string]Ticker, error) {
	if len(pairIDs) == 0 {
		return nil, errors.New("no pair ids requested")
	}

	path := "/0/public/Ticker?pair=" + url.QueryEscape(strings.Join(pairIDs, ","))

	var tickers map[string]Ticker
	if err := c.getResult(ctx, path, &tickers); err != nil {
		return nil, errors.Wrap(err, "fetch ticker")
	}
	return tickers, nil
}

// krakenEnvelope is the common response wrapper: errors come back in a
// string array, payloads under "result".
type krakenEnvelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (c *KrakenClient) getResult(ctx context.Context, path string, out any) error {
	body, err := retrier.DoWithData(c.retrier, ctx, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, path)
	})
	if err != nil {
		return err
	}

	var envelope krakenEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return errors.Wrap(err, "decode response")
	}
	if len(envelope.Error) > 0 {
		return fmt.Errorf("kraken API error: %s", strings.Join(envelope.Error, "; "))
	}
	if len(envelope.Result) == 0 {
		return errors.New("kraken response has no result")
	}

	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return errors.Wrap(err, "decode result")
	}
	return nil
}

func (c *KrakenClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return body, nil
}
