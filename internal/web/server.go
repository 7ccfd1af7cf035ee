// Package web exposes the market data and trading ledger over HTTP:
// JSON endpoints plus SSE streams for live prices and equity history.
package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/paperhands/paperhands/internal/domain"
	"github.com/paperhands/paperhands/internal/services/ledger"
	"github.com/paperhands/paperhands/internal/services/market"
)

const equityPollInterval = 2 * time.Second

type marketData interface {
	RefreshNow(ctx context.Context) ([]domain.PriceSnapshot, error)
	FetchSymbol(ctx context.Context, symbol string) (domain.PriceSnapshot, error)
}

type priceCache interface {
	Get(symbol string) (domain.PriceSnapshot, bool)
	GetAll() ([]domain.PriceSnapshot, error)
}

type priceFeed interface {
	Subscribe() *market.Subscription
}

type tradingLedger interface {
	ExecuteTrade(ctx context.Context, tradeType, symbol string, quantity, price decimal.Decimal) (domain.Transaction, error)
	Reset(ctx context.Context) (domain.Account, error)
	Transactions(ctx context.Context) ([]domain.Transaction, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
}

type portfolioValuer interface {
	Summarize(ctx context.Context) (domain.AccountSummary, error)
}

type equityReader interface {
	SnapshotsAfter(index uint64) ([]domain.EquitySnapshotRecord, error)
}

// Server wires the HTTP surface over the core services.
type Server struct {
	addr   string
	market marketData
	cache  priceCache
	feed   priceFeed
	ledger tradingLedger
	valuer portfolioValuer
	equity equityReader
	logger *zap.Logger
}

// NewServer creates a Server. equity may be nil when journaling is disabled.
func NewServer(addr string, md marketData, cache priceCache, feed priceFeed, tl tradingLedger, valuer portfolioValuer, equity equityReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:   addr,
		market: md,
		cache:  cache,
		feed:   feed,
		ledger: tl,
		valuer: valuer,
		equity: equity,
		logger: logger,
	}
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/market/prices", s.handlePrices)
	mux.HandleFunc("GET /api/market/prices/cached", s.handleCachedPrices)
	mux.HandleFunc("GET /api/market/prices/stream", s.handlePriceStream)
	mux.HandleFunc("GET /api/market/prices/{symbol}", s.handleSymbolPrice)
	mux.HandleFunc("POST /api/trading/trade", s.handleTrade)
	mux.HandleFunc("GET /api/trading/account", s.handleAccount)
	mux.HandleFunc("POST /api/trading/account/reset", s.handleReset)
	mux.HandleFunc("GET /api/trading/transactions", s.handleTransactions)
	mux.HandleFunc("GET /api/trading/balance", s.handleBalance)
	mux.HandleFunc("GET /equity/stream", s.handleEquityStream)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates via
// ACME, plus an HTTP server on port 80 for HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("acme http server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("acme http server", zap.Error(err))
		}
	}()

	s.logger.Info("https server listening", zap.String("addr", s.addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	batch, err := s.market.RefreshNow(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, batch)
}

func (s *Server) handleCachedPrices(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.cache.GetAll()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, snapshots)
}

func (s *Server) handleSymbolPrice(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if snapshot, ok := s.cache.Get(symbol); ok {
		s.writeData(w, http.StatusOK, snapshot)
		return
	}

	snapshot, err := s.market.FetchSymbol(r.Context(), symbol)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, snapshot)
}

func (s *Server) handlePriceStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := s.feed.Subscribe()
	defer sub.Close()

	setSSEHeaders(w)

	// current cache contents first so clients render immediately
	if snapshots, err := s.cache.GetAll(); err == nil {
		if err := writeSSEEvent(w, "prices", snapshots); err != nil {
			return
		}
		flusher.Flush()
	}

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case batch, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeSSEEvent(w, "prices", batch); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

type tradeRequest struct {
	Symbol   string `json:"symbol"`
	Type     string `json:"type"`
	Quantity string `json:"quantity"`
	Price    string `json:"price,omitempty"`
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		s.writeFailure(w, http.StatusBadRequest, "invalid quantity")
		return
	}

	price, err := s.resolveTradePrice(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	tx, err := s.ledger.ExecuteTrade(r.Context(), req.Type, req.Symbol, quantity, price)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"transaction": tx,
		"newBalance":  tx.BalanceAfter,
	})
}

// resolveTradePrice uses the client-submitted price when present and falls
// back to the current market price otherwise.
func (s *Server) resolveTradePrice(ctx context.Context, req tradeRequest) (decimal.Decimal, error) {
	if req.Price != "" {
		price, err := decimal.NewFromString(req.Price)
		if err != nil {
			return decimal.Decimal{}, ledger.ErrInvalidPrice
		}
		return price, nil
	}

	if snapshot, ok := s.cache.Get(req.Symbol); ok {
		return snapshot.Price, nil
	}
	snapshot, err := s.market.FetchSymbol(ctx, req.Symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return snapshot.Price, nil
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	summary, err := s.valuer.Summarize(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, summary)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	account, err := s.ledger.Reset(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"balance": account.Balance,
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := s.ledger.Transactions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}
	s.writeData(w, http.StatusOK, transactions)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.ledger.Balance(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"balance": balance,
	})
}

func (s *Server) handleEquityStream(w http.ResponseWriter, r *http.Request) {
	if s.equity == nil {
		s.writeFailure(w, http.StatusServiceUnavailable, "equity journal not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	setSSEHeaders(w)

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(equityPollInterval)
	defer pollTicker.Stop()

	lastIndex := parseLastEventID(r.Header.Get("Last-Event-ID"))
	sendSnapshots := func() error {
		records, err := s.equity.SnapshotsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Snapshot)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprint(w, "event: equity\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendSnapshots(); err != nil {
		s.logger.Warn("equity stream initial load", zap.Error(err))
		http.Error(w, "failed to load equity snapshots", http.StatusInternalServerError)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendSnapshots(); err != nil {
				s.logger.Warn("equity stream poll", zap.Error(err))
			}
		}
	}
}

// writeError maps core errors to HTTP statuses: validation and trade state
// errors are 400, an empty cache is 503, an unknown symbol is 404.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		invalidType         ledger.InvalidTradeTypeError
		insufficientBalance ledger.InsufficientBalanceError
		noHolding           ledger.NoHoldingError
		insufficientHolding ledger.InsufficientHoldingError
	)
	switch {
	case errors.As(err, &invalidType),
		errors.As(err, &insufficientBalance),
		errors.As(err, &noHolding),
		errors.As(err, &insufficientHolding),
		errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrInvalidPrice):
		s.writeFailure(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, market.ErrEmptyCache):
		s.writeFailure(w, http.StatusServiceUnavailable, "no price data available yet")
	case errors.Is(err, market.ErrUnknownSymbol):
		s.writeFailure(w, http.StatusNotFound, "unknown symbol")
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.writeFailure(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeData(w http.ResponseWriter, status int, data any) {
	s.writeJSON(w, status, map[string]any{
		"success": true,
		"data":    data,
	})
}

func (s *Server) writeFailure(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeSSEEvent(w http.ResponseWriter, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

func parseLastEventID(header string) uint64 {
	if header == "" {
		return 0
	}
	id, err := strconv.ParseUint(header, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
