// Package portfolio values the account's holdings at live market prices.
package portfolio

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paperhands/paperhands/internal/domain"
)

// priceSource resolves the current price of a symbol. Cache misses fall
// through to a direct upstream fetch.
type priceSource interface {
	Get(symbol string) (domain.PriceSnapshot, bool)
}

type symbolFetcher interface {
	FetchSymbol(ctx context.Context, symbol string) (domain.PriceSnapshot, error)
}

type accountReader interface {
	Account(ctx context.Context) (domain.Account, error)
	Holdings(ctx context.Context) ([]domain.Holding, error)
}

// Valuer computes account summaries. Holdings whose price cannot be
// resolved are valued at zero rather than failing the whole summary.
type Valuer struct {
	ledger  accountReader
	cache   priceSource
	fetcher symbolFetcher
	logger  *zap.Logger
}

// NewValuer creates a Valuer.
func NewValuer(ledger accountReader, cache priceSource, fetcher symbolFetcher, logger *zap.Logger) *Valuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Valuer{
		ledger:  ledger,
		cache:   cache,
		fetcher: fetcher,
		logger:  logger,
	}
}

// Summarize values every holding at its current price and aggregates the
// account-level P&L against the initial balance.
func (v *Valuer) Summarize(ctx context.Context) (domain.AccountSummary, error) {
	account, err := v.ledger.Account(ctx)
	if err != nil {
		return domain.AccountSummary{}, errors.Wrap(err, "load account")
	}

	holdings, err := v.ledger.Holdings(ctx)
	if err != nil {
		return domain.AccountSummary{}, errors.Wrap(err, "load holdings")
	}

	valuations := make([]domain.HoldingValuation, 0, len(holdings))
	holdingsValue := decimal.Zero
	for _, h := range holdings {
		price := v.resolvePrice(ctx, h.Symbol)
		valuation := domain.NewHoldingValuation(h, price)
		holdingsValue = holdingsValue.Add(valuation.CurrentValue)
		valuations = append(valuations, valuation)
	}

	totalPnL := account.Balance.Add(holdingsValue).Sub(account.InitialBalance)
	totalPnLPercent := decimal.Zero
	if account.InitialBalance.IsPositive() {
		totalPnLPercent = totalPnL.Div(account.InitialBalance).Round(4).Mul(decimal.NewFromInt(100))
	}

	return domain.AccountSummary{
		Balance:             account.Balance,
		InitialBalance:      account.InitialBalance,
		TotalPortfolioValue: holdingsValue,
		TotalPnL:            totalPnL,
		TotalPnLPercent:     totalPnLPercent,
		Holdings:            valuations,
	}, nil
}

// resolvePrice reads the cache first and falls back to a direct fetch.
// Both failing degrades the holding to a zero valuation.
func (v *Valuer) resolvePrice(ctx context.Context, symbol string) decimal.Decimal {
	if snapshot, ok := v.cache.Get(symbol); ok {
		return snapshot.Price
	}

	snapshot, err := v.fetcher.FetchSymbol(ctx, symbol)
	if err != nil {
		v.logger.Warn("price unavailable, valuing holding at zero",
			zap.String("symbol", symbol),
			zap.Error(err))
		return decimal.Zero
	}
	return snapshot.Price
}
