package domain

import "github.com/shopspring/decimal"

// AccountSummary aggregates the account balance with the current
// valuation of every holding.
type AccountSummary struct {
	Balance             decimal.Decimal    `json:"balance"`
	InitialBalance      decimal.Decimal    `json:"initialBalance"`
	TotalPortfolioValue decimal.Decimal    `json:"portfolioValue"`
	TotalPnL            decimal.Decimal    `json:"totalPnL"`
	TotalPnLPercent     decimal.Decimal    `json:"totalPnLPercent"`
	Holdings            []HoldingValuation `json:"portfolio"`
}
