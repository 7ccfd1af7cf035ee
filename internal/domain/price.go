package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot is the latest observed market state for one symbol.
// Snapshots are immutable; a newer snapshot replaces the older one wholesale.
type PriceSnapshot struct {
	Symbol           string          `json:"symbol"`
	Price            decimal.Decimal `json:"price"`
	Change24h        decimal.Decimal `json:"change24h"`
	Change24hPercent decimal.Decimal `json:"change24hPercent"`
	Volume24h        decimal.Decimal `json:"volume24h"`
	High24h          decimal.Decimal `json:"high24h"`
	Low24h           decimal.Decimal `json:"low24h"`
	UpdatedAt        time.Time       `json:"lastUpdated"`
}
