package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is one position of the account: quantity held and its
// quantity-weighted average purchase price. At most one holding
// exists per symbol.
type Holding struct {
	AccountID int64           `json:"-"`
	Symbol    string          `json:"symbol"`
	Quantity  decimal.Decimal `json:"quantity"`
	AvgPrice  decimal.Decimal `json:"avgPrice"`
	UpdatedAt time.Time       `json:"lastUpdated"`
}

// TotalInvested returns the cost basis of the holding.
func (h Holding) TotalInvested() decimal.Decimal {
	return h.Quantity.Mul(h.AvgPrice)
}

// HoldingValuation is a holding together with its value at the current
// market price. It is a flat value type derived by NewHoldingValuation,
// never stored.
type HoldingValuation struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`
	TotalInvested decimal.Decimal `json:"totalInvested"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	CurrentValue  decimal.Decimal `json:"currentValue"`
	PnL           decimal.Decimal `json:"pnl"`
	PnLPercent    decimal.Decimal `json:"pnlPercent"`
	UpdatedAt     time.Time       `json:"lastUpdated"`
}

// NewHoldingValuation values a holding at the given market price.
// pnlPercent is rounded half-up to 4 decimal places before scaling to percent.
func NewHoldingValuation(h Holding, currentPrice decimal.Decimal) HoldingValuation {
	invested := h.TotalInvested()
	value := h.Quantity.Mul(currentPrice)
	pnl := value.Sub(invested)

	pnlPercent := decimal.Zero
	if invested.IsPositive() {
		pnlPercent = pnl.Div(invested).Round(4).Mul(decimal.NewFromInt(100))
	}

	return HoldingValuation{
		Symbol:        h.Symbol,
		Quantity:      h.Quantity,
		AvgPrice:      h.AvgPrice,
		TotalInvested: invested,
		CurrentPrice:  currentPrice,
		CurrentValue:  value,
		PnL:           pnl,
		PnLPercent:    pnlPercent,
		UpdatedAt:     h.UpdatedAt,
	}
}
