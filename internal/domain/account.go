package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the single simulated trading account.
type Account struct {
	ID int64 `json:"-"`
	// Username fixed identity of the demo account.
	Username string `json:"-"`
	// Balance current quote-currency balance, never negative.
	Balance decimal.Decimal `json:"balance"`
	// InitialBalance reference value for P&L, immutable after creation.
	InitialBalance decimal.Decimal `json:"initialBalance"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}
