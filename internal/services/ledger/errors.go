package ledger

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidQuantity is returned when a trade's quantity is not positive.
var ErrInvalidQuantity = errors.New("quantity must be positive")

// ErrInvalidPrice is returned when a trade's price is not positive.
var ErrInvalidPrice = errors.New("price must be positive")

// InvalidTradeTypeError is returned when the trade type is neither BUY nor SELL.
type InvalidTradeTypeError struct {
	Type string
}

func (e InvalidTradeTypeError) Error() string {
	return fmt.Sprintf("invalid trade type %q, must be BUY or SELL", e.Type)
}

// InsufficientBalanceError is returned when a buy costs more than the
// account's cash balance.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s",
		e.Required.StringFixed(2), e.Available.StringFixed(2))
}

// NoHoldingError is returned when selling a symbol the account does not hold.
type NoHoldingError struct {
	Symbol string
}

func (e NoHoldingError) Error() string {
	return fmt.Sprintf("no holding for %s", e.Symbol)
}

// InsufficientHoldingError is returned when selling more units than held.
type InsufficientHoldingError struct {
	Symbol    string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e InsufficientHoldingError) Error() string {
	return fmt.Sprintf("insufficient holding of %s: required %s, available %s",
		e.Symbol, e.Required.String(), e.Available.String())
}
