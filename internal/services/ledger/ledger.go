// Package ledger implements the paper-trading account: trade execution
// with average-cost-basis accounting, history, and account reset.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paperhands/paperhands/internal/domain"
	"github.com/paperhands/paperhands/internal/storage"
)

// demoUsername single built-in account of the simulator.
const demoUsername = "demo-trader"

// dustThreshold positions at or below this residual quantity after a sell
// are purged instead of being kept as unsellable dust.
var dustThreshold = decimal.RequireFromString("0.00000001")

// equityJournal is the subset of the equity journal the ledger writes to.
type equityJournal interface {
	Save(snapshot domain.EquitySnapshot) error
}

// Ledger executes paper trades against a Storage and journals equity
// after every committed mutation. All trades are serialized by a single
// mutex so concurrent requests observe consistent balances.
type Ledger struct {
	mu             sync.Mutex
	store          storage.Storage
	journal        equityJournal
	initialBalance decimal.Decimal
	logger         *zap.Logger
}

// New creates a Ledger. journal may be nil to disable equity journaling.
func New(store storage.Storage, journal equityJournal, initialBalance decimal.Decimal, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:          store,
		journal:        journal,
		initialBalance: initialBalance,
		logger:         logger,
	}
}

// Account returns the demo account, creating it on first access.
func (l *Ledger) Account(ctx context.Context) (domain.Account, error) {
	return l.store.GetOrCreateAccount(ctx, demoUsername, l.initialBalance)
}

// ExecuteTrade validates and commits one BUY or SELL at the given price.
// The committed transaction record is returned.
func (l *Ledger) ExecuteTrade(ctx context.Context, tradeType, symbol string, quantity, price decimal.Decimal) (domain.Transaction, error) {
	side, ok := domain.ParseSide(tradeType)
	if !ok {
		return domain.Transaction{}, InvalidTradeTypeError{Type: tradeType}
	}
	if !quantity.IsPositive() {
		return domain.Transaction{}, ErrInvalidQuantity
	}
	if !price.IsPositive() {
		return domain.Transaction{}, ErrInvalidPrice
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	account, err := l.store.GetOrCreateAccount(ctx, demoUsername, l.initialBalance)
	if err != nil {
		return domain.Transaction{}, errors.Wrap(err, "load account")
	}

	total := quantity.Mul(price)

	var balanceAfter decimal.Decimal
	switch side {
	case domain.SideBuy:
		balanceAfter, err = l.applyBuy(ctx, account, symbol, quantity, price, total)
	case domain.SideSell:
		balanceAfter, err = l.applySell(ctx, account, symbol, quantity, total)
	}
	if err != nil {
		return domain.Transaction{}, err
	}

	tx := domain.Transaction{
		ID:            uuid.NewString(),
		AccountID:     account.ID,
		Symbol:        symbol,
		Side:          side,
		Quantity:      quantity,
		Price:         price,
		Total:         total,
		BalanceBefore: account.Balance,
		BalanceAfter:  balanceAfter,
		CreatedAt:     time.Now().UTC(),
	}
	if err := l.store.AppendTransaction(ctx, tx); err != nil {
		return domain.Transaction{}, errors.Wrap(err, "record transaction")
	}

	l.journalEquity(domain.EquitySnapshot{
		Timestamp: tx.CreatedAt,
		Balance:   balanceAfter.String(),
		Symbol:    symbol,
		Side:      string(side),
		Total:     total.String(),
	})

	l.logger.Info("trade executed",
		zap.String("side", string(side)),
		zap.String("symbol", symbol),
		zap.String("quantity", quantity.String()),
		zap.String("price", price.String()),
		zap.String("balance_after", balanceAfter.String()))

	return tx, nil
}

// applyBuy debits the balance and folds the purchase into the holding's
// weighted average price. A buy that costs exactly the full balance succeeds.
func (l *Ledger) applyBuy(ctx context.Context, account domain.Account, symbol string, quantity, price, total decimal.Decimal) (decimal.Decimal, error) {
	if total.GreaterThan(account.Balance) {
		return decimal.Decimal{}, InsufficientBalanceError{Required: total, Available: account.Balance}
	}

	holding, exists, err := l.store.GetHolding(ctx, account.ID, symbol)
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "load holding")
	}

	newQuantity := quantity
	newAvgPrice := price
	if exists {
		newQuantity = holding.Quantity.Add(quantity)
		invested := holding.TotalInvested().Add(total)
		newAvgPrice = invested.DivRound(newQuantity, 8)
	}

	if err := l.store.UpsertHolding(ctx, account.ID, symbol, newQuantity, newAvgPrice); err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "update holding")
	}

	balanceAfter := account.Balance.Sub(total)
	if err := l.store.UpdateBalance(ctx, account.ID, balanceAfter); err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "update balance")
	}
	return balanceAfter, nil
}

// applySell credits the proceeds and reduces the holding; the average
// price of the remainder is unchanged. Residual dust is purged.
func (l *Ledger) applySell(ctx context.Context, account domain.Account, symbol string, quantity, total decimal.Decimal) (decimal.Decimal, error) {
	holding, exists, err := l.store.GetHolding(ctx, account.ID, symbol)
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "load holding")
	}
	if !exists || !holding.Quantity.IsPositive() {
		return decimal.Decimal{}, NoHoldingError{Symbol: symbol}
	}
	if quantity.GreaterThan(holding.Quantity) {
		return decimal.Decimal{}, InsufficientHoldingError{
			Symbol:    symbol,
			Required:  quantity,
			Available: holding.Quantity,
		}
	}

	remaining := holding.Quantity.Sub(quantity)
	if err := l.store.UpsertHolding(ctx, account.ID, symbol, remaining, holding.AvgPrice); err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "update holding")
	}
	if remaining.LessThanOrEqual(dustThreshold) {
		if err := l.store.DeleteDustHoldings(ctx, account.ID, dustThreshold); err != nil {
			return decimal.Decimal{}, errors.Wrap(err, "purge dust holdings")
		}
	}

	balanceAfter := account.Balance.Add(total)
	if err := l.store.UpdateBalance(ctx, account.ID, balanceAfter); err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "update balance")
	}
	return balanceAfter, nil
}

// Reset restores the initial balance and wipes all holdings and history.
func (l *Ledger) Reset(ctx context.Context) (domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	account, err := l.store.GetOrCreateAccount(ctx, demoUsername, l.initialBalance)
	if err != nil {
		return domain.Account{}, errors.Wrap(err, "load account")
	}

	if err := l.store.ResetBalance(ctx, account.ID); err != nil {
		return domain.Account{}, errors.Wrap(err, "reset balance")
	}
	if err := l.store.DeleteHoldings(ctx, account.ID); err != nil {
		return domain.Account{}, errors.Wrap(err, "delete holdings")
	}
	if err := l.store.DeleteTransactions(ctx, account.ID); err != nil {
		return domain.Account{}, errors.Wrap(err, "delete transactions")
	}

	account, err = l.store.GetOrCreateAccount(ctx, demoUsername, l.initialBalance)
	if err != nil {
		return domain.Account{}, errors.Wrap(err, "reload account")
	}

	l.journalEquity(domain.EquitySnapshot{
		Timestamp: time.Now().UTC(),
		Balance:   account.Balance.String(),
	})

	l.logger.Info("account reset", zap.String("balance", account.Balance.String()))
	return account, nil
}

// Transactions returns the account's trade history, newest first.
func (l *Ledger) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	account, err := l.store.GetOrCreateAccount(ctx, demoUsername, l.initialBalance)
	if err != nil {
		return nil, errors.Wrap(err, "load account")
	}
	return l.store.ListTransactions(ctx, account.ID)
}

// Balance returns the account's current cash balance.
func (l *Ledger) Balance(ctx context.Context) (decimal.Decimal, error) {
	account, err := l.store.GetOrCreateAccount(ctx, demoUsername, l.initialBalance)
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "load account")
	}
	return account.Balance, nil
}

// Holdings returns the account's open positions, most recently updated first.
func (l *Ledger) Holdings(ctx context.Context) ([]domain.Holding, error) {
	account, err := l.store.GetOrCreateAccount(ctx, demoUsername, l.initialBalance)
	if err != nil {
		return nil, errors.Wrap(err, "load account")
	}
	return l.store.ListHoldings(ctx, account.ID)
}

func (l *Ledger) journalEquity(snapshot domain.EquitySnapshot) {
	if l.journal == nil {
		return
	}
	if err := l.journal.Save(snapshot); err != nil {
		l.logger.Warn("equity journal write failed", zap.Error(err))
	}
}
