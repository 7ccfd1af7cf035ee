package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/paperhands/paperhands/internal/domain"
)

// ErrAccountNotFound is returned when mutating an account that was never created.
var ErrAccountNotFound = errors.New("account not found")

// Memory is an in-memory Storage used for tests and zero-setup runs.
type Memory struct {
	mu           sync.Mutex
	account      *domain.Account
	nextID       int64
	holdings     map[string]domain.Holding
	transactions []domain.Transaction
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		nextID:   1,
		holdings: make(map[string]domain.Holding),
	}
}

func (m *Memory) GetOrCreateAccount(_ context.Context, username string, initialBalance decimal.Decimal) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.account != nil {
		return *m.account, nil
	}

	now := time.Now().UTC()
	m.account = &domain.Account{
		ID:             m.nextID,
		Username:       username,
		Balance:        initialBalance,
		InitialBalance: initialBalance,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.nextID++
	return *m.account, nil
}

func (m *Memory) UpdateBalance(_ context.Context, accountID int64, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.account == nil || m.account.ID != accountID {
		return ErrAccountNotFound
	}
	m.account.Balance = balance
	m.account.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) ResetBalance(_ context.Context, accountID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.account == nil || m.account.ID != accountID {
		return ErrAccountNotFound
	}
	m.account.Balance = m.account.InitialBalance
	m.account.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) GetHolding(_ context.Context, accountID int64, symbol string) (domain.Holding, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	holding, ok := m.holdings[symbol]
	if !ok || holding.AccountID != accountID {
		return domain.Holding{}, false, nil
	}
	return holding, true, nil
}

func (m *Memory) ListHoldings(_ context.Context, accountID int64) ([]domain.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	holdings := make([]domain.Holding, 0, len(m.holdings))
	for _, h := range m.holdings {
		if h.AccountID == accountID && h.Quantity.IsPositive() {
			holdings = append(holdings, h)
		}
	}
	sort.Slice(holdings, func(i, j int) bool {
		if !holdings[i].UpdatedAt.Equal(holdings[j].UpdatedAt) {
			return holdings[i].UpdatedAt.After(holdings[j].UpdatedAt)
		}
		return holdings[i].Symbol < holdings[j].Symbol
	})
	return holdings, nil
}

func (m *Memory) UpsertHolding(_ context.Context, accountID int64, symbol string, quantity, avgPrice decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.holdings[symbol] = domain.Holding{
		AccountID: accountID,
		Symbol:    symbol,
		Quantity:  quantity,
		AvgPrice:  avgPrice,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (m *Memory) DeleteDustHoldings(_ context.Context, accountID int64, threshold decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for symbol, h := range m.holdings {
		if h.AccountID == accountID && h.Quantity.LessThanOrEqual(threshold) {
			delete(m.holdings, symbol)
		}
	}
	return nil
}

func (m *Memory) DeleteHoldings(_ context.Context, accountID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for symbol, h := range m.holdings {
		if h.AccountID == accountID {
			delete(m.holdings, symbol)
		}
	}
	return nil
}

func (m *Memory) AppendTransaction(_ context.Context, tx domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *Memory) ListTransactions(_ context.Context, accountID int64) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// newest first
	result := make([]domain.Transaction, 0, len(m.transactions))
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if m.transactions[i].AccountID == accountID {
			result = append(result, m.transactions[i])
		}
	}
	return result, nil
}

func (m *Memory) DeleteTransactions(_ context.Context, accountID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.transactions[:0]
	for _, tx := range m.transactions {
		if tx.AccountID != accountID {
			kept = append(kept, tx)
		}
	}
	m.transactions = kept
	return nil
}

func (m *Memory) Close() error { return nil }
