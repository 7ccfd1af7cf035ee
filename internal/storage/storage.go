// Package storage defines the persistence contract of the trading ledger
// and its in-memory and postgres implementations.
package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/paperhands/paperhands/internal/domain"
)

// Storage is the persistence contract the ledger operates against.
// Implementations must make each individual operation atomic; the ledger
// serializes whole trades above this interface.
type Storage interface {
	// GetOrCreateAccount returns the account with the given username,
	// creating it with the initial balance on first access. Idempotent.
	GetOrCreateAccount(ctx context.Context, username string, initialBalance decimal.Decimal) (domain.Account, error)
	// UpdateBalance sets the account's current balance.
	UpdateBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error
	// ResetBalance restores the account's balance to its initial value.
	ResetBalance(ctx context.Context, accountID int64) error

	// GetHolding returns the holding for (account, symbol); the bool
	// reports whether it exists.
	GetHolding(ctx context.Context, accountID int64, symbol string) (domain.Holding, bool, error)
	// ListHoldings returns all holdings with positive quantity, most
	// recently updated first.
	ListHoldings(ctx context.Context, accountID int64) ([]domain.Holding, error)
	// UpsertHolding creates or replaces the (account, symbol) holding.
	UpsertHolding(ctx context.Context, accountID int64, symbol string, quantity, avgPrice decimal.Decimal) error
	// DeleteDustHoldings removes holdings at or below the threshold quantity.
	DeleteDustHoldings(ctx context.Context, accountID int64, threshold decimal.Decimal) error
	// DeleteHoldings removes every holding of the account.
	DeleteHoldings(ctx context.Context, accountID int64) error

	// AppendTransaction appends one immutable transaction record.
	AppendTransaction(ctx context.Context, tx domain.Transaction) error
	// ListTransactions returns the account's records, newest first.
	ListTransactions(ctx context.Context, accountID int64) ([]domain.Transaction, error)
	// DeleteTransactions removes the account's whole history.
	DeleteTransactions(ctx context.Context, accountID int64) error

	// Close releases underlying resources.
	Close() error
}
