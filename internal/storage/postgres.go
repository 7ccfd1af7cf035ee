package storage

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/paperhands/paperhands/internal/domain"
)

// Postgres is a Storage backed by a postgres database.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool and ensures the schema exists.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "ping postgres")
	}

	p := &Postgres{db: db}
	if err := p.migrate(ctx); err != nil {
		return nil, errors.Wrap(err, "migrate schema")
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS accounts (
		id              BIGSERIAL PRIMARY KEY,
		username        TEXT NOT NULL UNIQUE,
		balance         NUMERIC(24,8) NOT NULL,
		initial_balance NUMERIC(24,8) NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS holdings (
		account_id    BIGINT NOT NULL REFERENCES accounts(id),
		symbol        TEXT NOT NULL,
		quantity      NUMERIC(32,12) NOT NULL,
		average_price NUMERIC(24,8) NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (account_id, symbol)
	);
	CREATE TABLE IF NOT EXISTS transactions (
		id             TEXT PRIMARY KEY,
		account_id     BIGINT NOT NULL REFERENCES accounts(id),
		symbol         TEXT NOT NULL,
		side           TEXT NOT NULL,
		quantity       NUMERIC(32,12) NOT NULL,
		price          NUMERIC(24,8) NOT NULL,
		total          NUMERIC(24,8) NOT NULL,
		balance_before NUMERIC(24,8) NOT NULL,
		balance_after  NUMERIC(24,8) NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS transactions_account_created_idx
		ON transactions (account_id, created_at DESC);`)
	return err
}

func (p *Postgres) GetOrCreateAccount(ctx context.Context, username string, initialBalance decimal.Decimal) (domain.Account, error) {
	// insert-if-absent keeps repeated lookups idempotent
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO accounts (username, balance, initial_balance)
		VALUES ($1, $2, $2)
		ON CONFLICT (username) DO NOTHING`,
		username, initialBalance.String())
	if err != nil {
		return domain.Account{}, errors.Wrap(err, "create account")
	}

	var (
		account                domain.Account
		balanceStr, initialStr string
	)
	err = p.db.QueryRowContext(ctx, `
		SELECT id, username, balance, initial_balance, created_at, updated_at
		FROM accounts WHERE username = $1`, username).
		Scan(&account.ID, &account.Username, &balanceStr, &initialStr, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return domain.Account{}, errors.Wrap(err, "load account")
	}

	if account.Balance, err = decimal.NewFromString(balanceStr); err != nil {
		return domain.Account{}, errors.Wrap(err, "parse balance")
	}
	if account.InitialBalance, err = decimal.NewFromString(initialStr); err != nil {
		return domain.Account{}, errors.Wrap(err, "parse initial balance")
	}
	return account, nil
}

func (p *Postgres) UpdateBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE accounts SET balance = $1, updated_at = now() WHERE id = $2`,
		balance.String(), accountID)
	if err != nil {
		return errors.Wrap(err, "update balance")
	}
	return requireRowAffected(res)
}

func (p *Postgres) ResetBalance(ctx context.Context, accountID int64) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE accounts SET balance = initial_balance, updated_at = now() WHERE id = $1`,
		accountID)
	if err != nil {
		return errors.Wrap(err, "reset balance")
	}
	return requireRowAffected(res)
}

func (p *Postgres) GetHolding(ctx context.Context, accountID int64, symbol string) (domain.Holding, bool, error) {
	var (
		holding          domain.Holding
		qtyStr, priceStr string
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT account_id, symbol, quantity, average_price, updated_at
		FROM holdings WHERE account_id = $1 AND symbol = $2`, accountID, symbol).
		Scan(&holding.AccountID, &holding.Symbol, &qtyStr, &priceStr, &holding.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Holding{}, false, nil
	}
	if err != nil {
		return domain.Holding{}, false, errors.Wrap(err, "load holding")
	}

	if holding.Quantity, err = decimal.NewFromString(qtyStr); err != nil {
		return domain.Holding{}, false, errors.Wrap(err, "parse quantity")
	}
	if holding.AvgPrice, err = decimal.NewFromString(priceStr); err != nil {
		return domain.Holding{}, false, errors.Wrap(err, "parse average price")
	}
	return holding, true, nil
}

func (p *Postgres) ListHoldings(ctx context.Context, accountID int64) ([]domain.Holding, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT account_id, symbol, quantity, average_price, updated_at
		FROM holdings
		WHERE account_id = $1 AND quantity > 0
		ORDER BY updated_at DESC`, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "list holdings")
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var (
			h                domain.Holding
			qtyStr, priceStr string
		)
		if err := rows.Scan(&h.AccountID, &h.Symbol, &qtyStr, &priceStr, &h.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan holding")
		}
		if h.Quantity, err = decimal.NewFromString(qtyStr); err != nil {
			return nil, errors.Wrap(err, "parse quantity")
		}
		if h.AvgPrice, err = decimal.NewFromString(priceStr); err != nil {
			return nil, errors.Wrap(err, "parse average price")
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func (p *Postgres) UpsertHolding(ctx context.Context, accountID int64, symbol string, quantity, avgPrice decimal.Decimal) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO holdings (account_id, symbol, quantity, average_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, symbol) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			average_price = EXCLUDED.average_price,
			updated_at = now()`,
		accountID, symbol, quantity.String(), avgPrice.String())
	return errors.Wrap(err, "upsert holding")
}

func (p *Postgres) DeleteDustHoldings(ctx context.Context, accountID int64, threshold decimal.Decimal) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM holdings WHERE account_id = $1 AND quantity <= $2`,
		accountID, threshold.String())
	return errors.Wrap(err, "delete dust holdings")
}

func (p *Postgres) DeleteHoldings(ctx context.Context, accountID int64) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM holdings WHERE account_id = $1`, accountID)
	return errors.Wrap(err, "delete holdings")
}

func (p *Postgres) AppendTransaction(ctx context.Context, tx domain.Transaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transactions
			(id, account_id, symbol, side, quantity, price, total, balance_before, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tx.ID, tx.AccountID, tx.Symbol, string(tx.Side),
		tx.Quantity.String(), tx.Price.String(), tx.Total.String(),
		tx.BalanceBefore.String(), tx.BalanceAfter.String(), tx.CreatedAt)
	return errors.Wrap(err, "append transaction")
}

func (p *Postgres) ListTransactions(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, account_id, symbol, side, quantity, price, total, balance_before, balance_after, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "list transactions")
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var (
			tx                                           domain.Transaction
			side, qty, price, total, balBefore, balAfter string
		)
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Symbol, &side, &qty, &price, &total, &balBefore, &balAfter, &tx.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan transaction")
		}
		tx.Side = domain.Side(side)
		if tx.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, errors.Wrap(err, "parse quantity")
		}
		if tx.Price, err = decimal.NewFromString(price); err != nil {
			return nil, errors.Wrap(err, "parse price")
		}
		if tx.Total, err = decimal.NewFromString(total); err != nil {
			return nil, errors.Wrap(err, "parse total")
		}
		if tx.BalanceBefore, err = decimal.NewFromString(balBefore); err != nil {
			return nil, errors.Wrap(err, "parse balance before")
		}
		if tx.BalanceAfter, err = decimal.NewFromString(balAfter); err != nil {
			return nil, errors.Wrap(err, "parse balance after")
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func (p *Postgres) DeleteTransactions(ctx context.Context, accountID int64) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM transactions WHERE account_id = $1`, accountID)
	return errors.Wrap(err, "delete transactions")
}

func (p *Postgres) Close() error { return p.db.Close() }

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}
