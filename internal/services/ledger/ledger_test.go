package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperhands/paperhands/internal/domain"
	"github.com/paperhands/paperhands/internal/storage"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(storage.NewMemory(), nil, dec("10000.00"), nil)
}

func TestBuyCreatesHoldingAndDebitsBalance(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	tx, err := l.ExecuteTrade(ctx, "BUY", "BTC", dec("0.1"), dec("50000"))
	require.NoError(t, err)

	assert.Equal(t, domain.SideBuy, tx.Side)
	assert.True(t, tx.Total.Equal(dec("5000")))
	assert.True(t, tx.BalanceBefore.Equal(dec("10000")))
	assert.True(t, tx.BalanceAfter.Equal(dec("5000")))
	assert.NotEmpty(t, tx.ID)

	balance, err := l.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("5000")))

	holdings, err := l.Holdings(ctx)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.True(t, holdings[0].Quantity.Equal(dec("0.1")))
	assert.True(t, holdings[0].AvgPrice.Equal(dec("50000")))
}

func TestBuyAveragesCostBasis(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ExecuteTrade(ctx, "BUY", "ETH", dec("1"), dec("100"))
	require.NoError(t, err)
	_, err = l.ExecuteTrade(ctx, "BUY", "ETH", dec("1"), dec("200"))
	require.NoError(t, err)

	holdings, err := l.Holdings(ctx)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.True(t, holdings[0].Quantity.Equal(dec("2")))
	assert.True(t, holdings[0].AvgPrice.Equal(dec("150")), holdings[0].AvgPrice.String())
}

func TestBuyExactBalanceSucceeds(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ExecuteTrade(ctx, "BUY", "BTC", dec("1"), dec("10000"))
	require.NoError(t, err)

	balance, err := l.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestBuyInsufficientBalance(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ExecuteTrade(ctx, "BUY", "BTC", dec("1"), dec("10000.01"))
	var insufficient InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Required.Equal(dec("10000.01")))
	assert.True(t, insufficient.Available.Equal(dec("10000")))

	// nothing was committed
	balance, berr := l.Balance(ctx)
	require.NoError(t, berr)
	assert.True(t, balance.Equal(dec("10000")))
	txs, terr := l.Transactions(ctx)
	require.NoError(t, terr)
	assert.Empty(t, txs)
}

func TestSellCreditsProceedsAndKeepsAvgPrice(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ExecuteTrade(ctx, "BUY", "BTC", dec("2"), dec("1000"))
	require.NoError(t, err)
	tx, err := l.ExecuteTrade(ctx, "SELL", "BTC", dec("1"), dec("1500"))
	require.NoError(t, err)

	assert.True(t, tx.BalanceAfter.Equal(dec("9500")), tx.BalanceAfter.String())

	holdings, err := l.Holdings(ctx)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.True(t, holdings[0].Quantity.Equal(dec("1")))
	assert.True(t, holdings[0].AvgPrice.Equal(dec("1000")), "average price must not change on sell")
}

func TestSellWithoutHolding(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.ExecuteTrade(context.Background(), "SELL", "BTC", dec("1"), dec("100"))
	var noHolding NoHoldingError
	require.ErrorAs(t, err, &noHolding)
	assert.Equal(t, "BTC", noHolding.Symbol)
}

func TestSellMoreThanHeld(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ExecuteTrade(ctx, "BUY", "BTC", dec("1"), dec("100"))
	require.NoError(t, err)

	_, err = l.ExecuteTrade(ctx, "SELL", "BTC", dec("1.5"), dec("100"))
	var insufficient InsufficientHoldingError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Required.Equal(dec("1.5")))
	assert.True(t, insufficient.Available.Equal(dec("1")))
}

func TestSellEntirePositionPurgesHolding(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ExecuteTrade(ctx, "BUY", "BTC", dec("1"), dec("100"))
	require.NoError(t, err)
	_, err = l.ExecuteTrade(ctx, "SELL", "BTC", dec("1"), dec("100"))
	require.NoError(t, err)

	holdings, err := l.Holdings(ctx)
	require.NoError(t, err)
	assert.Empty(t, holdings)

	// a fresh buy starts a new position at the new price
	_, err = l.ExecuteTrade(ctx, "BUY", "BTC", dec("1"), dec("500"))
	require.NoError(t, err)
	holdings, err = l.Holdings(ctx)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.True(t, holdings[0].AvgPrice.Equal(dec("500")))
}

func TestSellLeavingDustPurgesHolding(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ExecuteTrade(ctx, "BUY", "BTC", dec("1"), dec("100"))
	require.NoError(t, err)
	// leaves 0.00000001, at the dust threshold
	_, err = l.ExecuteTrade(ctx, "SELL", "BTC", dec("0.99999999"), dec("100"))
	require.NoError(t, err)

	holdings, err := l.Holdings(ctx)
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestTradeValidation(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ExecuteTrade(ctx, "HODL", "BTC", dec("1"), dec("100"))
	var invalidType InvalidTradeTypeError
	require.ErrorAs(t, err, &invalidType)
	assert.Equal(t, "HODL", invalidType.Type)

	_, err = l.ExecuteTrade(ctx, "BUY", "BTC", dec("0"), dec("100"))
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = l.ExecuteTrade(ctx, "BUY", "BTC", dec("-1"), dec("100"))
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = l.ExecuteTrade(ctx, "BUY", "BTC", dec("1"), dec("0"))
	require.ErrorIs(t, err, ErrInvalidPrice)
}

func TestTradeTypeCaseInsensitive(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ExecuteTrade(ctx, "buy", "BTC", dec("1"), dec("100"))
	require.NoError(t, err)
	_, err = l.ExecuteTrade(ctx, "Sell", "BTC", dec("1"), dec("100"))
	require.NoError(t, err)
}

func TestTransactionsNewestFirst(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ExecuteTrade(ctx, "BUY", "BTC", dec("1"), dec("100"))
	require.NoError(t, err)
	_, err = l.ExecuteTrade(ctx, "BUY", "ETH", dec("1"), dec("50"))
	require.NoError(t, err)
	_, err = l.ExecuteTrade(ctx, "SELL", "BTC", dec("1"), dec("110"))
	require.NoError(t, err)

	txs, err := l.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, domain.SideSell, txs[0].Side)
	assert.Equal(t, "ETH", txs[1].Symbol)
	assert.Equal(t, "BTC", txs[2].Symbol)
}

func TestReset(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ExecuteTrade(ctx, "BUY", "BTC", dec("1"), dec("100"))
	require.NoError(t, err)

	account, err := l.Reset(ctx)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec("10000")))

	holdings, err := l.Holdings(ctx)
	require.NoError(t, err)
	assert.Empty(t, holdings)

	txs, err := l.Transactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestConcurrentBuysNeverOverspend(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	// 100 concurrent buys of exactly 100 each against a 10000 balance:
	// all must succeed and the final balance must be exactly zero.
	const n = 100
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.ExecuteTrade(ctx, "BUY", "BTC", dec("1"), dec("100"))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "trade %d", i)
	}

	balance, err := l.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), balance.String())

	holdings, err := l.Holdings(ctx)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.True(t, holdings[0].Quantity.Equal(dec("100")))
}

type captureJournal struct {
	mu        sync.Mutex
	snapshots []domain.EquitySnapshot
}

func (c *captureJournal) Save(s domain.EquitySnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = append(c.snapshots, s)
	return nil
}

func TestEquityJournaledAfterTradeAndReset(t *testing.T) {
	journal := &captureJournal{}
	l := New(storage.NewMemory(), journal, dec("10000.00"), nil)
	ctx := context.Background()

	_, err := l.ExecuteTrade(ctx, "BUY", "BTC", dec("1"), dec("100"))
	require.NoError(t, err)
	_, err = l.Reset(ctx)
	require.NoError(t, err)

	require.Len(t, journal.snapshots, 2)
	assert.Equal(t, "9900", journal.snapshots[0].Balance)
	assert.Equal(t, "BUY", journal.snapshots[0].Side)
	assert.Equal(t, "10000", journal.snapshots[1].Balance)
}
