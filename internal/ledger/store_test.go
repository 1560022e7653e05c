package ledger

import (
	"context"
	"testing"

	"cargohold-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerStore_OrderingAndSince(t *testing.T) {
	c := newTestCoordinator(t)
	brandID, partID := uuid.New(), uuid.New()
	ctx := context.Background()

	first := receive(t, c, brandID, partID, 5, "1.00")
	second := receive(t, c, brandID, partID, 3, "1.00")
	third := receive(t, c, brandID, partID, 2, "1.00")

	entries, err := c.Ledger.ListFor(ctx, brandID, partID, nil)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, first.EntryID, entries[0].EntryID)
	assert.Equal(t, second.EntryID, entries[1].EntryID)
	assert.Equal(t, third.EntryID, entries[2].EntryID)

	// Balance-after chain matches insertion order.
	assert.Equal(t, int64(5), entries[0].BalanceAfter)
	assert.Equal(t, int64(8), entries[1].BalanceAfter)
	assert.Equal(t, int64(10), entries[2].BalanceAfter)

	latest, err := c.Ledger.LatestFor(ctx, brandID, partID)
	require.NoError(t, err)
	assert.Equal(t, third.EntryID, latest.EntryID)

	_, err = c.Ledger.ListFor(ctx, brandID, partID, &uuid.UUID{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedgerStore_LatestForEmpty(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.Ledger.LatestFor(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWalletLedgerStore_ListByReference(t *testing.T) {
	c := newTestCoordinator(t)
	accountID := uuid.New()
	ctx := context.Background()

	_, err := c.CreditWallet(ctx, accountID, decimal.NewFromInt(100), "top-up", "stripe:pi_123", domain.WalletMeta{})
	require.NoError(t, err)

	entries, err := c.WalletLedger.ListByReference(ctx, "stripe:pi_123")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "stripe:pi_123", entries[0].Reference)
	assert.Equal(t, accountID, entries[0].AccountID)

	entries, err = c.WalletLedger.ListByReference(ctx, "stripe:pi_missing")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
