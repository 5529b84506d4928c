package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"finlens/statement-ledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRepository(db)
}

func sampleTransaction() models.Transaction {
	return models.Transaction{
		Date:     time.Date(2024, 9, 22, 0, 0, 0, 0, time.UTC),
		Merchant: "PAYPAL *STARBUCKS SEATTLE",
		Amount:   decimal.NewFromFloat(25.00),
		Kind:     models.KindCharge,
		Issuer:   models.IssuerAmex,
		Category: "Fun",
	}
}

func TestStoreAndList(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	id, err := repo.StoreTransaction(ctx, sampleTransaction())
	require.NoError(t, err)
	assert.Positive(t, id)

	list, err := repo.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	stored := list[0]
	assert.Equal(t, "PAYPAL *STARBUCKS SEATTLE", stored.Merchant)
	assert.True(t, decimal.NewFromFloat(25.00).Equal(stored.Amount))
	assert.Equal(t, models.KindCharge, stored.Kind)
	assert.Equal(t, models.IssuerAmex, stored.Issuer)
	assert.Equal(t, "Fun", stored.Category)
}

func TestStoreIsIdempotent(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	tx := sampleTransaction()
	first, err := repo.StoreTransaction(ctx, tx)
	require.NoError(t, err)

	tx.Category = "Grocery"
	tx.Note = "reclassified"
	second, err := repo.StoreTransaction(ctx, tx)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	list, err := repo.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Grocery", list[0].Category)
	assert.Equal(t, "reclassified", list[0].Note)
}

func TestDistinctFingerprintsCreateRows(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	first := sampleTransaction()
	second := sampleTransaction()
	second.Amount = decimal.NewFromFloat(26.00)

	_, err := repo.StoreTransaction(ctx, first)
	require.NoError(t, err)
	_, err = repo.StoreTransaction(ctx, second)
	require.NoError(t, err)

	list, err := repo.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestMonthlySummary(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	groceries := sampleTransaction()
	groceries.Merchant = "WHOLEFDS"
	groceries.Category = "Grocery"
	groceries.Amount = decimal.NewFromFloat(42.17)

	fun := sampleTransaction()
	fun.Amount = decimal.NewFromFloat(25.00)

	otherMonth := sampleTransaction()
	otherMonth.Date = time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	otherMonth.Amount = decimal.NewFromFloat(99.00)

	for _, tx := range []models.Transaction{groceries, fun, otherMonth} {
		_, err := repo.StoreTransaction(ctx, tx)
		require.NoError(t, err)
	}

	totals, err := repo.MonthlySummary(ctx, 2024, time.September)
	require.NoError(t, err)
	require.Len(t, totals, 2)

	byCategory := map[string]CategoryTotal{}
	for _, total := range totals {
		byCategory[total.Category] = total
	}
	assert.True(t, decimal.NewFromFloat(42.17).Equal(byCategory["Grocery"].Total))
	assert.True(t, decimal.NewFromFloat(25.00).Equal(byCategory["Fun"].Total))
	assert.Equal(t, 1, byCategory["Fun"].Count)
}
