package returns

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onedesk/backend/internal/catalog"
	"onedesk/backend/internal/domain"
	"onedesk/backend/internal/notify"
	"onedesk/backend/internal/store"
	"onedesk/backend/internal/store/memory"
)

const owner = "usr-returns"

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func productB() domain.Product {
	return domain.Product{
		ID:            "prd-b",
		Name:          "Product B",
		Specifics:     "box of 12",
		Quantity:      4,
		PurchasePrice: dec("200"),
		Discount:      dec("25"),
		MRP:           dec("260"),
		PurchaseDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newEngine(t *testing.T, products ...domain.Product) (*Engine, *catalog.Store, *memory.Store) {
	t.Helper()
	ctx := context.Background()

	repo := memory.New()
	require.NoError(t, repo.InsertProducts(ctx, owner, products))
	hub := notify.NewHub(nil)
	cat := catalog.New(catalog.Options{OwnerID: owner, Repo: repo, Notifier: hub})
	require.NoError(t, cat.Load(ctx))

	engine := New(Options{OwnerID: owner, Catalog: cat, Returns: repo, Notifier: hub})
	return engine, cat, repo
}

func TestReturnScenarioCeilingPolicy(t *testing.T) {
	engine, cat, repo := newEngine(t, productB())
	ctx := context.Background()

	sel, err := engine.SelectProduct("prd-b")
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnSelected, sel.State)
	require.NotNil(t, sel.SuggestedRefund)
	assert.True(t, sel.SuggestedRefund.Equal(dec("150")))

	tooMuch := dec("160")
	_, err = engine.Finalize(ctx, "damaged packaging", &tooMuch)
	require.ErrorIs(t, err, domain.ErrRefundExceedsCeiling)
	_, ok := cat.Get("prd-b")
	assert.True(t, ok)
	assert.Equal(t, domain.ReturnSelected, engine.Selection().State)

	exact := dec("150")
	record, err := engine.Finalize(ctx, "damaged packaging", &exact)
	require.NoError(t, err)

	assert.Equal(t, "prd-b", record.ProductID)
	assert.Equal(t, 4, record.Quantity)
	assert.True(t, record.ActualMoneyReceived.Equal(exact))
	_, ok = cat.Get("prd-b")
	assert.False(t, ok)
	assert.Len(t, engine.Returns(), 1)
	assert.Equal(t, domain.ReturnIdle, engine.Selection().State)

	cat.Flush()
	remote, err := repo.ListProducts(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, remote)
	stored, err := repo.ListReturns(ctx, owner, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestFinalizeWithinTolerance(t *testing.T) {
	engine, _, _ := newEngine(t, productB())

	_, err := engine.SelectProduct("prd-b")
	require.NoError(t, err)
	amount := dec("150.004")
	_, err = engine.Finalize(context.Background(), "expired", &amount)
	require.NoError(t, err)
}

func TestFinalizeRequiresReason(t *testing.T) {
	engine, cat, _ := newEngine(t, productB())

	_, err := engine.SelectProduct("prd-b")
	require.NoError(t, err)
	_, err = engine.Finalize(context.Background(), "   ", nil)
	require.ErrorIs(t, err, domain.ErrMissingReason)

	_, ok := cat.Get("prd-b")
	assert.True(t, ok)
}

func TestFinalizeUsesStoredRefundAmount(t *testing.T) {
	engine, _, _ := newEngine(t, productB())
	ctx := context.Background()

	_, err := engine.SetRefundAmount(dec("10"))
	require.ErrorIs(t, err, domain.ErrNoSelection)

	_, err = engine.SelectProduct("prd-b")
	require.NoError(t, err)
	sel, err := engine.SetRefundAmount(dec("151"))
	require.NoError(t, err)
	require.NotNil(t, sel.RefundAmount)

	_, err = engine.Finalize(ctx, "wrong item", nil)
	require.ErrorIs(t, err, domain.ErrRefundExceedsCeiling)

	_, err = engine.SetRefundAmount(dec("-1"))
	require.NoError(t, err)
	_, err = engine.Finalize(ctx, "wrong item", nil)
	require.ErrorIs(t, err, domain.ErrInvalidRefund)
}

func TestFinalizeWithoutSelection(t *testing.T) {
	engine, _, _ := newEngine(t, productB())

	_, err := engine.Finalize(context.Background(), "reason", nil)
	require.ErrorIs(t, err, domain.ErrNoSelection)
}

func TestSelectUnknownProduct(t *testing.T) {
	engine, _, _ := newEngine(t)

	_, err := engine.SelectProduct("missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestFinalizeDetectsWithdrawnLot(t *testing.T) {
	engine, cat, _ := newEngine(t, productB())
	ctx := context.Background()

	_, err := engine.SelectProduct("prd-b")
	require.NoError(t, err)
	require.NoError(t, cat.ApplyBulkUpdate(ctx, []domain.Product{}))

	_, err = engine.Finalize(ctx, "expired", nil)
	require.ErrorIs(t, err, domain.ErrStockChanged)
	assert.Empty(t, engine.Returns())
}

func TestCancelReturnsToIdle(t *testing.T) {
	engine, _, _ := newEngine(t, productB())

	_, err := engine.SelectProduct("prd-b")
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnIdle, engine.Cancel().State)
}
