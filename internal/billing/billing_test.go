package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onedesk/backend/internal/catalog"
	"onedesk/backend/internal/domain"
	"onedesk/backend/internal/notify"
	"onedesk/backend/internal/store/memory"
)

const owner = "usr-billing"

type fakeReceipts struct {
	err   error
	bills []domain.Bill
}

func (f *fakeReceipts) Emit(_ context.Context, bill domain.Bill) error {
	f.bills = append(f.bills, bill)
	return f.err
}

type fixture struct {
	engine   *Engine
	catalog  *catalog.Store
	repo     *memory.Store
	hub      *notify.Hub
	receipts *fakeReceipts
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newFixture(t *testing.T, products ...domain.Product) fixture {
	t.Helper()
	ctx := context.Background()

	repo := memory.New()
	hub := notify.NewHub(nil)
	require.NoError(t, repo.InsertProducts(ctx, owner, products))

	cat := catalog.New(catalog.Options{OwnerID: owner, Repo: repo, Notifier: hub})
	require.NoError(t, cat.Load(ctx))

	receipts := &fakeReceipts{}
	engine := New(Options{
		OwnerID:  owner,
		Catalog:  cat,
		Bills:    repo,
		Receipts: receipts,
		Notifier: hub,
		Now:      func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) },
	})
	return fixture{engine: engine, catalog: cat, repo: repo, hub: hub, receipts: receipts}
}

func productA() domain.Product {
	return domain.Product{
		ID:            "prd-a",
		Name:          "Product A",
		Specifics:     "500g",
		Quantity:      10,
		MRP:           dec("100"),
		PurchasePrice: dec("60"),
		Discount:      decimal.Zero,
		PurchaseDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCommitScenarioDecrementsStockAndRecordsBill(t *testing.T) {
	f := newFixture(t, productA())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.engine.AddItem("prd-a")
		require.NoError(t, err)
	}

	cart := f.engine.Cart()
	assert.True(t, cart.Totals.Subtotal.Equal(dec("300")))
	assert.True(t, cart.Totals.Tax.Equal(dec("54")))
	assert.True(t, cart.Totals.Total.Equal(dec("354")))
	assert.Equal(t, domain.CartBuilding, cart.State)

	cart, err := f.engine.SetTender(dec("400"))
	require.NoError(t, err)
	assert.Equal(t, domain.CartReadyToPay, cart.State)
	require.NotNil(t, cart.Change)
	assert.True(t, cart.Change.Equal(dec("46")))

	bill, err := f.engine.Commit(ctx, domain.PaymentCash, dec("400"))
	require.NoError(t, err)

	assert.True(t, bill.Change.Equal(dec("46")))
	assert.True(t, bill.Profit.Equal(dec("120")))
	assert.True(t, bill.Total.Equal(bill.Subtotal.Add(bill.Tax)))
	assert.NotEmpty(t, bill.ID)
	require.Len(t, bill.Items, 1)
	assert.Equal(t, "Product A", bill.Items[0].Name)
	assert.True(t, bill.Items[0].LineTotal.Equal(dec("300")))

	got, _ := f.catalog.Get("prd-a")
	assert.Equal(t, 7, got.Quantity)
	assert.Len(t, f.engine.Bills(), 1)
	assert.Equal(t, domain.CartEmpty, f.engine.Cart().State)
	assert.Len(t, f.receipts.bills, 1)

	f.catalog.Flush()
	stored, err := f.repo.ListBills(ctx, owner, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	remote, _ := f.repo.ListProducts(ctx, owner)
	assert.Equal(t, 7, remote[0].Quantity)
}

func TestAddItemRespectsStock(t *testing.T) {
	p := productA()
	p.Quantity = 2
	f := newFixture(t, p)

	_, err := f.engine.AddItem("prd-a")
	require.NoError(t, err)
	_, err = f.engine.AddItem("prd-a")
	require.NoError(t, err)

	cart, err := f.engine.AddItem("prd-a")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 2, cart.Items[0].Quantity)
}

func TestAddItemRejectsEmptyLot(t *testing.T) {
	p := productA()
	p.Quantity = 0
	f := newFixture(t, p)

	_, err := f.engine.AddItem("prd-a")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, domain.CartEmpty, f.engine.Cart().State)
}

func TestLinePriceIsSnapshotAtAddTime(t *testing.T) {
	f := newFixture(t, productA())
	ctx := context.Background()

	_, err := f.engine.AddItem("prd-a")
	require.NoError(t, err)

	repriced := productA()
	repriced.MRP = dec("150")
	require.NoError(t, f.catalog.ApplyBulkUpdate(ctx, []domain.Product{repriced}))
	f.catalog.Flush()

	cart := f.engine.Cart()
	assert.True(t, cart.Items[0].Price.Equal(dec("100")))
	assert.True(t, cart.Totals.Subtotal.Equal(dec("100")))
}

func TestSetLineQuantityBounds(t *testing.T) {
	f := newFixture(t, productA())
	_, err := f.engine.AddItem("prd-a")
	require.NoError(t, err)

	cart, err := f.engine.SetLineQuantity("prd-a", 0)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)
	assert.Equal(t, 1, cart.Items[0].Quantity)

	cart, err = f.engine.SetLineQuantity("prd-a", 11)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 1, cart.Items[0].Quantity)

	cart, err = f.engine.SetLineQuantity("prd-a", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, cart.Items[0].Quantity)
}

func TestCommitFailuresLeaveEverythingUnchanged(t *testing.T) {
	f := newFixture(t, productA())
	ctx := context.Background()

	_, err := f.engine.Commit(ctx, domain.PaymentCash, dec("1000"))
	require.ErrorIs(t, err, domain.ErrEmptyCart)

	_, err = f.engine.SetLineQuantity("prd-a", 2)
	require.Error(t, err)
	_, err = f.engine.AddItem("prd-a")
	require.NoError(t, err)
	_, err = f.engine.SetLineQuantity("prd-a", 2)
	require.NoError(t, err)

	_, err = f.engine.Commit(ctx, domain.PaymentMethod("cheque"), dec("1000"))
	require.ErrorIs(t, err, domain.ErrInvalidPaymentMethod)

	_, err = f.engine.Commit(ctx, domain.PaymentCard, dec("235.99"))
	require.ErrorIs(t, err, domain.ErrInsufficientPayment)

	cart := f.engine.Cart()
	assert.Equal(t, 2, cart.Items[0].Quantity)
	got, _ := f.catalog.Get("prd-a")
	assert.Equal(t, 10, got.Quantity)
	assert.Empty(t, f.engine.Bills())

	bill, err := f.engine.Commit(ctx, domain.PaymentCard, dec("236"))
	require.NoError(t, err)
	assert.True(t, bill.Change.IsZero())
}

func TestCommitDetectsStockChangedSinceAdd(t *testing.T) {
	f := newFixture(t, productA())
	ctx := context.Background()

	_, err := f.engine.AddItem("prd-a")
	require.NoError(t, err)
	_, err = f.engine.SetLineQuantity("prd-a", 5)
	require.NoError(t, err)

	drained := productA()
	drained.Quantity = 3
	require.NoError(t, f.catalog.ApplyBulkUpdate(ctx, []domain.Product{drained}))

	_, err = f.engine.Commit(ctx, domain.PaymentUPI, dec("1000"))
	require.ErrorIs(t, err, domain.ErrStockChanged)

	got, _ := f.catalog.Get("prd-a")
	assert.Equal(t, 3, got.Quantity)
	assert.Equal(t, 5, f.engine.Cart().Items[0].Quantity)
}

func TestPrintFailureDoesNotRollBackStock(t *testing.T) {
	f := newFixture(t, productA())
	f.receipts.err = errors.New("printer offline")

	_, err := f.engine.AddItem("prd-a")
	require.NoError(t, err)
	bill, err := f.engine.Commit(context.Background(), domain.PaymentCash, dec("118"))
	require.NoError(t, err)

	got, _ := f.catalog.Get("prd-a")
	assert.Equal(t, 9, got.Quantity)
	assert.Len(t, f.engine.Bills(), 1)
	assert.Equal(t, bill.ID, f.engine.Bills()[0].ID)

	var sawPrintError bool
	for _, n := range f.hub.Recent(owner, 0) {
		if n.Kind == domain.NotifyError && n.Message == "Failed to print receipt" {
			sawPrintError = true
		}
	}
	assert.True(t, sawPrintError)
}

func TestBillPersistFailureKeepsBill(t *testing.T) {
	f := newFixture(t, productA())
	f.repo.FailNext(memory.OpCreateBill, errors.New("insert failed"))

	_, err := f.engine.AddItem("prd-a")
	require.NoError(t, err)
	_, err = f.engine.Commit(context.Background(), domain.PaymentCash, dec("200"))
	require.NoError(t, err)

	assert.Len(t, f.engine.Bills(), 1)
}

func TestComputeTotalsMissingProductContributesNoProfit(t *testing.T) {
	lines := []domain.BillItem{
		{ProductID: "gone", Quantity: 2, Price: dec("10.50")},
		{ProductID: "prd-a", Quantity: 1, Price: dec("100")},
	}
	totals := ComputeTotals(lines, []domain.Product{productA()})

	assert.True(t, totals.Subtotal.Equal(dec("121")))
	assert.True(t, totals.Tax.Equal(dec("21.78")))
	assert.True(t, totals.Total.Equal(totals.Subtotal.Add(totals.Tax)))
	assert.True(t, totals.Profit.Equal(dec("40")))
}
