package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"onedesk/backend/internal/domain"
)

func TestUpsertAndDeleteProductsScopedToOwner(t *testing.T) {
	databaseURL := os.Getenv("ONEDESK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set ONEDESK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := Migrate(ctx, s.DB()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stamp := time.Now().UnixNano()
	owner := fmt.Sprintf("owner-it-%d", stamp)
	other := fmt.Sprintf("other-it-%d", stamp)
	keepID := fmt.Sprintf("prd-keep-%d", stamp)
	dropID := fmt.Sprintf("prd-drop-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE user_id = ANY($1)`, []string{owner, other})
	})

	now := time.Now().UTC().Truncate(time.Second)
	product := func(id string, qty int) domain.Product {
		return domain.Product{
			ID:            id,
			Name:          "Integration Lot " + id,
			PurchaseDate:  now,
			Quantity:      qty,
			PurchasePrice: decimal.NewFromInt(60),
			Discount:      decimal.NewFromInt(10),
			MRP:           decimal.NewFromInt(100),
			ExpiryDate:    now.Add(20 * 24 * time.Hour),
		}
	}

	if err := s.InsertProducts(ctx, owner, []domain.Product{product(keepID, 10), product(dropID, 4)}); err != nil {
		t.Fatalf("insert products: %v", err)
	}
	if err := s.UpsertProducts(ctx, owner, []domain.Product{product(keepID, 7)}); err != nil {
		t.Fatalf("upsert products: %v", err)
	}
	if err := s.DeleteProducts(ctx, owner, []string{dropID}); err != nil {
		t.Fatalf("delete products: %v", err)
	}

	if err := s.UpsertProducts(ctx, other, []domain.Product{product(keepID, 99)}); err == nil {
		t.Fatalf("expected upsert across owners to be refused")
	}

	products, err := s.ListProducts(ctx, owner)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected 1 product after delete, got %d", len(products))
	}
	if products[0].ID != keepID || products[0].Quantity != 7 {
		t.Fatalf("unexpected product after upsert: %+v", products[0])
	}
	if !products[0].MRP.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected mrp 100, got %s", products[0].MRP)
	}
}
