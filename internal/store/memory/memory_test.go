package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"onedesk/backend/internal/domain"
	"onedesk/backend/internal/store"
)

func TestProductsAreScopedToOwner(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.InsertProducts(ctx, "owner-a", []domain.Product{{ID: "p1", Name: "Rice", Quantity: 5}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertProducts(ctx, "owner-b", []domain.Product{{ID: "p2", Name: "Salt", Quantity: 1}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	products, err := s.ListProducts(ctx, "owner-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(products) != 1 || products[0].ID != "p1" || products[0].UserID != "owner-a" {
		t.Fatalf("unexpected owner-a products: %+v", products)
	}
}

func TestInsertDuplicateIDConflicts(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.InsertProducts(ctx, "owner", []domain.Product{{ID: "p1", Name: "Rice"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := s.InsertProducts(ctx, "owner", []domain.Product{{ID: "p1", Name: "Rice again"}})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpsertKeepsCreatedAtAndDeleteRemoves(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.InsertProducts(ctx, "owner", []domain.Product{{ID: "p1", Name: "Rice", Quantity: 10}, {ID: "p2", Name: "Oil", Quantity: 2}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	before, _ := s.ListProducts(ctx, "owner")
	created := *before[1].CreatedAt

	if err := s.UpsertProducts(ctx, "owner", []domain.Product{{ID: "p1", Name: "Rice", Quantity: 7}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.DeleteProducts(ctx, "owner", []string{"p2"}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	after, _ := s.ListProducts(ctx, "owner")
	if len(after) != 1 {
		t.Fatalf("expected one product left, got %d", len(after))
	}
	if after[0].Quantity != 7 {
		t.Fatalf("expected quantity 7, got %d", after[0].Quantity)
	}
	if !after[0].CreatedAt.Equal(created) {
		t.Fatalf("expected created_at preserved")
	}
}

func TestFailNextIsConsumedOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("network down")

	s.FailNext(OpListProducts, boom)
	if _, err := s.ListProducts(ctx, "owner"); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if _, err := s.ListProducts(ctx, "owner"); err != nil {
		t.Fatalf("expected second call to succeed, got %v", err)
	}
}

func TestListBillsFiltersByOwnerAndRange(t *testing.T) {
	ctx := context.Background()
	s := New()
	day := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	for _, bill := range []domain.Bill{
		{ID: "b1", UserID: "owner", Date: day},
		{ID: "b2", UserID: "owner", Date: day.AddDate(0, 0, 1)},
		{ID: "b3", UserID: "someone", Date: day},
	} {
		if err := s.CreateBill(ctx, bill); err != nil {
			t.Fatalf("create bill: %v", err)
		}
	}

	from := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	bills, err := s.ListBills(ctx, "owner", from, from.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("list bills: %v", err)
	}
	if len(bills) != 1 || bills[0].ID != "b1" {
		t.Fatalf("unexpected bills: %+v", bills)
	}

	if err := s.CreateBill(ctx, domain.Bill{ID: "b1", UserID: "owner"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on duplicate bill id, got %v", err)
	}
}

func TestUsersLookupIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateUser(ctx, domain.UserAccount{ID: "usr-1", Email: "Owner@Shop.test", Password: "hash"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	user, err := s.GetUserByEmail(ctx, "owner@shop.test")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.ID != "usr-1" {
		t.Fatalf("unexpected user %+v", user)
	}
	if err := s.CreateUser(ctx, domain.UserAccount{ID: "usr-2", Email: "OWNER@shop.test", Password: "hash"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := s.GetUserByID(ctx, "usr-404"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
