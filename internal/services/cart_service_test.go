package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/elegance-boutique/api/internal/domain"
)

type stubCartRepo struct {
	getFn     func(context.Context, string) (domain.Cart, error)
	replaceFn func(context.Context, string, []domain.CartItem, time.Time) (domain.Cart, error)
	clearFn   func(context.Context, string) error
}

func (s *stubCartRepo) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return domain.Cart{}, &repoErrStub{notFound: true}
}

func (s *stubCartRepo) UpsertCart(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	return cart, nil
}

func (s *stubCartRepo) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem, now time.Time) (domain.Cart, error) {
	if s.replaceFn != nil {
		return s.replaceFn(ctx, userID, items, now)
	}
	return domain.Cart{UserID: userID, Items: items, UpdatedAt: now}, nil
}

func (s *stubCartRepo) Clear(ctx context.Context, userID string) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, userID)
	}
	return nil
}

type stubProductFinder struct {
	products map[string]domain.Product
	findFn   func(context.Context, string) (domain.Product, error)
}

func (s *stubProductFinder) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, &repoErrStub{notFound: true}
	}
	return product, nil
}

func testCartClock() time.Time {
	return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
}

func newTestCartService(t *testing.T, repo *stubCartRepo, catalog *stubProductFinder) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{
		Repository: repo,
		Catalog:    catalog,
		Clock:      testCartClock,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}
	return svc
}

func TestResolvePrefersSessionCopy(t *testing.T) {
	repo := &stubCartRepo{
		getFn: func(context.Context, string) (domain.Cart, error) {
			t.Fatal("store must not be consulted when the session carries items")
			return domain.Cart{}, nil
		},
	}
	svc := newTestCartService(t, repo, &stubProductFinder{})

	items, err := svc.Resolve(context.Background(), CartState{
		UserID:       "user-1",
		SessionItems: map[string]int{"prd_a": 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items["prd_a"] != 2 || len(items) != 1 {
		t.Fatalf("expected session copy, got %v", items)
	}
}

func TestResolveBackfillsFromStoreWhenSessionEmpty(t *testing.T) {
	repo := &stubCartRepo{
		getFn: func(_ context.Context, userID string) (domain.Cart, error) {
			if userID != "user-1" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return domain.Cart{
				UserID: userID,
				Items: []domain.CartItem{
					{ProductID: "prd_a", Quantity: 3},
					{ProductID: "prd_b", Quantity: 1},
				},
			}, nil
		},
	}
	svc := newTestCartService(t, repo, &stubProductFinder{})

	items, err := svc.Resolve(context.Background(), CartState{UserID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items["prd_a"] != 3 || items["prd_b"] != 1 {
		t.Fatalf("expected store backfill, got %v", items)
	}
}

func TestResolveGuestWithoutSessionItems(t *testing.T) {
	svc := newTestCartService(t, &stubCartRepo{}, &stubProductFinder{})

	items, err := svc.Resolve(context.Background(), CartState{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty cart for guest, got %v", items)
	}
}

func TestAddItemWritesThrough(t *testing.T) {
	var replaced []domain.CartItem
	repo := &stubCartRepo{
		replaceFn: func(_ context.Context, userID string, items []domain.CartItem, now time.Time) (domain.Cart, error) {
			replaced = items
			return domain.Cart{UserID: userID, Items: items, UpdatedAt: now}, nil
		},
	}
	catalog := &stubProductFinder{products: map[string]domain.Product{
		"prd_a": {ID: "prd_a", Name: "Silk scarf", PriceCents: 8900, Active: true},
	}}
	svc := newTestCartService(t, repo, catalog)

	result, err := svc.AddItem(context.Background(), AddCartItemCommand{
		State:     CartState{UserID: "user-1", SessionItems: map[string]int{"prd_a": 1}},
		ProductID: "prd_a",
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Items["prd_a"] != 3 {
		t.Fatalf("expected quantity 3, got %v", result.Items)
	}
	if !result.Persisted {
		t.Fatal("expected write-through to be reported as persisted")
	}
	if len(replaced) != 1 || replaced[0].Quantity != 3 {
		t.Fatalf("expected persisted cart line, got %v", replaced)
	}
}

func TestAddItemGuestStaysSessionOnly(t *testing.T) {
	repo := &stubCartRepo{
		replaceFn: func(context.Context, string, []domain.CartItem, time.Time) (domain.Cart, error) {
			t.Fatal("guest carts must not persist")
			return domain.Cart{}, nil
		},
	}
	catalog := &stubProductFinder{products: map[string]domain.Product{
		"prd_a": {ID: "prd_a", Active: true},
	}}
	svc := newTestCartService(t, repo, catalog)

	result, err := svc.AddItem(context.Background(), AddCartItemCommand{
		State:     CartState{},
		ProductID: "prd_a",
		Quantity:  1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Persisted {
		t.Fatal("guest mutation must not be reported as persisted")
	}
	if result.Items["prd_a"] != 1 {
		t.Fatalf("expected session cart updated, got %v", result.Items)
	}
}

func TestAddItemPersistFailureStillSucceeds(t *testing.T) {
	repo := &stubCartRepo{
		replaceFn: func(context.Context, string, []domain.CartItem, time.Time) (domain.Cart, error) {
			return domain.Cart{}, &repoErrStub{unavailable: true}
		},
	}
	catalog := &stubProductFinder{products: map[string]domain.Product{
		"prd_a": {ID: "prd_a", Active: true},
	}}
	svc := newTestCartService(t, repo, catalog)

	result, err := svc.AddItem(context.Background(), AddCartItemCommand{
		State:     CartState{UserID: "user-1"},
		ProductID: "prd_a",
		Quantity:  1,
	})
	if err != nil {
		t.Fatalf("expected session mutation to succeed, got %v", err)
	}
	if result.Persisted {
		t.Fatal("failed write-through must be reported as not persisted")
	}
	if result.Items["prd_a"] != 1 {
		t.Fatalf("expected session cart updated, got %v", result.Items)
	}
}

func TestAddItemRejectsUnknownProduct(t *testing.T) {
	svc := newTestCartService(t, &stubCartRepo{}, &stubProductFinder{})

	_, err := svc.AddItem(context.Background(), AddCartItemCommand{
		State:     CartState{},
		ProductID: "prd_missing",
		Quantity:  1,
	})
	if !errors.Is(err, ErrCartProductNotFound) {
		t.Fatalf("expected ErrCartProductNotFound, got %v", err)
	}
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	catalog := &stubProductFinder{products: map[string]domain.Product{
		"prd_a": {ID: "prd_a", Active: false},
	}}
	svc := newTestCartService(t, &stubCartRepo{}, catalog)

	_, err := svc.AddItem(context.Background(), AddCartItemCommand{
		State:     CartState{},
		ProductID: "prd_a",
		Quantity:  1,
	})
	if !errors.Is(err, ErrCartProductNotFound) {
		t.Fatalf("expected ErrCartProductNotFound, got %v", err)
	}
}

func TestAddItemDefaultsQuantityToOne(t *testing.T) {
	catalog := &stubProductFinder{products: map[string]domain.Product{
		"prd_a": {ID: "prd_a", Active: true},
	}}
	svc := newTestCartService(t, &stubCartRepo{}, catalog)

	for _, quantity := range []int{0, -3} {
		result, err := svc.AddItem(context.Background(), AddCartItemCommand{
			State:     CartState{SessionItems: map[string]int{"prd_a": 2}},
			ProductID: "prd_a",
			Quantity:  quantity,
		})
		if err != nil {
			t.Fatalf("unexpected error for quantity %d: %v", quantity, err)
		}
		if result.Items["prd_a"] != 3 {
			t.Fatalf("expected quantity %d to add a single unit, got %d", quantity, result.Items["prd_a"])
		}
	}
}

func TestAddItemCapsLineQuantity(t *testing.T) {
	catalog := &stubProductFinder{products: map[string]domain.Product{
		"prd_a": {ID: "prd_a", Active: true},
	}}
	svc := newTestCartService(t, &stubCartRepo{}, catalog)

	result, err := svc.AddItem(context.Background(), AddCartItemCommand{
		State:     CartState{SessionItems: map[string]int{"prd_a": 98}},
		ProductID: "prd_a",
		Quantity:  10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Items["prd_a"] != 99 {
		t.Fatalf("expected quantity capped at 99, got %d", result.Items["prd_a"])
	}
}

func TestSetItemQuantityZeroRemovesLine(t *testing.T) {
	svc := newTestCartService(t, &stubCartRepo{}, &stubProductFinder{})

	result, err := svc.SetItemQuantity(context.Background(), SetCartQuantityCommand{
		State:     CartState{SessionItems: map[string]int{"prd_a": 2}},
		ProductID: "prd_a",
		Quantity:  0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := result.Items["prd_a"]; ok {
		t.Fatalf("expected line removed, got %v", result.Items)
	}
}

func TestViewFlagsVanishedProducts(t *testing.T) {
	catalog := &stubProductFinder{products: map[string]domain.Product{
		"prd_a": {ID: "prd_a", Name: "Silk scarf", PriceCents: 8900, Active: true},
	}}
	svc := newTestCartService(t, &stubCartRepo{}, catalog)

	view, err := svc.View(context.Background(), CartState{
		SessionItems: map[string]int{"prd_a": 2, "prd_gone": 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(view.Lines) != 2 {
		t.Fatalf("expected both lines kept, got %d", len(view.Lines))
	}
	if view.TotalCents != 17800 {
		t.Fatalf("expected total from available lines only, got %d", view.TotalCents)
	}
	if view.ItemCount != 2 {
		t.Fatalf("expected item count to skip unavailable lines, got %d", view.ItemCount)
	}

	var gone *CartViewLine
	for i := range view.Lines {
		if view.Lines[i].ProductID == "prd_gone" {
			gone = &view.Lines[i]
		}
	}
	if gone == nil || !gone.Unavailable || gone.LineTotalCents != 0 {
		t.Fatalf("expected flagged zero-priced line, got %+v", gone)
	}
}

func TestViewEmptyCart(t *testing.T) {
	svc := newTestCartService(t, &stubCartRepo{}, &stubProductFinder{})

	view, err := svc.View(context.Background(), CartState{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.Lines) != 0 || view.TotalCents != 0 {
		t.Fatalf("expected empty view, got %+v", view)
	}
}

func TestClearDropsBothBackings(t *testing.T) {
	cleared := false
	repo := &stubCartRepo{
		clearFn: func(_ context.Context, userID string) error {
			if userID != "user-1" {
				t.Fatalf("unexpected user id %q", userID)
			}
			cleared = true
			return nil
		},
	}
	svc := newTestCartService(t, repo, &stubProductFinder{})

	result, err := svc.Clear(context.Background(), CartState{UserID: "user-1", SessionItems: map[string]int{"prd_a": 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cleared {
		t.Fatal("expected store clear")
	}
	if len(result.Items) != 0 || !result.Persisted {
		t.Fatalf("expected empty persisted result, got %+v", result)
	}
}
