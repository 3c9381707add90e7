package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
)

func cartTestProduct() domain.Product {
	return domain.Product{
		ID:   "p1",
		Name: "Dune",
		Slug: "dune",
		Variants: []domain.ProductVariant{
			{ID: "hardcover", Format: "Hardcover", Price: 29.99, CountInStock: 3, MainImage: "https://cdn.example.com/d.jpg"},
			{ID: "paperback", Format: "Paperback", Price: 14.99, CountInStock: 0},
		},
		EditorialStatus: domain.EditorialStatusActive,
	}
}

func newCartForTest(t *testing.T, carts *stubCartRepo, products *stubProductRepo, now time.Time) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{
		Carts:    carts,
		Products: products,
		Clock:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc
}

func TestNewCartServiceValidation(t *testing.T) {
	if _, err := NewCartService(CartServiceDeps{Products: newStubProductRepo()}); err == nil {
		t.Fatal("expected error without cart repository")
	}
	if _, err := NewCartService(CartServiceDeps{Carts: newStubCartRepo()}); err == nil {
		t.Fatal("expected error without product repository")
	}
}

func TestCartGetCartEmpty(t *testing.T) {
	carts := newStubCartRepo()
	products := newStubProductRepo()
	now := time.Date(2024, time.July, 1, 8, 0, 0, 0, time.UTC)
	svc := newCartForTest(t, carts, products, now)

	cart, err := svc.GetCart(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if cart.UserID != "u1" || len(cart.Items) != 0 {
		t.Fatalf("expected empty cart for u1, got %+v", cart)
	}
	if len(carts.carts) != 0 {
		t.Fatalf("expected no cart persisted on read, got %d", len(carts.carts))
	}
}

func TestCartAddItem(t *testing.T) {
	carts := newStubCartRepo()
	products := newStubProductRepo()
	products.products["p1"] = cartTestProduct()
	now := time.Date(2024, time.July, 1, 8, 0, 0, 0, time.UTC)
	svc := newCartForTest(t, carts, products, now)

	cart, err := svc.AddItem(context.Background(), CartItemCommand{UserID: "u1", ProductID: "p1", VariantID: "hardcover", Quantity: 2})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(cart.Items))
	}
	item := cart.Items[0]
	if item.Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", item.Quantity)
	}
	if item.Name != "Dune" || item.Format != "Hardcover" || item.UnitPrice != 29.99 {
		t.Fatalf("expected product snapshot on item, got %+v", item)
	}
	if item.Image != "https://cdn.example.com/d.jpg" || item.CountInStock != 3 {
		t.Fatalf("expected snapshot image and stock, got %+v", item)
	}

	// Adding more than available clamps to stock.
	cart, err = svc.AddItem(context.Background(), CartItemCommand{UserID: "u1", ProductID: "p1", VariantID: "hardcover", Quantity: 5})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if cart.Items[0].Quantity != 3 {
		t.Fatalf("expected quantity clamped to 3, got %d", cart.Items[0].Quantity)
	}
	if got := cart.Subtotal(); got != 3*29.99 {
		t.Fatalf("expected subtotal %v, got %v", 3*29.99, got)
	}
}

func TestCartAddItemOutOfStock(t *testing.T) {
	carts := newStubCartRepo()
	products := newStubProductRepo()
	products.products["p1"] = cartTestProduct()
	svc := newCartForTest(t, carts, products, time.Now())

	_, err := svc.AddItem(context.Background(), CartItemCommand{UserID: "u1", ProductID: "p1", VariantID: "paperback", Quantity: 1})
	if !errors.Is(err, ErrCartOutOfStock) {
		t.Fatalf("expected out of stock, got %v", err)
	}
}

func TestCartAddItemValidation(t *testing.T) {
	carts := newStubCartRepo()
	products := newStubProductRepo()
	products.products["p1"] = cartTestProduct()
	svc := newCartForTest(t, carts, products, time.Now())

	cases := []struct {
		name string
		cmd  CartItemCommand
		want error
	}{
		{"missing user", CartItemCommand{ProductID: "p1", VariantID: "hardcover", Quantity: 1}, ErrCartInvalidInput},
		{"zero quantity", CartItemCommand{UserID: "u1", ProductID: "p1", VariantID: "hardcover"}, ErrCartInvalidInput},
		{"missing variant on multi-variant product", CartItemCommand{UserID: "u1", ProductID: "p1", Quantity: 1}, ErrCartInvalidInput},
		{"unknown product", CartItemCommand{UserID: "u1", ProductID: "nope", VariantID: "hardcover", Quantity: 1}, ErrCartNotFound},
		{"unknown variant", CartItemCommand{UserID: "u1", ProductID: "p1", VariantID: "audiobook", Quantity: 1}, ErrCartNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.AddItem(context.Background(), tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCartAddItemSyntheticVariant(t *testing.T) {
	carts := newStubCartRepo()
	products := newStubProductRepo()
	products.products["p2"] = domain.Product{
		ID:              "p2",
		Name:            "Single Edition",
		Slug:            "single-edition",
		EditorialStatus: domain.EditorialStatusActive,
	}
	svc := newCartForTest(t, carts, products, time.Now())

	// A variant-less product expands to one synthetic row with zero stock.
	_, err := svc.AddItem(context.Background(), CartItemCommand{UserID: "u1", ProductID: "p2", Quantity: 1})
	if !errors.Is(err, ErrCartOutOfStock) {
		t.Fatalf("expected out of stock for synthetic row, got %v", err)
	}
}

func TestCartSetItemQuantity(t *testing.T) {
	carts := newStubCartRepo()
	products := newStubProductRepo()
	products.products["p1"] = cartTestProduct()
	svc := newCartForTest(t, carts, products, time.Now())

	if _, err := svc.AddItem(context.Background(), CartItemCommand{UserID: "u1", ProductID: "p1", VariantID: "hardcover", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	cart, err := svc.SetItemQuantity(context.Background(), CartItemCommand{UserID: "u1", ProductID: "p1", VariantID: "hardcover", Quantity: 9})
	if err != nil {
		t.Fatalf("SetItemQuantity: %v", err)
	}
	if cart.Items[0].Quantity != 3 {
		t.Fatalf("expected quantity clamped to 3, got %d", cart.Items[0].Quantity)
	}

	// Quantity zero removes the line.
	cart, err = svc.SetItemQuantity(context.Background(), CartItemCommand{UserID: "u1", ProductID: "p1", VariantID: "hardcover", Quantity: 0})
	if err != nil {
		t.Fatalf("SetItemQuantity: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %d items", len(cart.Items))
	}

	if _, err := svc.SetItemQuantity(context.Background(), CartItemCommand{UserID: "u1", ProductID: "p1", VariantID: "hardcover", Quantity: 2}); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected not found for absent line, got %v", err)
	}
}

func TestCartRemoveItem(t *testing.T) {
	carts := newStubCartRepo()
	products := newStubProductRepo()
	products.products["p1"] = cartTestProduct()
	svc := newCartForTest(t, carts, products, time.Now())

	if _, err := svc.AddItem(context.Background(), CartItemCommand{UserID: "u1", ProductID: "p1", VariantID: "hardcover", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	cart, err := svc.RemoveItem(context.Background(), RemoveCartItemCommand{UserID: "u1", ProductID: "p1", VariantID: "hardcover"})
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %d items", len(cart.Items))
	}

	if _, err := svc.RemoveItem(context.Background(), RemoveCartItemCommand{UserID: "u1", ProductID: "p1", VariantID: "hardcover"}); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCartClearCart(t *testing.T) {
	carts := newStubCartRepo()
	products := newStubProductRepo()
	products.products["p1"] = cartTestProduct()
	svc := newCartForTest(t, carts, products, time.Now())

	if _, err := svc.AddItem(context.Background(), CartItemCommand{UserID: "u1", ProductID: "p1", VariantID: "hardcover", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if err := svc.ClearCart(context.Background(), "u1"); err != nil {
		t.Fatalf("ClearCart: %v", err)
	}
	if len(carts.carts) != 0 {
		t.Fatalf("expected cart removed, got %d", len(carts.carts))
	}

	// Clearing an absent cart is a no-op.
	if err := svc.ClearCart(context.Background(), "u2"); err != nil {
		t.Fatalf("ClearCart on empty: %v", err)
	}
}

type stubCartRepo struct {
	carts map[string]domain.Cart

	getErr    error
	upsertErr error
}

func newStubCartRepo() *stubCartRepo {
	return &stubCartRepo{carts: map[string]domain.Cart{}}
}

func (s *stubCartRepo) GetCart(_ context.Context, userID string) (domain.Cart, error) {
	if s.getErr != nil {
		return domain.Cart{}, s.getErr
	}
	if cart, ok := s.carts[userID]; ok {
		return cart, nil
	}
	return domain.Cart{}, stubRepositoryError{notFound: true}
}

func (s *stubCartRepo) UpsertCart(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.upsertErr != nil {
		return domain.Cart{}, s.upsertErr
	}
	key := cart.UserID
	if key == "" {
		key = cart.ID
	}
	s.carts[key] = cart
	return cart, nil
}

func (s *stubCartRepo) DeleteCart(_ context.Context, userID string) error {
	if _, ok := s.carts[userID]; !ok {
		return stubRepositoryError{notFound: true}
	}
	delete(s.carts, userID)
	return nil
}
