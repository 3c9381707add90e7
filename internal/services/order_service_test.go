package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

func newOrderForTest(t *testing.T, orders *stubOrderRepo, carts *stubCartRepo, products *stubProductRepo, audit AuditLogService, now time.Time) OrderService {
	t.Helper()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      orders,
		Carts:       carts,
		Products:    products,
		Audit:       audit,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "01HWORDER000000000ABCDEFGH" },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func seedCheckout(carts *stubCartRepo, products *stubProductRepo) {
	products.products["p1"] = cartTestProduct()
	carts.carts["u1"] = domain.Cart{
		ID:     "u1",
		UserID: "u1",
		Items: []domain.CartItem{
			{ProductID: "p1", VariantID: "hardcover", Quantity: 2, UnitPrice: 25.00},
		},
	}
}

func TestOrderCreateFromCart(t *testing.T) {
	orders := newStubOrderRepo()
	carts := newStubCartRepo()
	products := newStubProductRepo()
	seedCheckout(carts, products)
	now := time.Date(2024, time.August, 1, 12, 0, 0, 0, time.UTC)
	svc := newOrderForTest(t, orders, carts, products, nil, now)

	order, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{UserID: "u1"})
	if err != nil {
		t.Fatalf("CreateFromCart: %v", err)
	}

	if order.UserID != "u1" || len(order.Items) != 1 {
		t.Fatalf("unexpected order %+v", order)
	}
	// Priced at current catalog value, not the cart snapshot.
	if order.Items[0].UnitPrice != 29.99 {
		t.Fatalf("expected catalog price 29.99, got %v", order.Items[0].UnitPrice)
	}
	if order.Total != 2*29.99 {
		t.Fatalf("expected total %v, got %v", 2*29.99, order.Total)
	}
	if !strings.HasPrefix(order.Number, "ORD-") {
		t.Fatalf("expected ORD- number, got %q", order.Number)
	}
	if order.IsPaid || order.IsDelivered {
		t.Fatalf("expected fresh order unpaid and undelivered")
	}

	// Stock is reserved and the stock status recomputed.
	product := products.products["p1"]
	if product.Variants[0].CountInStock != 1 {
		t.Fatalf("expected stock 1 after reservation, got %d", product.Variants[0].CountInStock)
	}
	if product.StockStatus != domain.StockStatusInStock {
		t.Fatalf("expected in stock, got %q", product.StockStatus)
	}

	// Cart is cleared.
	if _, ok := carts.carts["u1"]; ok {
		t.Fatalf("expected cart cleared after checkout")
	}
}

func TestOrderCreateFromCartEmpty(t *testing.T) {
	svc := newOrderForTest(t, newStubOrderRepo(), newStubCartRepo(), newStubProductRepo(), nil, time.Now())
	if _, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{UserID: "u1"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for empty cart, got %v", err)
	}
}

func TestOrderCreateFromCartInsufficientStock(t *testing.T) {
	orders := newStubOrderRepo()
	carts := newStubCartRepo()
	products := newStubProductRepo()
	seedCheckout(carts, products)
	cart := carts.carts["u1"]
	cart.Items[0].Quantity = 99
	carts.carts["u1"] = cart
	svc := newOrderForTest(t, orders, carts, products, nil, time.Now())

	if _, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{UserID: "u1"}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(orders.orders) != 0 {
		t.Fatalf("expected no order persisted, got %d", len(orders.orders))
	}
}

func TestOrderCreateFromCartVariantGone(t *testing.T) {
	orders := newStubOrderRepo()
	carts := newStubCartRepo()
	products := newStubProductRepo()
	seedCheckout(carts, products)
	cart := carts.carts["u1"]
	cart.Items[0].VariantID = "audiobook"
	carts.carts["u1"] = cart
	svc := newOrderForTest(t, orders, carts, products, nil, time.Now())

	if _, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{UserID: "u1"}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict for missing variant, got %v", err)
	}
}

func TestOrderGetOrderAccess(t *testing.T) {
	orders := newStubOrderRepo()
	orders.orders["o1"] = domain.Order{ID: "o1", UserID: "u1"}
	svc := newOrderForTest(t, orders, newStubCartRepo(), newStubProductRepo(), nil, time.Now())

	if _, err := svc.GetOrder(context.Background(), GetOrderCommand{OrderID: "o1", RequesterID: "u1"}); err != nil {
		t.Fatalf("owner access: %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), GetOrderCommand{OrderID: "o1", RequesterID: "u2"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), GetOrderCommand{OrderID: "o1", RequesterID: "u2", IsAdmin: true}); err != nil {
		t.Fatalf("admin access: %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), GetOrderCommand{OrderID: "missing", IsAdmin: true}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderMarkPaid(t *testing.T) {
	orders := newStubOrderRepo()
	orders.orders["o1"] = domain.Order{ID: "o1", UserID: "u1"}
	audit := &stubAuditService{}
	now := time.Date(2024, time.August, 2, 12, 0, 0, 0, time.UTC)
	svc := newOrderForTest(t, orders, newStubCartRepo(), newStubProductRepo(), audit, now)

	paid, err := svc.MarkPaid(context.Background(), OrderStateCommand{OrderID: "o1", ActorID: "admin_1"})
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if !paid.IsPaid || paid.PaidAt == nil || !paid.PaidAt.Equal(now) {
		t.Fatalf("expected paid order with timestamp, got %+v", paid)
	}
	if len(audit.records) != 1 || audit.records[0].Action != "orders.mark_paid" {
		t.Fatalf("expected audit record, got %#v", audit.records)
	}

	if _, err := svc.MarkPaid(context.Background(), OrderStateCommand{OrderID: "o1"}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict on double payment, got %v", err)
	}
}

func TestOrderMarkDelivered(t *testing.T) {
	orders := newStubOrderRepo()
	orders.orders["o1"] = domain.Order{ID: "o1", UserID: "u1"}
	svc := newOrderForTest(t, orders, newStubCartRepo(), newStubProductRepo(), nil, time.Now())

	if _, err := svc.MarkDelivered(context.Background(), OrderStateCommand{OrderID: "o1"}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict for unpaid order, got %v", err)
	}

	if _, err := svc.MarkPaid(context.Background(), OrderStateCommand{OrderID: "o1"}); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	delivered, err := svc.MarkDelivered(context.Background(), OrderStateCommand{OrderID: "o1"})
	if err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if !delivered.IsDelivered || delivered.DeliveredAt == nil {
		t.Fatalf("expected delivered order, got %+v", delivered)
	}

	if _, err := svc.MarkDelivered(context.Background(), OrderStateCommand{OrderID: "o1"}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict on double delivery, got %v", err)
	}
}

func TestOrderListUserOrders(t *testing.T) {
	orders := newStubOrderRepo()
	svc := newOrderForTest(t, orders, newStubCartRepo(), newStubProductRepo(), nil, time.Now())

	if _, err := svc.ListUserOrders(context.Background(), "u1", Pagination{PageSize: 10}); err != nil {
		t.Fatalf("ListUserOrders: %v", err)
	}
	if orders.listFilter.UserID != "u1" {
		t.Fatalf("expected user filter, got %+v", orders.listFilter)
	}
	if _, err := svc.ListUserOrders(context.Background(), "  ", Pagination{}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

type stubOrderRepo struct {
	orders map[string]domain.Order

	listResp   domain.CursorPage[domain.Order]
	listFilter repositories.OrderListFilter

	countResp int64
}

func newStubOrderRepo() *stubOrderRepo {
	return &stubOrderRepo{orders: map[string]domain.Order{}}
}

func (s *stubOrderRepo) Insert(_ context.Context, order domain.Order) (domain.Order, error) {
	if _, ok := s.orders[order.ID]; ok {
		return domain.Order{}, stubRepositoryError{conflict: true}
	}
	s.orders[order.ID] = order
	return order, nil
}

func (s *stubOrderRepo) Update(_ context.Context, order domain.Order) (domain.Order, error) {
	s.orders[order.ID] = order
	return order, nil
}

func (s *stubOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	if order, ok := s.orders[orderID]; ok {
		return order, nil
	}
	return domain.Order{}, stubRepositoryError{notFound: true}
}

func (s *stubOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	s.listFilter = filter
	return s.listResp, nil
}

func (s *stubOrderRepo) Count(context.Context) (int64, error) {
	return s.countResp, nil
}
