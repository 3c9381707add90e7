package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/platform/auth"
	"github.com/inkwell-books/api/internal/services"
)

type stubOrderService struct {
	order      domain.Order
	page       domain.CursorPage[domain.Order]
	err        error
	lastCreate services.CreateOrderCommand
	lastGet    services.GetOrderCommand
	lastFilter services.OrderListFilter
	lastState  services.OrderStateCommand
}

func (s *stubOrderService) CreateFromCart(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	s.lastCreate = cmd
	return s.order, s.err
}

func (s *stubOrderService) GetOrder(ctx context.Context, cmd services.GetOrderCommand) (domain.Order, error) {
	s.lastGet = cmd
	return s.order, s.err
}

func (s *stubOrderService) ListUserOrders(ctx context.Context, userID string, pager services.Pagination) (domain.CursorPage[domain.Order], error) {
	return s.page, s.err
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	s.lastFilter = filter
	return s.page, s.err
}

func (s *stubOrderService) MarkPaid(ctx context.Context, cmd services.OrderStateCommand) (domain.Order, error) {
	s.lastState = cmd
	return s.order, s.err
}

func (s *stubOrderService) MarkDelivered(ctx context.Context, cmd services.OrderStateCommand) (domain.Order, error) {
	s.lastState = cmd
	return s.order, s.err
}

func newOrderTestRouter(orders services.OrderService, uid string, roles ...string) chi.Router {
	r := chi.NewRouter()
	if uid != "" {
		r.Use(identityMiddleware(uid, roles...))
	}
	NewOrderHandlers(nil, orders).Routes(r)
	return r
}

func TestCreateOrder_FromCart(t *testing.T) {
	paid := time.Date(2024, time.May, 2, 9, 0, 0, 0, time.UTC)
	orders := &stubOrderService{
		order: domain.Order{
			ID:     "ord_1",
			Number: "INK-000001",
			UserID: "uid_1",
			Total:  34.5,
			IsPaid: true,
			PaidAt: &paid,
		},
	}
	router := newOrderTestRouter(orders, "uid_1", auth.RoleUser)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if orders.lastCreate.UserID != "uid_1" {
		t.Fatalf("expected checkout for uid_1, got %+v", orders.lastCreate)
	}
}

func TestCreateOrder_EmptyCartRejected(t *testing.T) {
	orders := &stubOrderService{err: services.ErrOrderInvalidInput}
	router := newOrderTestRouter(orders, "uid_1", auth.RoleUser)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGetOrder_ForbiddenForOtherUser(t *testing.T) {
	orders := &stubOrderService{err: services.ErrOrderForbidden}
	router := newOrderTestRouter(orders, "uid_2", auth.RoleUser)

	req := httptest.NewRequest(http.MethodGet, "/ord_1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if orders.lastGet.RequesterID != "uid_2" || orders.lastGet.IsAdmin {
		t.Fatalf("unexpected get command: %+v", orders.lastGet)
	}
}

func TestGetOrder_AdminFlagFromRole(t *testing.T) {
	orders := &stubOrderService{order: domain.Order{ID: "ord_1", UserID: "uid_1"}}
	router := newOrderTestRouter(orders, "admin_1", auth.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/ord_1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !orders.lastGet.IsAdmin {
		t.Fatalf("expected admin flag set from role")
	}
}
