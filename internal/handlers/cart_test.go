package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/platform/auth"
	"github.com/inkwell-books/api/internal/services"
)

type stubCartService struct {
	cart      domain.Cart
	err       error
	lastCmd   services.CartItemCommand
	lastRm    services.RemoveCartItemCommand
	cleared   string
	getUserID string
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	s.getUserID = userID
	return s.cart, s.err
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.CartItemCommand) (domain.Cart, error) {
	s.lastCmd = cmd
	return s.cart, s.err
}

func (s *stubCartService) SetItemQuantity(ctx context.Context, cmd services.CartItemCommand) (domain.Cart, error) {
	s.lastCmd = cmd
	return s.cart, s.err
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (domain.Cart, error) {
	s.lastRm = cmd
	return s.cart, s.err
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	s.cleared = userID
	return s.err
}

// identityMiddleware injects a fake authenticated identity, standing in for
// the Firebase verifier in handler tests.
func identityMiddleware(uid string, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := &auth.Identity{UID: uid, Email: uid + "@example.com", Roles: roles}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

func newCartTestRouter(carts services.CartService, uid string) chi.Router {
	r := chi.NewRouter()
	if uid != "" {
		r.Use(identityMiddleware(uid, auth.RoleUser))
	}
	NewCartHandlers(nil, carts).Routes(r)
	return r
}

func TestGetCart_RequiresIdentity(t *testing.T) {
	router := newCartTestRouter(&stubCartService{}, "")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAddItem_BuildsCommand(t *testing.T) {
	carts := &stubCartService{
		cart: domain.Cart{
			UserID: "uid_1",
			Items: []domain.CartItem{
				{ProductID: "prod_1", VariantID: "var_1", Quantity: 2, UnitPrice: 10.5, Name: "Dune"},
			},
		},
	}
	router := newCartTestRouter(carts, "uid_1")

	body := strings.NewReader(`{"product_id":"prod_1","variant_id":"var_1","quantity":2}`)
	req := httptest.NewRequest(http.MethodPost, "/items", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if carts.lastCmd.UserID != "uid_1" || carts.lastCmd.ProductID != "prod_1" || carts.lastCmd.VariantID != "var_1" || carts.lastCmd.Quantity != 2 {
		t.Fatalf("unexpected command: %+v", carts.lastCmd)
	}

	var payload struct {
		Cart struct {
			Subtotal float64 `json:"subtotal"`
			Items    []struct {
				RowID     string  `json:"row_id"`
				LineTotal float64 `json:"line_total"`
			} `json:"items"`
		} `json:"cart"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if payload.Cart.Subtotal != 21 {
		t.Fatalf("expected subtotal 21, got %v", payload.Cart.Subtotal)
	}
	if len(payload.Cart.Items) != 1 || payload.Cart.Items[0].RowID != "prod_1-var_1" {
		t.Fatalf("unexpected items: %+v", payload.Cart.Items)
	}
	if payload.Cart.Items[0].LineTotal != 21 {
		t.Fatalf("expected line total 21, got %v", payload.Cart.Items[0].LineTotal)
	}
}

func TestAddItem_AcceptsLegacyFieldNames(t *testing.T) {
	carts := &stubCartService{}
	router := newCartTestRouter(carts, "uid_1")

	body := strings.NewReader(`{"productId":"prod_9","variantId":"var_3","quantity":1}`)
	req := httptest.NewRequest(http.MethodPost, "/items", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if carts.lastCmd.ProductID != "prod_9" || carts.lastCmd.VariantID != "var_3" {
		t.Fatalf("expected legacy field names to map, got %+v", carts.lastCmd)
	}
}

func TestSetItemQuantity_OutOfStockConflict(t *testing.T) {
	carts := &stubCartService{err: services.ErrCartOutOfStock}
	router := newCartTestRouter(carts, "uid_1")

	body := strings.NewReader(`{"product_id":"prod_1","variant_id":"var_1","quantity":99}`)
	req := httptest.NewRequest(http.MethodPatch, "/items", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestRemoveItem_ParsesRowID(t *testing.T) {
	carts := &stubCartService{}
	router := newCartTestRouter(carts, "uid_1")

	req := httptest.NewRequest(http.MethodDelete, "/items/prod_1-var_2", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if carts.lastRm.ProductID != "prod_1" || carts.lastRm.VariantID != "var_2" {
		t.Fatalf("expected split row id, got %+v", carts.lastRm)
	}
}

func TestRemoveItem_DashedVariantID(t *testing.T) {
	carts := &stubCartService{}
	router := newCartTestRouter(carts, "uid_1")

	req := httptest.NewRequest(http.MethodDelete, "/items/prod_1-trade-paperback", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if carts.lastRm.ProductID != "prod_1" || carts.lastRm.VariantID != "trade-paperback" {
		t.Fatalf("expected variant id to keep its dashes, got %+v", carts.lastRm)
	}
}

func TestClearCart_NoContent(t *testing.T) {
	carts := &stubCartService{}
	router := newCartTestRouter(carts, "uid_1")

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if carts.cleared != "uid_1" {
		t.Fatalf("expected clear for uid_1, got %s", carts.cleared)
	}
}
