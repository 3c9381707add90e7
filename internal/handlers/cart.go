package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/platform/auth"
	"github.com/inkwell-books/api/internal/platform/httpx"
	"github.com/inkwell-books/api/internal/services"
)

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

const maxCartBodySize = 16 * 1024

// NewCartHandlers constructs handlers enforcing Firebase authentication
// before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items", h.setItemQuantity)
	r.Delete("/items/{rowId}", h.removeItem)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeCartUnavailable(ctx, w)
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(ctx, identity.UID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		writeCartUnavailable(r.Context(), w)
		return
	}
	h.mutateItem(w, r, h.carts.AddItem, http.StatusCreated)
}

func (h *CartHandlers) setItemQuantity(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		writeCartUnavailable(r.Context(), w)
		return
	}
	h.mutateItem(w, r, h.carts.SetItemQuantity, http.StatusOK)
}

func (h *CartHandlers) mutateItem(w http.ResponseWriter, r *http.Request, op func(context.Context, services.CartItemCommand) (services.Cart, error), status int) {
	ctx := r.Context()

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var payload cartItemRequest
	if err := decodeJSONBody(r, maxCartBodySize, &payload); err != nil {
		writeBodyError(w, r, err)
		return
	}

	cmd := services.CartItemCommand{
		UserID:    identity.UID,
		ProductID: strings.TrimSpace(payload.ProductID),
		VariantID: strings.TrimSpace(payload.VariantID),
		Quantity:  payload.Quantity,
	}
	if cmd.ProductID == "" && payload.RowID != "" {
		row := domain.ParseRowID(payload.RowID)
		cmd.ProductID = row.ProductID
		cmd.VariantID = row.VariantID
	}

	cart, err := op(ctx, cmd)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, status, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeCartUnavailable(ctx, w)
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	row := domain.ParseRowID(chi.URLParam(r, "rowId"))
	cart, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		UserID:    identity.UID,
		ProductID: row.ProductID,
		VariantID: row.VariantID,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeCartUnavailable(ctx, w)
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.carts.ClearCart(ctx, identity.UID); err != nil {
		writeCartError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeCartUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartOutOfStock):
		httpx.WriteError(ctx, w, httpx.NewError("out_of_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart request failed", http.StatusInternalServerError))
	}
}

type cartItemRequest struct {
	RowID     string `json:"row_id"`
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// UnmarshalJSON accepts both snake_case and the storefront's legacy camelCase
// field names.
func (c *cartItemRequest) UnmarshalJSON(data []byte) error {
	type alias cartItemRequest
	var primary alias
	if err := json.Unmarshal(data, &primary); err != nil {
		return err
	}
	*c = cartItemRequest(primary)
	if c.ProductID == "" || c.VariantID == "" {
		var legacy struct {
			ProductID string `json:"productId"`
			VariantID string `json:"variantId"`
		}
		if err := json.Unmarshal(data, &legacy); err == nil {
			if c.ProductID == "" {
				c.ProductID = legacy.ProductID
			}
			if c.VariantID == "" {
				c.VariantID = legacy.VariantID
			}
		}
	}
	return nil
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartItemPayload struct {
	RowID        string  `json:"row_id"`
	ProductID    string  `json:"product_id"`
	VariantID    string  `json:"variant_id"`
	Name         string  `json:"name"`
	Format       string  `json:"format,omitempty"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	LineTotal    float64 `json:"line_total"`
	Image        string  `json:"image,omitempty"`
	CountInStock int     `json:"count_in_stock"`
	AddedAt      string  `json:"added_at,omitempty"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
}

type cartPayload struct {
	UserID    string            `json:"user_id"`
	Items     []cartItemPayload `json:"items"`
	Subtotal  float64           `json:"subtotal"`
	ItemCount int               `json:"item_count"`
	CreatedAt string            `json:"created_at,omitempty"`
	UpdatedAt string            `json:"updated_at,omitempty"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	items := make([]cartItemPayload, 0, len(cart.Items))
	count := 0
	for _, item := range cart.Items {
		count += item.Quantity
		items = append(items, cartItemPayload{
			RowID:        domain.RowID{ProductID: item.ProductID, VariantID: item.VariantID}.String(),
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			Name:         item.Name,
			Format:       item.Format,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			LineTotal:    float64(item.Quantity) * item.UnitPrice,
			Image:        item.Image,
			CountInStock: item.CountInStock,
			AddedAt:      formatTime(item.AddedAt),
			UpdatedAt:    formatTime(item.UpdatedAt),
		})
	}
	return cartPayload{
		UserID:    cart.UserID,
		Items:     items,
		Subtotal:  cart.Subtotal(),
		ItemCount: count,
		CreatedAt: formatTime(cart.CreatedAt),
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
}
