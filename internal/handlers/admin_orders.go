package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-books/api/internal/services"
)

// AdminOrderHandlers exposes store-wide order management.
type AdminOrderHandlers struct {
	orders services.OrderService
}

// NewAdminOrderHandlers constructs the admin order endpoints.
func NewAdminOrderHandlers(orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{orders: orders}
}

// Routes registers the admin order subtree.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/orders", func(rt chi.Router) {
		rt.Get("/", h.listOrders)
		rt.Get("/{orderId}", h.getOrder)
		rt.Post("/{orderId}/pay", h.markPaid)
		rt.Post("/{orderId}/deliver", h.markDelivered)
	})
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderUnavailable(ctx, w)
		return
	}

	filter := services.OrderListFilter{
		PaidOnly:   queryBool(r, "paid_only"),
		Pagination: paginationFromQuery(r),
	}
	if userID := strings.TrimSpace(r.URL.Query().Get("user_id")); userID != "" {
		filter.UserID = &userID
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, newListResponse(items, page.NextPageToken))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderUnavailable(ctx, w)
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		OrderID:     strings.TrimSpace(chi.URLParam(r, "orderId")),
		RequesterID: identity.UID,
		IsAdmin:     true,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) markPaid(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "pay")
}

func (h *AdminOrderHandlers) markDelivered(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "deliver")
}

func (h *AdminOrderHandlers) transition(w http.ResponseWriter, r *http.Request, action string) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrderUnavailable(ctx, w)
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	cmd := services.OrderStateCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderId")),
		ActorID: identity.UID,
	}

	var (
		order services.Order
		err   error
	)
	if action == "pay" {
		order, err = h.orders.MarkPaid(ctx, cmd)
	} else {
		order, err = h.orders.MarkDelivered(ctx, cmd)
	}
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}
