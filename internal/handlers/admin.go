package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/inkwell-books/api/internal/platform/auth"
)

// AdminHandlers composes the management surface behind a single admin role
// gate. Each sub-handler registers its own subtree.
type AdminHandlers struct {
	authn     *auth.Authenticator
	catalog   *AdminCatalogHandlers
	orders    *AdminOrderHandlers
	users     *AdminUserHandlers
	content   *AdminContentHandlers
	dashboard *AdminDashboardHandlers
}

// NewAdminHandlers constructs the admin route aggregate.
func NewAdminHandlers(
	authn *auth.Authenticator,
	catalog *AdminCatalogHandlers,
	orders *AdminOrderHandlers,
	users *AdminUserHandlers,
	content *AdminContentHandlers,
	dashboard *AdminDashboardHandlers,
) *AdminHandlers {
	return &AdminHandlers{
		authn:     authn,
		catalog:   catalog,
		orders:    orders,
		users:     users,
		content:   content,
		dashboard: dashboard,
	}
}

// Routes wires every admin endpoint behind the admin role requirement.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	if h.catalog != nil {
		h.catalog.Routes(r)
	}
	if h.orders != nil {
		h.orders.Routes(r)
	}
	if h.users != nil {
		h.users.Routes(r)
	}
	if h.content != nil {
		h.content.Routes(r)
	}
	if h.dashboard != nil {
		h.dashboard.Routes(r)
	}
}
