package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/platform/httpx"
	"github.com/inkwell-books/api/internal/services"
)

const maxUserBodySize = 16 * 1024

// AdminUserHandlers exposes customer account management.
type AdminUserHandlers struct {
	users services.UserService
}

// NewAdminUserHandlers constructs the admin user endpoints.
func NewAdminUserHandlers(users services.UserService) *AdminUserHandlers {
	return &AdminUserHandlers{users: users}
}

// Routes registers the admin user subtree.
func (h *AdminUserHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/users", func(rt chi.Router) {
		rt.Get("/", h.listUsers)
		rt.Get("/{userId}", h.getUser)
		rt.Patch("/{userId}/active", h.setActive)
	})
}

func (h *AdminUserHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUserUnavailable(ctx, w)
		return
	}

	filter := services.UserListFilter{Pagination: paginationFromQuery(r)}
	if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
		role, err := parseUserRole(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		filter.Role = &role
	}

	page, err := h.users.ListUsers(ctx, filter)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	items := make([]userPayload, 0, len(page.Items))
	for _, user := range page.Items {
		items = append(items, buildUserPayload(user))
	}
	writeJSONResponse(w, http.StatusOK, newListResponse(items, page.NextPageToken))
}

func (h *AdminUserHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUserUnavailable(ctx, w)
		return
	}

	user, err := h.users.GetProfile(ctx, strings.TrimSpace(chi.URLParam(r, "userId")))
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

func (h *AdminUserHandlers) setActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUserUnavailable(ctx, w)
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var payload setUserActiveRequest
	if err := decodeJSONBody(r, maxUserBodySize, &payload); err != nil {
		writeBodyError(w, r, err)
		return
	}
	if payload.IsActive == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "is_active is required", http.StatusBadRequest))
		return
	}

	user, err := h.users.SetUserActive(ctx, services.SetUserActiveCommand{
		UserID:   strings.TrimSpace(chi.URLParam(r, "userId")),
		ActorID:  identity.UID,
		IsActive: *payload.IsActive,
		Reason:   strings.TrimSpace(payload.Reason),
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

func parseUserRole(raw string) (services.UserRole, error) {
	switch services.UserRole(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.RoleUser:
		return domain.RoleUser, nil
	case domain.RoleAdmin:
		return domain.RoleAdmin, nil
	default:
		return "", errors.New("role must be user or admin")
	}
}

type setUserActiveRequest struct {
	IsActive *bool  `json:"is_active"`
	Reason   string `json:"reason"`
}
