package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-books/api/internal/platform/auth"
	"github.com/inkwell-books/api/internal/platform/httpx"
	"github.com/inkwell-books/api/internal/services"
)

const maxProfileBodySize = 16 * 1024

var errNoEditableFields = errors.New("no editable fields provided")

// MeHandlers exposes the authenticated user's profile endpoints.
type MeHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewMeHandlers constructs handlers for the /me surface.
func NewMeHandlers(authn *auth.Authenticator, users services.UserService) *MeHandlers {
	return &MeHandlers{
		authn: authn,
		users: users,
	}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getProfile)
	r.Put("/", h.updateProfile)
}

// getProfile provisions the profile document on first access so that a
// Firebase identity always has a storefront projection.
func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUserUnavailable(ctx, w)
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	user, err := h.users.EnsureProfile(ctx, services.EnsureProfileCommand{
		UserID: identity.UID,
		Email:  identity.Email,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

func (h *MeHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUserUnavailable(ctx, w)
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxProfileBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	cmd, err := parseProfileUpdate(body, identity.UID)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	user, err := h.users.UpdateProfile(ctx, cmd)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

// parseProfileUpdate decodes the PUT body into a presence-aware command.
// Only fields present in the JSON document are updated; explicit empty
// strings clear the stored value.
func parseProfileUpdate(body []byte, userID string) (services.UpdateProfileCommand, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return services.UpdateProfileCommand{}, errors.New("invalid JSON payload")
	}

	cmd := services.UpdateProfileCommand{UserID: userID}
	fields := 0
	assign := func(key string, target **string) error {
		value, ok := raw[key]
		if !ok {
			return nil
		}
		var parsed string
		if err := json.Unmarshal(value, &parsed); err != nil {
			return errors.New(key + " must be a string")
		}
		parsed = strings.TrimSpace(parsed)
		*target = &parsed
		fields++
		return nil
	}

	if err := assign("first_name", &cmd.FirstName); err != nil {
		return services.UpdateProfileCommand{}, err
	}
	if err := assign("last_name", &cmd.LastName); err != nil {
		return services.UpdateProfileCommand{}, err
	}
	if err := assign("phone", &cmd.Phone); err != nil {
		return services.UpdateProfileCommand{}, err
	}

	if fields == 0 {
		return services.UpdateProfileCommand{}, errNoEditableFields
	}
	return cmd, nil
}

func writeUserUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("user_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
}

func writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("user_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("user_error", "user request failed", http.StatusInternalServerError))
	}
}

type userResponse struct {
	User userPayload `json:"user"`
}

type userPayload struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func buildUserPayload(user services.User) userPayload {
	return userPayload{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      string(user.Role),
		IsActive:  user.IsActive,
		CreatedAt: formatTime(user.CreatedAt),
		UpdatedAt: formatTime(user.UpdatedAt),
	}
}
