package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/platform/auth"
	"github.com/inkwell-books/api/internal/services"
)

type stubUserService struct {
	user       domain.User
	page       domain.CursorPage[domain.User]
	err        error
	lastEnsure services.EnsureProfileCommand
	lastUpdate services.UpdateProfileCommand
	lastActive services.SetUserActiveCommand
	lastFilter services.UserListFilter
}

func (s *stubUserService) GetProfile(ctx context.Context, userID string) (domain.User, error) {
	return s.user, s.err
}

func (s *stubUserService) EnsureProfile(ctx context.Context, cmd services.EnsureProfileCommand) (domain.User, error) {
	s.lastEnsure = cmd
	return s.user, s.err
}

func (s *stubUserService) UpdateProfile(ctx context.Context, cmd services.UpdateProfileCommand) (domain.User, error) {
	s.lastUpdate = cmd
	return s.user, s.err
}

func (s *stubUserService) ListUsers(ctx context.Context, filter services.UserListFilter) (domain.CursorPage[domain.User], error) {
	s.lastFilter = filter
	return s.page, s.err
}

func (s *stubUserService) SetUserActive(ctx context.Context, cmd services.SetUserActiveCommand) (domain.User, error) {
	s.lastActive = cmd
	return s.user, s.err
}

func newMeTestRouter(users services.UserService, uid string) chi.Router {
	r := chi.NewRouter()
	if uid != "" {
		r.Use(identityMiddleware(uid, auth.RoleUser))
	}
	NewMeHandlers(nil, users).Routes(r)
	return r
}

func TestGetProfile_ProvisionsOnFirstAccess(t *testing.T) {
	users := &stubUserService{user: domain.User{ID: "uid_1", Email: "uid_1@example.com", Role: domain.RoleUser, IsActive: true}}
	router := newMeTestRouter(users, "uid_1")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if users.lastEnsure.UserID != "uid_1" || users.lastEnsure.Email != "uid_1@example.com" {
		t.Fatalf("unexpected ensure command: %+v", users.lastEnsure)
	}
}

func TestUpdateProfile_PresenceAwareFields(t *testing.T) {
	users := &stubUserService{user: domain.User{ID: "uid_1"}}
	router := newMeTestRouter(users, "uid_1")

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"first_name":"Ursula","phone":""}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	cmd := users.lastUpdate
	if cmd.FirstName == nil || *cmd.FirstName != "Ursula" {
		t.Fatalf("expected first name update, got %+v", cmd.FirstName)
	}
	if cmd.LastName != nil {
		t.Fatalf("expected absent last name to stay nil")
	}
	if cmd.Phone == nil || *cmd.Phone != "" {
		t.Fatalf("expected explicit empty phone, got %+v", cmd.Phone)
	}
}

func TestUpdateProfile_RejectsEmptyPatch(t *testing.T) {
	router := newMeTestRouter(&stubUserService{}, "uid_1")

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"unknown":"field"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
