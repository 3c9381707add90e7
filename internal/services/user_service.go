package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

var (
	// ErrUserInvalidInput indicates the caller supplied invalid profile data.
	ErrUserInvalidInput = errors.New("user service: invalid input")
	// ErrUserNotFound indicates the requested profile does not exist.
	ErrUserNotFound = errors.New("user service: not found")
	// ErrUserUnavailable indicates the user service is missing dependencies.
	ErrUserUnavailable = errors.New("user service: unavailable")
)

var userPhonePattern = regexp.MustCompile(`^[0-9+()\-\s]{6,20}$`)

const (
	auditActionUserActivate   = "users.activate"
	auditActionUserDeactivate = "users.deactivate"
)

// UserServiceDeps wires the repository behind profile operations.
type UserServiceDeps struct {
	Users repositories.UserRepository
	Audit AuditLogService
	Clock func() time.Time
}

type userService struct {
	users repositories.UserRepository
	audit AuditLogService
	now   func() time.Time
}

// NewUserService constructs a UserService enforcing dependency validation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &userService{
		users: deps.Users,
		audit: deps.Audit,
		now:   func() time.Time { return clock().UTC() },
	}, nil
}

func (s *userService) GetProfile(ctx context.Context, userID string) (User, error) {
	if s == nil || s.users == nil {
		return User{}, ErrUserUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return User{}, s.translateRepoError(err)
	}
	return user, nil
}

// EnsureProfile creates the profile projection for a Firebase identity on
// first sight and returns the stored profile on subsequent calls.
func (s *userService) EnsureProfile(ctx context.Context, cmd EnsureProfileCommand) (User, error) {
	if s == nil || s.users == nil {
		return User{}, ErrUserUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	email := strings.TrimSpace(cmd.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return User{}, fmt.Errorf("%w: malformed email", ErrUserInvalidInput)
		}
	}

	existing, err := s.users.FindByID(ctx, uid)
	if err == nil {
		return existing, nil
	}
	if !isRepositoryNotFound(err) {
		return User{}, s.translateRepoError(err)
	}

	now := s.now()
	user := User{
		ID:        uid,
		FirstName: strings.TrimSpace(cmd.FirstName),
		LastName:  strings.TrimSpace(cmd.LastName),
		Email:     email,
		Role:      domain.RoleUser,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	saved, err := s.users.Upsert(ctx, user)
	if err != nil {
		return User{}, s.translateRepoError(err)
	}
	return saved, nil
}

func (s *userService) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (User, error) {
	if s == nil || s.users == nil {
		return User{}, ErrUserUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	if cmd.FirstName == nil && cmd.LastName == nil && cmd.Phone == nil {
		return User{}, fmt.Errorf("%w: no profile fields supplied", ErrUserInvalidInput)
	}

	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return User{}, s.translateRepoError(err)
	}

	if cmd.FirstName != nil {
		user.FirstName = strings.TrimSpace(*cmd.FirstName)
	}
	if cmd.LastName != nil {
		user.LastName = strings.TrimSpace(*cmd.LastName)
	}
	if cmd.Phone != nil {
		phone := strings.TrimSpace(*cmd.Phone)
		if phone != "" && !userPhonePattern.MatchString(phone) {
			return User{}, fmt.Errorf("%w: malformed phone number", ErrUserInvalidInput)
		}
		user.Phone = phone
	}
	user.UpdatedAt = s.now()

	saved, err := s.users.Upsert(ctx, user)
	if err != nil {
		return User{}, s.translateRepoError(err)
	}
	return saved, nil
}

func (s *userService) ListUsers(ctx context.Context, filter UserListFilter) (domain.CursorPage[User], error) {
	if s == nil || s.users == nil {
		return domain.CursorPage[User]{}, ErrUserUnavailable
	}
	role := ""
	if filter.Role != nil {
		role = string(*filter.Role)
	}
	page, err := s.users.List(ctx, repositories.UserListFilter{
		Role: role,
		Pagination: domain.Pagination{
			PageSize:  filter.PageSize,
			PageToken: strings.TrimSpace(filter.PageToken),
		},
	})
	if err != nil {
		return domain.CursorPage[User]{}, s.translateRepoError(err)
	}
	return page, nil
}

// SetUserActive toggles the account's active flag and records who did it.
func (s *userService) SetUserActive(ctx context.Context, cmd SetUserActiveCommand) (User, error) {
	if s == nil || s.users == nil {
		return User{}, ErrUserUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return User{}, s.translateRepoError(err)
	}
	if user.IsActive == cmd.IsActive {
		return user, nil
	}

	now := s.now()
	user.IsActive = cmd.IsActive
	user.UpdatedAt = now

	saved, err := s.users.Upsert(ctx, user)
	if err != nil {
		return User{}, s.translateRepoError(err)
	}

	if s.audit != nil {
		action := auditActionUserDeactivate
		if cmd.IsActive {
			action = auditActionUserActivate
		}
		metadata := map[string]any{}
		if reason := strings.TrimSpace(cmd.Reason); reason != "" {
			metadata["reason"] = reason
		}
		s.audit.Record(ctx, AuditLogRecord{
			Actor:      strings.TrimSpace(cmd.ActorID),
			ActorType:  "admin",
			Action:     action,
			TargetRef:  "users/" + saved.ID,
			OccurredAt: now,
			Metadata:   metadata,
		})
	}
	return saved, nil
}

func (s *userService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s", ErrUserNotFound, err.Error())
	}
	return err
}
