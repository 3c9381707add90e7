package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

var (
	// ErrCategoryRepositoryMissing indicates the repository dependency is absent.
	ErrCategoryRepositoryMissing = errors.New("category service: repository is not configured")
	// ErrCategoryInvalidInput indicates the caller supplied invalid category data.
	ErrCategoryInvalidInput = errors.New("category service: invalid input")
	// ErrCategoryNotFound indicates the requested category does not exist.
	ErrCategoryNotFound = errors.New("category service: not found")
	// ErrCategoryConflict indicates a slug collision with another category.
	ErrCategoryConflict = errors.New("category service: conflict")
)

// CategoryServiceDeps bundles constructor inputs for the category service.
type CategoryServiceDeps struct {
	Categories  repositories.CategoryRepository
	Audit       AuditLogService
	Clock       func() time.Time
	IDGenerator func() string
}

type categoryService struct {
	repo  repositories.CategoryRepository
	audit AuditLogService
	clock func() time.Time
	newID func() string
}

// NewCategoryService constructs the category service.
func NewCategoryService(deps CategoryServiceDeps) (CategoryService, error) {
	if deps.Categories == nil {
		return nil, fmt.Errorf("category service: category repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &categoryService{
		repo:  deps.Categories,
		audit: deps.Audit,
		clock: func() time.Time { return clock().UTC() },
		newID: idGen,
	}, nil
}

func (s *categoryService) ListCategories(ctx context.Context) ([]Category, error) {
	if s.repo == nil {
		return nil, ErrCategoryRepositoryMissing
	}
	categories, err := s.repo.List(ctx)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return categories, nil
}

func (s *categoryService) GetCategoryBySlug(ctx context.Context, slug string) (Category, error) {
	if s.repo == nil {
		return Category{}, ErrCategoryRepositoryMissing
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Category{}, fmt.Errorf("%w: slug is required", ErrCategoryInvalidInput)
	}
	category, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}
	return category, nil
}

func (s *categoryService) CreateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	if s.repo == nil {
		return Category{}, ErrCategoryRepositoryMissing
	}

	category, err := s.normalize(cmd)
	if err != nil {
		return Category{}, err
	}
	if err := s.ensureSlugFree(ctx, category.Slug, ""); err != nil {
		return Category{}, err
	}

	now := s.clock()
	category.ID = s.newID()
	category.CreatedAt = now
	category.UpdatedAt = now

	saved, err := s.repo.Insert(ctx, category)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}
	s.recordAudit(ctx, "catalog.category.create", saved, cmd.ActorID, now)
	return saved, nil
}

func (s *categoryService) UpdateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	if s.repo == nil {
		return Category{}, ErrCategoryRepositoryMissing
	}
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCategoryInvalidInput)
	}

	existing, err := s.repo.FindByID(ctx, categoryID)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}

	category, err := s.normalize(cmd)
	if err != nil {
		return Category{}, err
	}
	if err := s.ensureSlugFree(ctx, category.Slug, existing.ID); err != nil {
		return Category{}, err
	}

	category.ID = existing.ID
	category.CreatedAt = existing.CreatedAt
	category.UpdatedAt = s.clock()

	saved, err := s.repo.Update(ctx, category)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}
	s.recordAudit(ctx, "catalog.category.update", saved, cmd.ActorID, saved.UpdatedAt)
	return saved, nil
}

func (s *categoryService) DeleteCategory(ctx context.Context, cmd DeleteCategoryCommand) error {
	if s.repo == nil {
		return ErrCategoryRepositoryMissing
	}
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID == "" {
		return fmt.Errorf("%w: category id is required", ErrCategoryInvalidInput)
	}

	existing, err := s.repo.FindByID(ctx, categoryID)
	if err != nil {
		return s.translateRepoError(err)
	}
	if err := s.repo.Delete(ctx, categoryID); err != nil {
		if isRepositoryNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}
	s.recordAudit(ctx, "catalog.category.delete", existing, cmd.ActorID, s.clock())
	return nil
}

// normalize trims names and derives slugs for the category and each
// subcategory, rejecting blanks and in-payload duplicates.
func (s *categoryService) normalize(cmd UpsertCategoryCommand) (Category, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: category name is required", ErrCategoryInvalidInput)
	}
	slug := derefTrimmed(cmd.Slug)
	if slug == "" {
		slug = GenerateSlug(name, 0)
	}
	if slug == "" {
		return Category{}, fmt.Errorf("%w: category name yields an empty slug", ErrCategoryInvalidInput)
	}

	seen := map[string]bool{slug: true}
	subcategories := make([]domain.Subcategory, 0, len(cmd.Subcategories))
	for _, sub := range cmd.Subcategories {
		subName := strings.TrimSpace(sub.Name)
		if subName == "" {
			return Category{}, fmt.Errorf("%w: subcategory name is required", ErrCategoryInvalidInput)
		}
		subSlug := derefTrimmed(sub.Slug)
		if subSlug == "" {
			subSlug = GenerateSlug(subName, 0)
		}
		if subSlug == "" || seen[subSlug] {
			return Category{}, fmt.Errorf("%w: subcategory slug %q is empty or duplicated", ErrCategoryInvalidInput, subSlug)
		}
		seen[subSlug] = true
		subcategories = append(subcategories, domain.Subcategory{Name: subName, Slug: subSlug})
	}

	return Category{Name: name, Slug: slug, Subcategories: subcategories}, nil
}

func (s *categoryService) ensureSlugFree(ctx context.Context, slug, selfID string) error {
	other, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if isRepositoryNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}
	if other.ID == selfID {
		return nil
	}
	return fmt.Errorf("%w: slug %s already in use", ErrCategoryConflict, slug)
}

func (s *categoryService) recordAudit(ctx context.Context, action string, category Category, actorID string, occurredAt time.Time) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:      strings.TrimSpace(actorID),
		ActorType:  "admin",
		Action:     action,
		TargetRef:  "categories/" + category.ID,
		OccurredAt: occurredAt,
	})
}

func (s *categoryService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, err.Error())
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrCategoryConflict, err.Error())
		}
	}
	return err
}
