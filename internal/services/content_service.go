package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	"github.com/inkwell-books/api/internal/repositories"
)

var (
	// ErrContentRepositoryMissing signals that a content repository dependency is absent.
	ErrContentRepositoryMissing = errors.New("content service: content repository is not configured")
	// ErrContentInvalidInput indicates the caller supplied invalid CMS data.
	ErrContentInvalidInput = errors.New("content service: invalid input")
	// ErrContentNotFound indicates the requested banner or page does not exist.
	ErrContentNotFound = errors.New("content service: not found")
	// ErrContentConflict indicates a slug collision with another page.
	ErrContentConflict = errors.New("content service: conflict")
)

// ContentServiceDeps groups constructor parameters for the content service.
type ContentServiceDeps struct {
	Banners     repositories.BannerRepository
	Pages       repositories.StaticPageRepository
	Audit       AuditLogService
	Clock       func() time.Time
	IDGenerator func() string
}

type contentService struct {
	banners repositories.BannerRepository
	pages   repositories.StaticPageRepository
	audit   AuditLogService
	policy  *bluemonday.Policy
	clock   func() time.Time
	newID   func() string
}

// NewContentService constructs the content service with the supplied dependencies.
func NewContentService(deps ContentServiceDeps) (ContentService, error) {
	if deps.Banners == nil || deps.Pages == nil {
		return nil, ErrContentRepositoryMissing
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &contentService{
		banners: deps.Banners,
		pages:   deps.Pages,
		audit:   deps.Audit,
		policy:  newPageHTMLPolicy(),
		clock:   func() time.Time { return clock().UTC() },
		newID:   idGen,
	}, nil
}

// newPageHTMLPolicy builds the sanitizer applied to page bodies before they
// are persisted. Page content is authored by admins but still rendered into
// customer browsers verbatim.
func newPageHTMLPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("figure", "figcaption")
	policy.AllowAttrs("class").OnElements("figure", "figcaption", "p", "span")
	policy.AllowAttrs("loading").OnElements("img")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

func (s *contentService) ListBanners(ctx context.Context, activeOnly bool) ([]Banner, error) {
	if s.banners == nil {
		return nil, ErrContentRepositoryMissing
	}
	banners, err := s.banners.List(ctx, activeOnly)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return banners, nil
}

func (s *contentService) GetBanner(ctx context.Context, bannerID string) (Banner, error) {
	if s.banners == nil {
		return Banner{}, ErrContentRepositoryMissing
	}
	bannerID = strings.TrimSpace(bannerID)
	if bannerID == "" {
		return Banner{}, fmt.Errorf("%w: banner id is required", ErrContentInvalidInput)
	}
	banner, err := s.banners.FindByID(ctx, bannerID)
	if err != nil {
		return Banner{}, s.translateRepoError(err)
	}
	return banner, nil
}

func (s *contentService) CreateBanner(ctx context.Context, cmd UpsertBannerCommand) (Banner, error) {
	if s.banners == nil {
		return Banner{}, ErrContentRepositoryMissing
	}

	banner := cmd.Banner
	banner.Title = strings.TrimSpace(banner.Title)
	if banner.Title == "" {
		return Banner{}, fmt.Errorf("%w: banner title is required", ErrContentInvalidInput)
	}
	applyBannerUploads(&banner, cmd.Uploads)

	now := s.clock()
	banner.ID = s.newID()
	banner.CreatedAt = now
	banner.UpdatedAt = now

	saved, err := s.banners.Insert(ctx, banner)
	if err != nil {
		return Banner{}, s.translateRepoError(err)
	}
	s.recordContentAudit(ctx, "cms.banner.create", "banners/"+saved.ID, cmd.ActorID, now)
	return saved, nil
}

func (s *contentService) UpdateBanner(ctx context.Context, cmd UpsertBannerCommand) (Banner, error) {
	if s.banners == nil {
		return Banner{}, ErrContentRepositoryMissing
	}
	bannerID := strings.TrimSpace(cmd.Banner.ID)
	if bannerID == "" {
		return Banner{}, fmt.Errorf("%w: banner id is required", ErrContentInvalidInput)
	}

	existing, err := s.banners.FindByID(ctx, bannerID)
	if err != nil {
		return Banner{}, s.translateRepoError(err)
	}

	banner := cmd.Banner
	banner.ID = existing.ID
	banner.Title = strings.TrimSpace(banner.Title)
	if banner.Title == "" {
		return Banner{}, fmt.Errorf("%w: banner title is required", ErrContentInvalidInput)
	}
	if banner.ImageDesktop == "" {
		banner.ImageDesktop = existing.ImageDesktop
	}
	if banner.ImageMobile == "" {
		banner.ImageMobile = existing.ImageMobile
	}
	applyBannerUploads(&banner, cmd.Uploads)
	banner.CreatedAt = existing.CreatedAt
	banner.UpdatedAt = s.clock()

	saved, err := s.banners.Update(ctx, banner)
	if err != nil {
		return Banner{}, s.translateRepoError(err)
	}
	s.recordContentAudit(ctx, "cms.banner.update", "banners/"+saved.ID, cmd.ActorID, saved.UpdatedAt)
	return saved, nil
}

func (s *contentService) DeleteBanner(ctx context.Context, cmd DeleteBannerCommand) error {
	if s.banners == nil {
		return ErrContentRepositoryMissing
	}
	bannerID := strings.TrimSpace(cmd.BannerID)
	if bannerID == "" {
		return fmt.Errorf("%w: banner id is required", ErrContentInvalidInput)
	}
	if err := s.banners.Delete(ctx, bannerID); err != nil {
		if isRepositoryNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}
	s.recordContentAudit(ctx, "cms.banner.delete", "banners/"+bannerID, cmd.ActorID, s.clock())
	return nil
}

func (s *contentService) GetPage(ctx context.Context, slug string) (StaticPage, error) {
	if s.pages == nil {
		return StaticPage{}, ErrContentRepositoryMissing
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return StaticPage{}, fmt.Errorf("%w: page slug is required", ErrContentInvalidInput)
	}
	page, err := s.pages.FindBySlug(ctx, slug)
	if err != nil {
		return StaticPage{}, s.translateRepoError(err)
	}
	return page, nil
}

func (s *contentService) ListPages(ctx context.Context, includeUnpublished bool) ([]StaticPage, error) {
	if s.pages == nil {
		return nil, ErrContentRepositoryMissing
	}
	pages, err := s.pages.List(ctx, includeUnpublished)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return pages, nil
}

func (s *contentService) UpsertPage(ctx context.Context, cmd UpsertStaticPageCommand) (StaticPage, error) {
	if s.pages == nil {
		return StaticPage{}, ErrContentRepositoryMissing
	}

	page := cmd.Page
	page.Title = strings.TrimSpace(page.Title)
	if page.Title == "" {
		return StaticPage{}, fmt.Errorf("%w: page title is required", ErrContentInvalidInput)
	}
	page.Slug = strings.TrimSpace(page.Slug)
	if page.Slug == "" {
		page.Slug = GenerateSlug(page.Title, 0)
	}
	if page.Slug == "" {
		return StaticPage{}, fmt.Errorf("%w: page title yields an empty slug", ErrContentInvalidInput)
	}
	page.Body = s.policy.Sanitize(page.Body)
	page.UpdatedBy = strings.TrimSpace(cmd.ActorID)

	now := s.clock()
	pageID := strings.TrimSpace(page.ID)
	if pageID == "" {
		// Creating. The slug must not collide with another page.
		if _, err := s.pages.FindBySlug(ctx, page.Slug); err == nil {
			return StaticPage{}, fmt.Errorf("%w: page slug %s already in use", ErrContentConflict, page.Slug)
		} else if !isRepositoryNotFound(err) {
			return StaticPage{}, s.translateRepoError(err)
		}
		page.ID = s.newID()
		page.CreatedAt = now
	} else {
		existing, err := s.pages.FindByID(ctx, pageID)
		if err != nil {
			return StaticPage{}, s.translateRepoError(err)
		}
		if other, err := s.pages.FindBySlug(ctx, page.Slug); err == nil && other.ID != existing.ID {
			return StaticPage{}, fmt.Errorf("%w: page slug %s already in use", ErrContentConflict, page.Slug)
		} else if err != nil && !isRepositoryNotFound(err) {
			return StaticPage{}, s.translateRepoError(err)
		}
		page.ID = existing.ID
		page.CreatedAt = existing.CreatedAt
	}
	page.UpdatedAt = now

	saved, err := s.pages.Upsert(ctx, page)
	if err != nil {
		return StaticPage{}, s.translateRepoError(err)
	}
	s.recordContentAudit(ctx, "cms.page.upsert", "staticPages/"+saved.ID, cmd.ActorID, now)
	return saved, nil
}

func (s *contentService) DeletePage(ctx context.Context, cmd DeleteStaticPageCommand) error {
	if s.pages == nil {
		return ErrContentRepositoryMissing
	}
	pageID := strings.TrimSpace(cmd.PageID)
	if pageID == "" {
		return fmt.Errorf("%w: page id is required", ErrContentInvalidInput)
	}
	if err := s.pages.Delete(ctx, pageID); err != nil {
		if isRepositoryNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}
	s.recordContentAudit(ctx, "cms.page.delete", "staticPages/"+pageID, cmd.ActorID, s.clock())
	return nil
}

func applyBannerUploads(banner *Banner, uploads BannerUploads) {
	if uploads.ImageDesktop != "" {
		banner.ImageDesktop = uploads.ImageDesktop
	}
	if uploads.ImageMobile != "" {
		banner.ImageMobile = uploads.ImageMobile
	}
}

func (s *contentService) recordContentAudit(ctx context.Context, action, targetRef, actorID string, occurredAt time.Time) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:      strings.TrimSpace(actorID),
		ActorType:  "admin",
		Action:     action,
		TargetRef:  targetRef,
		OccurredAt: occurredAt,
	})
}

func (s *contentService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrContentNotFound, err.Error())
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrContentConflict, err.Error())
		}
	}
	return err
}
