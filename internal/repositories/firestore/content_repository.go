package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/inkwell-books/api/internal/domain"
	pfirestore "github.com/inkwell-books/api/internal/platform/firestore"
	"github.com/inkwell-books/api/internal/repositories"
)

const (
	bannersCollection     = "cmsBanners"
	staticPagesCollection = "staticPages"
)

// BannerRepository stores CMS hero banners.
type BannerRepository struct {
	base *pfirestore.BaseRepository[bannerDocument]
}

// NewBannerRepository constructs a Firestore-backed banner repository.
func NewBannerRepository(provider *pfirestore.Provider) (*BannerRepository, error) {
	if provider == nil {
		return nil, errors.New("banner repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[bannerDocument](provider, bannersCollection, nil, nil)
	return &BannerRepository{base: base}, nil
}

// Insert stores a new banner document.
func (r *BannerRepository) Insert(ctx context.Context, banner domain.Banner) (domain.Banner, error) {
	if r == nil || r.base == nil {
		return domain.Banner{}, errors.New("banner repository not initialised")
	}
	bannerID := strings.TrimSpace(banner.ID)
	if bannerID == "" {
		return domain.Banner{}, errors.New("banner repository: banner id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, bannerID)
	if err != nil {
		return domain.Banner{}, err
	}
	doc := encodeBannerDocument(banner)
	if _, err := docRef.Create(ctx, doc); err != nil {
		return domain.Banner{}, pfirestore.WrapError("banners.insert", err)
	}
	return decodeBannerDocument(bannerID, doc), nil
}

// Update replaces the persisted banner state.
func (r *BannerRepository) Update(ctx context.Context, banner domain.Banner) (domain.Banner, error) {
	if r == nil || r.base == nil {
		return domain.Banner{}, errors.New("banner repository not initialised")
	}
	bannerID := strings.TrimSpace(banner.ID)
	if bannerID == "" {
		return domain.Banner{}, errors.New("banner repository: banner id is required")
	}
	doc := encodeBannerDocument(banner)
	if _, err := r.base.Set(ctx, bannerID, doc); err != nil {
		return domain.Banner{}, err
	}
	return decodeBannerDocument(bannerID, doc), nil
}

// Delete removes a banner.
func (r *BannerRepository) Delete(ctx context.Context, bannerID string) error {
	if r == nil || r.base == nil {
		return errors.New("banner repository not initialised")
	}
	bannerID = strings.TrimSpace(bannerID)
	if bannerID == "" {
		return errors.New("banner repository: banner id is required")
	}
	return r.base.Delete(ctx, bannerID)
}

// FindByID fetches a single banner.
func (r *BannerRepository) FindByID(ctx context.Context, bannerID string) (domain.Banner, error) {
	if r == nil || r.base == nil {
		return domain.Banner{}, errors.New("banner repository not initialised")
	}
	bannerID = strings.TrimSpace(bannerID)
	if bannerID == "" {
		return domain.Banner{}, errors.New("banner repository: banner id is required")
	}
	doc, err := r.base.Get(ctx, bannerID)
	if err != nil {
		return domain.Banner{}, err
	}
	return decodeBannerDocument(doc.ID, doc.Data), nil
}

// List returns banners in display order, optionally only active ones.
func (r *BannerRepository) List(ctx context.Context, activeOnly bool) ([]domain.Banner, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("banner repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if activeOnly {
			q = q.Where("isActive", "==", true)
		}
		return q.OrderBy("order", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.Banner, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeBannerDocument(doc.ID, doc.Data))
	}
	return items, nil
}

type bannerDocument struct {
	Title           string    `firestore:"title"`
	Subtitle        string    `firestore:"subtitle,omitempty"`
	CTAText         string    `firestore:"ctaText,omitempty"`
	CTALink         string    `firestore:"ctaLink,omitempty"`
	BackgroundColor string    `firestore:"backgroundColor,omitempty"`
	TextColor       string    `firestore:"textColor,omitempty"`
	AnimationType   string    `firestore:"animationType,omitempty"`
	Order           int       `firestore:"order"`
	IsActive        bool      `firestore:"isActive"`
	ImageDesktop    string    `firestore:"imageDesktop,omitempty"`
	ImageMobile     string    `firestore:"imageMobile,omitempty"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func encodeBannerDocument(banner domain.Banner) bannerDocument {
	return bannerDocument{
		Title:           strings.TrimSpace(banner.Title),
		Subtitle:        strings.TrimSpace(banner.Subtitle),
		CTAText:         strings.TrimSpace(banner.CTAText),
		CTALink:         strings.TrimSpace(banner.CTALink),
		BackgroundColor: strings.TrimSpace(banner.BackgroundColor),
		TextColor:       strings.TrimSpace(banner.TextColor),
		AnimationType:   strings.TrimSpace(banner.AnimationType),
		Order:           banner.Order,
		IsActive:        banner.IsActive,
		ImageDesktop:    strings.TrimSpace(banner.ImageDesktop),
		ImageMobile:     strings.TrimSpace(banner.ImageMobile),
		CreatedAt:       banner.CreatedAt.UTC(),
		UpdatedAt:       banner.UpdatedAt.UTC(),
	}
}

func decodeBannerDocument(id string, doc bannerDocument) domain.Banner {
	return domain.Banner{
		ID:              id,
		Title:           doc.Title,
		Subtitle:        doc.Subtitle,
		CTAText:         doc.CTAText,
		CTALink:         doc.CTALink,
		BackgroundColor: doc.BackgroundColor,
		TextColor:       doc.TextColor,
		AnimationType:   doc.AnimationType,
		Order:           doc.Order,
		IsActive:        doc.IsActive,
		ImageDesktop:    doc.ImageDesktop,
		ImageMobile:     doc.ImageMobile,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

// StaticPageRepository stores CMS long-form pages.
type StaticPageRepository struct {
	base *pfirestore.BaseRepository[staticPageDocument]
}

// NewStaticPageRepository constructs a Firestore-backed static page repository.
func NewStaticPageRepository(provider *pfirestore.Provider) (*StaticPageRepository, error) {
	if provider == nil {
		return nil, errors.New("static page repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[staticPageDocument](provider, staticPagesCollection, nil, nil)
	return &StaticPageRepository{base: base}, nil
}

// Upsert writes the page under its document id.
func (r *StaticPageRepository) Upsert(ctx context.Context, page domain.StaticPage) (domain.StaticPage, error) {
	if r == nil || r.base == nil {
		return domain.StaticPage{}, errors.New("static page repository not initialised")
	}
	pageID := strings.TrimSpace(page.ID)
	if pageID == "" {
		return domain.StaticPage{}, errors.New("static page repository: page id is required")
	}
	doc := encodeStaticPageDocument(page)
	if _, err := r.base.Set(ctx, pageID, doc); err != nil {
		return domain.StaticPage{}, err
	}
	return decodeStaticPageDocument(pageID, doc), nil
}

// Delete removes a page.
func (r *StaticPageRepository) Delete(ctx context.Context, pageID string) error {
	if r == nil || r.base == nil {
		return errors.New("static page repository not initialised")
	}
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		return errors.New("static page repository: page id is required")
	}
	return r.base.Delete(ctx, pageID)
}

// FindByID fetches a single page.
func (r *StaticPageRepository) FindByID(ctx context.Context, pageID string) (domain.StaticPage, error) {
	if r == nil || r.base == nil {
		return domain.StaticPage{}, errors.New("static page repository not initialised")
	}
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		return domain.StaticPage{}, errors.New("static page repository: page id is required")
	}
	doc, err := r.base.Get(ctx, pageID)
	if err != nil {
		return domain.StaticPage{}, err
	}
	return decodeStaticPageDocument(doc.ID, doc.Data), nil
}

// FindBySlug fetches a page by its slug.
func (r *StaticPageRepository) FindBySlug(ctx context.Context, slug string) (domain.StaticPage, error) {
	if r == nil || r.base == nil {
		return domain.StaticPage{}, errors.New("static page repository not initialised")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.StaticPage{}, errors.New("static page repository: slug is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("slug", "==", slug).Limit(1)
	})
	if err != nil {
		return domain.StaticPage{}, err
	}
	if len(docs) == 0 {
		return domain.StaticPage{}, &notFoundError{op: "static_pages.find_by_slug", key: slug}
	}
	return decodeStaticPageDocument(docs[0].ID, docs[0].Data), nil
}

// List returns pages ordered by slug.
func (r *StaticPageRepository) List(ctx context.Context, includeUnpublished bool) ([]domain.StaticPage, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("static page repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if !includeUnpublished {
			q = q.Where("isPublished", "==", true)
		}
		return q.OrderBy("slug", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.StaticPage, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeStaticPageDocument(doc.ID, doc.Data))
	}
	return items, nil
}

type staticPageDocument struct {
	Slug        string    `firestore:"slug"`
	Title       string    `firestore:"title"`
	Body        string    `firestore:"body,omitempty"`
	IsPublished bool      `firestore:"isPublished"`
	UpdatedBy   string    `firestore:"updatedBy,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func encodeStaticPageDocument(page domain.StaticPage) staticPageDocument {
	return staticPageDocument{
		Slug:        strings.TrimSpace(page.Slug),
		Title:       strings.TrimSpace(page.Title),
		Body:        page.Body,
		IsPublished: page.IsPublished,
		UpdatedBy:   strings.TrimSpace(page.UpdatedBy),
		CreatedAt:   page.CreatedAt.UTC(),
		UpdatedAt:   page.UpdatedAt.UTC(),
	}
}

func decodeStaticPageDocument(id string, doc staticPageDocument) domain.StaticPage {
	return domain.StaticPage{
		ID:          id,
		Slug:        doc.Slug,
		Title:       doc.Title,
		Body:        doc.Body,
		IsPublished: doc.IsPublished,
		UpdatedBy:   doc.UpdatedBy,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

var _ repositories.BannerRepository = (*BannerRepository)(nil)
var _ repositories.StaticPageRepository = (*StaticPageRepository)(nil)
