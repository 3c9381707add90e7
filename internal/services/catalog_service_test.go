package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

func TestNewCatalogService(t *testing.T) {
	t.Run("requires repository", func(t *testing.T) {
		if _, err := NewCatalogService(CatalogServiceDeps{}); err == nil {
			t.Fatalf("expected error when repository missing")
		}
	})

	t.Run("defaults clock and id generator", func(t *testing.T) {
		svc, err := NewCatalogService(CatalogServiceDeps{Products: newStubProductRepo()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if svc == nil {
			t.Fatalf("expected service")
		}
	})
}

func TestCatalogCreateProduct(t *testing.T) {
	repo := newStubProductRepo()
	audit := &stubAuditService{}
	events := &stubEventPublisher{}
	now := time.Date(2024, time.April, 1, 15, 4, 5, 0, time.UTC)
	svc := newCatalogForTest(t, repo, nil, audit, events, now)

	price := OptionalNumber{Value: 12.5, Valid: true}
	stock := OptionalInt{Value: 3, Valid: true}
	hardcover := "Hardcover"
	saved, err := svc.CreateProduct(context.Background(), CreateProductCommand{
		Name:         "  Dune  ",
		Author:       " Frank Herbert ",
		VolumeNumber: 1,
		Variants: []VariantInput{
			{Format: &hardcover, Price: price, CountInStock: stock},
		},
		Uploads: map[int]UploadedVariantAssets{
			0: {MainImage: "https://cdn.example.com/dune.jpg"},
		},
		ActorID: "admin_1",
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	if saved.Name != "Dune" {
		t.Fatalf("expected trimmed name, got %q", saved.Name)
	}
	if saved.Slug != "dune-vol-1" {
		t.Fatalf("expected generated slug dune-vol-1, got %q", saved.Slug)
	}
	if saved.ID == "" {
		t.Fatalf("expected generated product id")
	}
	if saved.CreatedAt != now || saved.UpdatedAt != now {
		t.Fatalf("expected clock timestamps, got %v / %v", saved.CreatedAt, saved.UpdatedAt)
	}
	if len(saved.Variants) != 1 {
		t.Fatalf("expected 1 variant, got %d", len(saved.Variants))
	}
	variant := saved.Variants[0]
	if variant.ID != "hardcover" {
		t.Fatalf("expected variant id derived from format, got %q", variant.ID)
	}
	if variant.Price != 12.5 || variant.CountInStock != 3 {
		t.Fatalf("unexpected variant values %+v", variant)
	}
	if variant.MainImage != "https://cdn.example.com/dune.jpg" {
		t.Fatalf("expected uploaded main image, got %q", variant.MainImage)
	}
	if saved.EditorialStatus != domain.EditorialStatusActive {
		t.Fatalf("expected default editorial status active, got %q", saved.EditorialStatus)
	}
	if saved.StockStatus != domain.StockStatusInStock {
		t.Fatalf("expected in stock, got %q", saved.StockStatus)
	}

	if len(audit.records) != 1 || audit.records[0].Action != "catalog.product.create" {
		t.Fatalf("expected create audit record, got %#v", audit.records)
	}
	if len(events.events) != 1 || events.events[0].Action != CatalogEventCreated {
		t.Fatalf("expected created event, got %#v", events.events)
	}
}

func TestCatalogCreateProductValidation(t *testing.T) {
	repo := newStubProductRepo()
	svc := newCatalogForTest(t, repo, nil, nil, nil, time.Now())

	if _, err := svc.CreateProduct(context.Background(), CreateProductCommand{Name: "   "}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input for blank name, got %v", err)
	}
	if _, err := svc.CreateProduct(context.Background(), CreateProductCommand{Name: "!!!"}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input for unsluggable name, got %v", err)
	}
}

func TestCatalogCreateProductSlugConflict(t *testing.T) {
	repo := newStubProductRepo()
	repo.products["p1"] = domain.Product{ID: "p1", Name: "Dune", Slug: "dune"}
	svc := newCatalogForTest(t, repo, nil, nil, nil, time.Now())

	_, err := svc.CreateProduct(context.Background(), CreateProductCommand{Name: "Dune"})
	if !errors.Is(err, ErrCatalogConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCatalogCreateProductNoVariants(t *testing.T) {
	repo := newStubProductRepo()
	svc := newCatalogForTest(t, repo, nil, nil, nil, time.Now())

	saved, err := svc.CreateProduct(context.Background(), CreateProductCommand{Name: "Empty Shelf"})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if len(saved.Variants) != 0 {
		t.Fatalf("expected no variants, got %d", len(saved.Variants))
	}
	if saved.StockStatus != domain.StockStatusOutOfStock {
		t.Fatalf("expected out of stock without variants, got %q", saved.StockStatus)
	}
}

func TestCatalogUpdateProduct(t *testing.T) {
	repo := newStubProductRepo()
	repo.products["p1"] = domain.Product{
		ID:           "p1",
		Name:         "Dune",
		Slug:         "dune",
		Author:       "Frank Herbert",
		VolumeNumber: 0,
		Variants: []domain.ProductVariant{
			{ID: "hardcover", Format: "Hardcover", Price: 29.99, CountInStock: 4, MainImage: "https://cdn.example.com/old.jpg"},
		},
		EditorialStatus: domain.EditorialStatusActive,
	}
	now := time.Date(2024, time.May, 2, 9, 0, 0, 0, time.UTC)
	audit := &stubAuditService{}
	events := &stubEventPublisher{}
	svc := newCatalogForTest(t, repo, nil, audit, events, now)

	newName := "Dune Messiah"
	zeroStock := OptionalInt{Value: 0, Valid: true}
	hardcoverID := "hardcover"
	saved, err := svc.UpdateProduct(context.Background(), UpdateProductCommand{
		ProductID: "p1",
		Name:      &newName,
		Variants: []VariantInput{
			{ID: &hardcoverID, CountInStock: zeroStock},
		},
		ActorID: "admin_1",
	})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}

	if saved.Name != "Dune Messiah" {
		t.Fatalf("expected renamed product, got %q", saved.Name)
	}
	if saved.Slug != "dune-messiah" {
		t.Fatalf("expected regenerated slug, got %q", saved.Slug)
	}
	if saved.Author != "Frank Herbert" {
		t.Fatalf("expected untouched author, got %q", saved.Author)
	}
	if len(saved.Variants) != 1 {
		t.Fatalf("expected 1 variant, got %d", len(saved.Variants))
	}
	variant := saved.Variants[0]
	if variant.CountInStock != 0 {
		t.Fatalf("expected explicit zero stock to win, got %d", variant.CountInStock)
	}
	if variant.Price != 29.99 {
		t.Fatalf("expected absent price to carry, got %v", variant.Price)
	}
	if variant.MainImage != "https://cdn.example.com/old.jpg" {
		t.Fatalf("expected existing image to carry, got %q", variant.MainImage)
	}
	if saved.StockStatus != domain.StockStatusOutOfStock {
		t.Fatalf("expected recomputed stock status, got %q", saved.StockStatus)
	}
	if saved.UpdatedAt != now {
		t.Fatalf("expected updatedAt from clock, got %v", saved.UpdatedAt)
	}
	if len(events.events) != 1 || events.events[0].Action != CatalogEventUpdated {
		t.Fatalf("expected updated event, got %#v", events.events)
	}
}

func TestCatalogUpdateProductSlugConflict(t *testing.T) {
	repo := newStubProductRepo()
	repo.products["p1"] = domain.Product{ID: "p1", Name: "Dune", Slug: "dune"}
	repo.products["p2"] = domain.Product{ID: "p2", Name: "Dune Messiah", Slug: "dune-messiah"}
	svc := newCatalogForTest(t, repo, nil, nil, nil, time.Now())

	slug := "dune-messiah"
	_, err := svc.UpdateProduct(context.Background(), UpdateProductCommand{ProductID: "p1", Slug: &slug})
	if !errors.Is(err, ErrCatalogConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCatalogUpdateProductNotFound(t *testing.T) {
	svc := newCatalogForTest(t, newStubProductRepo(), nil, nil, nil, time.Now())
	name := "X"
	_, err := svc.UpdateProduct(context.Background(), UpdateProductCommand{ProductID: "missing", Name: &name})
	if !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalogGetProduct(t *testing.T) {
	repo := newStubProductRepo()
	repo.products["p1"] = domain.Product{ID: "p1", Name: "Dune", Slug: "dune"}
	svc := newCatalogForTest(t, repo, nil, nil, nil, time.Now())

	byID, err := svc.GetProduct(context.Background(), "p1")
	if err != nil || byID.ID != "p1" {
		t.Fatalf("expected lookup by id, got %+v / %v", byID, err)
	}
	bySlug, err := svc.GetProduct(context.Background(), "dune")
	if err != nil || bySlug.ID != "p1" {
		t.Fatalf("expected fallback lookup by slug, got %+v / %v", bySlug, err)
	}
	if _, err := svc.GetProduct(context.Background(), "missing"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetProduct(context.Background(), "  "); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCatalogListSellableRows(t *testing.T) {
	repo := newStubProductRepo()
	repo.listResp = domain.CursorPage[domain.Product]{
		Items: []domain.Product{
			{
				ID:   "p1",
				Name: "Dune",
				Slug: "dune",
				Variants: []domain.ProductVariant{
					{ID: "hardcover", Format: "Hardcover", Price: 29.99, CountInStock: 4},
					{ID: "paperback", Format: "Paperback", Price: 14.99, CountInStock: 0},
				},
				EditorialStatus: domain.EditorialStatusActive,
			},
			{ID: "p2", Name: "Empty", Slug: "empty", EditorialStatus: domain.EditorialStatusActive},
		},
		NextPageToken: "tok",
	}
	svc := newCatalogForTest(t, repo, nil, nil, nil, time.Now())

	category := "sci-fi"
	page, err := svc.ListSellableRows(context.Background(), ProductListFilter{
		Category:   &category,
		Pagination: Pagination{PageSize: 20},
	})
	if err != nil {
		t.Fatalf("ListSellableRows: %v", err)
	}
	if repo.listFilter.Category != "sci-fi" {
		t.Fatalf("expected category filter to reach repository, got %q", repo.listFilter.Category)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 2 variant rows plus 1 synthetic row, got %d", len(page.Items))
	}
	if page.NextPageToken != "tok" {
		t.Fatalf("expected token passthrough, got %q", page.NextPageToken)
	}
	if page.Items[2].Format != domain.DefaultVariantFormat {
		t.Fatalf("expected synthetic standard row, got %q", page.Items[2].Format)
	}
}

func TestCatalogListByCategorySlug(t *testing.T) {
	repo := newStubProductRepo()
	categories := &stubCategoryRepo{
		bySlug: map[string]domain.Category{
			"manga": {ID: "c1", Name: "Manga", Slug: "manga", Subcategories: []domain.Subcategory{{Name: "Shonen", Slug: "shonen"}}},
			"shonen": {
				ID: "c1", Name: "Manga", Slug: "manga",
				Subcategories: []domain.Subcategory{{Name: "Shonen", Slug: "shonen"}},
			},
		},
	}
	svc := newCatalogForTest(t, repo, categories, nil, nil, time.Now())

	if _, err := svc.ListByCategorySlug(context.Background(), "manga", Pagination{}); err != nil {
		t.Fatalf("ListByCategorySlug: %v", err)
	}
	if repo.listFilter.Category != "manga" || repo.listFilter.Subcategory != "" {
		t.Fatalf("expected category-only filter, got %+v", repo.listFilter)
	}

	if _, err := svc.ListByCategorySlug(context.Background(), "shonen", Pagination{}); err != nil {
		t.Fatalf("ListByCategorySlug: %v", err)
	}
	if repo.listFilter.Category != "manga" || repo.listFilter.Subcategory != "shonen" {
		t.Fatalf("expected subcategory filter, got %+v", repo.listFilter)
	}

	if _, err := svc.ListByCategorySlug(context.Background(), "missing", Pagination{}); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalogListFeatured(t *testing.T) {
	repo := newStubProductRepo()
	repo.listResp = domain.CursorPage[domain.Product]{
		Items: []domain.Product{
			{
				ID:          "p1",
				Name:        "Dune",
				Slug:        "dune",
				IsPromotion: true,
				Variants: []domain.ProductVariant{
					{ID: "hardcover", Format: "Hardcover", Price: 29.99, CountInStock: 4, MainImage: "https://cdn.example.com/d.jpg"},
					{ID: "paperback", Format: "Paperback", Price: 14.99, CountInStock: 2},
				},
				EditorialStatus: domain.EditorialStatusActive,
			},
		},
	}
	svc := newCatalogForTest(t, repo, nil, nil, nil, time.Now())

	groups, err := svc.ListFeatured(context.Background(), FeaturedPromotion, Pagination{PageSize: 8})
	if err != nil {
		t.Fatalf("ListFeatured: %v", err)
	}
	if repo.listFilter.Featured != repositories.FeaturedPromotion {
		t.Fatalf("expected promotion filter, got %q", repo.listFilter.Featured)
	}
	if len(groups) != 1 {
		t.Fatalf("expected one group, got %d", len(groups))
	}
	group := groups[0]
	if len(group.Variants) != 2 {
		t.Fatalf("expected 2 variants in group, got %d", len(group.Variants))
	}
	want := domain.PriceRange{Min: 14.99, Max: 29.99}
	if !reflect.DeepEqual(group.PriceRange, want) {
		t.Fatalf("expected price range %+v, got %+v", want, group.PriceRange)
	}

	if _, err := svc.ListFeatured(context.Background(), FeaturedKind("weird"), Pagination{}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input for unknown kind, got %v", err)
	}
}

func TestCatalogDeleteProduct(t *testing.T) {
	repo := newStubProductRepo()
	repo.products["p1"] = domain.Product{ID: "p1", Name: "Dune", Slug: "dune"}
	audit := &stubAuditService{}
	events := &stubEventPublisher{}
	svc := newCatalogForTest(t, repo, nil, audit, events, time.Now())

	if err := svc.DeleteProduct(context.Background(), DeleteProductCommand{ProductID: "p1", ActorID: "admin_1"}); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	if _, ok := repo.products["p1"]; ok {
		t.Fatalf("expected product removed")
	}
	if len(events.events) != 1 || events.events[0].Action != CatalogEventDeleted {
		t.Fatalf("expected deleted event, got %#v", events.events)
	}

	if err := svc.DeleteProduct(context.Background(), DeleteProductCommand{ProductID: "missing"}); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalogSetFeaturedFlags(t *testing.T) {
	repo := newStubProductRepo()
	repo.products["p1"] = domain.Product{ID: "p1", Name: "Dune", Slug: "dune"}
	audit := &stubAuditService{}
	svc := newCatalogForTest(t, repo, nil, audit, nil, time.Now())

	truthy := true
	saved, err := svc.SetFeaturedFlags(context.Background(), FeaturedFlagsCommand{
		ProductID:   "p1",
		IsPromotion: &truthy,
		ActorID:     "admin_1",
	})
	if err != nil {
		t.Fatalf("SetFeaturedFlags: %v", err)
	}
	if !saved.IsPromotion {
		t.Fatalf("expected promotion flag set")
	}
	if len(audit.records) != 1 {
		t.Fatalf("expected audit record, got %d", len(audit.records))
	}
	diff, ok := audit.records[0].Diff["isPromotion"]
	if !ok || diff.Before != false || diff.After != true {
		t.Fatalf("expected isPromotion diff, got %#v", audit.records[0].Diff)
	}

	if _, err := svc.SetFeaturedFlags(context.Background(), FeaturedFlagsCommand{ProductID: "p1"}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input without flags, got %v", err)
	}
}

func TestCatalogEventPublishFailureIsIgnored(t *testing.T) {
	repo := newStubProductRepo()
	events := &stubEventPublisher{err: errors.New("topic down")}
	svc := newCatalogForTest(t, repo, nil, nil, events, time.Now())

	if _, err := svc.CreateProduct(context.Background(), CreateProductCommand{Name: "Dune"}); err != nil {
		t.Fatalf("expected publish failure to be swallowed, got %v", err)
	}
}

// --- test doubles -----------------------------------------------------------

func newCatalogForTest(t *testing.T, products repositories.ProductRepository, categories repositories.CategoryRepository, audit AuditLogService, events CatalogEventPublisher, now time.Time) CatalogService {
	t.Helper()
	counter := 0
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:   products,
		Categories: categories,
		Audit:      audit,
		Events:     events,
		Clock:      func() time.Time { return now },
		IDGenerator: func() string {
			counter++
			return fmt.Sprintf("id_%03d", counter)
		},
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return svc
}

type stubProductRepo struct {
	products map[string]domain.Product

	listResp   domain.CursorPage[domain.Product]
	listErr    error
	listFilter repositories.ProductListFilter

	countResp int64
}

func newStubProductRepo() *stubProductRepo {
	return &stubProductRepo{products: map[string]domain.Product{}}
}

func (s *stubProductRepo) Insert(_ context.Context, product domain.Product) (domain.Product, error) {
	if _, ok := s.products[product.ID]; ok {
		return domain.Product{}, stubRepositoryError{conflict: true}
	}
	s.products[product.ID] = product
	return product, nil
}

func (s *stubProductRepo) Update(_ context.Context, product domain.Product) (domain.Product, error) {
	s.products[product.ID] = product
	return product, nil
}

func (s *stubProductRepo) Delete(_ context.Context, productID string) error {
	if _, ok := s.products[productID]; !ok {
		return stubRepositoryError{notFound: true}
	}
	delete(s.products, productID)
	return nil
}

func (s *stubProductRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	if product, ok := s.products[productID]; ok {
		return product, nil
	}
	return domain.Product{}, stubRepositoryError{notFound: true}
}

func (s *stubProductRepo) FindBySlug(_ context.Context, slug string) (domain.Product, error) {
	for _, product := range s.products {
		if product.Slug == slug {
			return product, nil
		}
	}
	return domain.Product{}, stubRepositoryError{notFound: true}
}

func (s *stubProductRepo) List(_ context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	s.listFilter = filter
	if s.listErr != nil {
		return domain.CursorPage[domain.Product]{}, s.listErr
	}
	return s.listResp, nil
}

func (s *stubProductRepo) Count(context.Context) (int64, error) {
	return s.countResp, nil
}

type stubCategoryRepo struct {
	bySlug map[string]domain.Category
	byID   map[string]domain.Category
	listed []domain.Category

	inserted []domain.Category
	updated  []domain.Category
	deleted  []string
}

func (s *stubCategoryRepo) Insert(_ context.Context, category domain.Category) (domain.Category, error) {
	s.inserted = append(s.inserted, category)
	return category, nil
}

func (s *stubCategoryRepo) Update(_ context.Context, category domain.Category) (domain.Category, error) {
	s.updated = append(s.updated, category)
	return category, nil
}

func (s *stubCategoryRepo) Delete(_ context.Context, categoryID string) error {
	s.deleted = append(s.deleted, categoryID)
	return nil
}

func (s *stubCategoryRepo) FindByID(_ context.Context, categoryID string) (domain.Category, error) {
	if category, ok := s.byID[categoryID]; ok {
		return category, nil
	}
	return domain.Category{}, stubRepositoryError{notFound: true}
}

func (s *stubCategoryRepo) FindBySlug(_ context.Context, slug string) (domain.Category, error) {
	if category, ok := s.bySlug[slug]; ok {
		return category, nil
	}
	return domain.Category{}, stubRepositoryError{notFound: true}
}

func (s *stubCategoryRepo) List(context.Context) ([]domain.Category, error) {
	return s.listed, nil
}

type stubAuditService struct {
	records []AuditLogRecord
}

func (s *stubAuditService) Record(_ context.Context, record AuditLogRecord) {
	s.records = append(s.records, record)
}

func (s *stubAuditService) List(context.Context, AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	return domain.CursorPage[domain.AuditLogEntry]{}, nil
}

type stubEventPublisher struct {
	events []CatalogEvent
	err    error
}

func (s *stubEventPublisher) PublishCatalogEvent(_ context.Context, event CatalogEvent) error {
	s.events = append(s.events, event)
	return s.err
}

type stubRepositoryError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepositoryError) Error() string { return "repository error" }

func (e stubRepositoryError) IsNotFound() bool    { return e.notFound }
func (e stubRepositoryError) IsConflict() bool    { return e.conflict }
func (e stubRepositoryError) IsUnavailable() bool { return e.unavailable }
