package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/services"
)

type stubCatalogService struct {
	rows         domain.CursorPage[domain.SellableRow]
	rowsErr      error
	lastFilter   services.ProductListFilter
	product      domain.Product
	productErr   error
	lastIDOrSlug string
	groups       []domain.DisplayGroup
	lastKind     services.FeaturedKind
}

func (s *stubCatalogService) ListSellableRows(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[domain.SellableRow], error) {
	s.lastFilter = filter
	return s.rows, s.rowsErr
}

func (s *stubCatalogService) ListByCategorySlug(ctx context.Context, slug string, pager services.Pagination) (domain.CursorPage[domain.SellableRow], error) {
	return s.rows, s.rowsErr
}

func (s *stubCatalogService) ListFeatured(ctx context.Context, kind services.FeaturedKind, pager services.Pagination) ([]domain.DisplayGroup, error) {
	s.lastKind = kind
	return s.groups, nil
}

func (s *stubCatalogService) GetProduct(ctx context.Context, idOrSlug string) (domain.Product, error) {
	s.lastIDOrSlug = idOrSlug
	return s.product, s.productErr
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	s.lastFilter = filter
	return domain.CursorPage[domain.Product]{Items: []domain.Product{s.product}}, s.productErr
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (domain.Product, error) {
	return s.product, s.productErr
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (domain.Product, error) {
	return s.product, s.productErr
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, cmd services.DeleteProductCommand) error {
	return s.productErr
}

func (s *stubCatalogService) SetFeaturedFlags(ctx context.Context, cmd services.FeaturedFlagsCommand) (domain.Product, error) {
	return s.product, s.productErr
}

type stubCategoryService struct {
	categories []domain.Category
	category   domain.Category
	err        error
}

func (s *stubCategoryService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.categories, s.err
}

func (s *stubCategoryService) GetCategoryBySlug(ctx context.Context, slug string) (domain.Category, error) {
	return s.category, s.err
}

func (s *stubCategoryService) CreateCategory(ctx context.Context, cmd services.UpsertCategoryCommand) (domain.Category, error) {
	return s.category, s.err
}

func (s *stubCategoryService) UpdateCategory(ctx context.Context, cmd services.UpsertCategoryCommand) (domain.Category, error) {
	return s.category, s.err
}

func (s *stubCategoryService) DeleteCategory(ctx context.Context, cmd services.DeleteCategoryCommand) error {
	return s.err
}

func newCatalogTestRouter(catalog services.CatalogService, categories services.CategoryService) chi.Router {
	r := chi.NewRouter()
	NewCatalogHandlers(catalog, categories).Routes(r)
	return r
}

func TestListProducts_MapsRowsAndFilter(t *testing.T) {
	created := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	catalog := &stubCatalogService{
		rows: domain.CursorPage[domain.SellableRow]{
			Items: []domain.SellableRow{
				{
					ID:           domain.RowID{ProductID: "prod_1", VariantID: "var_1"},
					ProductID:    "prod_1",
					VariantID:    "var_1",
					Name:         "The Left Hand of Darkness",
					Slug:         "the-left-hand-of-darkness",
					Format:       "Paperback",
					Price:        12.99,
					CountInStock: 4,
					Status:       domain.ProductStatusActive,
					CreatedAt:    created,
				},
			},
			NextPageToken: "cursor-2",
		},
	}
	router := newCatalogTestRouter(catalog, &stubCategoryService{})

	req := httptest.NewRequest(http.MethodGet, "/products?category=fiction&page_size=10", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if catalog.lastFilter.Category == nil || *catalog.lastFilter.Category != "fiction" {
		t.Fatalf("expected category filter fiction, got %v", catalog.lastFilter.Category)
	}
	if catalog.lastFilter.Subcategory != nil {
		t.Fatalf("expected nil subcategory filter")
	}
	if catalog.lastFilter.PageSize != 10 {
		t.Fatalf("expected page size 10, got %d", catalog.lastFilter.PageSize)
	}

	var body struct {
		Items []struct {
			ID     string  `json:"id"`
			Name   string  `json:"name"`
			Price  float64 `json:"price"`
			Status string  `json:"status"`
		} `json:"items"`
		NextPageToken string `json:"next_page_token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if len(body.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(body.Items))
	}
	if body.Items[0].ID != "prod_1-var_1" {
		t.Fatalf("expected composite row id, got %s", body.Items[0].ID)
	}
	if body.Items[0].Status != "active" {
		t.Fatalf("expected active status, got %s", body.Items[0].Status)
	}
	if body.NextPageToken != "cursor-2" {
		t.Fatalf("expected next page token cursor-2, got %s", body.NextPageToken)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	catalog := &stubCatalogService{productErr: services.ErrCatalogNotFound}
	router := newCatalogTestRouter(catalog, &stubCategoryService{})

	req := httptest.NewRequest(http.MethodGet, "/products/missing-slug", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if catalog.lastIDOrSlug != "missing-slug" {
		t.Fatalf("expected slug passthrough, got %s", catalog.lastIDOrSlug)
	}
}

func TestListFeatured_KindParsing(t *testing.T) {
	catalog := &stubCatalogService{}
	router := newCatalogTestRouter(catalog, &stubCategoryService{})

	req := httptest.NewRequest(http.MethodGet, "/featured/new-arrivals", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if catalog.lastKind != services.FeaturedNewArrival {
		t.Fatalf("expected new arrival kind, got %s", catalog.lastKind)
	}

	req = httptest.NewRequest(http.MethodGet, "/featured/bestsellers", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown shelf, got %d", rr.Code)
	}
}

func TestGetCategory_ReturnsSubcategories(t *testing.T) {
	categories := &stubCategoryService{
		category: domain.Category{
			ID:   "cat_1",
			Name: "Fiction",
			Slug: "fiction",
			Subcategories: []domain.Subcategory{
				{Name: "Science Fiction", Slug: "science-fiction"},
			},
		},
	}
	router := newCatalogTestRouter(&stubCatalogService{}, categories)

	req := httptest.NewRequest(http.MethodGet, "/categories/fiction", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Category struct {
			Slug          string `json:"slug"`
			Subcategories []struct {
				Slug string `json:"slug"`
			} `json:"subcategories"`
		} `json:"category"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if body.Category.Slug != "fiction" {
		t.Fatalf("expected fiction slug, got %s", body.Category.Slug)
	}
	if len(body.Category.Subcategories) != 1 || body.Category.Subcategories[0].Slug != "science-fiction" {
		t.Fatalf("unexpected subcategories: %+v", body.Category.Subcategories)
	}
}
