package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/platform/auth"
	"github.com/inkwell-books/api/internal/services"
)

type recordingCatalogService struct {
	stubCatalogService
	lastCreate services.CreateProductCommand
	lastUpdate services.UpdateProductCommand
	lastFlags  services.FeaturedFlagsCommand
}

func (s *recordingCatalogService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (domain.Product, error) {
	s.lastCreate = cmd
	return s.product, s.productErr
}

func (s *recordingCatalogService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (domain.Product, error) {
	s.lastUpdate = cmd
	return s.product, s.productErr
}

func (s *recordingCatalogService) SetFeaturedFlags(ctx context.Context, cmd services.FeaturedFlagsCommand) (domain.Product, error) {
	s.lastFlags = cmd
	return s.product, s.productErr
}

type stubUploader struct {
	uploads int
}

func (s *stubUploader) UploadImage(ctx context.Context, content io.Reader, folder string) (string, error) {
	s.uploads++
	return fmt.Sprintf("https://cdn.example.com/%s/img-%d.jpg", folder, s.uploads), nil
}

func newAdminCatalogRouter(catalog services.CatalogService, categories services.CategoryService, uploader *stubUploader) chi.Router {
	r := chi.NewRouter()
	r.Use(identityMiddleware("admin_1", auth.RoleAdmin))
	if uploader == nil {
		uploader = &stubUploader{}
	}
	NewAdminCatalogHandlers(catalog, categories, uploader).Routes(r)
	return r
}

func TestCreateProduct_JSONBody(t *testing.T) {
	catalog := &recordingCatalogService{}
	catalog.product = domain.Product{ID: "prod_1", Name: "Dune", Slug: "dune"}
	router := newAdminCatalogRouter(catalog, &stubCategoryService{}, nil)

	body := strings.NewReader(`{
		"name": "Dune",
		"category": "fiction",
		"status": "coming_soon",
		"publication_date": "1965-08-01",
		"variants": [{"format": "Hardcover", "price": 29.99, "countInStock": 3}]
	}`)
	req := httptest.NewRequest(http.MethodPost, "/products", body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	cmd := catalog.lastCreate
	if cmd.Name != "Dune" || cmd.Category != "fiction" || cmd.ActorID != "admin_1" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if cmd.Status == nil || *cmd.Status != domain.EditorialStatusComingSoon {
		t.Fatalf("expected coming_soon status, got %v", cmd.Status)
	}
	if cmd.PublicationDate == nil || cmd.PublicationDate.Year() != 1965 {
		t.Fatalf("expected parsed publication date, got %v", cmd.PublicationDate)
	}
	if len(cmd.Variants) != 1 || cmd.Variants[0].Format == nil || *cmd.Variants[0].Format != "Hardcover" {
		t.Fatalf("unexpected variants: %+v", cmd.Variants)
	}
	if !cmd.Variants[0].Price.Valid || cmd.Variants[0].Price.Value != 29.99 {
		t.Fatalf("expected price presence, got %+v", cmd.Variants[0].Price)
	}
}

func TestCreateProduct_MultipartWithUploads(t *testing.T) {
	catalog := &recordingCatalogService{}
	catalog.product = domain.Product{ID: "prod_1"}
	uploader := &stubUploader{}
	router := newAdminCatalogRouter(catalog, &stubCategoryService{}, uploader)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("payload", `{"name":"Dune","variants":[{"format":"Hardcover"}]}`); err != nil {
		t.Fatalf("write payload field: %v", err)
	}
	part, err := writer.CreateFormFile("variantMainImages_0", "cover.jpg")
	if err != nil {
		t.Fatalf("create file part: %v", err)
	}
	if _, err := part.Write([]byte("jpeg-bytes")); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/products", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if uploader.uploads != 1 {
		t.Fatalf("expected one upload, got %d", uploader.uploads)
	}
	uploads := catalog.lastCreate.Uploads
	if len(uploads) != 1 || uploads[0].MainImage == "" {
		t.Fatalf("expected main image upload for variant 0, got %+v", uploads)
	}
}

func TestCreateProduct_InvalidStatus(t *testing.T) {
	catalog := &recordingCatalogService{}
	router := newAdminCatalogRouter(catalog, &stubCategoryService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(`{"name":"Dune","status":"archived"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSetFeaturedFlags_RequiresAtLeastOneFlag(t *testing.T) {
	catalog := &recordingCatalogService{}
	router := newAdminCatalogRouter(catalog, &stubCategoryService{}, nil)

	req := httptest.NewRequest(http.MethodPatch, "/products/prod_1/featured", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSetFeaturedFlags_PresencePreserved(t *testing.T) {
	catalog := &recordingCatalogService{}
	catalog.product = domain.Product{ID: "prod_1"}
	router := newAdminCatalogRouter(catalog, &stubCategoryService{}, nil)

	req := httptest.NewRequest(http.MethodPatch, "/products/prod_1/featured", strings.NewReader(`{"is_promotion":false}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	flags := catalog.lastFlags
	if flags.IsPromotion == nil || *flags.IsPromotion {
		t.Fatalf("expected explicit false promotion flag, got %+v", flags.IsPromotion)
	}
	if flags.IsNewArrival != nil || flags.IsPopular != nil {
		t.Fatalf("expected absent flags to stay nil, got %+v", flags)
	}
}

func TestUpsertCategory_CreateAndUpdate(t *testing.T) {
	categories := &recordingCategoryService{}
	router := newAdminCatalogRouter(&recordingCatalogService{}, categories, nil)

	req := httptest.NewRequest(http.MethodPost, "/categories", strings.NewReader(`{"name":"Fiction","subcategories":[{"name":"Fantasy"}]}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if categories.lastCmd.CategoryID != "" || categories.lastCmd.Name != "Fiction" {
		t.Fatalf("unexpected create command: %+v", categories.lastCmd)
	}
	if len(categories.lastCmd.Subcategories) != 1 || categories.lastCmd.Subcategories[0].Name != "Fantasy" {
		t.Fatalf("unexpected subcategories: %+v", categories.lastCmd.Subcategories)
	}

	req = httptest.NewRequest(http.MethodPut, "/categories/cat_1", strings.NewReader(`{"name":"Fiction"}`))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if categories.lastCmd.CategoryID != "cat_1" {
		t.Fatalf("expected category id passthrough, got %+v", categories.lastCmd)
	}
}

type recordingCategoryService struct {
	stubCategoryService
	lastCmd services.UpsertCategoryCommand
}

func (s *recordingCategoryService) CreateCategory(ctx context.Context, cmd services.UpsertCategoryCommand) (domain.Category, error) {
	s.lastCmd = cmd
	return s.category, s.err
}

func (s *recordingCategoryService) UpdateCategory(ctx context.Context, cmd services.UpsertCategoryCommand) (domain.Category, error) {
	s.lastCmd = cmd
	return s.category, s.err
}
