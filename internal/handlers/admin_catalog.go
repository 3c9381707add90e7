package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/platform/assets"
	"github.com/inkwell-books/api/internal/platform/httpx"
	"github.com/inkwell-books/api/internal/services"
)

const maxCatalogBodySize = 256 * 1024

// AdminCatalogHandlers exposes product and category management. Product
// writes accept either a JSON body or a multipart form carrying the JSON
// payload alongside per-variant image uploads.
type AdminCatalogHandlers struct {
	catalog    services.CatalogService
	categories services.CategoryService
	uploader   assets.Uploader
}

// NewAdminCatalogHandlers constructs the admin catalog endpoints. The
// uploader may be nil, in which case multipart image fields are rejected.
func NewAdminCatalogHandlers(catalog services.CatalogService, categories services.CategoryService, uploader assets.Uploader) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{
		catalog:    catalog,
		categories: categories,
		uploader:   uploader,
	}
}

// Routes registers the admin catalog subtree.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/products", func(rt chi.Router) {
		rt.Get("/", h.listProducts)
		rt.Post("/", h.createProduct)
		rt.Get("/{productId}", h.getProduct)
		rt.Put("/{productId}", h.updateProduct)
		rt.Delete("/{productId}", h.deleteProduct)
		rt.Patch("/{productId}/featured", h.setFeaturedFlags)
	})
	r.Route("/categories", func(rt chi.Router) {
		rt.Get("/", h.listCategories)
		rt.Post("/", h.createCategory)
		rt.Put("/{categoryId}", h.updateCategory)
		rt.Delete("/{categoryId}", h.deleteCategory)
	})
}

func (h *AdminCatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	filter := services.ProductListFilter{Pagination: paginationFromQuery(r)}
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		filter.Category = &category
	}
	if subcategory := strings.TrimSpace(r.URL.Query().Get("subcategory")); subcategory != "" {
		filter.Subcategory = &subcategory
	}

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, newListResponse(items, page.NextPageToken))
}

func (h *AdminCatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	product, err := h.catalog.GetProduct(ctx, strings.TrimSpace(chi.URLParam(r, "productId")))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var payload createProductRequest
	uploads, err := h.decodeProductRequest(w, r, &payload)
	if err != nil {
		return
	}

	cmd := services.CreateProductCommand{
		Name:         strings.TrimSpace(payload.Name),
		Slug:         payload.Slug,
		Description:  payload.Description,
		Author:       payload.Author,
		AuthorBio:    payload.AuthorBio,
		Publisher:    payload.Publisher,
		SeriesTitle:  payload.SeriesTitle,
		VolumeNumber: payload.VolumeNumber,
		Category:     payload.Category,
		Subcategory:  payload.Subcategory,
		AgeRating:    payload.AgeRating,
		IsPromotion:  payload.IsPromotion,
		IsNewArrival: payload.IsNewArrival,
		IsPopular:    payload.IsPopular,
		Variants:     payload.Variants,
		Uploads:      uploads,
		ActorID:      identity.UID,
	}
	if payload.PublicationDate != nil {
		date, err := parsePublicationDate(*payload.PublicationDate)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		cmd.PublicationDate = date
	}
	if payload.Status != nil {
		status, err := parseEditorialStatus(*payload.Status)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		cmd.Status = &status
	}

	product, err := h.catalog.CreateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var payload updateProductRequest
	uploads, err := h.decodeProductRequest(w, r, &payload)
	if err != nil {
		return
	}

	cmd := services.UpdateProductCommand{
		ProductID:    strings.TrimSpace(chi.URLParam(r, "productId")),
		Name:         payload.Name,
		Slug:         payload.Slug,
		Description:  payload.Description,
		Author:       payload.Author,
		AuthorBio:    payload.AuthorBio,
		Publisher:    payload.Publisher,
		SeriesTitle:  payload.SeriesTitle,
		VolumeNumber: payload.VolumeNumber,
		Category:     payload.Category,
		Subcategory:  payload.Subcategory,
		AgeRating:    payload.AgeRating,
		Variants:     payload.Variants,
		Uploads:      uploads,
		ActorID:      identity.UID,
	}
	if payload.PublicationDate != nil {
		date, err := parsePublicationDate(*payload.PublicationDate)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		cmd.PublicationDate = date
	}
	if payload.Status != nil {
		status, err := parseEditorialStatus(*payload.Status)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		cmd.Status = &status
	}

	product, err := h.catalog.UpdateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	err := h.catalog.DeleteProduct(ctx, services.DeleteProductCommand{
		ProductID: strings.TrimSpace(chi.URLParam(r, "productId")),
		ActorID:   identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) setFeaturedFlags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var payload featuredFlagsRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &payload); err != nil {
		writeBodyError(w, r, err)
		return
	}
	if payload.IsPromotion == nil && payload.IsNewArrival == nil && payload.IsPopular == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "no featured flags provided", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.SetFeaturedFlags(ctx, services.FeaturedFlagsCommand{
		ProductID:    strings.TrimSpace(chi.URLParam(r, "productId")),
		IsPromotion:  payload.IsPromotion,
		IsNewArrival: payload.IsNewArrival,
		IsPopular:    payload.IsPopular,
		ActorID:      identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

// decodeProductRequest reads either a JSON body or a multipart form whose
// "payload" field carries the JSON document and whose file fields carry
// per-variant images. On error a response has already been written.
func (h *AdminCatalogHandlers) decodeProductRequest(w http.ResponseWriter, r *http.Request, target any) (map[int]services.UploadedVariantAssets, error) {
	ctx := r.Context()
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/") {
		if err := decodeJSONBody(r, maxCatalogBodySize, target); err != nil {
			writeBodyError(w, r, err)
			return nil, err
		}
		return nil, nil
	}

	if err := r.ParseMultipartForm(maxMultipartFormSize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid multipart form", http.StatusBadRequest))
		return nil, err
	}

	raw := ""
	if values := r.MultipartForm.Value["payload"]; len(values) > 0 {
		raw = strings.TrimSpace(values[0])
	}
	if raw == "" {
		err := errors.New("payload field is required")
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return nil, err
	}
	if err := decodeJSONString(raw, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return nil, err
	}

	uploads, err := assets.CollectVariantUploads(ctx, r.MultipartForm, h.uploader)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("upload_failed", "image upload failed", http.StatusBadGateway))
		return nil, err
	}
	return uploads, nil
}

func parsePublicationDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			utc := parsed.UTC()
			return &utc, nil
		}
	}
	return nil, errors.New("publication_date must be RFC 3339 or YYYY-MM-DD")
}

func parseEditorialStatus(raw string) (services.EditorialStatus, error) {
	switch services.EditorialStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.EditorialStatusActive:
		return domain.EditorialStatusActive, nil
	case domain.EditorialStatusInactive:
		return domain.EditorialStatusInactive, nil
	case domain.EditorialStatusComingSoon:
		return domain.EditorialStatusComingSoon, nil
	default:
		return "", errors.New("status must be active, inactive, or coming_soon")
	}
}

func (h *AdminCatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.categories == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	categories, err := h.categories.ListCategories(ctx)
	if err != nil {
		writeCategoryError(ctx, w, err)
		return
	}

	items := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		items = append(items, buildCategoryPayload(category))
	}
	writeJSONResponse(w, http.StatusOK, newListResponse(items, ""))
}

func (h *AdminCatalogHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	h.upsertCategory(w, r, "")
}

func (h *AdminCatalogHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	h.upsertCategory(w, r, strings.TrimSpace(chi.URLParam(r, "categoryId")))
}

func (h *AdminCatalogHandlers) upsertCategory(w http.ResponseWriter, r *http.Request, categoryID string) {
	ctx := r.Context()
	if h.categories == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var payload categoryWriteRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &payload); err != nil {
		writeBodyError(w, r, err)
		return
	}

	cmd := services.UpsertCategoryCommand{
		CategoryID: categoryID,
		Name:       strings.TrimSpace(payload.Name),
		Slug:       payload.Slug,
		ActorID:    identity.UID,
	}
	for _, sub := range payload.Subcategories {
		cmd.Subcategories = append(cmd.Subcategories, services.SubcategoryInput{
			Name: strings.TrimSpace(sub.Name),
			Slug: sub.Slug,
		})
	}

	var (
		category services.Category
		err      error
		status   = http.StatusOK
	)
	if categoryID == "" {
		category, err = h.categories.CreateCategory(ctx, cmd)
		status = http.StatusCreated
	} else {
		category, err = h.categories.UpdateCategory(ctx, cmd)
	}
	if err != nil {
		writeCategoryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, categoryResponse{Category: buildCategoryPayload(category)})
}

func (h *AdminCatalogHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.categories == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	err := h.categories.DeleteCategory(ctx, services.DeleteCategoryCommand{
		CategoryID: strings.TrimSpace(chi.URLParam(r, "categoryId")),
		ActorID:    identity.UID,
	})
	if err != nil {
		writeCategoryError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createProductRequest struct {
	Name            string                  `json:"name"`
	Slug            *string                 `json:"slug"`
	Description     string                  `json:"description"`
	Author          string                  `json:"author"`
	AuthorBio       string                  `json:"author_bio"`
	Publisher       string                  `json:"publisher"`
	SeriesTitle     string                  `json:"series_title"`
	VolumeNumber    int                     `json:"volume_number"`
	Category        string                  `json:"category"`
	Subcategory     string                  `json:"subcategory"`
	AgeRating       string                  `json:"age_rating"`
	PublicationDate *string                 `json:"publication_date"`
	IsPromotion     bool                    `json:"is_promotion"`
	IsNewArrival    bool                    `json:"is_new_arrival"`
	IsPopular       bool                    `json:"is_popular"`
	Status          *string                 `json:"status"`
	Variants        []services.VariantInput `json:"variants"`
}

type updateProductRequest struct {
	Name            *string                 `json:"name"`
	Slug            *string                 `json:"slug"`
	Description     *string                 `json:"description"`
	Author          *string                 `json:"author"`
	AuthorBio       *string                 `json:"author_bio"`
	Publisher       *string                 `json:"publisher"`
	SeriesTitle     *string                 `json:"series_title"`
	VolumeNumber    *int                    `json:"volume_number"`
	Category        *string                 `json:"category"`
	Subcategory     *string                 `json:"subcategory"`
	AgeRating       *string                 `json:"age_rating"`
	PublicationDate *string                 `json:"publication_date"`
	Status          *string                 `json:"status"`
	Variants        []services.VariantInput `json:"variants"`
}

type featuredFlagsRequest struct {
	IsPromotion  *bool `json:"is_promotion"`
	IsNewArrival *bool `json:"is_new_arrival"`
	IsPopular    *bool `json:"is_popular"`
}

type subcategoryWriteRequest struct {
	Name string  `json:"name"`
	Slug *string `json:"slug"`
}

type categoryWriteRequest struct {
	Name          string                    `json:"name"`
	Slug          *string                   `json:"slug"`
	Subcategories []subcategoryWriteRequest `json:"subcategories"`
}
