package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-books/api/internal/platform/httpx"
	"github.com/inkwell-books/api/internal/services"
)

// CatalogHandlers serves the public storefront catalog: sellable rows,
// product detail, categories, and the curated featured shelves.
type CatalogHandlers struct {
	catalog    services.CatalogService
	categories services.CategoryService
}

// NewCatalogHandlers constructs the public catalog endpoints.
func NewCatalogHandlers(catalog services.CatalogService, categories services.CategoryService) *CatalogHandlers {
	return &CatalogHandlers{
		catalog:    catalog,
		categories: categories,
	}
}

// Routes wires the public catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{idOrSlug}", h.getProduct)
	r.Get("/categories", h.listCategories)
	r.Get("/categories/{slug}", h.getCategory)
	r.Get("/categories/{slug}/products", h.listCategoryProducts)
	r.Get("/featured/{kind}", h.listFeatured)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
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

	page, err := h.catalog.ListSellableRows(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]sellableRowPayload, 0, len(page.Items))
	for _, row := range page.Items {
		items = append(items, buildSellableRowPayload(row))
	}
	writeJSONResponse(w, http.StatusOK, newListResponse(items, page.NextPageToken))
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	idOrSlug := strings.TrimSpace(chi.URLParam(r, "idOrSlug"))
	product, err := h.catalog.GetProduct(ctx, idOrSlug)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
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

func (h *CatalogHandlers) getCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.categories == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	category, err := h.categories.GetCategoryBySlug(ctx, slug)
	if err != nil {
		writeCategoryError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, categoryResponse{Category: buildCategoryPayload(category)})
}

func (h *CatalogHandlers) listCategoryProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	page, err := h.catalog.ListByCategorySlug(ctx, slug, paginationFromQuery(r))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]sellableRowPayload, 0, len(page.Items))
	for _, row := range page.Items {
		items = append(items, buildSellableRowPayload(row))
	}
	writeJSONResponse(w, http.StatusOK, newListResponse(items, page.NextPageToken))
}

func (h *CatalogHandlers) listFeatured(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	kind, ok := parseFeaturedKind(chi.URLParam(r, "kind"))
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_featured_kind", "unknown featured shelf", http.StatusBadRequest))
		return
	}

	groups, err := h.catalog.ListFeatured(ctx, kind, paginationFromQuery(r))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]displayGroupPayload, 0, len(groups))
	for _, group := range groups {
		items = append(items, buildDisplayGroupPayload(group))
	}
	writeJSONResponse(w, http.StatusOK, newListResponse(items, ""))
}

func parseFeaturedKind(raw string) (services.FeaturedKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "promotion", "promotions":
		return services.FeaturedPromotion, true
	case "new_arrival", "new-arrivals", "new":
		return services.FeaturedNewArrival, true
	case "popular":
		return services.FeaturedPopular, true
	default:
		return "", false
	}
}

func writeCatalogUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "catalog request failed", http.StatusInternalServerError))
	}
}

func writeCategoryError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCategoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCategoryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("category_not_found", "category not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCategoryConflict):
		httpx.WriteError(ctx, w, httpx.NewError("category_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("category_error", "category request failed", http.StatusInternalServerError))
	}
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type categoryResponse struct {
	Category categoryPayload `json:"category"`
}

type sellableRowPayload struct {
	ID              string   `json:"id"`
	ProductID       string   `json:"product_id"`
	VariantID       string   `json:"variant_id"`
	Name            string   `json:"name"`
	Slug            string   `json:"slug"`
	Author          string   `json:"author,omitempty"`
	Publisher       string   `json:"publisher,omitempty"`
	SeriesTitle     string   `json:"series_title,omitempty"`
	VolumeNumber    int      `json:"volume_number,omitempty"`
	Category        string   `json:"category,omitempty"`
	Subcategory     string   `json:"subcategory,omitempty"`
	Format          string   `json:"format"`
	Price           float64  `json:"price"`
	CountInStock    int      `json:"count_in_stock"`
	ISBN            string   `json:"isbn,omitempty"`
	TrimSize        string   `json:"trim_size,omitempty"`
	PageCount       int      `json:"page_count,omitempty"`
	MainImage       string   `json:"main_image,omitempty"`
	AlbumImages     []string `json:"album_images,omitempty"`
	VariantsCount   int      `json:"variants_count"`
	IsPromotion     bool     `json:"is_promotion"`
	IsNewArrival    bool     `json:"is_new_arrival"`
	IsPopular       bool     `json:"is_popular"`
	Status          string   `json:"status"`
	PublicationDate string   `json:"publication_date,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
}

func buildSellableRowPayload(row services.SellableRow) sellableRowPayload {
	return sellableRowPayload{
		ID:              row.ID.String(),
		ProductID:       row.ProductID,
		VariantID:       row.VariantID,
		Name:            row.Name,
		Slug:            row.Slug,
		Author:          row.Author,
		Publisher:       row.Publisher,
		SeriesTitle:     row.SeriesTitle,
		VolumeNumber:    row.VolumeNumber,
		Category:        row.Category,
		Subcategory:     row.Subcategory,
		Format:          row.Format,
		Price:           row.Price,
		CountInStock:    row.CountInStock,
		ISBN:            row.ISBN,
		TrimSize:        row.TrimSize,
		PageCount:       row.PageCount,
		MainImage:       row.MainImage,
		AlbumImages:     row.AlbumImages,
		VariantsCount:   row.VariantsCount,
		IsPromotion:     row.IsPromotion,
		IsNewArrival:    row.IsNewArrival,
		IsPopular:       row.IsPopular,
		Status:          string(row.Status),
		PublicationDate: formatTimePtr(row.PublicationDate),
		CreatedAt:       formatTime(row.CreatedAt),
	}
}

type variantSummaryPayload struct {
	VariantID    string  `json:"variant_id"`
	Format       string  `json:"format"`
	Price        float64 `json:"price"`
	CountInStock int     `json:"count_in_stock"`
	MainImage    string  `json:"main_image,omitempty"`
}

type priceRangePayload struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type displayGroupPayload struct {
	Key          string                  `json:"key"`
	ProductID    string                  `json:"product_id"`
	Name         string                  `json:"name"`
	Slug         string                  `json:"slug"`
	Author       string                  `json:"author,omitempty"`
	Category     string                  `json:"category,omitempty"`
	Subcategory  string                  `json:"subcategory,omitempty"`
	Image        string                  `json:"image,omitempty"`
	PriceRange   priceRangePayload       `json:"price_range"`
	Variants     []variantSummaryPayload `json:"variants"`
	Status       string                  `json:"status"`
	IsPromotion  bool                    `json:"is_promotion"`
	IsNewArrival bool                    `json:"is_new_arrival"`
	IsPopular    bool                    `json:"is_popular"`
}

func buildDisplayGroupPayload(group services.DisplayGroup) displayGroupPayload {
	variants := make([]variantSummaryPayload, 0, len(group.Variants))
	for _, v := range group.Variants {
		variants = append(variants, variantSummaryPayload{
			VariantID:    v.VariantID,
			Format:       v.Format,
			Price:        v.Price,
			CountInStock: v.CountInStock,
			MainImage:    v.MainImage,
		})
	}
	return displayGroupPayload{
		Key:          group.Key,
		ProductID:    group.ProductID,
		Name:         group.Name,
		Slug:         group.Slug,
		Author:       group.Author,
		Category:     group.Category,
		Subcategory:  group.Subcategory,
		Image:        group.Image,
		PriceRange:   priceRangePayload{Min: group.PriceRange.Min, Max: group.PriceRange.Max},
		Variants:     variants,
		Status:       string(group.Status),
		IsPromotion:  group.IsPromotion,
		IsNewArrival: group.IsNewArrival,
		IsPopular:    group.IsPopular,
	}
}

type productVariantPayload struct {
	ID           string   `json:"id"`
	Format       string   `json:"format"`
	Price        float64  `json:"price"`
	CountInStock int      `json:"count_in_stock"`
	ISBN         string   `json:"isbn,omitempty"`
	TrimSize     string   `json:"trim_size,omitempty"`
	PageCount    int      `json:"page_count,omitempty"`
	MainImage    string   `json:"main_image,omitempty"`
	AlbumImages  []string `json:"album_images,omitempty"`
}

type productPayload struct {
	ID              string                  `json:"id"`
	Name            string                  `json:"name"`
	Slug            string                  `json:"slug"`
	Description     string                  `json:"description,omitempty"`
	Author          string                  `json:"author,omitempty"`
	AuthorBio       string                  `json:"author_bio,omitempty"`
	Publisher       string                  `json:"publisher,omitempty"`
	SeriesTitle     string                  `json:"series_title,omitempty"`
	VolumeNumber    int                     `json:"volume_number,omitempty"`
	Category        string                  `json:"category,omitempty"`
	Subcategory     string                  `json:"subcategory,omitempty"`
	AgeRating       string                  `json:"age_rating,omitempty"`
	PublicationDate string                  `json:"publication_date,omitempty"`
	IsPromotion     bool                    `json:"is_promotion"`
	IsNewArrival    bool                    `json:"is_new_arrival"`
	IsPopular       bool                    `json:"is_popular"`
	EditorialStatus string                  `json:"editorial_status"`
	StockStatus     string                  `json:"stock_status"`
	Status          string                  `json:"status"`
	Variants        []productVariantPayload `json:"variants"`
	CreatedAt       string                  `json:"created_at,omitempty"`
	UpdatedAt       string                  `json:"updated_at,omitempty"`
}

func buildProductPayload(product services.Product) productPayload {
	variants := make([]productVariantPayload, 0, len(product.Variants))
	for _, v := range product.Variants {
		variants = append(variants, productVariantPayload{
			ID:           v.ID,
			Format:       v.Format,
			Price:        v.Price,
			CountInStock: v.CountInStock,
			ISBN:         v.ISBN,
			TrimSize:     v.TrimSize,
			PageCount:    v.PageCount,
			MainImage:    v.MainImage,
			AlbumImages:  v.AlbumImages,
		})
	}
	return productPayload{
		ID:              product.ID,
		Name:            product.Name,
		Slug:            product.Slug,
		Description:     product.Description,
		Author:          product.Author,
		AuthorBio:       product.AuthorBio,
		Publisher:       product.Publisher,
		SeriesTitle:     product.SeriesTitle,
		VolumeNumber:    product.VolumeNumber,
		Category:        product.Category,
		Subcategory:     product.Subcategory,
		AgeRating:       product.AgeRating,
		PublicationDate: formatTimePtr(product.PublicationDate),
		IsPromotion:     product.IsPromotion,
		IsNewArrival:    product.IsNewArrival,
		IsPopular:       product.IsPopular,
		EditorialStatus: string(product.EditorialStatus),
		StockStatus:     string(product.StockStatus),
		Status:          string(services.EffectiveStatus(product.EditorialStatus, product.StockStatus)),
		Variants:        variants,
		CreatedAt:       formatTime(product.CreatedAt),
		UpdatedAt:       formatTime(product.UpdatedAt),
	}
}

type subcategoryPayload struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type categoryPayload struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Slug          string               `json:"slug"`
	Subcategories []subcategoryPayload `json:"subcategories"`
	CreatedAt     string               `json:"created_at,omitempty"`
	UpdatedAt     string               `json:"updated_at,omitempty"`
}

func buildCategoryPayload(category services.Category) categoryPayload {
	subcategories := make([]subcategoryPayload, 0, len(category.Subcategories))
	for _, sub := range category.Subcategories {
		subcategories = append(subcategories, subcategoryPayload{Name: sub.Name, Slug: sub.Slug})
	}
	return categoryPayload{
		ID:            category.ID,
		Name:          category.Name,
		Slug:          category.Slug,
		Subcategories: subcategories,
		CreatedAt:     formatTime(category.CreatedAt),
		UpdatedAt:     formatTime(category.UpdatedAt),
	}
}
