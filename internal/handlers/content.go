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

// ContentHandlers serves the public CMS surface: home page banners and
// static pages such as about or terms.
type ContentHandlers struct {
	content services.ContentService
}

// NewContentHandlers constructs the public CMS endpoints.
func NewContentHandlers(content services.ContentService) *ContentHandlers {
	return &ContentHandlers{content: content}
}

// Routes wires the public CMS endpoints onto the provided router.
func (h *ContentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/banners", h.listBanners)
	r.Get("/pages/{slug}", h.getPage)
}

func (h *ContentHandlers) listBanners(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		writeContentUnavailable(ctx, w)
		return
	}

	banners, err := h.content.ListBanners(ctx, true)
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}

	items := make([]bannerPayload, 0, len(banners))
	for _, banner := range banners {
		items = append(items, buildBannerPayload(banner))
	}
	writeJSONResponse(w, http.StatusOK, newListResponse(items, ""))
}

func (h *ContentHandlers) getPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		writeContentUnavailable(ctx, w)
		return
	}

	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	page, err := h.content.GetPage(ctx, slug)
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}
	if !page.IsPublished {
		httpx.WriteError(ctx, w, httpx.NewError("page_not_found", "page not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, staticPageResponse{Page: buildStaticPagePayload(page)})
}

func writeContentUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("content_unavailable", "content service is unavailable", http.StatusServiceUnavailable))
}

func writeContentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrContentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrContentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("content_not_found", "content not found", http.StatusNotFound))
	case errors.Is(err, services.ErrContentConflict):
		httpx.WriteError(ctx, w, httpx.NewError("content_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("content_error", "content request failed", http.StatusInternalServerError))
	}
}

type bannerPayload struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Subtitle        string `json:"subtitle,omitempty"`
	CTAText         string `json:"cta_text,omitempty"`
	CTALink         string `json:"cta_link,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
	TextColor       string `json:"text_color,omitempty"`
	AnimationType   string `json:"animation_type,omitempty"`
	Order           int    `json:"order"`
	IsActive        bool   `json:"is_active"`
	ImageDesktop    string `json:"image_desktop,omitempty"`
	ImageMobile     string `json:"image_mobile,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

func buildBannerPayload(banner services.Banner) bannerPayload {
	return bannerPayload{
		ID:              banner.ID,
		Title:           banner.Title,
		Subtitle:        banner.Subtitle,
		CTAText:         banner.CTAText,
		CTALink:         banner.CTALink,
		BackgroundColor: banner.BackgroundColor,
		TextColor:       banner.TextColor,
		AnimationType:   banner.AnimationType,
		Order:           banner.Order,
		IsActive:        banner.IsActive,
		ImageDesktop:    banner.ImageDesktop,
		ImageMobile:     banner.ImageMobile,
		CreatedAt:       formatTime(banner.CreatedAt),
		UpdatedAt:       formatTime(banner.UpdatedAt),
	}
}

type staticPageResponse struct {
	Page staticPagePayload `json:"page"`
}

type staticPagePayload struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	IsPublished bool   `json:"is_published"`
	UpdatedBy   string `json:"updated_by,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func buildStaticPagePayload(page services.StaticPage) staticPagePayload {
	return staticPagePayload{
		ID:          page.ID,
		Slug:        page.Slug,
		Title:       page.Title,
		Body:        page.Body,
		IsPublished: page.IsPublished,
		UpdatedBy:   page.UpdatedBy,
		CreatedAt:   formatTime(page.CreatedAt),
		UpdatedAt:   formatTime(page.UpdatedAt),
	}
}
