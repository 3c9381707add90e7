package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/platform/assets"
	"github.com/inkwell-books/api/internal/platform/httpx"
	"github.com/inkwell-books/api/internal/services"
)

const maxContentBodySize = 512 * 1024

// AdminContentHandlers exposes CMS management: banners and static pages.
// Banner writes accept either a JSON body or a multipart form with a
// "payload" field plus imageDesktop and imageMobile files.
type AdminContentHandlers struct {
	content  services.ContentService
	uploader assets.Uploader
}

// NewAdminContentHandlers constructs the admin CMS endpoints.
func NewAdminContentHandlers(content services.ContentService, uploader assets.Uploader) *AdminContentHandlers {
	return &AdminContentHandlers{
		content:  content,
		uploader: uploader,
	}
}

// Routes registers the admin CMS subtree.
func (h *AdminContentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/banners", func(rt chi.Router) {
		rt.Get("/", h.listBanners)
		rt.Post("/", h.createBanner)
		rt.Get("/{bannerId}", h.getBanner)
		rt.Put("/{bannerId}", h.updateBanner)
		rt.Delete("/{bannerId}", h.deleteBanner)
	})
	r.Route("/pages", func(rt chi.Router) {
		rt.Get("/", h.listPages)
		rt.Put("/{slug}", h.upsertPage)
		rt.Delete("/{slug}", h.deletePage)
	})
}

func (h *AdminContentHandlers) listBanners(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		writeContentUnavailable(ctx, w)
		return
	}

	banners, err := h.content.ListBanners(ctx, queryBool(r, "active_only"))
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

func (h *AdminContentHandlers) getBanner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		writeContentUnavailable(ctx, w)
		return
	}

	banner, err := h.content.GetBanner(ctx, strings.TrimSpace(chi.URLParam(r, "bannerId")))
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, bannerResponse{Banner: buildBannerPayload(banner)})
}

func (h *AdminContentHandlers) createBanner(w http.ResponseWriter, r *http.Request) {
	h.upsertBanner(w, r, "")
}

func (h *AdminContentHandlers) updateBanner(w http.ResponseWriter, r *http.Request) {
	h.upsertBanner(w, r, strings.TrimSpace(chi.URLParam(r, "bannerId")))
}

func (h *AdminContentHandlers) upsertBanner(w http.ResponseWriter, r *http.Request, bannerID string) {
	ctx := r.Context()
	if h.content == nil {
		writeContentUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var payload bannerWriteRequest
	var uploads services.BannerUploads
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxMultipartFormSize); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid multipart form", http.StatusBadRequest))
			return
		}
		raw := ""
		if values := r.MultipartForm.Value["payload"]; len(values) > 0 {
			raw = strings.TrimSpace(values[0])
		}
		if raw == "" {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payload field is required", http.StatusBadRequest))
			return
		}
		if err := decodeJSONString(raw, &payload); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		collected, err := assets.CollectBannerUploads(ctx, r.MultipartForm, h.uploader)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("upload_failed", "image upload failed", http.StatusBadGateway))
			return
		}
		uploads = collected
	} else if err := decodeJSONBody(r, maxContentBodySize, &payload); err != nil {
		writeBodyError(w, r, err)
		return
	}

	cmd := services.UpsertBannerCommand{
		Banner: domain.Banner{
			ID:              bannerID,
			Title:           strings.TrimSpace(payload.Title),
			Subtitle:        payload.Subtitle,
			CTAText:         payload.CTAText,
			CTALink:         payload.CTALink,
			BackgroundColor: payload.BackgroundColor,
			TextColor:       payload.TextColor,
			AnimationType:   payload.AnimationType,
			Order:           payload.Order,
			IsActive:        payload.IsActive,
			ImageDesktop:    payload.ImageDesktop,
			ImageMobile:     payload.ImageMobile,
		},
		Uploads: uploads,
		ActorID: identity.UID,
	}

	var (
		banner services.Banner
		err    error
		status = http.StatusOK
	)
	if bannerID == "" {
		banner, err = h.content.CreateBanner(ctx, cmd)
		status = http.StatusCreated
	} else {
		banner, err = h.content.UpdateBanner(ctx, cmd)
	}
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, bannerResponse{Banner: buildBannerPayload(banner)})
}

func (h *AdminContentHandlers) deleteBanner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		writeContentUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	err := h.content.DeleteBanner(ctx, services.DeleteBannerCommand{
		BannerID: strings.TrimSpace(chi.URLParam(r, "bannerId")),
		ActorID:  identity.UID,
	})
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminContentHandlers) listPages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		writeContentUnavailable(ctx, w)
		return
	}

	pages, err := h.content.ListPages(ctx, true)
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}

	items := make([]staticPagePayload, 0, len(pages))
	for _, page := range pages {
		items = append(items, buildStaticPagePayload(page))
	}
	writeJSONResponse(w, http.StatusOK, newListResponse(items, ""))
}

func (h *AdminContentHandlers) upsertPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		writeContentUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var payload staticPageWriteRequest
	if err := decodeJSONBody(r, maxContentBodySize, &payload); err != nil {
		writeBodyError(w, r, err)
		return
	}
	if payload.Title == "" || payload.Body == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errPageFieldsRequired.Error(), http.StatusBadRequest))
		return
	}

	published := true
	if payload.IsPublished != nil {
		published = *payload.IsPublished
	}
	page, err := h.content.UpsertPage(ctx, services.UpsertStaticPageCommand{
		Page: domain.StaticPage{
			Slug:        strings.TrimSpace(chi.URLParam(r, "slug")),
			Title:       strings.TrimSpace(payload.Title),
			Body:        payload.Body,
			IsPublished: published,
		},
		ActorID: identity.UID,
	})
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, staticPageResponse{Page: buildStaticPagePayload(page)})
}

func (h *AdminContentHandlers) deletePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.content == nil {
		writeContentUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	err := h.content.DeletePage(ctx, services.DeleteStaticPageCommand{
		PageID:  strings.TrimSpace(chi.URLParam(r, "slug")),
		ActorID: identity.UID,
	})
	if err != nil {
		writeContentError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var errPageFieldsRequired = errors.New("title and body are required")

type bannerResponse struct {
	Banner bannerPayload `json:"banner"`
}

type bannerWriteRequest struct {
	Title           string `json:"title"`
	Subtitle        string `json:"subtitle"`
	CTAText         string `json:"cta_text"`
	CTALink         string `json:"cta_link"`
	BackgroundColor string `json:"background_color"`
	TextColor       string `json:"text_color"`
	AnimationType   string `json:"animation_type"`
	Order           int    `json:"order"`
	IsActive        bool   `json:"is_active"`
	ImageDesktop    string `json:"image_desktop"`
	ImageMobile     string `json:"image_mobile"`
}

type staticPageWriteRequest struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	IsPublished *bool  `json:"is_published"`
}
