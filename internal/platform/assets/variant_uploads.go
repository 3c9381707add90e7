package assets

import (
	"context"
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/inkwell-books/api/internal/services"
)

const (
	variantMainFieldPrefix  = "variantMainImages_"
	variantAlbumFieldPrefix = "variantAlbumImages_"

	bannerDesktopField = "imageDesktop"
	bannerMobileField  = "imageMobile"

	// maxVariantUploadIndex bounds the form index so a malformed field name
	// cannot allocate a huge map.
	maxVariantUploadIndex = 200
)

// CollectVariantUploads walks an admin multipart form, uploads every variant
// image it finds, and returns the resulting URLs keyed by variant index. The
// form carries one main image per variant under variantMainImages_{idx} and
// any number of gallery images under variantAlbumImages_{idx}.
func CollectVariantUploads(ctx context.Context, form *multipart.Form, up Uploader) (map[int]services.UploadedVariantAssets, error) {
	if form == nil || up == nil {
		return nil, nil
	}

	uploads := map[int]services.UploadedVariantAssets{}
	for field, files := range form.File {
		idx, kind, ok := parseVariantField(field)
		if !ok || len(files) == 0 {
			continue
		}

		assets := uploads[idx]
		switch kind {
		case variantMainFieldPrefix:
			url, err := uploadFormFile(ctx, up, files[0], defaultProductFolder)
			if err != nil {
				return nil, fmt.Errorf("assets: variant %d main image: %w", idx, err)
			}
			assets.MainImage = url
		case variantAlbumFieldPrefix:
			for _, file := range files {
				url, err := uploadFormFile(ctx, up, file, defaultProductFolder)
				if err != nil {
					return nil, fmt.Errorf("assets: variant %d album image: %w", idx, err)
				}
				assets.AlbumImages = append(assets.AlbumImages, url)
			}
		}
		uploads[idx] = assets
	}

	if len(uploads) == 0 {
		return nil, nil
	}
	return uploads, nil
}

// CollectBannerUploads uploads the optional desktop and mobile banner images
// from an admin multipart form.
func CollectBannerUploads(ctx context.Context, form *multipart.Form, up Uploader) (services.BannerUploads, error) {
	var result services.BannerUploads
	if form == nil || up == nil {
		return result, nil
	}

	if files := form.File[bannerDesktopField]; len(files) > 0 {
		url, err := uploadFormFile(ctx, up, files[0], defaultBannerFolder)
		if err != nil {
			return services.BannerUploads{}, fmt.Errorf("assets: banner desktop image: %w", err)
		}
		result.ImageDesktop = url
	}
	if files := form.File[bannerMobileField]; len(files) > 0 {
		url, err := uploadFormFile(ctx, up, files[0], defaultBannerFolder)
		if err != nil {
			return services.BannerUploads{}, fmt.Errorf("assets: banner mobile image: %w", err)
		}
		result.ImageMobile = url
	}
	return result, nil
}

func parseVariantField(field string) (int, string, bool) {
	var prefix string
	switch {
	case strings.HasPrefix(field, variantMainFieldPrefix):
		prefix = variantMainFieldPrefix
	case strings.HasPrefix(field, variantAlbumFieldPrefix):
		prefix = variantAlbumFieldPrefix
	default:
		return 0, "", false
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(field, prefix))
	if err != nil || idx < 0 || idx > maxVariantUploadIndex {
		return 0, "", false
	}
	return idx, prefix, true
}

func uploadFormFile(ctx context.Context, up Uploader, header *multipart.FileHeader, folder string) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", header.Filename, err)
	}
	defer file.Close()
	return up.UploadImage(ctx, file, folder)
}
