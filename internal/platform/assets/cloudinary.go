package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const (
	defaultProductFolder = "inkwell/products"
	defaultBannerFolder  = "inkwell/banners"
)

var errNoCloudinary = errors.New("assets: cloudinary client is required")

// Uploader stores an image and returns its public URL. Implemented by the
// Cloudinary client and faked in handler tests.
type Uploader interface {
	UploadImage(ctx context.Context, content io.Reader, folder string) (string, error)
}

// CloudinaryUploader wraps the Cloudinary upload API.
type CloudinaryUploader struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinaryUploader constructs an uploader from a cloudinary:// URL.
func NewCloudinaryUploader(cloudinaryURL string) (*CloudinaryUploader, error) {
	cloudinaryURL = strings.TrimSpace(cloudinaryURL)
	if cloudinaryURL == "" {
		return nil, errors.New("assets: cloudinary url is required")
	}
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("assets: init cloudinary: %w", err)
	}
	return &CloudinaryUploader{cld: cld}, nil
}

// UploadImage sends the content to Cloudinary and returns the served URL.
func (u *CloudinaryUploader) UploadImage(ctx context.Context, content io.Reader, folder string) (string, error) {
	if u == nil || u.cld == nil {
		return "", errNoCloudinary
	}
	result, err := u.cld.Upload.Upload(ctx, content, uploader.UploadParams{Folder: folder})
	if err != nil {
		return "", fmt.Errorf("assets: upload image: %w", err)
	}
	if result.SecureURL == "" {
		return "", errors.New("assets: upload returned no url")
	}
	return result.SecureURL, nil
}

var _ Uploader = (*CloudinaryUploader)(nil)
