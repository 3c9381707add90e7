package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	domain "github.com/inkwell-books/api/internal/domain"
)

// PlaceholderImage is served for groups whose variants carry no imagery.
const PlaceholderImage = "/images/placeholder-book.png"

var acceptedURLSchemes = []string{"http://", "https://"}

// GenerateSlug derives a URL slug from a product name. Diacritics are folded
// to ASCII, everything outside letters, digits, spaces, and hyphens is
// stripped, whitespace runs become single hyphens, and a volume suffix is
// appended for numbered series entries. An empty result means the name was
// unusable and callers must reject it.
func GenerateSlug(name string, volumeNumber int) string {
	lowered := strings.ToLower(strings.TrimSpace(foldDiacritics(name)))

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-':
			b.WriteByte('-')
		}
	}

	slug := collapseHyphens(b.String())
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return ""
	}
	if volumeNumber > 0 {
		slug = fmt.Sprintf("%s-vol-%d", slug, volumeNumber)
	}
	return slug
}

func foldDiacritics(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func collapseHyphens(s string) string {
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return s
}

// SanitizeAssetList filters a client-supplied image list down to usable URL
// strings. Plain strings must carry an accepted URL scheme; objects are kept
// when their preview field does. Anything else is dropped silently and order
// is preserved. The function is idempotent: its output passes unchanged.
func SanitizeAssetList(entries []any) []string {
	if len(entries) == 0 {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		switch value := entry.(type) {
		case string:
			if hasAcceptedScheme(value) {
				out = append(out, value)
			}
		case map[string]any:
			preview, ok := value["preview"].(string)
			if ok && hasAcceptedScheme(preview) {
				out = append(out, preview)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func hasAcceptedScheme(raw string) bool {
	for _, scheme := range acceptedURLSchemes {
		if strings.HasPrefix(raw, scheme) {
			return true
		}
	}
	return false
}

// OptionalNumber distinguishes an absent numeric field from an explicit zero.
// It accepts JSON numbers and numeric strings; non-numeric strings and null
// leave the field absent rather than failing the request.
type OptionalNumber struct {
	Value float64
	Valid bool
}

func (n *OptionalNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = OptionalNumber{}
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			*n = OptionalNumber{}
			return nil
		}
		*n = OptionalNumber{Value: value, Valid: true}
		return nil
	}
	var value float64
	if err := json.Unmarshal(data, &value); err != nil {
		*n = OptionalNumber{}
		return nil
	}
	*n = OptionalNumber{Value: value, Valid: true}
	return nil
}

// OptionalInt is OptionalNumber for integer fields.
type OptionalInt struct {
	Value int
	Valid bool
}

func (n *OptionalInt) UnmarshalJSON(data []byte) error {
	var number OptionalNumber
	if err := number.UnmarshalJSON(data); err != nil {
		return err
	}
	*n = OptionalInt{Value: int(number.Value), Valid: number.Valid}
	return nil
}

// VariantInput is the client-side shape of a variant in create and update
// payloads. Pointer and Optional fields record presence so that explicit
// zeros survive a merge.
type VariantInput struct {
	ID           *string        `json:"id"`
	Format       *string        `json:"format"`
	Price        OptionalNumber `json:"price"`
	CountInStock OptionalInt    `json:"countInStock"`
	ISBN         *string        `json:"isbn"`
	TrimSize     *string        `json:"trimSize"`
	PageCount    OptionalInt    `json:"pages"`
	MainImage    *string        `json:"mainImage"`
	AlbumImages  []any          `json:"albumImages"`
}

// UploadedVariantAssets carries freshly uploaded image URLs for one variant
// position, keyed by index in the request's variant array.
type UploadedVariantAssets struct {
	MainImage   string
	AlbumImages []string
}

// MergeVariant resolves the stored state of one variant from the client
// payload, the previously stored variant (nil on create), and any uploads.
// Scalar fields follow presence: a provided value wins even when zero,
// otherwise the stored value carries over. The main image prefers a fresh
// upload, then a sanitized incoming URL, then the stored image. Album images
// are replaced wholesale: sanitized incoming entries plus uploads, deduped in
// order; stored entries not resubmitted are dropped.
func MergeVariant(input VariantInput, existing *domain.ProductVariant, uploaded UploadedVariantAssets) domain.ProductVariant {
	var merged domain.ProductVariant
	if existing != nil {
		merged = cloneVariant(*existing)
	}

	if merged.ID == "" && input.ID != nil {
		merged.ID = strings.TrimSpace(*input.ID)
	}
	if input.Format != nil {
		merged.Format = strings.TrimSpace(*input.Format)
	}
	if input.Price.Valid {
		merged.Price = input.Price.Value
	}
	if input.CountInStock.Valid {
		merged.CountInStock = input.CountInStock.Value
	}
	if input.ISBN != nil {
		merged.ISBN = strings.TrimSpace(*input.ISBN)
	}
	if input.TrimSize != nil {
		merged.TrimSize = strings.TrimSpace(*input.TrimSize)
	}
	if input.PageCount.Valid {
		merged.PageCount = input.PageCount.Value
	}

	merged.MainImage = resolveMainImage(input.MainImage, existing, uploaded)
	merged.AlbumImages = resolveAlbumImages(input.AlbumImages, uploaded)
	return merged
}

func resolveMainImage(incoming *string, existing *domain.ProductVariant, uploaded UploadedVariantAssets) string {
	if uploaded.MainImage != "" {
		return uploaded.MainImage
	}
	if incoming != nil && hasAcceptedScheme(*incoming) {
		return *incoming
	}
	if existing != nil {
		return existing.MainImage
	}
	return ""
}

func resolveAlbumImages(incoming []any, uploaded UploadedVariantAssets) []string {
	sanitized := SanitizeAssetList(incoming)
	combined := make([]string, 0, len(sanitized)+len(uploaded.AlbumImages))
	seen := make(map[string]struct{}, len(sanitized)+len(uploaded.AlbumImages))
	for _, url := range sanitized {
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		combined = append(combined, url)
	}
	for _, url := range uploaded.AlbumImages {
		if url == "" {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		combined = append(combined, url)
	}
	if len(combined) == 0 {
		return nil
	}
	return combined
}

func cloneVariant(v domain.ProductVariant) domain.ProductVariant {
	dup := v
	if v.AlbumImages != nil {
		dup.AlbumImages = make([]string, len(v.AlbumImages))
		copy(dup.AlbumImages, v.AlbumImages)
	}
	return dup
}

// ExpandProduct flattens a product into sellable rows, one per variant, each
// carrying the parent's descriptive fields. Products stored without variants
// yield exactly one synthetic row in the default format with zero price and
// stock so that listings never silently drop a product. The input is never
// mutated.
func ExpandProduct(product domain.Product) []domain.SellableRow {
	variants := product.Variants
	if len(variants) == 0 {
		variants = []domain.ProductVariant{{
			ID:     "standard",
			Format: domain.DefaultVariantFormat,
		}}
	}

	status := EffectiveStatus(product.EditorialStatus, ComputeStockStatus(product.Variants))

	rows := make([]domain.SellableRow, 0, len(variants))
	for _, variant := range variants {
		album := variant.AlbumImages
		if album != nil {
			album = append([]string(nil), album...)
		}
		rows = append(rows, domain.SellableRow{
			ID:              domain.RowID{ProductID: product.ID, VariantID: variant.ID},
			ProductID:       product.ID,
			VariantID:       variant.ID,
			Name:            product.Name,
			Slug:            product.Slug,
			Author:          product.Author,
			Publisher:       product.Publisher,
			SeriesTitle:     product.SeriesTitle,
			VolumeNumber:    product.VolumeNumber,
			Category:        product.Category,
			Subcategory:     product.Subcategory,
			Format:          variant.Format,
			Price:           variant.Price,
			CountInStock:    variant.CountInStock,
			ISBN:            variant.ISBN,
			TrimSize:        variant.TrimSize,
			PageCount:       variant.PageCount,
			MainImage:       variant.MainImage,
			AlbumImages:     album,
			VariantsCount:   len(product.Variants),
			IsPromotion:     product.IsPromotion,
			IsNewArrival:    product.IsNewArrival,
			IsPopular:       product.IsPopular,
			Status:          status,
			PublicationDate: product.PublicationDate,
			CreatedAt:       product.CreatedAt,
		})
	}
	return rows
}

// GroupRows re-collects sellable rows into storefront display groups. Rows
// group by slug when present, then by parent product id, then by the row id
// with its variant suffix stripped. Groups keep first-seen order; the
// representative image is the first non-empty variant image, falling back to
// the placeholder; the price range spans positive prices only, except that a
// lone variant keeps its price even at zero.
func GroupRows(rows []domain.SellableRow) []domain.DisplayGroup {
	groups := make([]*domain.DisplayGroup, 0)
	index := make(map[string]*domain.DisplayGroup)

	for _, row := range rows {
		key := groupKey(row)
		group, ok := index[key]
		if !ok {
			group = &domain.DisplayGroup{
				Key:          key,
				ProductID:    row.ProductID,
				Name:         row.Name,
				Slug:         row.Slug,
				Author:       row.Author,
				Category:     row.Category,
				Subcategory:  row.Subcategory,
				Status:       row.Status,
				IsPromotion:  row.IsPromotion,
				IsNewArrival: row.IsNewArrival,
				IsPopular:    row.IsPopular,
			}
			index[key] = group
			groups = append(groups, group)
		}
		if group.Image == "" && row.MainImage != "" {
			group.Image = row.MainImage
		}
		group.Variants = append(group.Variants, domain.VariantSummary{
			VariantID:    row.VariantID,
			Format:       row.Format,
			Price:        row.Price,
			CountInStock: row.CountInStock,
			MainImage:    row.MainImage,
		})
	}

	out := make([]domain.DisplayGroup, 0, len(groups))
	for _, group := range groups {
		if group.Image == "" {
			group.Image = PlaceholderImage
		}
		group.PriceRange = priceRange(group.Variants)
		out = append(out, *group)
	}
	return out
}

func groupKey(row domain.SellableRow) string {
	if row.Slug != "" {
		return row.Slug
	}
	if row.ProductID != "" {
		return row.ProductID
	}
	return row.ID.ProductID
}

func priceRange(variants []domain.VariantSummary) domain.PriceRange {
	if len(variants) == 1 {
		price := variants[0].Price
		return domain.PriceRange{Min: price, Max: price}
	}
	var (
		found bool
		rng   domain.PriceRange
	)
	for _, v := range variants {
		if v.Price <= 0 {
			continue
		}
		if !found {
			rng = domain.PriceRange{Min: v.Price, Max: v.Price}
			found = true
			continue
		}
		if v.Price < rng.Min {
			rng.Min = v.Price
		}
		if v.Price > rng.Max {
			rng.Max = v.Price
		}
	}
	return rng
}

// ComputeStockStatus derives the stock state from variant inventory. A
// product without variants counts as out of stock.
func ComputeStockStatus(variants []domain.ProductVariant) domain.StockStatus {
	for _, v := range variants {
		if v.CountInStock > 0 {
			return domain.StockStatusInStock
		}
	}
	return domain.StockStatusOutOfStock
}

// ResolveEditorialStatus picks the editorial state for a write: an explicit
// request value wins, then the stored value, then active.
func ResolveEditorialStatus(explicit *domain.EditorialStatus, stored domain.EditorialStatus) domain.EditorialStatus {
	if explicit != nil && *explicit != "" {
		return *explicit
	}
	if stored != "" {
		return stored
	}
	return domain.EditorialStatusActive
}

// EffectiveStatus merges the editorial and stock states into the single
// status clients see. An empty inventory always reads as out of stock, no
// matter what the editorial state says.
func EffectiveStatus(editorial domain.EditorialStatus, stock domain.StockStatus) domain.ProductStatus {
	if stock == domain.StockStatusOutOfStock {
		return domain.ProductStatusOutOfStock
	}
	switch editorial {
	case domain.EditorialStatusInactive:
		return domain.ProductStatusInactive
	case domain.EditorialStatusComingSoon:
		return domain.ProductStatusComingSoon
	default:
		return domain.ProductStatusActive
	}
}
