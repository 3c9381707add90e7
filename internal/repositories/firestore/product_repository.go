package firestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/inkwell-books/api/internal/domain"
	pfirestore "github.com/inkwell-books/api/internal/platform/firestore"
	"github.com/inkwell-books/api/internal/repositories"
)

const productsCollection = "products"

// ProductRepository persists product documents with embedded variants.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{base: base}, nil
}

// Insert stores a new product document. The ID must be unique.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	doc := encodeProductDocument(product)
	if _, err := docRef.Create(ctx, doc); err != nil {
		return domain.Product{}, pfirestore.WrapError("products.insert", err)
	}
	return decodeProductDocument(productID, doc), nil
}

// Update replaces the persisted product state with the provided snapshot.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc := encodeProductDocument(product)
	if _, err := r.base.Set(ctx, productID, doc); err != nil {
		return domain.Product{}, err
	}
	return decodeProductDocument(productID, doc), nil
}

// Delete removes the product and its embedded variants.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("product repository: product id is required")
	}
	return r.base.Delete(ctx, productID)
}

// FindByID fetches a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProductDocument(doc.ID, doc.Data), nil
}

// FindBySlug fetches the product carrying the given slug.
func (r *ProductRepository) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.Product{}, errors.New("product repository: slug is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("slug", "==", slug).Limit(1)
	})
	if err != nil {
		return domain.Product{}, err
	}
	if len(docs) == 0 {
		return domain.Product{}, &notFoundError{op: "products.find_by_slug", key: slug}
	}
	return decodeProductDocument(docs[0].ID, docs[0].Data), nil
}

// List returns products ordered newest first with cursor pagination.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("product repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	category := strings.TrimSpace(filter.Category)
	subcategory := strings.TrimSpace(filter.Subcategory)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if category != "" {
			q = q.Where("category", "==", category)
		}
		if subcategory != "" {
			q = q.Where("subcategory", "==", subcategory)
		}
		if filter.Featured != repositories.FeaturedNone {
			q = q.Where(string(filter.Featured), "==", true)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeListToken(tokenTime, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeProductDocument(doc.ID, doc.Data))
	}

	return domain.CursorPage[domain.Product]{Items: items, NextPageToken: nextToken}, nil
}

// Count reports the total number of products.
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	if r == nil || r.base == nil {
		return 0, errors.New("product repository not initialised")
	}
	return r.base.Count(ctx, nil)
}

type productDocument struct {
	Name            string                   `firestore:"name"`
	Slug            string                   `firestore:"slug"`
	Description     string                   `firestore:"description,omitempty"`
	Author          string                   `firestore:"author,omitempty"`
	AuthorBio       string                   `firestore:"authorBio,omitempty"`
	Publisher       string                   `firestore:"publisher,omitempty"`
	SeriesTitle     string                   `firestore:"seriesTitle,omitempty"`
	VolumeNumber    int                      `firestore:"volumeNumber,omitempty"`
	Category        string                   `firestore:"category,omitempty"`
	Subcategory     string                   `firestore:"subcategory,omitempty"`
	AgeRating       string                   `firestore:"ageRating,omitempty"`
	PublicationDate *time.Time               `firestore:"publicationDate,omitempty"`
	IsPromotion     bool                     `firestore:"isPromotion"`
	IsNewArrival    bool                     `firestore:"isNewArrival"`
	IsPopular       bool                     `firestore:"isPopular"`
	EditorialStatus string                   `firestore:"editorialStatus,omitempty"`
	StockStatus     string                   `firestore:"stockStatus,omitempty"`
	Variants        []productVariantDocument `firestore:"variants"`
	CreatedAt       time.Time                `firestore:"createdAt"`
	UpdatedAt       time.Time                `firestore:"updatedAt"`
}

type productVariantDocument struct {
	ID           string   `firestore:"id"`
	Format       string   `firestore:"format,omitempty"`
	Price        float64  `firestore:"price"`
	CountInStock int      `firestore:"countInStock"`
	ISBN         string   `firestore:"isbn,omitempty"`
	TrimSize     string   `firestore:"trimSize,omitempty"`
	PageCount    int      `firestore:"pages,omitempty"`
	MainImage    string   `firestore:"mainImage,omitempty"`
	AlbumImages  []string `firestore:"albumImages,omitempty"`
}

func encodeProductDocument(product domain.Product) productDocument {
	doc := productDocument{
		Name:            strings.TrimSpace(product.Name),
		Slug:            strings.TrimSpace(product.Slug),
		Description:     product.Description,
		Author:          strings.TrimSpace(product.Author),
		AuthorBio:       product.AuthorBio,
		Publisher:       strings.TrimSpace(product.Publisher),
		SeriesTitle:     strings.TrimSpace(product.SeriesTitle),
		VolumeNumber:    product.VolumeNumber,
		Category:        strings.TrimSpace(product.Category),
		Subcategory:     strings.TrimSpace(product.Subcategory),
		AgeRating:       strings.TrimSpace(product.AgeRating),
		IsPromotion:     product.IsPromotion,
		IsNewArrival:    product.IsNewArrival,
		IsPopular:       product.IsPopular,
		EditorialStatus: string(product.EditorialStatus),
		StockStatus:     string(product.StockStatus),
		Variants:        make([]productVariantDocument, 0, len(product.Variants)),
		CreatedAt:       product.CreatedAt.UTC(),
		UpdatedAt:       product.UpdatedAt.UTC(),
	}
	if product.PublicationDate != nil {
		pub := product.PublicationDate.UTC()
		doc.PublicationDate = &pub
	}
	for _, variant := range product.Variants {
		doc.Variants = append(doc.Variants, productVariantDocument{
			ID:           variant.ID,
			Format:       variant.Format,
			Price:        variant.Price,
			CountInStock: variant.CountInStock,
			ISBN:         variant.ISBN,
			TrimSize:     variant.TrimSize,
			PageCount:    variant.PageCount,
			MainImage:    variant.MainImage,
			AlbumImages:  append([]string(nil), variant.AlbumImages...),
		})
	}
	return doc
}

func decodeProductDocument(id string, doc productDocument) domain.Product {
	product := domain.Product{
		ID:              id,
		Name:            doc.Name,
		Slug:            doc.Slug,
		Description:     doc.Description,
		Author:          doc.Author,
		AuthorBio:       doc.AuthorBio,
		Publisher:       doc.Publisher,
		SeriesTitle:     doc.SeriesTitle,
		VolumeNumber:    doc.VolumeNumber,
		Category:        doc.Category,
		Subcategory:     doc.Subcategory,
		AgeRating:       doc.AgeRating,
		PublicationDate: doc.PublicationDate,
		IsPromotion:     doc.IsPromotion,
		IsNewArrival:    doc.IsNewArrival,
		IsPopular:       doc.IsPopular,
		EditorialStatus: domain.EditorialStatus(doc.EditorialStatus),
		StockStatus:     domain.StockStatus(doc.StockStatus),
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
	for _, variant := range doc.Variants {
		product.Variants = append(product.Variants, domain.ProductVariant{
			ID:           variant.ID,
			Format:       variant.Format,
			Price:        variant.Price,
			CountInStock: variant.CountInStock,
			ISBN:         variant.ISBN,
			TrimSize:     variant.TrimSize,
			PageCount:    variant.PageCount,
			MainImage:    variant.MainImage,
			AlbumImages:  append([]string(nil), variant.AlbumImages...),
		})
	}
	return product
}

// encodeListToken packs a (timestamp, document id) cursor into an opaque token.
func encodeListToken(t time.Time, id string) string {
	payload := strconv.FormatInt(t.UTC().UnixNano(), 10) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeListToken(token string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", errors.New("malformed cursor")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, nanos).UTC(), parts[1], nil
}

// notFoundError satisfies repositories.RepositoryError for query misses that
// Firestore itself does not surface as NotFound.
type notFoundError struct {
	op  string
	key string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("%s: %q not found", e.op, e.key)
}

func (e *notFoundError) IsNotFound() bool    { return true }
func (e *notFoundError) IsConflict() bool    { return false }
func (e *notFoundError) IsUnavailable() bool { return false }

var _ repositories.ProductRepository = (*ProductRepository)(nil)
var _ repositories.RepositoryError = (*notFoundError)(nil)
