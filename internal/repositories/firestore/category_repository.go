package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/inkwell-books/api/internal/domain"
	pfirestore "github.com/inkwell-books/api/internal/platform/firestore"
	"github.com/inkwell-books/api/internal/repositories"
)

const categoriesCollection = "categories"

// CategoryRepository stores browse categories with embedded subcategories.
type CategoryRepository struct {
	base *pfirestore.BaseRepository[categoryDocument]
}

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[categoryDocument](provider, categoriesCollection, nil, nil)
	return &CategoryRepository{base: base}, nil
}

// Insert stores a new category document.
func (r *CategoryRepository) Insert(ctx context.Context, category domain.Category) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	categoryID := strings.TrimSpace(category.ID)
	if categoryID == "" {
		return domain.Category{}, errors.New("category repository: category id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	doc := encodeCategoryDocument(category)
	if _, err := docRef.Create(ctx, doc); err != nil {
		return domain.Category{}, pfirestore.WrapError("categories.insert", err)
	}
	return decodeCategoryDocument(categoryID, doc), nil
}

// Update replaces the persisted category state.
func (r *CategoryRepository) Update(ctx context.Context, category domain.Category) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	categoryID := strings.TrimSpace(category.ID)
	if categoryID == "" {
		return domain.Category{}, errors.New("category repository: category id is required")
	}
	doc := encodeCategoryDocument(category)
	if _, err := r.base.Set(ctx, categoryID, doc); err != nil {
		return domain.Category{}, err
	}
	return decodeCategoryDocument(categoryID, doc), nil
}

// Delete removes a category.
func (r *CategoryRepository) Delete(ctx context.Context, categoryID string) error {
	if r == nil || r.base == nil {
		return errors.New("category repository not initialised")
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return errors.New("category repository: category id is required")
	}
	return r.base.Delete(ctx, categoryID)
}

// FindByID fetches a single category.
func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return domain.Category{}, errors.New("category repository: category id is required")
	}
	doc, err := r.base.Get(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	return decodeCategoryDocument(doc.ID, doc.Data), nil
}

// FindBySlug fetches a category by its slug, matching embedded subcategory
// slugs as a fallback.
func (r *CategoryRepository) FindBySlug(ctx context.Context, slug string) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.Category{}, errors.New("category repository: slug is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("slug", "==", slug).Limit(1)
	})
	if err != nil {
		return domain.Category{}, err
	}
	if len(docs) > 0 {
		return decodeCategoryDocument(docs[0].ID, docs[0].Data), nil
	}

	docs, err = r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("subcategorySlugs", "array-contains", slug).Limit(1)
	})
	if err != nil {
		return domain.Category{}, err
	}
	if len(docs) == 0 {
		return domain.Category{}, &notFoundError{op: "categories.find_by_slug", key: slug}
	}
	return decodeCategoryDocument(docs[0].ID, docs[0].Data), nil
}

// List returns every category ordered by name.
func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("category repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeCategoryDocument(doc.ID, doc.Data))
	}
	return items, nil
}

type categoryDocument struct {
	Name             string                 `firestore:"name"`
	Slug             string                 `firestore:"slug"`
	Subcategories    []subcategoryDocument  `firestore:"subcategories,omitempty"`
	SubcategorySlugs []string               `firestore:"subcategorySlugs,omitempty"`
	CreatedAt        time.Time              `firestore:"createdAt"`
	UpdatedAt        time.Time              `firestore:"updatedAt"`
}

type subcategoryDocument struct {
	Name string `firestore:"name"`
	Slug string `firestore:"slug"`
}

func encodeCategoryDocument(category domain.Category) categoryDocument {
	doc := categoryDocument{
		Name:      strings.TrimSpace(category.Name),
		Slug:      strings.TrimSpace(category.Slug),
		CreatedAt: category.CreatedAt.UTC(),
		UpdatedAt: category.UpdatedAt.UTC(),
	}
	for _, sub := range category.Subcategories {
		doc.Subcategories = append(doc.Subcategories, subcategoryDocument{
			Name: strings.TrimSpace(sub.Name),
			Slug: strings.TrimSpace(sub.Slug),
		})
		if slug := strings.TrimSpace(sub.Slug); slug != "" {
			doc.SubcategorySlugs = append(doc.SubcategorySlugs, slug)
		}
	}
	return doc
}

func decodeCategoryDocument(id string, doc categoryDocument) domain.Category {
	category := domain.Category{
		ID:        id,
		Name:      doc.Name,
		Slug:      doc.Slug,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, sub := range doc.Subcategories {
		category.Subcategories = append(category.Subcategories, domain.Subcategory{
			Name: sub.Name,
			Slug: sub.Slug,
		})
	}
	return category
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)
