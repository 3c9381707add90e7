package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

var (
	// ErrCatalogRepositoryMissing indicates the repository dependency is absent.
	ErrCatalogRepositoryMissing = errors.New("catalog service: repository is not configured")
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog operation.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCatalogNotFound indicates the requested product or category does not exist.
	ErrCatalogNotFound = errors.New("catalog service: not found")
	// ErrCatalogConflict indicates a slug collision or concurrent modification.
	ErrCatalogConflict = errors.New("catalog service: conflict")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Categories  repositories.CategoryRepository
	Audit       AuditLogService
	Events      CatalogEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	audit      AuditLogService
	events     CatalogEventPublisher
	clock      func() time.Time
	newID      func() string
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, fmt.Errorf("catalog service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &catalogService{
		products:   deps.Products,
		categories: deps.Categories,
		audit:      deps.Audit,
		events:     deps.Events,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
	}, nil
}

func (s *catalogService) ListSellableRows(ctx context.Context, filter ProductListFilter) (domain.CursorPage[SellableRow], error) {
	if s.products == nil {
		return domain.CursorPage[SellableRow]{}, ErrCatalogRepositoryMissing
	}

	repoFilter := repositories.ProductListFilter{
		Category:    derefTrimmed(filter.Category),
		Subcategory: derefTrimmed(filter.Subcategory),
		Pagination: domain.Pagination{
			PageSize:  filter.PageSize,
			PageToken: strings.TrimSpace(filter.PageToken),
		},
	}

	page, err := s.products.List(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[SellableRow]{}, s.translateRepoError(err)
	}
	return domain.CursorPage[SellableRow]{
		Items:         expandProducts(page.Items),
		NextPageToken: page.NextPageToken,
	}, nil
}

func (s *catalogService) ListByCategorySlug(ctx context.Context, slug string, pager Pagination) (domain.CursorPage[SellableRow], error) {
	if s.products == nil || s.categories == nil {
		return domain.CursorPage[SellableRow]{}, ErrCatalogRepositoryMissing
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.CursorPage[SellableRow]{}, fmt.Errorf("%w: category slug is required", ErrCatalogInvalidInput)
	}

	category, err := s.categories.FindBySlug(ctx, slug)
	if err != nil {
		return domain.CursorPage[SellableRow]{}, s.translateRepoError(err)
	}

	repoFilter := repositories.ProductListFilter{
		Pagination: domain.Pagination{
			PageSize:  pager.PageSize,
			PageToken: strings.TrimSpace(pager.PageToken),
		},
	}
	if category.Slug == slug {
		repoFilter.Category = slug
	} else {
		// The slug matched one of the embedded subcategories.
		repoFilter.Category = category.Slug
		repoFilter.Subcategory = slug
	}

	page, err := s.products.List(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[SellableRow]{}, s.translateRepoError(err)
	}
	return domain.CursorPage[SellableRow]{
		Items:         expandProducts(page.Items),
		NextPageToken: page.NextPageToken,
	}, nil
}

func (s *catalogService) ListFeatured(ctx context.Context, kind FeaturedKind, pager Pagination) ([]DisplayGroup, error) {
	if s.products == nil {
		return nil, ErrCatalogRepositoryMissing
	}

	var featured repositories.ProductFeaturedFilter
	switch kind {
	case FeaturedPromotion:
		featured = repositories.FeaturedPromotion
	case FeaturedNewArrival:
		featured = repositories.FeaturedNewArrival
	case FeaturedPopular:
		featured = repositories.FeaturedPopular
	default:
		return nil, fmt.Errorf("%w: unknown featured kind %q", ErrCatalogInvalidInput, kind)
	}

	page, err := s.products.List(ctx, repositories.ProductListFilter{
		Featured: featured,
		Pagination: domain.Pagination{
			PageSize:  pager.PageSize,
			PageToken: strings.TrimSpace(pager.PageToken),
		},
	})
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return GroupRows(expandProducts(page.Items)), nil
}

func (s *catalogService) GetProduct(ctx context.Context, idOrSlug string) (Product, error) {
	if s.products == nil {
		return Product{}, ErrCatalogRepositoryMissing
	}
	idOrSlug = strings.TrimSpace(idOrSlug)
	if idOrSlug == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, idOrSlug)
	if err == nil {
		return product, nil
	}
	if !isRepositoryNotFound(err) {
		return Product{}, s.translateRepoError(err)
	}
	product, err = s.products.FindBySlug(ctx, idOrSlug)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	if s.products == nil {
		return domain.CursorPage[Product]{}, ErrCatalogRepositoryMissing
	}
	page, err := s.products.List(ctx, repositories.ProductListFilter{
		Category:    derefTrimmed(filter.Category),
		Subcategory: derefTrimmed(filter.Subcategory),
		Pagination: domain.Pagination{
			PageSize:  filter.PageSize,
			PageToken: strings.TrimSpace(filter.PageToken),
		},
	})
	if err != nil {
		return domain.CursorPage[Product]{}, s.translateRepoError(err)
	}
	return page, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	if s.products == nil {
		return Product{}, ErrCatalogRepositoryMissing
	}

	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}

	slug := derefTrimmed(cmd.Slug)
	if slug == "" {
		slug = GenerateSlug(name, cmd.VolumeNumber)
	}
	if slug == "" {
		return Product{}, fmt.Errorf("%w: product name yields an empty slug", ErrCatalogInvalidInput)
	}
	if err := s.ensureSlugFree(ctx, slug, ""); err != nil {
		return Product{}, err
	}

	now := s.clock()
	product := Product{
		ID:              s.newID(),
		Name:            name,
		Slug:            slug,
		Description:     strings.TrimSpace(cmd.Description),
		Author:          strings.TrimSpace(cmd.Author),
		AuthorBio:       strings.TrimSpace(cmd.AuthorBio),
		Publisher:       strings.TrimSpace(cmd.Publisher),
		SeriesTitle:     strings.TrimSpace(cmd.SeriesTitle),
		VolumeNumber:    cmd.VolumeNumber,
		Category:        strings.TrimSpace(cmd.Category),
		Subcategory:     strings.TrimSpace(cmd.Subcategory),
		AgeRating:       strings.TrimSpace(cmd.AgeRating),
		PublicationDate: cmd.PublicationDate,
		IsPromotion:     cmd.IsPromotion,
		IsNewArrival:    cmd.IsNewArrival,
		IsPopular:       cmd.IsPopular,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	product.Variants = s.buildVariants(cmd.Variants, nil, cmd.Uploads)
	product.EditorialStatus = ResolveEditorialStatus(cmd.Status, "")
	product.StockStatus = ComputeStockStatus(product.Variants)

	saved, err := s.products.Insert(ctx, product)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}

	actor := strings.TrimSpace(cmd.ActorID)
	s.recordProductAudit(ctx, "catalog.product.create", saved, actor, now, nil)
	s.publishEvent(ctx, CatalogEvent{Action: CatalogEventCreated, ProductID: saved.ID, Slug: saved.Slug, ActorID: actor})
	return saved, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	if s.products == nil {
		return Product{}, ErrCatalogRepositoryMissing
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Product{}, fmt.Errorf("%w: product name cannot be blank", ErrCatalogInvalidInput)
		}
		product.Name = name
	}
	if cmd.Description != nil {
		product.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.Author != nil {
		product.Author = strings.TrimSpace(*cmd.Author)
	}
	if cmd.AuthorBio != nil {
		product.AuthorBio = strings.TrimSpace(*cmd.AuthorBio)
	}
	if cmd.Publisher != nil {
		product.Publisher = strings.TrimSpace(*cmd.Publisher)
	}
	if cmd.SeriesTitle != nil {
		product.SeriesTitle = strings.TrimSpace(*cmd.SeriesTitle)
	}
	if cmd.VolumeNumber != nil {
		product.VolumeNumber = *cmd.VolumeNumber
	}
	if cmd.Category != nil {
		product.Category = strings.TrimSpace(*cmd.Category)
	}
	if cmd.Subcategory != nil {
		product.Subcategory = strings.TrimSpace(*cmd.Subcategory)
	}
	if cmd.AgeRating != nil {
		product.AgeRating = strings.TrimSpace(*cmd.AgeRating)
	}
	if cmd.PublicationDate != nil {
		product.PublicationDate = cmd.PublicationDate
	}

	switch {
	case cmd.Slug != nil:
		slug := strings.TrimSpace(*cmd.Slug)
		if slug == "" {
			return Product{}, fmt.Errorf("%w: product slug cannot be blank", ErrCatalogInvalidInput)
		}
		product.Slug = slug
	case cmd.Name != nil || cmd.VolumeNumber != nil:
		product.Slug = GenerateSlug(product.Name, product.VolumeNumber)
	}
	if err := s.ensureSlugFree(ctx, product.Slug, product.ID); err != nil {
		return Product{}, err
	}

	if cmd.Variants != nil {
		product.Variants = s.buildVariants(cmd.Variants, product.Variants, cmd.Uploads)
	}
	product.EditorialStatus = ResolveEditorialStatus(cmd.Status, product.EditorialStatus)
	product.StockStatus = ComputeStockStatus(product.Variants)
	product.UpdatedAt = s.clock()

	saved, err := s.products.Update(ctx, product)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}

	actor := strings.TrimSpace(cmd.ActorID)
	s.recordProductAudit(ctx, "catalog.product.update", saved, actor, saved.UpdatedAt, nil)
	s.publishEvent(ctx, CatalogEvent{Action: CatalogEventUpdated, ProductID: saved.ID, Slug: saved.Slug, ActorID: actor})
	return saved, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error {
	if s.products == nil {
		return ErrCatalogRepositoryMissing
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return s.translateRepoError(err)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		if isRepositoryNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}

	actor := strings.TrimSpace(cmd.ActorID)
	s.recordProductAudit(ctx, "catalog.product.delete", product, actor, s.clock(), map[string]any{"deleted": true})
	s.publishEvent(ctx, CatalogEvent{Action: CatalogEventDeleted, ProductID: product.ID, Slug: product.Slug, ActorID: actor})
	return nil
}

func (s *catalogService) SetFeaturedFlags(ctx context.Context, cmd FeaturedFlagsCommand) (Product, error) {
	if s.products == nil {
		return Product{}, ErrCatalogRepositoryMissing
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if cmd.IsPromotion == nil && cmd.IsNewArrival == nil && cmd.IsPopular == nil {
		return Product{}, fmt.Errorf("%w: at least one featured flag is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}

	diff := map[string]AuditLogDiff{}
	if cmd.IsPromotion != nil && product.IsPromotion != *cmd.IsPromotion {
		diff["isPromotion"] = AuditLogDiff{Before: product.IsPromotion, After: *cmd.IsPromotion}
		product.IsPromotion = *cmd.IsPromotion
	}
	if cmd.IsNewArrival != nil && product.IsNewArrival != *cmd.IsNewArrival {
		diff["isNewArrival"] = AuditLogDiff{Before: product.IsNewArrival, After: *cmd.IsNewArrival}
		product.IsNewArrival = *cmd.IsNewArrival
	}
	if cmd.IsPopular != nil && product.IsPopular != *cmd.IsPopular {
		diff["isPopular"] = AuditLogDiff{Before: product.IsPopular, After: *cmd.IsPopular}
		product.IsPopular = *cmd.IsPopular
	}
	if len(diff) == 0 {
		return product, nil
	}
	product.UpdatedAt = s.clock()

	saved, err := s.products.Update(ctx, product)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}

	actor := strings.TrimSpace(cmd.ActorID)
	if s.audit != nil {
		s.audit.Record(ctx, AuditLogRecord{
			Actor:      actor,
			ActorType:  "admin",
			Action:     "catalog.product.feature",
			TargetRef:  "products/" + saved.ID,
			OccurredAt: saved.UpdatedAt,
			Diff:       diff,
		})
	}
	s.publishEvent(ctx, CatalogEvent{Action: CatalogEventUpdated, ProductID: saved.ID, Slug: saved.Slug, ActorID: actor})
	return saved, nil
}

// buildVariants merges every submitted variant against its stored counterpart,
// matched by id when the client sends one and by position otherwise.
func (s *catalogService) buildVariants(inputs []VariantInput, existing []ProductVariant, uploads map[int]UploadedVariantAssets) []ProductVariant {
	byID := make(map[string]*ProductVariant, len(existing))
	for i := range existing {
		byID[existing[i].ID] = &existing[i]
	}

	used := make(map[string]bool, len(inputs))
	variants := make([]ProductVariant, 0, len(inputs))
	for i, input := range inputs {
		var current *ProductVariant
		if input.ID != nil && strings.TrimSpace(*input.ID) != "" {
			current = byID[strings.TrimSpace(*input.ID)]
		} else if i < len(existing) {
			current = &existing[i]
		}

		merged := MergeVariant(input, current, uploads[i])
		if merged.ID == "" {
			merged.ID = s.variantID(merged.Format, used)
		}
		used[merged.ID] = true
		variants = append(variants, merged)
	}
	return variants
}

// variantID derives a stable identifier from the variant format, falling back
// to a fresh id when the format is empty or already taken.
func (s *catalogService) variantID(format string, used map[string]bool) string {
	base := GenerateSlug(format, 0)
	if base == "" {
		return strings.ToLower(s.newID())
	}
	if !used[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s.%d", base, n)
		if !used[candidate] {
			return candidate
		}
	}
}

func (s *catalogService) ensureSlugFree(ctx context.Context, slug, selfID string) error {
	other, err := s.products.FindBySlug(ctx, slug)
	if err != nil {
		if isRepositoryNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}
	if other.ID == selfID {
		return nil
	}
	return fmt.Errorf("%w: slug %s already in use", ErrCatalogConflict, slug)
}

func (s *catalogService) recordProductAudit(ctx context.Context, action string, product Product, actorID string, occurredAt time.Time, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:      actorID,
		ActorType:  "admin",
		Action:     action,
		TargetRef:  "products/" + product.ID,
		OccurredAt: occurredAt,
		Metadata:   metadata,
	})
}

// publishEvent is best effort. Catalog mutations must not fail because the
// downstream topic is unavailable.
func (s *catalogService) publishEvent(ctx context.Context, event CatalogEvent) {
	if s.events == nil {
		return
	}
	_ = s.events.PublishCatalogEvent(ctx, event)
}

func (s *catalogService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrCatalogNotFound, err.Error())
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrCatalogConflict, err.Error())
		}
	}
	return err
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func expandProducts(products []Product) []SellableRow {
	rows := make([]SellableRow, 0, len(products))
	for _, product := range products {
		rows = append(rows, ExpandProduct(product)...)
	}
	return rows
}

func derefTrimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
