package repositories

import (
	"context"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Categories() CategoryRepository
	Carts() CartRepository
	Orders() OrderRepository
	Users() UserRepository
	Banners() BannerRepository
	StaticPages() StaticPageRepository
	AuditLogs() AuditLogRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository persists product documents with their embedded variants.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) (domain.Product, error)
	Update(ctx context.Context, product domain.Product) (domain.Product, error)
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindBySlug(ctx context.Context, slug string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	Count(ctx context.Context) (int64, error)
}

// ProductListFilter narrows product listings. Zero values mean no constraint.
type ProductListFilter struct {
	Category    string
	Subcategory string
	Featured    ProductFeaturedFilter
	Pagination  domain.Pagination
}

// ProductFeaturedFilter selects one curated flag to filter on.
type ProductFeaturedFilter string

const (
	// FeaturedNone applies no featured-flag constraint.
	FeaturedNone ProductFeaturedFilter = ""
	// FeaturedPromotion keeps products flagged isPromotion.
	FeaturedPromotion ProductFeaturedFilter = "isPromotion"
	// FeaturedNewArrival keeps products flagged isNewArrival.
	FeaturedNewArrival ProductFeaturedFilter = "isNewArrival"
	// FeaturedPopular keeps products flagged isPopular.
	FeaturedPopular ProductFeaturedFilter = "isPopular"
)

// CategoryRepository stores browse categories with embedded subcategories.
type CategoryRepository interface {
	Insert(ctx context.Context, category domain.Category) (domain.Category, error)
	Update(ctx context.Context, category domain.Category) (domain.Category, error)
	Delete(ctx context.Context, categoryID string) error
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	FindBySlug(ctx context.Context, slug string) (domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
}

// CartRepository owns per-user cart persistence. The cart document id is the
// user id.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	DeleteCart(ctx context.Context, userID string) error
}

// OrderRepository persists orders and provides query helpers for users and admins.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	Update(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	Count(ctx context.Context) (int64, error)
}

// OrderListFilter narrows order listings. Zero values mean no constraint.
type OrderListFilter struct {
	UserID     string
	PaidOnly   bool
	PaidAfter  *time.Time
	PaidBefore *time.Time
	Pagination domain.Pagination
}

// UserRepository stores user profile projections keyed by Firebase uid.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
	Upsert(ctx context.Context, user domain.User) (domain.User, error)
	List(ctx context.Context, filter UserListFilter) (domain.CursorPage[domain.User], error)
	Count(ctx context.Context) (int64, error)
}

// UserListFilter narrows user listings.
type UserListFilter struct {
	Role       string
	Pagination domain.Pagination
}

// BannerRepository stores CMS hero banners.
type BannerRepository interface {
	Insert(ctx context.Context, banner domain.Banner) (domain.Banner, error)
	Update(ctx context.Context, banner domain.Banner) (domain.Banner, error)
	Delete(ctx context.Context, bannerID string) error
	FindByID(ctx context.Context, bannerID string) (domain.Banner, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Banner, error)
}

// StaticPageRepository stores CMS long-form pages keyed by slug.
type StaticPageRepository interface {
	Upsert(ctx context.Context, page domain.StaticPage) (domain.StaticPage, error)
	Delete(ctx context.Context, pageID string) error
	FindByID(ctx context.Context, pageID string) (domain.StaticPage, error)
	FindBySlug(ctx context.Context, slug string) (domain.StaticPage, error)
	List(ctx context.Context, includeUnpublished bool) ([]domain.StaticPage, error)
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// AuditLogFilter narrows audit trail listings.
type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Ping(ctx context.Context) error
}
