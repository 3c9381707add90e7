package services

import (
	"context"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination      = domain.Pagination
	SortOrder       = domain.SortOrder
	Product         = domain.Product
	ProductVariant  = domain.ProductVariant
	ProductStatus   = domain.ProductStatus
	EditorialStatus = domain.EditorialStatus
	StockStatus     = domain.StockStatus
	SellableRow     = domain.SellableRow
	DisplayGroup    = domain.DisplayGroup
	PriceRange      = domain.PriceRange
	RowID           = domain.RowID
	Category        = domain.Category
	Subcategory     = domain.Subcategory
	Cart            = domain.Cart
	CartItem        = domain.CartItem
	Order           = domain.Order
	OrderItem       = domain.OrderItem
	User            = domain.User
	UserRole        = domain.UserRole
	Banner          = domain.Banner
	StaticPage      = domain.StaticPage
	AuditLogEntry   = domain.AuditLogEntry
)

// FeaturedKind selects one of the storefront's curated product shelves.
type FeaturedKind string

const (
	// FeaturedPromotion lists products flagged as promotions.
	FeaturedPromotion FeaturedKind = "promotion"
	// FeaturedNewArrival lists recently added products.
	FeaturedNewArrival FeaturedKind = "new_arrival"
	// FeaturedPopular lists products flagged as popular.
	FeaturedPopular FeaturedKind = "popular"
)

// CatalogService owns product reads and writes, including the variant
// normalization applied on every mutation.
type CatalogService interface {
	ListSellableRows(ctx context.Context, filter ProductListFilter) (domain.CursorPage[SellableRow], error)
	ListByCategorySlug(ctx context.Context, slug string, pager Pagination) (domain.CursorPage[SellableRow], error)
	ListFeatured(ctx context.Context, kind FeaturedKind, pager Pagination) ([]DisplayGroup, error)
	GetProduct(ctx context.Context, idOrSlug string) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error
	SetFeaturedFlags(ctx context.Context, cmd FeaturedFlagsCommand) (Product, error)
}

// CategoryService manages browse categories and their embedded subcategories.
type CategoryService interface {
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (Category, error)
	CreateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	UpdateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	DeleteCategory(ctx context.Context, cmd DeleteCategoryCommand) error
}

// CartService manages per-user cart state, clamping quantities to available
// stock on every mutation.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd CartItemCommand) (Cart, error)
	SetItemQuantity(ctx context.Context, cmd CartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// OrderService creates orders from carts and tracks payment and delivery
// outcomes reported by external collaborators.
type OrderService interface {
	CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error)
	ListUserOrders(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Order], error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	MarkPaid(ctx context.Context, cmd OrderStateCommand) (Order, error)
	MarkDelivered(ctx context.Context, cmd OrderStateCommand) (Order, error)
}

// UserService manages the profile projection of Firebase identities.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (User, error)
	EnsureProfile(ctx context.Context, cmd EnsureProfileCommand) (User, error)
	UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (User, error)
	ListUsers(ctx context.Context, filter UserListFilter) (domain.CursorPage[User], error)
	SetUserActive(ctx context.Context, cmd SetUserActiveCommand) (User, error)
}

// ContentService provides CMS banners and static pages for public and admin
// surfaces.
type ContentService interface {
	ListBanners(ctx context.Context, activeOnly bool) ([]Banner, error)
	GetBanner(ctx context.Context, bannerID string) (Banner, error)
	CreateBanner(ctx context.Context, cmd UpsertBannerCommand) (Banner, error)
	UpdateBanner(ctx context.Context, cmd UpsertBannerCommand) (Banner, error)
	DeleteBanner(ctx context.Context, cmd DeleteBannerCommand) error
	GetPage(ctx context.Context, slug string) (StaticPage, error)
	ListPages(ctx context.Context, includeUnpublished bool) ([]StaticPage, error)
	UpsertPage(ctx context.Context, cmd UpsertStaticPageCommand) (StaticPage, error)
	DeletePage(ctx context.Context, cmd DeleteStaticPageCommand) error
}

// DashboardService aggregates store-wide figures for the admin overview.
type DashboardService interface {
	Summary(ctx context.Context) (DashboardSummary, error)
	MonthlySales(ctx context.Context, year int) ([]MonthlySalesBucket, error)
	RecentPaidOrders(ctx context.Context, limit int) ([]Order, error)
}

// AuditLogService centralizes immutable audit log persistence and retrieval.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// CatalogEventPublisher notifies downstream consumers of catalog changes.
type CatalogEventPublisher interface {
	PublishCatalogEvent(ctx context.Context, event CatalogEvent) error
}

// CatalogEvent describes a product mutation for cache and search refresh.
type CatalogEvent struct {
	Action    string
	ProductID string
	Slug      string
	ActorID   string
}

const (
	// CatalogEventCreated is published after a product is created.
	CatalogEventCreated = "created"
	// CatalogEventUpdated is published after a product is updated.
	CatalogEventUpdated = "updated"
	// CatalogEventDeleted is published after a product is deleted.
	CatalogEventDeleted = "deleted"
)

// Command and DTO definitions ------------------------------------------------

type ProductListFilter struct {
	Category    *string
	Subcategory *string
	Pagination
}

type CreateProductCommand struct {
	Name            string
	Slug            *string
	Description     string
	Author          string
	AuthorBio       string
	Publisher       string
	SeriesTitle     string
	VolumeNumber    int
	Category        string
	Subcategory     string
	AgeRating       string
	PublicationDate *time.Time
	IsPromotion     bool
	IsNewArrival    bool
	IsPopular       bool
	Status          *EditorialStatus
	Variants        []VariantInput
	Uploads         map[int]UploadedVariantAssets
	ActorID         string
}

type UpdateProductCommand struct {
	ProductID       string
	Name            *string
	Slug            *string
	Description     *string
	Author          *string
	AuthorBio       *string
	Publisher       *string
	SeriesTitle     *string
	VolumeNumber    *int
	Category        *string
	Subcategory     *string
	AgeRating       *string
	PublicationDate *time.Time
	Status          *EditorialStatus
	Variants        []VariantInput
	Uploads         map[int]UploadedVariantAssets
	ActorID         string
}

type DeleteProductCommand struct {
	ProductID string
	ActorID   string
}

type FeaturedFlagsCommand struct {
	ProductID    string
	IsPromotion  *bool
	IsNewArrival *bool
	IsPopular    *bool
	ActorID      string
}

type SubcategoryInput struct {
	Name string
	Slug *string
}

type UpsertCategoryCommand struct {
	CategoryID    string
	Name          string
	Slug          *string
	Subcategories []SubcategoryInput
	ActorID       string
}

type DeleteCategoryCommand struct {
	CategoryID string
	ActorID    string
}

type CartItemCommand struct {
	UserID    string
	ProductID string
	VariantID string
	Quantity  int
}

type RemoveCartItemCommand struct {
	UserID    string
	ProductID string
	VariantID string
}

type CreateOrderCommand struct {
	UserID string
}

type GetOrderCommand struct {
	OrderID     string
	RequesterID string
	IsAdmin     bool
}

type OrderListFilter struct {
	UserID   *string
	PaidOnly bool
	Pagination
}

type OrderStateCommand struct {
	OrderID string
	ActorID string
}

type EnsureProfileCommand struct {
	UserID    string
	Email     string
	FirstName string
	LastName  string
}

type UpdateProfileCommand struct {
	UserID    string
	FirstName *string
	LastName  *string
	Phone     *string
}

type UserListFilter struct {
	Role *UserRole
	Pagination
}

type SetUserActiveCommand struct {
	UserID   string
	ActorID  string
	IsActive bool
	Reason   string
}

// BannerUploads carries freshly uploaded banner image URLs.
type BannerUploads struct {
	ImageDesktop string
	ImageMobile  string
}

type UpsertBannerCommand struct {
	Banner  Banner
	Uploads BannerUploads
	ActorID string
}

type DeleteBannerCommand struct {
	BannerID string
	ActorID  string
}

type UpsertStaticPageCommand struct {
	Page    StaticPage
	ActorID string
}

type DeleteStaticPageCommand struct {
	PageID  string
	ActorID string
}

// DashboardSummary reports store-wide totals for the admin overview.
type DashboardSummary struct {
	TotalProducts int64
	TotalUsers    int64
	TotalOrders   int64
	TotalRevenue  float64
}

// MonthlySalesBucket aggregates paid order revenue for one calendar month.
type MonthlySalesBucket struct {
	Month   time.Month
	Orders  int
	Revenue float64
}

// AuditLogRecord defines the payload accepted by the audit writer service.
type AuditLogRecord struct {
	Actor      string
	ActorType  string
	Action     string
	TargetRef  string
	Severity   string
	RequestID  string
	OccurredAt time.Time
	Metadata   map[string]any
	Diff       map[string]AuditLogDiff
}

// AuditLogDiff captures before/after values for tracked fields.
type AuditLogDiff struct {
	Before any
	After  any
}

type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination Pagination
}
