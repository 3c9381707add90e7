package domain

import (
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// EditorialStatus is the merchandising state an admin assigns to a product.
type EditorialStatus string

const (
	// EditorialStatusActive marks a product as available on the storefront.
	EditorialStatusActive EditorialStatus = "active"
	// EditorialStatusInactive hides a product from public listings.
	EditorialStatusInactive EditorialStatus = "inactive"
	// EditorialStatusComingSoon advertises a product before its release.
	EditorialStatusComingSoon EditorialStatus = "coming_soon"
)

// StockStatus is derived from variant inventory and never set directly.
type StockStatus string

const (
	// StockStatusInStock indicates at least one variant has inventory.
	StockStatusInStock StockStatus = "in_stock"
	// StockStatusOutOfStock indicates every variant reports zero inventory.
	StockStatusOutOfStock StockStatus = "out_of_stock"
)

// ProductStatus is the effective status shown to clients, the merge of the
// editorial state and the computed stock state.
type ProductStatus string

const (
	// ProductStatusActive is the default visible state.
	ProductStatusActive ProductStatus = "active"
	// ProductStatusInactive mirrors an inactive editorial state.
	ProductStatusInactive ProductStatus = "inactive"
	// ProductStatusComingSoon mirrors a coming-soon editorial state.
	ProductStatusComingSoon ProductStatus = "coming_soon"
	// ProductStatusOutOfStock overrides any editorial state when no
	// variant has inventory.
	ProductStatusOutOfStock ProductStatus = "out_of_stock"
)

// DefaultVariantFormat names the synthetic variant emitted for products
// stored without any variants.
const DefaultVariantFormat = "Standard"

// ProductVariant is a sellable edition of a product (format, price, stock,
// print metadata, imagery). Variants are embedded in their parent product and
// ordered; index identity matters during partial updates.
type ProductVariant struct {
	ID           string
	Format       string
	Price        float64
	CountInStock int
	ISBN         string
	TrimSize     string
	PageCount    int
	MainImage    string
	AlbumImages  []string
}

// Product is the catalog aggregate. Descriptive fields live on the parent
// while purchasable attributes live on the embedded variants.
type Product struct {
	ID              string
	Name            string
	Slug            string
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
	EditorialStatus EditorialStatus
	StockStatus     StockStatus
	Variants        []ProductVariant
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TotalStock sums inventory across all variants.
func (p Product) TotalStock() int {
	total := 0
	for _, v := range p.Variants {
		total += v.CountInStock
	}
	return total
}

// RowID identifies a sellable row by its parent product and variant. It is a
// real composite key; the dashed rendering exists only at the API edge.
type RowID struct {
	ProductID string
	VariantID string
}

// String renders the composite key in its wire form.
func (id RowID) String() string {
	if id.VariantID == "" {
		return id.ProductID
	}
	return id.ProductID + "-" + id.VariantID
}

// ParseRowID splits a wire-form row identifier on its first dash. Product ids
// are dash-free ULIDs while variant ids are format slugs that may themselves
// contain dashes, so everything after the first dash belongs to the variant.
// Identifiers without a dash are treated as bare product ids.
func ParseRowID(raw string) RowID {
	raw = strings.TrimSpace(raw)
	idx := strings.Index(raw, "-")
	if idx <= 0 || idx == len(raw)-1 {
		return RowID{ProductID: raw}
	}
	return RowID{ProductID: raw[:idx], VariantID: raw[idx+1:]}
}

// SellableRow is the flattened listing unit: one row per variant carrying the
// parent's descriptive fields alongside the variant's purchasable ones.
type SellableRow struct {
	ID              RowID
	ProductID       string
	VariantID       string
	Name            string
	Slug            string
	Author          string
	Publisher       string
	SeriesTitle     string
	VolumeNumber    int
	Category        string
	Subcategory     string
	Format          string
	Price           float64
	CountInStock    int
	ISBN            string
	TrimSize        string
	PageCount       int
	MainImage       string
	AlbumImages     []string
	VariantsCount   int
	IsPromotion     bool
	IsNewArrival    bool
	IsPopular       bool
	Status          ProductStatus
	PublicationDate *time.Time
	CreatedAt       time.Time
}

// VariantSummary is the per-variant slice of a display group.
type VariantSummary struct {
	VariantID    string
	Format       string
	Price        float64
	CountInStock int
	MainImage    string
}

// PriceRange spans the positive variant prices within a group.
type PriceRange struct {
	Min float64
	Max float64
}

// DisplayGroup is the storefront card: sellable rows re-collected under their
// parent product with a representative image and a price range.
type DisplayGroup struct {
	Key          string
	ProductID    string
	Name         string
	Slug         string
	Author       string
	Category     string
	Subcategory  string
	Image        string
	PriceRange   PriceRange
	Variants     []VariantSummary
	Status       ProductStatus
	IsPromotion  bool
	IsNewArrival bool
	IsPopular    bool
}

// Subcategory is an embedded child of a category.
type Subcategory struct {
	Name string
	Slug string
}

// Category groups products for browsing.
type Category struct {
	ID            string
	Name          string
	Slug          string
	Subcategories []Subcategory
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CartItem is a single (product, variant) entry in a user's cart together
// with a denormalised product snapshot for rendering.
type CartItem struct {
	ProductID    string
	VariantID    string
	Quantity     int
	Name         string
	Format       string
	UnitPrice    float64
	Image        string
	CountInStock int
	AddedAt      time.Time
	UpdatedAt    time.Time
}

// Cart aggregates the mutable shopping cart state for a user. The cart
// document id is the user id.
type Cart struct {
	ID        string
	UserID    string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subtotal sums quantity times unit price across items.
func (c Cart) Subtotal() float64 {
	total := 0.0
	for _, item := range c.Items {
		total += float64(item.Quantity) * item.UnitPrice
	}
	return total
}

// OrderItem is a purchased line captured at checkout time.
type OrderItem struct {
	ProductID string
	VariantID string
	Name      string
	Format    string
	Quantity  int
	UnitPrice float64
}

// Order is a placed order. Payment and fulfilment are driven by external
// collaborators; this record only tracks their outcomes.
type Order struct {
	ID          string
	Number      string
	UserID      string
	Items       []OrderItem
	Total       float64
	IsPaid      bool
	PaidAt      *time.Time
	IsDelivered bool
	DeliveredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserRole enumerates the access levels recognised by the API.
type UserRole string

const (
	// RoleUser is the default storefront customer role.
	RoleUser UserRole = "user"
	// RoleAdmin grants access to the management surface.
	RoleAdmin UserRole = "admin"
)

// User is the profile projection of a Firebase identity. Credentials are
// never stored here.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Role      UserRole
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Banner is a CMS hero banner shown on the storefront home page.
type Banner struct {
	ID              string
	Title           string
	Subtitle        string
	CTAText         string
	CTALink         string
	BackgroundColor string
	TextColor       string
	AnimationType   string
	Order           int
	IsActive        bool
	ImageDesktop    string
	ImageMobile     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StaticPage is CMS-managed long-form content (about, terms, privacy).
type StaticPage struct {
	ID          string
	Slug        string
	Title       string
	Body        string
	IsPublished bool
	UpdatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AuditLogEntry is an immutable record of an admin mutation.
type AuditLogEntry struct {
	ID         string
	Actor      string
	ActorType  string
	Action     string
	TargetRef  string
	Severity   string
	RequestID  string
	Metadata   map[string]any
	OccurredAt time.Time
	CreatedAt  time.Time
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
