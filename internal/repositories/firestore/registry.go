package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/iterator"

	pfirestore "github.com/inkwell-books/api/internal/platform/firestore"
	"github.com/inkwell-books/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry interface consumed by the DI container.
type Registry struct {
	provider *pfirestore.Provider

	products    *ProductRepository
	categories  *CategoryRepository
	carts       *CartRepository
	orders      *OrderRepository
	users       *UserRepository
	banners     *BannerRepository
	staticPages *StaticPageRepository
	auditLogs   *AuditLogRepository
	health      repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository against the shared Firestore provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	reg := &Registry{provider: provider}

	var err error
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: products: %w", err)
	}
	if reg.categories, err = NewCategoryRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: categories: %w", err)
	}
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: carts: %w", err)
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: orders: %w", err)
	}
	if reg.users, err = NewUserRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: users: %w", err)
	}
	if reg.banners, err = NewBannerRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: banners: %w", err)
	}
	if reg.staticPages, err = NewStaticPageRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: static pages: %w", err)
	}
	if reg.auditLogs, err = NewAuditLogRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: audit logs: %w", err)
	}

	reg.health, err = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				client, err := provider.Client(ctx)
				if err != nil {
					return err
				}
				iter := client.Collections(ctx)
				_, err = iter.Next()
				if err != nil && !errors.Is(err, iterator.Done) {
					return err
				}
				return nil
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("registry: health: %w", err)
	}

	return reg, nil
}

func (r *Registry) Products() repositories.ProductRepository       { return r.products }
func (r *Registry) Categories() repositories.CategoryRepository    { return r.categories }
func (r *Registry) Carts() repositories.CartRepository             { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository           { return r.orders }
func (r *Registry) Users() repositories.UserRepository             { return r.users }
func (r *Registry) Banners() repositories.BannerRepository         { return r.banners }
func (r *Registry) StaticPages() repositories.StaticPageRepository { return r.staticPages }
func (r *Registry) AuditLogs() repositories.AuditLogRepository     { return r.auditLogs }
func (r *Registry) Health() repositories.HealthRepository          { return r.health }

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}
