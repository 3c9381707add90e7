package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/inkwell-books/api/internal/platform/config"
	"github.com/inkwell-books/api/internal/repositories"
	"github.com/inkwell-books/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled in NewContainer.
type Services struct {
	Catalog    services.CatalogService
	Categories services.CategoryService
	Cart       services.CartService
	Orders     services.OrderService
	Users      services.UserService
	Content    services.ContentService
	Dashboard  services.DashboardService
	Audit      services.AuditLogService
}

// ContainerDeps carries optional collaborators injected from main.
type ContainerDeps struct {
	// Events publishes catalog change notifications. Nil disables publishing.
	Events services.CatalogEventPublisher
	// Logger backs the audit writer's failure reporting. Nil falls back to
	// the audit service's no-op logger.
	Logger *zap.Logger
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring
// provides the Firestore registry, while tests can supply in-memory ones.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps ContainerDeps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, deps ContainerDeps) (Services, error) {
	var svc Services

	if auditRepo := reg.AuditLogs(); auditRepo != nil {
		var auditLogger services.AuditLogger
		if deps.Logger != nil {
			auditLogger = zapAuditLogger{sugar: deps.Logger.Sugar()}
		}
		auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
			Repository: auditRepo,
			Clock:      time.Now,
			Logger:     auditLogger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build audit log service: %w", err)
		}
		svc.Audit = auditSvc
	}

	events := deps.Events
	if !cfg.Features.EnableCatalogEvents {
		events = nil
	}

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:   reg.Products(),
		Categories: reg.Categories(),
		Audit:      svc.Audit,
		Events:     events,
		Clock:      time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	categorySvc, err := services.NewCategoryService(services.CategoryServiceDeps{
		Categories: reg.Categories(),
		Audit:      svc.Audit,
		Clock:      time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build category service: %w", err)
	}
	svc.Categories = categorySvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:    reg.Carts(),
		Products: reg.Products(),
		Clock:    time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Carts:    reg.Carts(),
		Products: reg.Products(),
		Audit:    svc.Audit,
		Clock:    time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users: reg.Users(),
		Audit: svc.Audit,
		Clock: time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	contentSvc, err := services.NewContentService(services.ContentServiceDeps{
		Banners: reg.Banners(),
		Pages:   reg.StaticPages(),
		Audit:   svc.Audit,
		Clock:   time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build content service: %w", err)
	}
	svc.Content = contentSvc

	dashboardSvc, err := services.NewDashboardService(services.DashboardServiceDeps{
		Products: reg.Products(),
		Users:    reg.Users(),
		Orders:   reg.Orders(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build dashboard service: %w", err)
	}
	svc.Dashboard = dashboardSvc

	return svc, nil
}

type zapAuditLogger struct {
	sugar *zap.SugaredLogger
}

func (l zapAuditLogger) Warnf(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}
