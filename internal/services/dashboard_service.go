package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

const (
	// recentOrderLimit caps the recent-orders widget on the admin overview.
	recentOrderLimit = 5
	// monthlySalesFetchPageSize sizes the paid-order scan pages used to build
	// the monthly revenue series.
	monthlySalesFetchPageSize = 250
)

// ErrDashboardUnavailable indicates the dashboard service is missing dependencies.
var ErrDashboardUnavailable = errors.New("dashboard service: unavailable")

// ErrDashboardInvalidInput indicates the caller supplied invalid input.
var ErrDashboardInvalidInput = errors.New("dashboard service: invalid input")

// DashboardServiceDeps wires the repositories the admin overview aggregates.
type DashboardServiceDeps struct {
	Products repositories.ProductRepository
	Users    repositories.UserRepository
	Orders   repositories.OrderRepository
}

type dashboardService struct {
	products repositories.ProductRepository
	users    repositories.UserRepository
	orders   repositories.OrderRepository
}

// NewDashboardService constructs the dashboard aggregation service.
func NewDashboardService(deps DashboardServiceDeps) (DashboardService, error) {
	if deps.Products == nil || deps.Users == nil || deps.Orders == nil {
		return nil, errors.New("dashboard service: product, user and order repositories are required")
	}
	return &dashboardService{
		products: deps.Products,
		users:    deps.Users,
		orders:   deps.Orders,
	}, nil
}

// Summary reports store-wide totals. Revenue covers paid orders only.
func (s *dashboardService) Summary(ctx context.Context) (DashboardSummary, error) {
	if s == nil || s.orders == nil {
		return DashboardSummary{}, ErrDashboardUnavailable
	}

	summary := DashboardSummary{}
	var err error
	if summary.TotalProducts, err = s.products.Count(ctx); err != nil {
		return DashboardSummary{}, fmt.Errorf("dashboard service: counting products: %w", err)
	}
	if summary.TotalUsers, err = s.users.Count(ctx); err != nil {
		return DashboardSummary{}, fmt.Errorf("dashboard service: counting users: %w", err)
	}
	if summary.TotalOrders, err = s.orders.Count(ctx); err != nil {
		return DashboardSummary{}, fmt.Errorf("dashboard service: counting orders: %w", err)
	}

	err = s.forEachPaidOrder(ctx, nil, nil, func(order Order) {
		summary.TotalRevenue += order.Total
	})
	if err != nil {
		return DashboardSummary{}, err
	}
	return summary, nil
}

// MonthlySales buckets paid-order revenue by calendar month for one year.
func (s *dashboardService) MonthlySales(ctx context.Context, year int) ([]MonthlySalesBucket, error) {
	if s == nil || s.orders == nil {
		return nil, ErrDashboardUnavailable
	}
	if year <= 0 {
		return nil, fmt.Errorf("%w: year is required", ErrDashboardInvalidInput)
	}

	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	buckets := make([]MonthlySalesBucket, 12)
	for i := range buckets {
		buckets[i].Month = time.Month(i + 1)
	}

	err := s.forEachPaidOrder(ctx, &from, &to, func(order Order) {
		if order.PaidAt == nil {
			return
		}
		idx := int(order.PaidAt.UTC().Month()) - 1
		buckets[idx].Orders++
		buckets[idx].Revenue += order.Total
	})
	if err != nil {
		return nil, err
	}
	return buckets, nil
}

// RecentPaidOrders returns the newest paid orders for the overview widget.
func (s *dashboardService) RecentPaidOrders(ctx context.Context, limit int) ([]Order, error) {
	if s == nil || s.orders == nil {
		return nil, ErrDashboardUnavailable
	}
	if limit <= 0 || limit > recentOrderLimit {
		limit = recentOrderLimit
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		PaidOnly:   true,
		Pagination: domain.Pagination{PageSize: limit},
	})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// forEachPaidOrder walks every paid order in the optional paidAt window.
func (s *dashboardService) forEachPaidOrder(ctx context.Context, from, to *time.Time, visit func(Order)) error {
	filter := repositories.OrderListFilter{
		PaidOnly:   true,
		PaidAfter:  from,
		PaidBefore: to,
		Pagination: domain.Pagination{PageSize: monthlySalesFetchPageSize},
	}
	for {
		page, err := s.orders.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("dashboard service: listing paid orders: %w", err)
		}
		for _, order := range page.Items {
			visit(order)
		}
		if page.NextPageToken == "" {
			return nil
		}
		filter.Pagination.PageToken = page.NextPageToken
	}
}
