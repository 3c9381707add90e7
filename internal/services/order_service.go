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
	// ErrOrderInvalidInput indicates the caller supplied invalid order data.
	ErrOrderInvalidInput = errors.New("order service: invalid input")
	// ErrOrderNotFound indicates the requested order does not exist.
	ErrOrderNotFound = errors.New("order service: not found")
	// ErrOrderForbidden indicates the requester may not access the order.
	ErrOrderForbidden = errors.New("order service: forbidden")
	// ErrOrderConflict indicates the order state transition is not allowed.
	ErrOrderConflict = errors.New("order service: conflict")
	// ErrOrderUnavailable indicates the order service is missing dependencies.
	ErrOrderUnavailable = errors.New("order service: unavailable")
)

// OrderServiceDeps wires the repositories backing order operations.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Audit       AuditLogService
	Clock       func() time.Time
	IDGenerator func() string
}

type orderService struct {
	orders   repositories.OrderRepository
	carts    repositories.CartRepository
	products repositories.ProductRepository
	audit    AuditLogService
	now      func() time.Time
	newID    func() string
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &orderService{
		orders:   deps.Orders,
		carts:    deps.Carts,
		products: deps.Products,
		audit:    deps.Audit,
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
	}, nil
}

// CreateFromCart turns the user's cart into an order priced at current
// catalog values, then clears the cart. Lines whose variant disappeared or
// whose stock ran out fail the whole order.
func (s *orderService) CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		if isRepositoryNotFound(err) {
			return Order{}, fmt.Errorf("%w: cart is empty", ErrOrderInvalidInput)
		}
		return Order{}, err
	}
	if len(cart.Items) == 0 {
		return Order{}, fmt.Errorf("%w: cart is empty", ErrOrderInvalidInput)
	}

	now := s.now()
	items := make([]OrderItem, 0, len(cart.Items))
	total := 0.0
	touched := map[string]Product{}
	for _, line := range cart.Items {
		product, ok := touched[line.ProductID]
		if !ok {
			product, err = s.products.FindByID(ctx, line.ProductID)
			if err != nil {
				if isRepositoryNotFound(err) {
					return Order{}, fmt.Errorf("%w: product %s no longer exists", ErrOrderConflict, line.ProductID)
				}
				return Order{}, err
			}
		}

		idx := findVariantIndex(product.Variants, line.VariantID)
		if idx < 0 {
			return Order{}, fmt.Errorf("%w: variant %s no longer exists", ErrOrderConflict, line.VariantID)
		}
		variant := product.Variants[idx]
		if variant.CountInStock < line.Quantity {
			return Order{}, fmt.Errorf("%w: insufficient stock for %s-%s", ErrOrderConflict, line.ProductID, line.VariantID)
		}

		product.Variants[idx].CountInStock -= line.Quantity
		touched[line.ProductID] = product

		items = append(items, OrderItem{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Name:      product.Name,
			Format:    variant.Format,
			Quantity:  line.Quantity,
			UnitPrice: variant.Price,
		})
		total += float64(line.Quantity) * variant.Price
	}

	orderID := s.newID()
	order := Order{
		ID:        orderID,
		Number:    orderNumber(orderID),
		UserID:    uid,
		Items:     items,
		Total:     total,
		CreatedAt: now,
		UpdatedAt: now,
	}

	saved, err := s.orders.Insert(ctx, order)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	// Reserve stock and drop the cart. Both follow the order so a write
	// failure never produces a phantom order.
	for _, product := range touched {
		product.StockStatus = ComputeStockStatus(product.Variants)
		product.UpdatedAt = now
		if _, err := s.products.Update(ctx, product); err != nil {
			return Order{}, err
		}
	}
	if err := s.carts.DeleteCart(ctx, uid); err != nil && !isRepositoryNotFound(err) {
		return Order{}, err
	}

	return saved, nil
}

// GetOrder fetches an order, restricting access to its owner or an admin.
func (s *orderService) GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if !cmd.IsAdmin && order.UserID != strings.TrimSpace(cmd.RequesterID) {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, orderID)
	}
	return order, nil
}

func (s *orderService) ListUserOrders(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[Order], error) {
	if s == nil || s.orders == nil {
		return domain.CursorPage[Order]{}, ErrOrderUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID: uid,
		Pagination: domain.Pagination{
			PageSize:  pager.PageSize,
			PageToken: strings.TrimSpace(pager.PageToken),
		},
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if s == nil || s.orders == nil {
		return domain.CursorPage[Order]{}, ErrOrderUnavailable
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:   derefTrimmed(filter.UserID),
		PaidOnly: filter.PaidOnly,
		Pagination: domain.Pagination{
			PageSize:  filter.PageSize,
			PageToken: strings.TrimSpace(filter.PageToken),
		},
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

// MarkPaid records a successful payment reported by the payment collaborator.
func (s *orderService) MarkPaid(ctx context.Context, cmd OrderStateCommand) (Order, error) {
	return s.transition(ctx, cmd, "orders.mark_paid", func(order *Order, now time.Time) error {
		if order.IsPaid {
			return fmt.Errorf("%w: order %s already paid", ErrOrderConflict, order.ID)
		}
		order.IsPaid = true
		order.PaidAt = &now
		return nil
	})
}

// MarkDelivered records fulfilment of a paid order.
func (s *orderService) MarkDelivered(ctx context.Context, cmd OrderStateCommand) (Order, error) {
	return s.transition(ctx, cmd, "orders.mark_delivered", func(order *Order, now time.Time) error {
		if !order.IsPaid {
			return fmt.Errorf("%w: order %s is not paid", ErrOrderConflict, order.ID)
		}
		if order.IsDelivered {
			return fmt.Errorf("%w: order %s already delivered", ErrOrderConflict, order.ID)
		}
		order.IsDelivered = true
		order.DeliveredAt = &now
		return nil
	})
}

func (s *orderService) transition(ctx context.Context, cmd OrderStateCommand, action string, apply func(*Order, time.Time) error) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	now := s.now()
	if err := apply(&order, now); err != nil {
		return Order{}, err
	}
	order.UpdatedAt = now

	saved, err := s.orders.Update(ctx, order)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	if s.audit != nil {
		s.audit.Record(ctx, AuditLogRecord{
			Actor:      strings.TrimSpace(cmd.ActorID),
			ActorType:  "admin",
			Action:     action,
			TargetRef:  "orders/" + saved.ID,
			OccurredAt: now,
		})
	}
	return saved, nil
}

func (s *orderService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrOrderNotFound, err.Error())
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrOrderConflict, err.Error())
		}
	}
	return err
}

func findVariantIndex(variants []domain.ProductVariant, variantID string) int {
	for i, variant := range variants {
		if variant.ID == variantID {
			return i
		}
	}
	return -1
}

// orderNumber derives the human-facing invoice number from the order id.
func orderNumber(orderID string) string {
	suffix := orderID
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return "ORD-" + strings.ToUpper(suffix)
}
