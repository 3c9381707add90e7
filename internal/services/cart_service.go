package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: cart repository is required")
	errCartProductsRequired   = errors.New("cart service: product repository is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart entry does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartOutOfStock indicates the requested variant has no inventory left.
var ErrCartOutOfStock = errors.New("cart service: out of stock")

// CartServiceDeps wires the repositories backing cart operations.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Clock    func() time.Time
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	now      func() time.Time
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errCartProductsRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

// GetCart loads the user's cart, returning an empty cart when none has been
// persisted yet.
func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		if isRepositoryNotFound(err) {
			return s.emptyCart(uid), nil
		}
		return Cart{}, err
	}
	return cart, nil
}

// AddItem adds quantity to a (product, variant) line, clamping the resulting
// quantity to the variant's available stock.
func (s *cartService) AddItem(ctx context.Context, cmd CartItemCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" || strings.TrimSpace(cmd.ProductID) == "" {
		return Cart{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	row, err := s.resolveRow(ctx, cmd.ProductID, cmd.VariantID)
	if err != nil {
		return Cart{}, err
	}
	if row.CountInStock <= 0 {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartOutOfStock, row.ID.String())
	}

	cart, err := s.loadOrCreate(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	now := s.now()
	idx := findCartItem(cart.Items, row.ProductID, row.VariantID)
	if idx >= 0 {
		item := &cart.Items[idx]
		item.Quantity = clampQuantity(item.Quantity+cmd.Quantity, row.CountInStock)
		refreshCartSnapshot(item, row, now)
	} else {
		item := CartItem{
			ProductID: row.ProductID,
			VariantID: row.VariantID,
			Quantity:  clampQuantity(cmd.Quantity, row.CountInStock),
			AddedAt:   now,
		}
		refreshCartSnapshot(&item, row, now)
		cart.Items = append(cart.Items, item)
	}
	cart.UpdatedAt = now

	return s.carts.UpsertCart(ctx, cart)
}

// SetItemQuantity replaces the quantity of an existing line. A quantity of
// zero removes the line.
func (s *cartService) SetItemQuantity(ctx context.Context, cmd CartItemCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" || strings.TrimSpace(cmd.ProductID) == "" {
		return Cart{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 0 {
		return Cart{}, fmt.Errorf("%w: quantity cannot be negative", ErrCartInvalidInput)
	}
	if cmd.Quantity == 0 {
		return s.RemoveItem(ctx, RemoveCartItemCommand{UserID: uid, ProductID: cmd.ProductID, VariantID: cmd.VariantID})
	}

	row, err := s.resolveRow(ctx, cmd.ProductID, cmd.VariantID)
	if err != nil {
		return Cart{}, err
	}

	cart, err := s.loadOrCreate(ctx, uid)
	if err != nil {
		return Cart{}, err
	}
	idx := findCartItem(cart.Items, row.ProductID, row.VariantID)
	if idx < 0 {
		return Cart{}, fmt.Errorf("%w: cart item %s", ErrCartNotFound, row.ID.String())
	}

	now := s.now()
	item := &cart.Items[idx]
	item.Quantity = clampQuantity(cmd.Quantity, row.CountInStock)
	refreshCartSnapshot(item, row, now)
	cart.UpdatedAt = now

	return s.carts.UpsertCart(ctx, cart)
}

// RemoveItem drops a line from the cart.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" || strings.TrimSpace(cmd.ProductID) == "" {
		return Cart{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}

	cart, err := s.loadOrCreate(ctx, uid)
	if err != nil {
		return Cart{}, err
	}
	idx := findCartItem(cart.Items, strings.TrimSpace(cmd.ProductID), strings.TrimSpace(cmd.VariantID))
	if idx < 0 {
		return Cart{}, fmt.Errorf("%w: cart item %s-%s", ErrCartNotFound, cmd.ProductID, cmd.VariantID)
	}

	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	cart.UpdatedAt = s.now()

	return s.carts.UpsertCart(ctx, cart)
}

// ClearCart removes the cart document entirely.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	if s == nil || s.carts == nil {
		return ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if err := s.carts.DeleteCart(ctx, uid); err != nil && !isRepositoryNotFound(err) {
		return err
	}
	return nil
}

// resolveRow loads the product and locates the requested sellable row. An
// empty variant id is accepted when the product exposes exactly one row.
func (s *cartService) resolveRow(ctx context.Context, productID, variantID string) (SellableRow, error) {
	product, err := s.products.FindByID(ctx, strings.TrimSpace(productID))
	if err != nil {
		if isRepositoryNotFound(err) {
			return SellableRow{}, fmt.Errorf("%w: product %s", ErrCartNotFound, productID)
		}
		return SellableRow{}, err
	}

	rows := ExpandProduct(product)
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		if len(rows) == 1 {
			return rows[0], nil
		}
		return SellableRow{}, fmt.Errorf("%w: variant id is required for multi-variant products", ErrCartInvalidInput)
	}
	for _, row := range rows {
		if row.VariantID == variantID {
			return row, nil
		}
	}
	return SellableRow{}, fmt.Errorf("%w: variant %s", ErrCartNotFound, variantID)
}

func (s *cartService) loadOrCreate(ctx context.Context, userID string) (Cart, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return s.emptyCart(userID), nil
		}
		return Cart{}, err
	}
	return cart, nil
}

func (s *cartService) emptyCart(userID string) Cart {
	now := s.now()
	return Cart{ID: userID, UserID: userID, Items: []CartItem{}, CreatedAt: now, UpdatedAt: now}
}

func refreshCartSnapshot(item *CartItem, row SellableRow, now time.Time) {
	item.Name = row.Name
	item.Format = row.Format
	item.UnitPrice = row.Price
	item.Image = row.MainImage
	item.CountInStock = row.CountInStock
	item.UpdatedAt = now
}

func findCartItem(items []domain.CartItem, productID, variantID string) int {
	for i, item := range items {
		if item.ProductID == productID && item.VariantID == variantID {
			return i
		}
	}
	return -1
}

func clampQuantity(quantity, available int) int {
	if quantity > available {
		return available
	}
	return quantity
}
