package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
	pfirestore "github.com/inkwell-books/api/internal/platform/firestore"
	"github.com/inkwell-books/api/internal/repositories"
)

const cartsCollection = "carts"

// CartRepository persists per-user carts. The document id is the user id, so
// each user owns at most one cart.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection, nil, nil)
	return &CartRepository{base: base}, nil
}

// GetCart loads the cart for the given user.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	return decodeCartDocument(doc.ID, doc.Data), nil
}

// UpsertCart writes the full cart state under the user's document.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		uid = strings.TrimSpace(cart.ID)
	}
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	doc := encodeCartDocument(cart)
	if _, err := r.base.Set(ctx, uid, doc); err != nil {
		return domain.Cart{}, err
	}
	return decodeCartDocument(uid, doc), nil
}

// DeleteCart removes the user's cart entirely.
func (r *CartRepository) DeleteCart(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}
	return r.base.Delete(ctx, uid)
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID    string    `firestore:"productId"`
	VariantID    string    `firestore:"variantId"`
	Quantity     int       `firestore:"quantity"`
	Name         string    `firestore:"name,omitempty"`
	Format       string    `firestore:"format,omitempty"`
	UnitPrice    float64   `firestore:"unitPrice"`
	Image        string    `firestore:"image,omitempty"`
	CountInStock int       `firestore:"countInStock"`
	AddedAt      time.Time `firestore:"addedAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func encodeCartDocument(cart domain.Cart) cartDocument {
	doc := cartDocument{
		Items:     make([]cartItemDocument, 0, len(cart.Items)),
		CreatedAt: cart.CreatedAt.UTC(),
		UpdatedAt: cart.UpdatedAt.UTC(),
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			Quantity:     item.Quantity,
			Name:         item.Name,
			Format:       item.Format,
			UnitPrice:    item.UnitPrice,
			Image:        item.Image,
			CountInStock: item.CountInStock,
			AddedAt:      item.AddedAt.UTC(),
			UpdatedAt:    item.UpdatedAt.UTC(),
		})
	}
	return doc
}

func decodeCartDocument(userID string, doc cartDocument) domain.Cart {
	cart := domain.Cart{
		ID:        userID,
		UserID:    userID,
		Items:     make([]domain.CartItem, 0, len(doc.Items)),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			Quantity:     item.Quantity,
			Name:         item.Name,
			Format:       item.Format,
			UnitPrice:    item.UnitPrice,
			Image:        item.Image,
			CountInStock: item.CountInStock,
			AddedAt:      item.AddedAt,
			UpdatedAt:    item.UpdatedAt,
		})
	}
	return cart
}

var _ repositories.CartRepository = (*CartRepository)(nil)
