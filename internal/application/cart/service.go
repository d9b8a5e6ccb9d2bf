package cart

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/nativebites/checkout/internal/domain/cart"
	domcatalog "github.com/nativebites/checkout/internal/domain/catalog"
	"github.com/nativebites/checkout/internal/observability"
	"github.com/nativebites/checkout/internal/observability/logctx"
)

var (
	ErrNotFound       = domain.ErrNotFound
	ErrUnknownProduct = domcatalog.ErrNotFound
)

// Service covers the user-facing cart surface. Edits are last-writer-wins per
// user; the checkout coordinator only ever calls the store's dedupe-guarded
// clear, never this service.
type Service struct {
	carts   domain.Repository
	catalog domcatalog.Reader
	log     observability.Logger
}

func NewService(carts domain.Repository, catalog domcatalog.Reader, tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		carts:   carts,
		catalog: catalog,
		log:     tel.Logger().With(observability.F("service", "cart-service")),
	}
}

func (s *Service) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, errors.New("cart: user id is required")
	}
	return s.carts.Get(ctx, userID)
}

// AddItem puts the product in the cart, overwriting any existing quantity.
// The product must exist in the catalog.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("user_id", userID),
		observability.F("product_id", productID),
	)

	if userID == "" {
		return nil, errors.New("cart: user id is required")
	}
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := c.SetLine(productID, quantity); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("cart: save: %w", err)
	}

	logger.Info("cart_item_set", observability.F("quantity", quantity))
	return c, nil
}

func (s *Service) UpdateItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if userID == "" {
		return nil, errors.New("cart: user id is required")
	}

	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := c.UpdateLine(productID, quantity); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("cart: save: %w", err)
	}
	return c, nil
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, errors.New("cart: user id is required")
	}

	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.RemoveLine(productID)
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("cart: save: %w", err)
	}
	return c, nil
}
