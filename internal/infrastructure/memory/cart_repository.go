package memory

import (
	"context"
	"sync"

	domain "github.com/nativebites/checkout/internal/domain/cart"
)

type CartRepository struct {
	mu      sync.RWMutex
	carts   map[string]*domain.Cart
	cleared map[string]struct{}
}

func NewCartRepository() *CartRepository {
	return &CartRepository{
		carts:   make(map[string]*domain.Cart),
		cleared: make(map[string]struct{}),
	}
}

func (r *CartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[userID]
	if !ok {
		c = domain.New(userID)
		r.carts[userID] = c
	}
	return c.Clone(), nil
}

func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	_ = ctx
	if cart == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.carts[cart.UserID] = cart.Clone()
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, userID string, dedupeKey string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if dedupeKey != "" {
		if _, done := r.cleared[dedupeKey]; done {
			return nil
		}
	}

	r.carts[userID] = domain.New(userID)
	if dedupeKey != "" {
		r.cleared[dedupeKey] = struct{}{}
	}
	return nil
}
