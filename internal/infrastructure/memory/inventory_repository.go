package memory

import (
	"context"
	"sync"

	domain "github.com/nativebites/checkout/internal/domain/inventory"
)

// InventoryRepository is the in-memory inventory ledger. Decrements are
// deduplicated by key so a replayed fulfillment step cannot subtract twice.
type InventoryRepository struct {
	mu      sync.RWMutex
	items   map[string]*domain.Item
	applied map[string]struct{}
}

func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{
		items:   make(map[string]*domain.Item),
		applied: make(map[string]struct{}),
	}
}

func (r *InventoryRepository) Get(ctx context.Context, productID string) (*domain.Item, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneItem(item), nil
}

func (r *InventoryRepository) Decrement(ctx context.Context, productID string, quantity int, dedupeKey string) error {
	_ = ctx
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if dedupeKey != "" {
		if _, done := r.applied[dedupeKey]; done {
			return nil
		}
	}

	item, ok := r.items[productID]
	if !ok {
		return domain.ErrNotFound
	}
	if err := item.Deduct(quantity); err != nil {
		return err
	}

	if dedupeKey != "" {
		r.applied[dedupeKey] = struct{}{}
	}
	return nil
}

func (r *InventoryRepository) Restock(ctx context.Context, productID string, quantity int) error {
	_ = ctx
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[productID]
	if !ok {
		created, err := domain.NewItem(productID, quantity)
		if err != nil {
			return err
		}
		r.items[productID] = created
		return nil
	}
	return item.Restock(quantity)
}

func cloneItem(item *domain.Item) *domain.Item {
	if item == nil {
		return nil
	}
	clone := *item
	return &clone
}
