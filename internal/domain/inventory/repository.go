package inventory

import "context"

// Ledger holds per-product stock behind atomic conditional operations.
type Ledger interface {
	Get(ctx context.Context, productID string) (*Item, error)
	// Decrement atomically subtracts quantity from the product's stock and
	// records dedupeKey as applied. Replaying an applied dedupeKey is a
	// successful no-op. A decrement that would breach zero fails with
	// ErrInsufficientStock and records nothing.
	Decrement(ctx context.Context, productID string, quantity int, dedupeKey string) error
	Restock(ctx context.Context, productID string, quantity int) error
}
