package cart

import "context"

type Repository interface {
	// Get returns the user's cart, creating an empty one on first access.
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, cart *Cart) error
	// Clear atomically empties the cart and records dedupeKey as applied.
	// Replaying an applied dedupeKey is a successful no-op.
	Clear(ctx context.Context, userID string, dedupeKey string) error
}
