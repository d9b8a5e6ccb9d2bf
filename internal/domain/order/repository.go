package order

import "context"

type Repository interface {
	// Insert stores a new order, failing with ErrConflict on a duplicate id.
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// Update overwrites the stored order unconditionally.
	Update(ctx context.Context, order *Order) error
	// UpdateIfStatus overwrites the stored order only when its current status
	// equals expected, failing with ErrConflict otherwise. This is the atomic
	// compare-and-swap that serializes concurrent lifecycle transitions.
	UpdateIfStatus(ctx context.Context, order *Order, expected Status) error
	// UpdateIfIntentUnset overwrites the stored order only when its current
	// status equals expected AND no payment intent ref has been attached yet,
	// failing with ErrConflict otherwise. Attaching an intent does not change
	// the status, so a plain status CAS cannot serialize racing issuers; this
	// write can.
	UpdateIfIntentUnset(ctx context.Context, order *Order, expected Status) error
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
	ListByStatus(ctx context.Context, status Status) ([]*Order, error)
}
