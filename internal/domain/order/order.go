package order

import (
	"errors"
	"time"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: conflict")
	ErrForbidden              = errors.New("order: not authorized")
	ErrEmptyItems             = errors.New("order: at least one item is required")
	ErrInvalidQuantity        = errors.New("order: quantity must be greater than zero")
	ErrInvalidAmount          = errors.New("order: amount must be zero or greater")
	ErrIntentAlreadyIssued    = errors.New("order: payment intent already issued")
	ErrIntentNotIssued        = errors.New("order: payment intent not issued")
	ErrIntentMismatch         = errors.New("order: confirmation does not reference this order's intent")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusFulfilling Status = "fulfilling"
	StatusFulfilled  Status = "fulfilled"
	StatusFailed     Status = "failed"
)

// Item is a line-item snapshot taken at order creation. Unit prices are minor
// currency units and are never re-read from the live catalog.
type Item struct {
	ProductID string
	Quantity  int
	UnitPrice int64
}

// Amounts are caller-computed totals stored verbatim.
type Amounts struct {
	ItemsTotal int64
	Tax        int64
	Shipping   int64
	GrandTotal int64
}

// Confirmation records the first valid payment confirmation for an order.
type Confirmation struct {
	ExternalID  string
	Status      string
	ConfirmedAt time.Time
	PayerEmail  string
}

// Discrepancy records a line item that could not be fulfilled after payment
// had already been captured.
type Discrepancy struct {
	ProductID string
	Requested int
	Reason    string
}

type Order struct {
	ID               string
	UserID           string
	Items            []Item
	Amounts          Amounts
	Status           Status
	PaymentIntentRef string
	Confirmation     *Confirmation
	Discrepancies    []Discrepancy
	FailureReason    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func New(id, userID string, items []Item, amounts Amounts) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if it.UnitPrice < 0 {
			return nil, ErrInvalidAmount
		}
	}
	if amounts.ItemsTotal < 0 || amounts.Tax < 0 || amounts.Shipping < 0 || amounts.GrandTotal < 0 {
		return nil, ErrInvalidAmount
	}

	now := time.Now().UTC()
	return &Order{
		ID:        id,
		UserID:    userID,
		Items:     append([]Item(nil), items...),
		Amounts:   amounts,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IdempotencyToken identifies this order for side-effect deduplication. The
// order id is unique and stable, so it doubles as the token.
func (o *Order) IdempotencyToken() string { return o.ID }

// AttachIntent records the gateway reference. The reference is set once.
func (o *Order) AttachIntent(ref string) error {
	if o.Status != StatusPending {
		return ErrInvalidStateTransition
	}
	if o.PaymentIntentRef != "" {
		return ErrIntentAlreadyIssued
	}
	o.PaymentIntentRef = ref
	o.touch()
	return nil
}

// IsSettled reports whether the order has already absorbed a confirmation.
func (o *Order) IsSettled() bool {
	switch o.Status {
	case StatusPaid, StatusFulfilling, StatusFulfilled:
		return true
	}
	return false
}

func (o *Order) RecordDiscrepancy(productID string, requested int, reason string) {
	o.Discrepancies = append(o.Discrepancies, Discrepancy{
		ProductID: productID,
		Requested: requested,
		Reason:    reason,
	})
	o.touch()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]Item(nil), o.Items...)
	clone.Discrepancies = append([]Discrepancy(nil), o.Discrepancies...)
	if o.Confirmation != nil {
		c := *o.Confirmation
		clone.Confirmation = &c
	}
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
