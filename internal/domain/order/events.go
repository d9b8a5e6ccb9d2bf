package order

import "time"

// OrderCreatedEvent is a domain event emitted when a new order is created.
type OrderCreatedEvent struct {
	OrderID    string
	UserID     string
	ItemCount  int
	GrandTotal int64
	OccurredAt time.Time
}

func (OrderCreatedEvent) EventName() string { return "order.created" }

func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		ItemCount:  len(o.Items),
		GrandTotal: o.Amounts.GrandTotal,
		OccurredAt: time.Now().UTC(),
	}
}

// OrderPaidEvent is emitted once per order, by the confirmation that won the
// pending-to-paid transition.
type OrderPaidEvent struct {
	OrderID    string
	IntentRef  string
	ExternalID string
	OccurredAt time.Time
}

func (OrderPaidEvent) EventName() string { return "order.paid" }

func NewOrderPaidEvent(o *Order) OrderPaidEvent {
	e := OrderPaidEvent{
		OrderID:    o.ID,
		IntentRef:  o.PaymentIntentRef,
		OccurredAt: time.Now().UTC(),
	}
	if o.Confirmation != nil {
		e.ExternalID = o.Confirmation.ExternalID
	}
	return e
}

// OrderFulfilledEvent is emitted when fulfillment finishes, including the
// partial case where discrepancies were recorded.
type OrderFulfilledEvent struct {
	OrderID       string
	UserID        string
	Discrepancies int
	OccurredAt    time.Time
}

func (OrderFulfilledEvent) EventName() string { return "order.fulfilled" }

func NewOrderFulfilledEvent(o *Order) OrderFulfilledEvent {
	return OrderFulfilledEvent{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Discrepancies: len(o.Discrepancies),
		OccurredAt:    time.Now().UTC(),
	}
}
