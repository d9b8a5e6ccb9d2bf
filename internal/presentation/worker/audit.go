package worker

import (
	"context"

	domorder "github.com/nativebites/checkout/internal/domain/order"
	domoutbox "github.com/nativebites/checkout/internal/domain/outbox"
	"github.com/nativebites/checkout/internal/observability"
	"github.com/nativebites/checkout/internal/observability/logctx"
)

// AuditWorker subscribes to order lifecycle events and writes the audit log.
// It is a read-only observer; replaying events cannot mutate order state.
type AuditWorker struct {
	subscriber domoutbox.Subscriber
	log        observability.Logger
}

func NewAuditWorker(subscriber domoutbox.Subscriber, tel observability.Observability) *AuditWorker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &AuditWorker{
		subscriber: subscriber,
		log:        tel.Logger().With(observability.F("component", "audit_worker")),
	}
}

func (w *AuditWorker) Start() {
	w.subscriber.Subscribe(domorder.OrderCreatedEvent{}.EventName(), w.onOrderCreated)
	w.subscriber.Subscribe(domorder.OrderPaidEvent{}.EventName(), w.onOrderPaid)
	w.subscriber.Subscribe(domorder.OrderFulfilledEvent{}.EventName(), w.onOrderFulfilled)
}

func (w *AuditWorker) onOrderCreated(ctx context.Context, e domoutbox.Event) error {
	ev, ok := e.(domorder.OrderCreatedEvent)
	if !ok {
		return nil
	}
	logctx.FromOr(ctx, w.log).Info("audit_order_created",
		observability.F("order_id", ev.OrderID),
		observability.F("user_id", ev.UserID),
		observability.F("items", ev.ItemCount),
		observability.F("grand_total", ev.GrandTotal),
	)
	return nil
}

func (w *AuditWorker) onOrderPaid(ctx context.Context, e domoutbox.Event) error {
	ev, ok := e.(domorder.OrderPaidEvent)
	if !ok {
		return nil
	}
	logctx.FromOr(ctx, w.log).Info("audit_order_paid",
		observability.F("order_id", ev.OrderID),
		observability.F("intent_ref", ev.IntentRef),
		observability.F("external_id", ev.ExternalID),
	)
	return nil
}

func (w *AuditWorker) onOrderFulfilled(ctx context.Context, e domoutbox.Event) error {
	ev, ok := e.(domorder.OrderFulfilledEvent)
	if !ok {
		return nil
	}
	logger := logctx.FromOr(ctx, w.log)
	if ev.Discrepancies > 0 {
		logger.Warn("audit_order_fulfilled_with_discrepancies",
			observability.F("order_id", ev.OrderID),
			observability.F("discrepancies", ev.Discrepancies),
		)
		return nil
	}
	logger.Info("audit_order_fulfilled",
		observability.F("order_id", ev.OrderID),
	)
	return nil
}
