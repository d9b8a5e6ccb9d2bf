package checkout

import (
	"context"
	"errors"
	"fmt"

	dominv "github.com/nativebites/checkout/internal/domain/inventory"
	domain "github.com/nativebites/checkout/internal/domain/order"
	"github.com/nativebites/checkout/internal/observability"
	"github.com/nativebites/checkout/internal/observability/logctx"
)

// applySideEffects runs the one logical fulfillment step: per-line-item stock
// decrements and the cart clear, each guarded by a dedupe key so the whole
// step is resumable. Interrupted runs are picked up again by the sweeper; a
// replayed decrement or clear is a no-op at the store level.
//
// Insufficient stock does not roll back the paid state. Payment already
// succeeded with the external processor, so the shortfall is recorded as a
// discrepancy and the order still terminates in fulfilled.
func (s *Service) applySideEffects(ctx context.Context, orderID string) (*domain.Order, error) {
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("use_case", "order.apply_side_effects"),
		observability.F("order_id", orderID),
	)

	entity, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}

	switch entity.Status {
	case domain.StatusPaid:
		if transErr := entity.FulfillmentStarted(); transErr != nil {
			return nil, transErr
		}
		if writeErr := s.orders.UpdateIfStatus(ctx, entity, domain.StatusPaid); writeErr != nil {
			if errors.Is(writeErr, domain.ErrConflict) {
				// Another worker began fulfillment; fall through and resume.
				entity, err = s.orders.Get(ctx, orderID)
				if err != nil {
					return nil, wrapRepositoryError(err)
				}
			} else {
				return nil, wrapRepositoryError(writeErr)
			}
		}
	case domain.StatusFulfilling:
		// Resuming an interrupted run.
	case domain.StatusFulfilled:
		return entity, nil
	default:
		return nil, ErrInvalidState
	}

	token := entity.IdempotencyToken()
	for _, item := range entity.Items {
		dedupeKey := fmt.Sprintf("%s/%s", token, item.ProductID)
		decErr := s.ledger.Decrement(ctx, item.ProductID, item.Quantity, dedupeKey)
		switch {
		case decErr == nil:
		case errors.Is(decErr, dominv.ErrInsufficientStock), errors.Is(decErr, dominv.ErrNotFound):
			entity.RecordDiscrepancy(item.ProductID, item.Quantity, decErr.Error())
			logger.Warn("fulfillment_discrepancy",
				observability.F("product_id", item.ProductID),
				observability.F("requested", item.Quantity),
				observability.F("reason", decErr.Error()),
			)
		default:
			return nil, fmt.Errorf("checkout: decrement %s: %w", item.ProductID, decErr)
		}
	}

	if clearErr := s.carts.Clear(ctx, entity.UserID, token); clearErr != nil {
		return nil, fmt.Errorf("checkout: clear cart: %w", clearErr)
	}

	if transErr := entity.FulfillmentCompleted(); transErr != nil {
		return nil, transErr
	}
	if writeErr := s.orders.UpdateIfStatus(ctx, entity, domain.StatusFulfilling); writeErr != nil {
		if errors.Is(writeErr, domain.ErrConflict) {
			// A concurrent resume finished first; its result stands.
			current, repoErr := s.orders.Get(ctx, orderID)
			if repoErr != nil {
				return nil, wrapRepositoryError(repoErr)
			}
			if current.Status == domain.StatusFulfilled {
				return current, nil
			}
			return nil, ErrConflict
		}
		return nil, wrapRepositoryError(writeErr)
	}

	s.publish(ctx, domain.NewOrderFulfilledEvent(entity))

	logger.Info("order_fulfilled",
		observability.F("discrepancies", len(entity.Discrepancies)),
	)
	return entity, nil
}
