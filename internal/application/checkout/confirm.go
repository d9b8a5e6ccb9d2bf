package checkout

import (
	"context"
	"errors"

	domain "github.com/nativebites/checkout/internal/domain/order"
	dompayment "github.com/nativebites/checkout/internal/domain/payment"
	"github.com/nativebites/checkout/internal/observability"
	"github.com/nativebites/checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const useCaseConfirm = "order.confirm_payment"

// ConfirmPayment is the idempotency boundary of the whole workflow. It is safe
// under arbitrary retries and concurrent deliveries: a confirmation for an
// order that is already paid or beyond returns the stored result untouched,
// and the pending-to-paid transition is a conditional write so that exactly
// one of N concurrent confirmations wins and applies the side effects.
func (s *Service) ConfirmPayment(ctx context.Context, orderID string, conf dompayment.Confirmation) (_ *domain.Order, err error) {
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("use_case", useCaseConfirm),
		observability.F("order_id", orderID),
	)

	ctx, uc := s.beginUseCase(ctx, useCaseConfirm, "ConfirmPayment", logger,
		attribute.String("order.id", orderID),
		attribute.String("payment.intent_ref", conf.IntentRef),
	)
	defer func() { uc.end(ctx, err) }()

	if orderID == "" {
		uc.fail("ORDER_ID_REQUIRED")
		return nil, newValidation("order id is required")
	}

	entity, repoErr := s.orders.Get(ctx, orderID)
	if repoErr != nil {
		uc.fail("ORDER_LOOKUP_FAILED")
		return nil, wrapRepositoryError(repoErr)
	}

	// Duplicate delivery: the stored result is the answer. No side effects
	// are re-applied.
	if entity.IsSettled() {
		uc.note("IDEMPOTENT_REPLAY")
		uc.span.AddEvent("order.confirm_replay",
			trace.WithAttributes(attribute.String("order.status", string(entity.Status))),
		)
		return entity, nil
	}
	if entity.Status == domain.StatusFailed {
		uc.fail("ORDER_FAILED")
		return nil, ErrInvalidState
	}

	if entity.PaymentIntentRef == "" {
		uc.fail("INTENT_NOT_ISSUED")
		return nil, domain.ErrIntentNotIssued
	}
	if conf.IntentRef != entity.PaymentIntentRef {
		uc.fail("INTENT_MISMATCH")
		return nil, domain.ErrIntentMismatch
	}

	if !conf.Succeeded() {
		return s.recordPaymentFailure(ctx, entity, conf, uc)
	}

	if transErr := entity.PaymentConfirmed(domain.Confirmation{
		ExternalID:  conf.ExternalID,
		Status:      conf.Status,
		ConfirmedAt: conf.ConfirmedAt,
		PayerEmail:  conf.PayerEmail,
	}); transErr != nil {
		uc.fail("STATE_TRANSITION_FAILED")
		return nil, transErr
	}

	// The conditional write decides the winner among concurrent confirmations.
	if writeErr := s.orders.UpdateIfStatus(ctx, entity, domain.StatusPending); writeErr != nil {
		if errors.Is(writeErr, domain.ErrConflict) {
			return s.resolveLostRace(ctx, orderID, uc)
		}
		uc.fail("ORDER_UPDATE_FAILED")
		return nil, wrapRepositoryError(writeErr)
	}

	uc.span.AddEvent("order.paid", trace.WithAttributes(attribute.String("order.id", entity.ID)))
	s.publish(ctx, domain.NewOrderPaidEvent(entity))

	// Only the winning writer reaches this point.
	settled, effErr := s.applySideEffects(ctx, entity.ID)
	if effErr != nil {
		uc.fail("SIDE_EFFECTS_INCOMPLETE")
		return nil, effErr
	}
	return settled, nil
}

// recordPaymentFailure handles a gateway-reported failure: pending orders move
// to failed; a lost race against a concurrent success returns the stored result.
func (s *Service) recordPaymentFailure(ctx context.Context, entity *domain.Order, conf dompayment.Confirmation, uc *useCaseObs) (*domain.Order, error) {
	reason := "payment_declined"
	if conf.Status != "" {
		reason = conf.Status
	}
	if transErr := entity.PaymentFailed(reason); transErr != nil {
		uc.fail("STATE_TRANSITION_FAILED")
		return nil, transErr
	}
	if writeErr := s.orders.UpdateIfStatus(ctx, entity, domain.StatusPending); writeErr != nil {
		if errors.Is(writeErr, domain.ErrConflict) {
			current, repoErr := s.orders.Get(ctx, entity.ID)
			if repoErr == nil && current.IsSettled() {
				uc.note("IDEMPOTENT_REPLAY")
				return current, nil
			}
			uc.fail("ORDER_UPDATE_CONFLICT")
			return nil, ErrConflict
		}
		uc.fail("ORDER_UPDATE_FAILED")
		return nil, wrapRepositoryError(writeErr)
	}
	uc.note("DECLINED")
	return entity, nil
}

// resolveLostRace re-reads the order after losing the pending-to-paid write.
// The winner has either settled the order (idempotent success for us) or
// failed it (genuine state conflict).
func (s *Service) resolveLostRace(ctx context.Context, orderID string, uc *useCaseObs) (*domain.Order, error) {
	current, repoErr := s.orders.Get(ctx, orderID)
	if repoErr != nil {
		uc.fail("ORDER_LOOKUP_FAILED")
		return nil, wrapRepositoryError(repoErr)
	}
	if current.IsSettled() {
		uc.note("IDEMPOTENT_REPLAY")
		uc.span.AddEvent("order.confirm_replay",
			trace.WithAttributes(attribute.String("order.status", string(current.Status))),
		)
		return current, nil
	}
	uc.fail("ORDER_FAILED")
	return nil, ErrInvalidState
}
