package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	domcart "github.com/nativebites/checkout/internal/domain/cart"
	dominv "github.com/nativebites/checkout/internal/domain/inventory"
	domain "github.com/nativebites/checkout/internal/domain/order"
	domoutbox "github.com/nativebites/checkout/internal/domain/outbox"
	dompayment "github.com/nativebites/checkout/internal/domain/payment"
	"github.com/nativebites/checkout/internal/observability"
	"github.com/nativebites/checkout/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
)

const (
	serviceName    = "checkout-service"
	currency       = "usd"
	gatewayPeer    = "payment-gateway"
	intentEndpoint = "intents.create"
	publishPeer    = "outbox"
	publishTimeout = 300 * time.Millisecond
)

const (
	useCaseCreate      = "order.create"
	useCaseIssueIntent = "order.issue_intent"
	useCaseGet         = "order.get"
	useCaseListByUser  = "order.list_by_user"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrConflict     = domain.ErrConflict
	ErrForbidden    = domain.ErrForbidden
	ErrInvalidState = domain.ErrInvalidStateTransition
	ErrValidation   = errors.New("checkout: validation failed")
	ErrRepository   = errors.New("checkout: repository failure")
)

// Service is the order workflow coordinator. It owns the order lifecycle and
// is the only writer of order state; inventory and cart are touched solely
// through their dedupe-guarded conditional operations.
type Service struct {
	orders      domain.Repository
	ledger      dominv.Ledger
	carts       domcart.Repository
	gateway     dompayment.Gateway
	publisher   domoutbox.Publisher
	idGenerator IDGenerator
	tel         observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewService(
	orders domain.Repository,
	ledger dominv.Ledger,
	carts domcart.Repository,
	gateway dompayment.Gateway,
	publisher domoutbox.Publisher,
	idGen IDGenerator,
	tel observability.Observability,
) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	baseLog := tel.Logger().With(observability.F("service", serviceName))
	metrics := tel.Metrics()

	return &Service{
		orders:       orders,
		ledger:       ledger,
		carts:        carts,
		gateway:      gateway,
		publisher:    publisher,
		idGenerator:  idGen,
		tel:          tel,
		log:          baseLog,
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

type CreateOrderInput struct {
	UserID  string
	Items   []domain.Item
	Amounts domain.Amounts
}

type CreateOrderResult struct {
	OrderID string
	Status  domain.Status
}

// CreateOrder persists a new pending order with the caller-supplied snapshot.
// It touches neither inventory nor the cart.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (_ *CreateOrderResult, err error) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCaseCreate))

	ctx, uc := s.beginUseCase(ctx, useCaseCreate, "CreateOrder", logger)
	defer func() { uc.end(ctx, err) }()

	if input.UserID == "" {
		uc.fail("USER_ID_REQUIRED")
		return nil, newValidation("user id is required")
	}

	orderID := s.idGenerator.NewID()
	entity, newErr := domain.New(orderID, input.UserID, input.Items, input.Amounts)
	if newErr != nil {
		uc.fail("VALIDATION_FAILED")
		return nil, fmt.Errorf("%w: %w", ErrValidation, newErr)
	}

	if insertErr := s.orders.Insert(ctx, entity); insertErr != nil {
		uc.fail("ORDER_INSERT_FAILED")
		logger.Error("order_insert_failed", observability.F("order_id", orderID), observability.F("error", insertErr.Error()))
		return nil, wrapRepositoryError(insertErr)
	}

	s.publish(ctx, domain.NewOrderCreatedEvent(entity))

	logger.Info("order_created",
		observability.F("order_id", entity.ID),
		observability.F("user_id", entity.UserID),
		observability.F("items", len(entity.Items)),
		observability.F("grand_total", entity.Amounts.GrandTotal),
	)
	return &CreateOrderResult{OrderID: entity.ID, Status: entity.Status}, nil
}

type IssueIntentResult struct {
	IntentRef    string
	ClientSecret string
}

// IssuePaymentIntent asks the gateway for an authorization handle and attaches
// it to the order. A gateway failure leaves the order pending with no ref, so
// the caller may retry safely. The ref is attached through a conditional write
// that requires the stored ref to still be empty, so of N concurrent callers
// exactly one attaches; the rest report the intent as already issued.
func (s *Service) IssuePaymentIntent(ctx context.Context, orderID string) (_ *IssueIntentResult, err error) {
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("use_case", useCaseIssueIntent),
		observability.F("order_id", orderID),
	)

	ctx, uc := s.beginUseCase(ctx, useCaseIssueIntent, "IssuePaymentIntent", logger,
		attribute.String("order.id", orderID),
	)
	defer func() { uc.end(ctx, err) }()

	entity, repoErr := s.orders.Get(ctx, orderID)
	if repoErr != nil {
		uc.fail("ORDER_LOOKUP_FAILED")
		return nil, wrapRepositoryError(repoErr)
	}
	if entity.Status != domain.StatusPending {
		uc.fail("ORDER_NOT_PENDING")
		return nil, ErrInvalidState
	}
	if entity.PaymentIntentRef != "" {
		uc.fail("INTENT_ALREADY_ISSUED")
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, domain.ErrIntentAlreadyIssued)
	}

	intent, gwErr := s.createIntent(ctx, entity)
	if gwErr != nil {
		uc.fail("GATEWAY_FAILED")
		logger.Warn("intent_create_failed", observability.F("error", gwErr.Error()))
		return nil, gwErr
	}

	if attachErr := entity.AttachIntent(intent.Ref); attachErr != nil {
		uc.fail("STATE_TRANSITION_FAILED")
		return nil, ErrInvalidState
	}
	if writeErr := s.orders.UpdateIfIntentUnset(ctx, entity, domain.StatusPending); writeErr != nil {
		if errors.Is(writeErr, domain.ErrConflict) {
			// A concurrent caller attached a ref first; its intent stands and
			// ours is abandoned unconfirmed at the gateway.
			uc.fail("INTENT_ATTACH_LOST_RACE")
			logger.Warn("intent_attach_lost_race", observability.F("intent_ref", intent.Ref))
			return nil, fmt.Errorf("%w: %w", ErrInvalidState, domain.ErrIntentAlreadyIssued)
		}
		uc.fail("ORDER_UPDATE_FAILED")
		return nil, wrapRepositoryError(writeErr)
	}

	logger.Info("intent_issued", observability.F("intent_ref", intent.Ref))
	return &IssueIntentResult{IntentRef: intent.Ref, ClientSecret: intent.ClientSecret}, nil
}

// createIntent calls the gateway with external-call metrics around it.
func (s *Service) createIntent(ctx context.Context, entity *domain.Order) (*dompayment.Intent, error) {
	start := time.Now()
	outcome := "success"

	intent, err := s.gateway.CreateIntent(ctx, entity.Amounts.GrandTotal, currency, map[string]string{
		"order_id": entity.ID,
	})
	if err != nil {
		outcome = "error"
	}

	s.extCounter.Add(1,
		observability.L("peer", gatewayPeer),
		observability.L("endpoint", intentEndpoint),
		observability.L("outcome", outcome),
	)
	s.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", gatewayPeer),
		observability.L("endpoint", intentEndpoint),
	)

	if err != nil {
		return nil, fmt.Errorf("%w: %w", dompayment.ErrUpstream, err)
	}
	return intent, nil
}

// GetOrder enforces the ownership rule: a non-admin may only fetch their own.
func (s *Service) GetOrder(ctx context.Context, orderID string, p Principal) (_ *domain.Order, err error) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCaseGet))

	ctx, uc := s.beginUseCase(ctx, useCaseGet, "GetOrder", logger,
		attribute.String("order.id", orderID),
	)
	defer func() { uc.end(ctx, err) }()

	entity, repoErr := s.orders.Get(ctx, orderID)
	if repoErr != nil {
		uc.fail("ORDER_LOOKUP_FAILED")
		return nil, wrapRepositoryError(repoErr)
	}
	if entity.UserID != p.UserID && !p.Admin {
		uc.fail("FORBIDDEN")
		return nil, ErrForbidden
	}
	return entity, nil
}

func (s *Service) ListOrdersByUser(ctx context.Context, userID string) (_ []*domain.Order, err error) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCaseListByUser))

	ctx, uc := s.beginUseCase(ctx, useCaseListByUser, "ListOrdersByUser", logger)
	defer func() { uc.end(ctx, err) }()

	orders, repoErr := s.orders.ListByUser(ctx, userID)
	if repoErr != nil {
		uc.fail("ORDER_LIST_FAILED")
		return nil, wrapRepositoryError(repoErr)
	}
	return orders, nil
}

// publish enqueues a domain event with a bounded timeout; event delivery is
// best-effort and never fails the calling use case.
func (s *Service) publish(ctx context.Context, e domoutbox.Event) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	start := time.Now()
	outcome := "success"
	if err := s.publisher.Publish(pubCtx, e); err != nil {
		outcome = "error"
		logctx.FromOr(ctx, s.log).Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}

	s.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
		observability.L("outcome", outcome),
	)
	s.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
	)
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, domain.ErrConflict):
		return ErrConflict
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}

func newValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
