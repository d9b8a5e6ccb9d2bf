package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	appcart "github.com/nativebites/checkout/internal/application/cart"
	"github.com/nativebites/checkout/internal/application/checkout"
	domcart "github.com/nativebites/checkout/internal/domain/cart"
	domcatalog "github.com/nativebites/checkout/internal/domain/catalog"
	dominventory "github.com/nativebites/checkout/internal/domain/inventory"
	domorder "github.com/nativebites/checkout/internal/domain/order"
	dompayment "github.com/nativebites/checkout/internal/domain/payment"
	"github.com/nativebites/checkout/internal/observability"
	"github.com/nativebites/checkout/internal/observability/logctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	checkoutService *checkout.Service
	cartService     *appcart.Service
	log             observability.Logger
	tel             observability.Observability
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerUserID         = "X-User-ID"
	headerUserAdmin      = "X-User-Admin"
)

func NewHandler(checkoutSvc *checkout.Service, cartSvc *appcart.Service, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		checkoutService: checkoutSvc,
		cartService:     cartSvc,
		log:             tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:             tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Wire each route with middlewares:
	// Trace → ObservabilityMiddleware (request logger) → HTTP metrics → Access log → Handler
	h.muxHandle(mux, http.MethodPost, "/orders", h.handleCreateOrder)
	h.muxHandle(mux, http.MethodPost, "/orders/{id}/intent", h.handleIssueIntent)
	h.muxHandle(mux, http.MethodPost, "/orders/{id}/confirm", h.handleConfirmPayment)
	h.muxHandle(mux, http.MethodGet, "/orders/{id}", h.handleGetOrder)
	h.muxHandle(mux, http.MethodGet, "/orders", h.handleListMyOrders)
	h.muxHandle(mux, http.MethodPost, "/payments/webhook", h.handlePaymentWebhook)
	h.muxHandle(mux, http.MethodGet, "/cart", h.handleGetCart)
	h.muxHandle(mux, http.MethodPost, "/cart", h.handleAddCartItem)
	h.muxHandle(mux, http.MethodPut, "/cart", h.handleUpdateCartItem)
	h.muxHandle(mux, http.MethodDelete, "/cart/{productId}", h.handleRemoveCartItem)
	h.muxHandle(mux, http.MethodGet, "/health", h.handleHealth)

	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, method, route string, handler http.HandlerFunc) {
	mux.HandleFunc(method+" "+route, func(w http.ResponseWriter, r *http.Request) {
		// Store stable route template for low-cardinality labels
		ctx := contextWithRoute(r.Context(), method+" "+route)
		r = r.WithContext(ctx)

		wrapped := h.withTrace(
			ObservabilityMiddleware(
				logctx.FromOr(ctx, h.log),
				func(r *http.Request) string {
					return r.Header.Get(headerRequestID)
				},
				h.tel,
			)(
				h.withAccessLog(http.HandlerFunc(handler)),
			),
		)
		wrapped.ServeHTTP(w, r)
	})
}

// principal reads the authenticated caller injected by the session layer.
func principal(r *http.Request) (checkout.Principal, bool) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		return checkout.Principal{}, false
	}
	return checkout.Principal{
		UserID: userID,
		Admin:  r.Header.Get(headerUserAdmin) == "true",
	}, true
}

type orderItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type orderAmountsPayload struct {
	ItemsTotal int64 `json:"items_total"`
	Tax        int64 `json:"tax"`
	Shipping   int64 `json:"shipping"`
	GrandTotal int64 `json:"grand_total"`
}

type createOrderRequest struct {
	Items   []orderItemPayload  `json:"items"`
	Amounts orderAmountsPayload `json:"amounts"`
}

type createOrderResponse struct {
	OrderID string          `json:"order_id"`
	Status  domorder.Status `json:"status"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user identity"))
		return
	}

	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	items := make([]domorder.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domorder.Item{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	result, err := h.checkoutService.CreateOrder(r.Context(), checkout.CreateOrderInput{
		UserID: p.UserID,
		Items:  items,
		Amounts: domorder.Amounts{
			ItemsTotal: req.Amounts.ItemsTotal,
			Tax:        req.Amounts.Tax,
			Shipping:   req.Amounts.Shipping,
			GrandTotal: req.Amounts.GrandTotal,
		},
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		OrderID: result.OrderID,
		Status:  result.Status,
	})
}

type issueIntentResponse struct {
	IntentRef    string `json:"intent_ref"`
	ClientSecret string `json:"client_secret"`
}

func (h *Handler) handleIssueIntent(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal(r); !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user identity"))
		return
	}

	result, err := h.checkoutService.IssuePaymentIntent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, issueIntentResponse{
		IntentRef:    result.IntentRef,
		ClientSecret: result.ClientSecret,
	})
}

type confirmationPayload struct {
	IntentRef   string    `json:"intent_ref"`
	ExternalID  string    `json:"external_id"`
	Status      string    `json:"status"`
	ConfirmedAt time.Time `json:"confirmed_at"`
	PayerEmail  string    `json:"payer_email"`
}

func (p confirmationPayload) toDomain() dompayment.Confirmation {
	return dompayment.Confirmation{
		IntentRef:   p.IntentRef,
		ExternalID:  p.ExternalID,
		Status:      p.Status,
		ConfirmedAt: p.ConfirmedAt,
		PayerEmail:  p.PayerEmail,
	}
}

func (h *Handler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal(r); !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user identity"))
		return
	}

	var req confirmationPayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.checkoutService.ConfirmPayment(r.Context(), r.PathValue("id"), req.toDomain())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

type webhookRequest struct {
	OrderID      string              `json:"order_id"`
	Confirmation confirmationPayload `json:"confirmation"`
}

// handlePaymentWebhook accepts asynchronous confirmations from the processor.
// It funnels into the same idempotent confirmation path as the client
// callback, so duplicate or racing deliveries converge on one result.
func (h *Handler) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.checkoutService.ConfirmPayment(r.Context(), req.OrderID, req.Confirmation.toDomain())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user identity"))
		return
	}

	result, err := h.checkoutService.GetOrder(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

func (h *Handler) handleListMyOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user identity"))
		return
	}

	orders, err := h.checkoutService.ListOrdersByUser(r.Context(), p.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

type cartLinePayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cartResponse struct {
	UserID string            `json:"user_id"`
	Lines  []cartLinePayload `json:"lines"`
}

func toCartResponse(c *domcart.Cart) cartResponse {
	out := cartResponse{UserID: c.UserID, Lines: make([]cartLinePayload, 0, len(c.Lines))}
	for _, l := range c.Lines {
		out.Lines = append(out.Lines, cartLinePayload{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user identity"))
		return
	}

	c, err := h.cartService.Get(r.Context(), p.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user identity"))
		return
	}

	var req cartLinePayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, err := h.cartService.AddItem(r.Context(), p.UserID, req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user identity"))
		return
	}

	var req cartLinePayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, err := h.cartService.UpdateItem(r.Context(), p.UserID, req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user identity"))
		return
	}

	c, err := h.cartService.RemoveItem(r.Context(), p.UserID, r.PathValue("productId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type discrepancyPayload struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Reason    string `json:"reason"`
}

type orderResponse struct {
	ID               string               `json:"id"`
	UserID           string               `json:"user_id"`
	Items            []orderItemPayload   `json:"items"`
	Amounts          orderAmountsPayload  `json:"amounts"`
	Status           domorder.Status      `json:"status"`
	PaymentIntentRef string               `json:"payment_intent_ref,omitempty"`
	Confirmation     *confirmationPayload `json:"confirmation,omitempty"`
	Discrepancies    []discrepancyPayload `json:"discrepancies,omitempty"`
	FailureReason    string               `json:"failure_reason,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}

func toOrderResponse(o *domorder.Order) orderResponse {
	out := orderResponse{
		ID:     o.ID,
		UserID: o.UserID,
		Items:  make([]orderItemPayload, 0, len(o.Items)),
		Amounts: orderAmountsPayload{
			ItemsTotal: o.Amounts.ItemsTotal,
			Tax:        o.Amounts.Tax,
			Shipping:   o.Amounts.Shipping,
			GrandTotal: o.Amounts.GrandTotal,
		},
		Status:           o.Status,
		PaymentIntentRef: o.PaymentIntentRef,
		FailureReason:    o.FailureReason,
		CreatedAt:        o.CreatedAt,
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, orderItemPayload{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	if o.Confirmation != nil {
		out.Confirmation = &confirmationPayload{
			IntentRef:   o.PaymentIntentRef,
			ExternalID:  o.Confirmation.ExternalID,
			Status:      o.Confirmation.Status,
			ConfirmedAt: o.Confirmation.ConfirmedAt,
			PayerEmail:  o.Confirmation.PayerEmail,
		}
	}
	for _, d := range o.Discrepancies {
		out.Discrepancies = append(out.Discrepancies, discrepancyPayload{
			ProductID: d.ProductID,
			Requested: d.Requested,
			Reason:    d.Reason,
		})
	}
	return out
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, domcart.ErrNotFound),
		errors.Is(err, domcatalog.ErrNotFound),
		errors.Is(err, dominventory.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domorder.ErrForbidden):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, checkout.ErrValidation),
		errors.Is(err, domorder.ErrEmptyItems),
		errors.Is(err, domorder.ErrInvalidQuantity),
		errors.Is(err, domorder.ErrInvalidAmount),
		errors.Is(err, domcart.ErrInvalidQuantity),
		errors.Is(err, dominventory.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domorder.ErrInvalidStateTransition),
		errors.Is(err, domorder.ErrIntentAlreadyIssued),
		errors.Is(err, domorder.ErrIntentNotIssued),
		errors.Is(err, domorder.ErrIntentMismatch),
		errors.Is(err, domorder.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, dompayment.ErrUpstream):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("checkout.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := route
		if spanName == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}
