package httppresentation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	appcart "github.com/nativebites/checkout/internal/application/cart"
	"github.com/nativebites/checkout/internal/application/checkout"
	domcatalog "github.com/nativebites/checkout/internal/domain/catalog"
	"github.com/nativebites/checkout/internal/infrastructure/memory"
	infrapayment "github.com/nativebites/checkout/internal/infrastructure/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqGen struct{ n int }

func (g *seqGen) NewID() string {
	g.n++
	return fmt.Sprintf("order-%04d", g.n)
}

type testServer struct {
	srv    *httptest.Server
	ledger *memory.InventoryRepository
	carts  *memory.CartRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	orders := memory.NewOrderRepository()
	ledger := memory.NewInventoryRepository()
	carts := memory.NewCartRepository()
	catalog := memory.NewCatalogRepository()
	gateway := infrapayment.NewSimulatedGateway()

	require.NoError(t, catalog.PutProduct(ctx, &domcatalog.Product{ID: "p1", Name: "Mug", Price: 500}))
	require.NoError(t, ledger.Restock(ctx, "p1", 10))

	checkoutSvc := checkout.NewService(orders, ledger, carts, gateway, nil, &seqGen{}, nil)
	cartSvc := appcart.NewService(carts, catalog, nil)

	handler := NewHandler(checkoutSvc, cartSvc, nil)
	srv := httptest.NewServer(handler.Router())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, ledger: ledger, carts: carts}
}

// do sends a JSON request as the given user and decodes the JSON response into
// out when provided.
func (ts *testServer) do(t *testing.T, method, path, userID string, body, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func standardOrderBody() map[string]any {
	return map[string]any{
		"items": []map[string]any{
			{"product_id": "p1", "quantity": 2, "unit_price": 500},
		},
		"amounts": map[string]any{
			"items_total": 1000,
			"tax":         80,
			"shipping":    200,
			"grand_total": 1280,
		},
	}
}

func TestCheckoutFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	// Fill the cart first so the fulfillment step has something to clear.
	var cart cartResponse
	resp := ts.do(t, http.MethodPost, "/cart", "u1",
		map[string]any{"product_id": "p1", "quantity": 2}, &cart)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, cart.Lines, 1)

	var created createOrderResponse
	resp = ts.do(t, http.MethodPost, "/orders", "u1", standardOrderBody(), &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", string(created.Status))

	var intent issueIntentResponse
	resp = ts.do(t, http.MethodPost, "/orders/"+created.OrderID+"/intent", "u1", nil, &intent)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, intent.IntentRef)

	confirmation := map[string]any{
		"intent_ref":  intent.IntentRef,
		"external_id": "ch_1",
		"status":      "succeeded",
		"payer_email": "buyer@example.com",
	}
	var confirmed orderResponse
	resp = ts.do(t, http.MethodPost, "/orders/"+created.OrderID+"/confirm", "u1", confirmation, &confirmed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "fulfilled", string(confirmed.Status))
	require.NotNil(t, confirmed.Confirmation)
	assert.Equal(t, "ch_1", confirmed.Confirmation.ExternalID)

	// Stock went down exactly once and the cart is empty.
	item, err := ts.ledger.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 8, item.Stock)

	resp = ts.do(t, http.MethodGet, "/cart", "u1", nil, &cart)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, cart.Lines)

	// The read path reflects the terminal state.
	var fetched orderResponse
	resp = ts.do(t, http.MethodGet, "/orders/"+created.OrderID, "u1", nil, &fetched)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "fulfilled", string(fetched.Status))
}

func TestWebhookConvergesWithClientConfirmation(t *testing.T) {
	ts := newTestServer(t)

	var created createOrderResponse
	resp := ts.do(t, http.MethodPost, "/orders", "u1", standardOrderBody(), &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var intent issueIntentResponse
	resp = ts.do(t, http.MethodPost, "/orders/"+created.OrderID+"/intent", "u1", nil, &intent)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	confirmation := map[string]any{
		"intent_ref":  intent.IntentRef,
		"external_id": "ch_1",
		"status":      "succeeded",
	}

	var fromClient orderResponse
	resp = ts.do(t, http.MethodPost, "/orders/"+created.OrderID+"/confirm", "u1", confirmation, &fromClient)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The processor's webhook carries no user identity and replays the same
	// confirmation; it must land on the identical result.
	var fromWebhook orderResponse
	resp = ts.do(t, http.MethodPost, "/payments/webhook", "",
		map[string]any{"order_id": created.OrderID, "confirmation": confirmation}, &fromWebhook)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, fromClient.Status, fromWebhook.Status)
	assert.Equal(t, fromClient.Confirmation.ExternalID, fromWebhook.Confirmation.ExternalID)

	item, err := ts.ledger.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 8, item.Stock)
}

func TestAuthAndOwnershipOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/orders", "", standardOrderBody(), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var created createOrderResponse
	resp = ts.do(t, http.MethodPost, "/orders", "u1", standardOrderBody(), &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/orders/"+created.OrderID, "intruder", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Admin bypasses the ownership check.
	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/orders/"+created.OrderID, nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "ops")
	req.Header.Set("X-User-Admin", "true")
	adminResp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer adminResp.Body.Close()
	assert.Equal(t, http.StatusOK, adminResp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/orders/missing", "u1", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t)

	// Validation failure.
	bad := standardOrderBody()
	bad["items"] = []map[string]any{}
	resp := ts.do(t, http.MethodPost, "/orders", "u1", bad, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var created createOrderResponse
	resp = ts.do(t, http.MethodPost, "/orders", "u1", standardOrderBody(), &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Confirming before an intent exists is a conflict.
	resp = ts.do(t, http.MethodPost, "/orders/"+created.OrderID+"/confirm", "u1",
		map[string]any{"intent_ref": "pi_x", "external_id": "ch_1", "status": "succeeded"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var intent issueIntentResponse
	resp = ts.do(t, http.MethodPost, "/orders/"+created.OrderID+"/intent", "u1", nil, &intent)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A second intent for the same order is a conflict too.
	resp = ts.do(t, http.MethodPost, "/orders/"+created.OrderID+"/intent", "u1", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Wrong intent reference on the confirmation.
	resp = ts.do(t, http.MethodPost, "/orders/"+created.OrderID+"/confirm", "u1",
		map[string]any{"intent_ref": "pi_other", "external_id": "ch_1", "status": "succeeded"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCartEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var cart cartResponse
	resp := ts.do(t, http.MethodGet, "/cart", "u1", nil, &cart)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, cart.Lines)

	// Unknown products are rejected on add.
	resp = ts.do(t, http.MethodPost, "/cart", "u1",
		map[string]any{"product_id": "ghost", "quantity": 1}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/cart", "u1",
		map[string]any{"product_id": "p1", "quantity": 2}, &cart)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 2, cart.Lines[0].Quantity)

	resp = ts.do(t, http.MethodPut, "/cart", "u1",
		map[string]any{"product_id": "p1", "quantity": 5}, &cart)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, cart.Lines[0].Quantity)

	resp = ts.do(t, http.MethodDelete, "/cart/p1", "u1", nil, &cart)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, cart.Lines)

	resp = ts.do(t, http.MethodGet, "/cart", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListMyOrders(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 2; i++ {
		resp := ts.do(t, http.MethodPost, "/orders", "u1", standardOrderBody(), nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	resp := ts.do(t, http.MethodPost, "/orders", "u2", standardOrderBody(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var mine []orderResponse
	resp = ts.do(t, http.MethodGet, "/orders", "u1", nil, &mine)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, mine, 2)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
