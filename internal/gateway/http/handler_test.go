package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	cartapp "github.com/adfinitum/storefront/internal/cart/application"
	cartdomain "github.com/adfinitum/storefront/internal/cart/domain"
	cartcache "github.com/adfinitum/storefront/internal/cart/infrastructure/cache"
	checkoutapp "github.com/adfinitum/storefront/internal/checkout/application"
	checkoutdomain "github.com/adfinitum/storefront/internal/checkout/domain"
	"github.com/adfinitum/storefront/internal/events"
	payapp "github.com/adfinitum/storefront/internal/payment/application"
	paydomain "github.com/adfinitum/storefront/internal/payment/domain"
	"github.com/adfinitum/storefront/pkg/idempotency"
	"github.com/adfinitum/storefront/pkg/kvstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCartAPI plays the remote cart service with server-side merge
// semantics over a seeded catalog.
type fakeCartAPI struct {
	mu       sync.Mutex
	snap     cartdomain.Snapshot
	products map[string]cartdomain.Product
}

func newFakeCartAPI(products ...cartdomain.Product) *fakeCartAPI {
	f := &fakeCartAPI{products: map[string]cartdomain.Product{}}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeCartAPI) Get(context.Context) (cartdomain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.Clone(), nil
}

func (f *fakeCartAPI) AddItem(_ context.Context, productID string, quantity int) (cartdomain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return cartdomain.Snapshot{}, fmt.Errorf("unknown product %s", productID)
	}
	f.snap = f.snap.Merge("srv-"+productID, p, quantity)
	return f.snap.Clone(), nil
}

func (f *fakeCartAPI) UpdateItem(_ context.Context, lineID string, quantity int) (cartdomain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = f.snap.SetQuantity(lineID, quantity)
	return f.snap.Clone(), nil
}

func (f *fakeCartAPI) RemoveItem(_ context.Context, lineID string) (cartdomain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = f.snap.Remove(lineID)
	return f.snap.Clone(), nil
}

func (f *fakeCartAPI) Clear(context.Context) (cartdomain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = cartdomain.Snapshot{}
	return cartdomain.Snapshot{}, nil
}

type fakePaymentAPI struct {
	status paydomain.Status
}

func (f *fakePaymentAPI) InitiateMobilePayment(context.Context, string, int64, string) (string, error) {
	return "TX-1", nil
}

func (f *fakePaymentAPI) MobilePaymentStatus(context.Context, string) (paydomain.Status, error) {
	return f.status, nil
}

func (f *fakePaymentAPI) ChargeCard(context.Context, paydomain.CardInput, int64) (string, error) {
	return "TX-CARD", nil
}

func (f *fakePaymentAPI) SubmitBankClaim(context.Context, string, string) error {
	return nil
}

type fakeOrderAPI struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeOrderAPI) Create(_ context.Context, draft checkoutapp.OrderDraft) (checkoutdomain.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return checkoutdomain.Confirmation{}, f.err
	}
	return checkoutdomain.Confirmation{OrderID: "17", Status: "processing"}, nil
}

func (f *fakeOrderAPI) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeJournal struct {
	mu      sync.Mutex
	records []checkoutdomain.PaymentRecord
}

func (f *fakeJournal) RecordPaid(_ context.Context, rec checkoutdomain.PaymentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeJournal) MarkPlaced(context.Context, string, string) error { return nil }

type fixture struct {
	h       *Handler
	srv     *httptest.Server
	cartAPI *fakeCartAPI
	orders  *fakeOrderAPI
	journal *fakeJournal
	pub     *events.Memory
}

func newFixture(t *testing.T, idem *idempotency.Store) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cartAPI := newFakeCartAPI(cartdomain.Product{ID: "42", Name: "Bead Bracelet", UnitPrice: 5000})
	cart := cartapp.NewStore(log, cartAPI, cartcache.New(kvstore.NewMemory()))

	flow := payapp.NewFlow(log, &fakePaymentAPI{status: paydomain.StatusSuccess})
	flow.PollInterval = time.Millisecond
	flow.PollAttempts = 5

	orders := &fakeOrderAPI{}
	journal := &fakeJournal{}
	pub := events.NewMemory()

	h := NewHandler(log, cart, flow, orders, journal, pub, idem)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &fixture{h: h, srv: srv, cartAPI: cartAPI, orders: orders, journal: journal, pub: pub}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func validShippingBody() map[string]any {
	return map[string]any{
		"first_name":      "Jane",
		"last_name":       "Wanjiku",
		"email":           "jane@example.com",
		"phone":           "254712345678",
		"address":         "123 Moi Avenue",
		"city":            "Nairobi",
		"postal_code":     "00100",
		"delivery_method": "standard",
	}
}

func TestCart_AddUpdateRemove(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/cart/items", map[string]any{"product_id": "42", "quantity": 2}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["total_items"])
	assert.Equal(t, float64(10000), body["total_price"])
	assert.Equal(t, float64(0), body["free_shipping_gap"])

	resp, body = f.do(t, http.MethodPatch, "/cart/items/srv-42", map[string]any{"quantity": 1}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total_items"])
	assert.Equal(t, float64(5000), body["free_shipping_gap"])

	resp, body = f.do(t, http.MethodDelete, "/cart/items/srv-42", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["total_items"])
}

func TestBeginCheckout_EmptyCartRejected(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.do(t, http.MethodPost, "/checkout", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "non-empty cart")
}

func TestCheckout_UnknownSession(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := f.do(t, http.MethodGet, "/checkout/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCheckout_ShippingValidationErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/cart/items", map[string]any{"product_id": "42", "quantity": 1}, nil)
	_, body := f.do(t, http.MethodPost, "/checkout", nil, nil)
	sid := body["session_id"].(string)

	invalid := validShippingBody()
	invalid["email"] = "nope"
	resp, body := f.do(t, http.MethodPost, "/checkout/"+sid+"/shipping", invalid, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	fields := body["fields"].(map[string]any)
	assert.Contains(t, fields, "email")
}

func TestCheckout_MpesaHappyPath(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/cart/items", map[string]any{"product_id": "42", "quantity": 3}, nil)

	_, body := f.do(t, http.MethodPost, "/checkout", nil, nil)
	sid := body["session_id"].(string)

	resp, body := f.do(t, http.MethodPost, "/checkout/"+sid+"/shipping", validShippingBody(), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "payment", body["step"])

	resp, body = f.do(t, http.MethodPost, "/checkout/"+sid+"/payment/mpesa", map[string]any{"phone_number": "254712345678"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "review", body["step"])
	totals := body["totals"].(map[string]any)
	assert.Equal(t, float64(17400), totals["total"])

	resp, body = f.do(t, http.MethodPost, "/checkout/"+sid+"/order", nil, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "17", body["order_id"])
	assert.Equal(t, 1, f.orders.created())

	// The cart is cleared and the session reports completion.
	resp, body = f.do(t, http.MethodGet, "/cart", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["total_items"])

	_, body = f.do(t, http.MethodGet, "/checkout/"+sid, nil, nil)
	assert.Equal(t, "completed", body["status"])
}

func TestCheckout_InvalidPhoneIsFieldError(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/cart/items", map[string]any{"product_id": "42", "quantity": 1}, nil)
	_, body := f.do(t, http.MethodPost, "/checkout", nil, nil)
	sid := body["session_id"].(string)
	f.do(t, http.MethodPost, "/checkout/"+sid+"/shipping", validShippingBody(), nil)

	resp, body := f.do(t, http.MethodPost, "/checkout/"+sid+"/payment/mpesa", map[string]any{"phone_number": "0712"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	fields := body["fields"].(map[string]any)
	assert.Contains(t, fields, "phone")
}

func TestPlaceOrder_IdempotencyKeyShortCircuits(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	idem := idempotency.NewStore(rdb, time.Minute)

	f := newFixture(t, idem)
	f.do(t, http.MethodPost, "/cart/items", map[string]any{"product_id": "42", "quantity": 3}, nil)
	_, body := f.do(t, http.MethodPost, "/checkout", nil, nil)
	sid := body["session_id"].(string)
	f.do(t, http.MethodPost, "/checkout/"+sid+"/shipping", validShippingBody(), nil)
	f.do(t, http.MethodPost, "/checkout/"+sid+"/payment/mpesa", map[string]any{"phone_number": "254712345678"}, nil)

	headers := map[string]string{"Idempotency-Key": "k-1"}
	resp, _ := f.do(t, http.MethodPost, "/checkout/"+sid+"/order", nil, headers)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/checkout/"+sid+"/order", nil, headers)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, 1, f.orders.created())
}

func TestPlaceOrder_FailedAttemptKeepsIdempotencyKeyRetryable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	idem := idempotency.NewStore(rdb, time.Minute)

	f := newFixture(t, idem)
	f.do(t, http.MethodPost, "/cart/items", map[string]any{"product_id": "42", "quantity": 3}, nil)
	_, body := f.do(t, http.MethodPost, "/checkout", nil, nil)
	sid := body["session_id"].(string)
	f.do(t, http.MethodPost, "/checkout/"+sid+"/shipping", validShippingBody(), nil)
	f.do(t, http.MethodPost, "/checkout/"+sid+"/payment/mpesa", map[string]any{"phone_number": "254712345678"}, nil)

	f.orders.mu.Lock()
	f.orders.err = errors.New("order service unavailable")
	f.orders.mu.Unlock()

	headers := map[string]string{"Idempotency-Key": "k-1"}
	resp, _ := f.do(t, http.MethodPost, "/checkout/"+sid+"/order", nil, headers)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, 1, f.orders.created())

	// Same key after the order service recovers must reach it again.
	f.orders.mu.Lock()
	f.orders.err = nil
	f.orders.mu.Unlock()

	resp, body = f.do(t, http.MethodPost, "/checkout/"+sid+"/order", nil, headers)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "17", body["order_id"])
	assert.Equal(t, 2, f.orders.created())

	// Only the successful placement marks the key.
	resp, body = f.do(t, http.MethodPost, "/checkout/"+sid+"/order", nil, headers)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, 2, f.orders.created())
}

func TestSessions_CompletedSessionEvicted(t *testing.T) {
	f := newFixture(t, nil)
	f.h.CompletedTTL = time.Millisecond

	f.do(t, http.MethodPost, "/cart/items", map[string]any{"product_id": "42", "quantity": 3}, nil)
	_, body := f.do(t, http.MethodPost, "/checkout", nil, nil)
	sid := body["session_id"].(string)
	f.do(t, http.MethodPost, "/checkout/"+sid+"/shipping", validShippingBody(), nil)
	f.do(t, http.MethodPost, "/checkout/"+sid+"/payment/mpesa", map[string]any{"phone_number": "254712345678"}, nil)
	resp, _ := f.do(t, http.MethodPost, "/checkout/"+sid+"/order", nil, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	time.Sleep(5 * time.Millisecond)

	// The next checkout sweeps completed sessions past retention.
	f.do(t, http.MethodPost, "/cart/items", map[string]any{"product_id": "42", "quantity": 1}, nil)
	resp, _ = f.do(t, http.MethodPost, "/checkout", nil, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/checkout/"+sid, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessions_AbandonedSessionEvicted(t *testing.T) {
	f := newFixture(t, nil)
	f.h.SessionTTL = time.Millisecond

	f.do(t, http.MethodPost, "/cart/items", map[string]any{"product_id": "42", "quantity": 1}, nil)
	_, body := f.do(t, http.MethodPost, "/checkout", nil, nil)
	abandoned := body["session_id"].(string)

	time.Sleep(5 * time.Millisecond)

	_, body = f.do(t, http.MethodPost, "/checkout", nil, nil)
	fresh := body["session_id"].(string)

	resp, _ := f.do(t, http.MethodGet, "/checkout/"+abandoned, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/checkout/"+fresh, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBankInstructions_KeyedByOrderRef(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/cart/items", map[string]any{"product_id": "42", "quantity": 1}, nil)
	_, body := f.do(t, http.MethodPost, "/checkout", nil, nil)
	sid := body["session_id"].(string)
	orderRef := body["order_ref"].(string)

	resp, body := f.do(t, http.MethodGet, "/checkout/"+sid+"/payment/bank", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, orderRef, body["reference"])
	assert.NotEmpty(t, body["account_number"])
}
