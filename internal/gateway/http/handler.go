// Package http is the storefront's public surface. It fronts the cart
// store, the payment flows and the checkout sessions as a JSON API.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	cartapp "github.com/adfinitum/storefront/internal/cart/application"
	cartdomain "github.com/adfinitum/storefront/internal/cart/domain"
	checkoutapp "github.com/adfinitum/storefront/internal/checkout/application"
	checkoutdomain "github.com/adfinitum/storefront/internal/checkout/domain"
	"github.com/adfinitum/storefront/internal/events"
	payapp "github.com/adfinitum/storefront/internal/payment/application"
	paydomain "github.com/adfinitum/storefront/internal/payment/domain"
	"github.com/adfinitum/storefront/internal/pricing"
	"github.com/adfinitum/storefront/pkg/idempotency"
	"github.com/adfinitum/storefront/pkg/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultSessionTTL   = 2 * time.Hour
	defaultCompletedTTL = 15 * time.Minute
)

type sessionEntry struct {
	sess     *checkoutapp.Session
	lastSeen time.Time
}

type Handler struct {
	log     *slog.Logger
	tracer  trace.Tracer
	cart    *cartapp.Store
	flow    *payapp.Flow
	orders  checkoutapp.OrderAPI
	journal checkoutapp.Journal
	pub     events.Publisher
	idem    *idempotency.Store // nil disables order dedup

	// SessionTTL bounds how long an untouched session survives;
	// CompletedTTL is how long a completed one stays queryable.
	SessionTTL   time.Duration
	CompletedTTL time.Duration

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

func NewHandler(log *slog.Logger, cart *cartapp.Store, flow *payapp.Flow, orders checkoutapp.OrderAPI, journal checkoutapp.Journal, pub events.Publisher, idem *idempotency.Store) *Handler {
	return &Handler{
		log:          log,
		tracer:       otel.Tracer("storefront-http"),
		cart:         cart,
		flow:         flow,
		orders:       orders,
		journal:      journal,
		pub:          pub,
		idem:         idem,
		SessionTTL:   defaultSessionTTL,
		CompletedTTL: defaultCompletedTTL,
		sessions:     make(map[string]*sessionEntry),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(resumeTrace)
	r.Get("/cart", h.getCart)
	r.Post("/cart/items", h.addItem)
	r.Patch("/cart/items/{lineID}", h.updateItem)
	r.Delete("/cart/items/{lineID}", h.removeItem)
	r.Post("/cart/clear", h.clearCart)

	r.Post("/checkout", h.beginCheckout)
	r.Get("/checkout/{sessionID}", h.checkoutState)
	r.Post("/checkout/{sessionID}/shipping", h.submitShipping)
	r.Post("/checkout/{sessionID}/back", h.stepBack)
	r.Post("/checkout/{sessionID}/next", h.stepNext)
	r.Post("/checkout/{sessionID}/payment/mpesa", h.payMpesa)
	r.Post("/checkout/{sessionID}/payment/card", h.payCard)
	r.Get("/checkout/{sessionID}/payment/bank", h.bankInstructions)
	r.Post("/checkout/{sessionID}/payment/bank", h.confirmBank)
	r.Post("/checkout/{sessionID}/order", h.placeOrder)
	return r
}

type cartView struct {
	Items           []cartdomain.LineItem `json:"items"`
	TotalItems      int                   `json:"total_items"`
	TotalPrice      int64                 `json:"total_price"`
	FreeShippingGap int64                 `json:"free_shipping_gap"`
}

func viewOf(snap cartdomain.Snapshot) cartView {
	items := snap.Items
	if items == nil {
		items = []cartdomain.LineItem{}
	}
	return cartView{
		Items:           items,
		TotalItems:      snap.TotalItems(),
		TotalPrice:      snap.TotalPrice(),
		FreeShippingGap: pricing.FreeShippingGap(snap.TotalPrice()),
	}
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetCart")
	defer span.End()
	respondJSON(w, http.StatusOK, viewOf(h.cart.Load(ctx)))
}

type addItemReq struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Image     string `json:"image"`
	Category  string `json:"category"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AddCartItem")
	defer span.End()

	var req addItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	p := cartdomain.Product{ID: req.ProductID, Name: req.Name, UnitPrice: req.Price, Image: req.Image, Category: req.Category}
	if err := h.cart.AddItem(ctx, p, req.Quantity); err != nil {
		h.respondCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(h.cart.Snapshot()))
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateCartItem")
	defer span.End()

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.cart.UpdateQuantity(ctx, chi.URLParam(r, "lineID"), req.Quantity); err != nil {
		h.respondCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(h.cart.Snapshot()))
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RemoveCartItem")
	defer span.End()

	if err := h.cart.RemoveItem(ctx, chi.URLParam(r, "lineID")); err != nil {
		h.respondCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(h.cart.Snapshot()))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ClearCart")
	defer span.End()

	if err := h.cart.Clear(ctx); err != nil {
		h.respondCartError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(h.cart.Snapshot()))
}

func (h *Handler) beginCheckout(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "BeginCheckout")
	defer span.End()

	session, err := checkoutapp.NewSession(h.log, h.cart, h.orders, h.journal, h.pub)
	if err != nil {
		if errors.Is(err, checkoutapp.ErrEmptyCart) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	id := uuid.NewString()
	now := time.Now()
	h.mu.Lock()
	h.pruneLocked(now)
	h.sessions[id] = &sessionEntry{sess: session, lastSeen: now}
	h.mu.Unlock()

	respondJSON(w, http.StatusCreated, map[string]any{
		"session_id": id,
		"order_ref":  session.OrderRef(),
		"step":       session.Step().String(),
	})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*checkoutapp.Session, bool) {
	h.mu.Lock()
	entry, ok := h.sessions[chi.URLParam(r, "sessionID")]
	if ok {
		entry.lastSeen = time.Now()
	}
	h.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "unknown checkout session")
		return nil, false
	}
	return entry.sess, true
}

// pruneLocked evicts completed sessions past their retention and
// abandoned sessions past the session TTL. Callers hold h.mu.
func (h *Handler) pruneLocked(now time.Time) {
	for id, entry := range h.sessions {
		age := now.Sub(entry.lastSeen)
		switch {
		case entry.sess.Status() == checkoutdomain.StatusCompleted && age > h.CompletedTTL:
			delete(h.sessions, id)
		case age > h.SessionTTL:
			delete(h.sessions, id)
		}
	}
}

type checkoutView struct {
	OrderRef     string                          `json:"order_ref"`
	Step         string                          `json:"step"`
	Status       checkoutdomain.SessionStatus    `json:"status"`
	Totals       pricing.Totals                  `json:"totals"`
	Shipping     *checkoutdomain.ShippingDetails `json:"shipping,omitempty"`
	Payment      *paymentView                    `json:"payment,omitempty"`
	Confirmation *checkoutdomain.Confirmation    `json:"confirmation,omitempty"`
}

type paymentView struct {
	Method         string `json:"method"`
	TransactionRef string `json:"transaction_ref"`
}

func (h *Handler) viewOfSession(s *checkoutapp.Session) checkoutView {
	view := checkoutView{
		OrderRef: s.OrderRef(),
		Step:     s.Step().String(),
		Status:   s.Status(),
		Totals:   s.Totals(),
	}
	if shipping, ok := s.ShippingDetails(); ok {
		view.Shipping = &shipping
	}
	if payment, ok := s.PaymentDetails(); ok {
		view.Payment = &paymentView{Method: string(payment.Method), TransactionRef: payment.TransactionRef}
	}
	if conf, ok := s.Confirmation(); ok {
		view.Confirmation = &conf
	}
	return view
}

func (h *Handler) checkoutState(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "CheckoutState")
	defer span.End()

	session, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.viewOfSession(session))
}

func (h *Handler) submitShipping(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "SubmitShipping")
	defer span.End()

	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var details checkoutdomain.ShippingDetails
	if err := json.NewDecoder(r.Body).Decode(&details); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := session.SubmitShipping(details); err != nil {
		h.respondCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.viewOfSession(session))
}

func (h *Handler) stepBack(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "CheckoutBack")
	defer span.End()

	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Step int `json:"step"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := session.Back(checkoutdomain.Step(req.Step)); err != nil {
		h.respondCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.viewOfSession(session))
}

func (h *Handler) stepNext(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "CheckoutNext")
	defer span.End()

	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.Next(); err != nil {
		h.respondCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.viewOfSession(session))
}

func (h *Handler) payMpesa(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PayMpesa")
	defer span.End()

	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Phone string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}

	details, err := h.flow.PayWithMpesa(ctx, session.OrderRef(), session.Totals().Total, req.Phone)
	if err != nil {
		h.respondPaymentError(w, err)
		return
	}
	if err := session.AttachPayment(ctx, details); err != nil {
		h.respondCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.viewOfSession(session))
}

func (h *Handler) payCard(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PayCard")
	defer span.End()

	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Number string `json:"card_number"`
		Expiry string `json:"expiry_date"`
		CVV    string `json:"cvv"`
		Name   string `json:"cardholder_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}

	card := paydomain.CardInput{Number: req.Number, Expiry: req.Expiry, CVV: req.CVV, Name: req.Name}
	details, err := h.flow.PayWithCard(ctx, card, session.Totals().Total)
	if err != nil {
		h.respondPaymentError(w, err)
		return
	}
	if err := session.AttachPayment(ctx, details); err != nil {
		h.respondCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.viewOfSession(session))
}

func (h *Handler) bankInstructions(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "BankInstructions")
	defer span.End()

	session, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.flow.BankInstructions(session.OrderRef(), session.Totals().Total))
}

func (h *Handler) confirmBank(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ConfirmBankTransfer")
	defer span.End()

	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Reference string `json:"reference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}

	details, err := h.flow.ConfirmBankTransfer(ctx, session.OrderRef(), req.Reference)
	if err != nil {
		h.respondPaymentError(w, err)
		return
	}
	if err := session.AttachPayment(ctx, details); err != nil {
		h.respondCheckoutError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.viewOfSession(session))
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PlaceOrder")
	defer span.End()

	sessionID := chi.URLParam(r, "sessionID")
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	// A key is only marked after a successful placement, so a failed
	// attempt stays retryable under the same key.
	var idemKey string
	if key := r.Header.Get("Idempotency-Key"); key != "" && h.idem != nil {
		idemKey = h.idem.Key(sessionID, key)
		seen, err := h.idem.Seen(ctx, idemKey)
		if err != nil {
			h.log.Warn("idempotency check failed", "err", err)
		} else if seen {
			respondJSON(w, http.StatusOK, h.viewOfSession(session))
			return
		}
	}

	conf, err := session.PlaceOrder(ctx)
	if err != nil {
		h.respondCheckoutError(w, err)
		return
	}
	if idemKey != "" {
		if err := h.idem.Mark(ctx, idemKey); err != nil {
			h.log.Warn("idempotency mark failed", "err", err)
		}
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"order_id":  conf.OrderID,
		"order_ref": session.OrderRef(),
		"status":    conf.Status,
	})
}

func (h *Handler) respondCartError(w http.ResponseWriter, err error) {
	var cartErr *cartapp.CartError
	if errors.As(err, &cartErr) {
		respondError(w, http.StatusBadGateway, cartErr.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

func (h *Handler) respondCheckoutError(w http.ResponseWriter, err error) {
	var fieldErrs checkoutdomain.FieldErrors
	if errors.As(err, &fieldErrs) {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"fields": fieldErrs})
		return
	}
	var orderErr *checkoutapp.OrderCreateError
	switch {
	case errors.As(err, &orderErr):
		// Payment went through; surface the preserved reference so the
		// customer is not told to pay again.
		respondJSON(w, http.StatusBadGateway, map[string]any{
			"error":           "order creation failed, payment is recorded",
			"order_ref":       orderErr.OrderRef,
			"transaction_ref": orderErr.TransactionRef,
		})
	case errors.Is(err, checkoutapp.ErrSubmitInFlight), errors.Is(err, checkoutapp.ErrWrongStep):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, checkoutapp.ErrEmptyCart), errors.Is(err, checkoutapp.ErrMissingDetails), errors.Is(err, checkoutapp.ErrPaymentUnconfirmed):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) respondPaymentError(w http.ResponseWriter, err error) {
	var fieldErrs paydomain.FieldErrors
	if errors.As(err, &fieldErrs) {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"fields": fieldErrs})
		return
	}
	switch {
	case errors.Is(err, payapp.ErrPollTimeout):
		respondError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, payapp.ErrPaymentRejected), errors.Is(err, payapp.ErrPollCanceled):
		respondError(w, http.StatusPaymentRequired, err.Error())
	default:
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

// resumeTrace picks up the trace context of an instrumented caller.
func resumeTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := tracing.ExtractHTTPHeaders(r.Context(), r.Header)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
