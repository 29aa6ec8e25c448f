package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adfinitum/storefront/internal/checkout/domain"
	"github.com/adfinitum/storefront/internal/events"
	paydomain "github.com/adfinitum/storefront/internal/payment/domain"
	"github.com/adfinitum/storefront/internal/pricing"
	"github.com/google/uuid"
)

var (
	ErrEmptyCart          = errors.New("checkout requires a non-empty cart")
	ErrWrongStep          = errors.New("operation not allowed at this step")
	ErrSubmitInFlight     = errors.New("order submission already in progress")
	ErrMissingDetails     = errors.New("shipping and payment details are required")
	ErrPaymentUnconfirmed = errors.New("payment has no transaction reference")
)

// OrderCreateError is the post-payment order failure: money may have
// moved while the order service said no. It carries the payment
// reference so the caller can show it and the retry can reuse it.
type OrderCreateError struct {
	OrderRef       string
	TransactionRef string
	Err            error
}

func (e *OrderCreateError) Error() string {
	return fmt.Sprintf("order creation failed for %s (payment ref %s preserved): %v", e.OrderRef, e.TransactionRef, e.Err)
}

func (e *OrderCreateError) Unwrap() error { return e.Err }

// Session drives the three-step checkout for one customer. It owns all
// step-scoped data and guards every transition; collaborators are
// injected so the whole flow runs against fakes in tests.
type Session struct {
	log     *slog.Logger
	cart    CartStore
	orders  OrderAPI
	journal Journal
	pub     events.Publisher

	orderRef string

	mu           sync.Mutex
	step         domain.Step
	status       domain.SessionStatus
	shipping     *domain.ShippingDetails
	payment      *paydomain.Details
	confirmation *domain.Confirmation
}

// NewSession starts a checkout. The cart must be non-empty; an empty
// cart never enters checkout.
func NewSession(log *slog.Logger, cart CartStore, orders OrderAPI, journal Journal, pub events.Publisher) (*Session, error) {
	if cart.Snapshot().Empty() {
		return nil, ErrEmptyCart
	}
	return &Session{
		log:      log,
		cart:     cart,
		orders:   orders,
		journal:  journal,
		pub:      pub,
		orderRef: "ORD-" + uuid.NewString(),
		step:     domain.StepShipping,
		status:   domain.StatusActive,
	}, nil
}

func (s *Session) OrderRef() string {
	return s.orderRef
}

func (s *Session) Step() domain.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) ShippingDetails() (domain.ShippingDetails, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shipping == nil {
		return domain.ShippingDetails{}, false
	}
	return *s.shipping, true
}

func (s *Session) PaymentDetails() (paydomain.Details, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payment == nil {
		return paydomain.Details{}, false
	}
	return *s.payment, true
}

func (s *Session) Confirmation() (domain.Confirmation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirmation == nil {
		return domain.Confirmation{}, false
	}
	return *s.confirmation, true
}

// Totals prices the current cart against the chosen delivery method.
// Before the shipping step is submitted the standard rule applies.
func (s *Session) Totals() pricing.Totals {
	s.mu.Lock()
	var method pricing.DeliveryMethod
	if s.shipping != nil {
		method = s.shipping.DeliveryMethod
	}
	s.mu.Unlock()
	return pricing.ComputeForCart(s.cart.Snapshot(), method)
}

// SubmitShipping validates the step-1 form locally and advances to the
// payment step. Resubmitting from a back-navigated shipping step
// replaces the stored details.
func (s *Session) SubmitShipping(d domain.ShippingDetails) error {
	if errs := d.Validate(); errs != nil {
		return errs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.StatusActive || s.step != domain.StepShipping {
		return ErrWrongStep
	}
	s.shipping = &d
	s.step = domain.StepPayment
	s.log.Info("checkout shipping captured", "order_ref", s.orderRef, "delivery_method", d.DeliveryMethod)
	return nil
}

// AttachPayment accepts the Details produced by a payment flow and
// advances to review. A Details without a transaction reference is
// rejected; flows never hand over an unresolved payment.
func (s *Session) AttachPayment(ctx context.Context, d paydomain.Details) error {
	if !d.Method.Valid() {
		return fmt.Errorf("unknown payment method %q", d.Method)
	}
	if !d.Confirmed() {
		return ErrPaymentUnconfirmed
	}

	s.mu.Lock()
	if s.status != domain.StatusActive || s.step != domain.StepPayment {
		s.mu.Unlock()
		return ErrWrongStep
	}
	s.payment = &d
	s.step = domain.StepReview
	total := s.sessionTotalLocked()
	s.mu.Unlock()

	s.publish(ctx, events.TypePaymentConfirmed, events.PaymentConfirmed{
		OrderRef:       s.orderRef,
		Method:         string(d.Method),
		TransactionRef: d.TransactionRef,
		Amount:         total,
	})
	s.log.Info("checkout payment attached", "order_ref", s.orderRef, "method", d.Method)
	return nil
}

// Back navigates from review to an earlier step without losing any
// entered data.
func (s *Session) Back(to domain.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.StatusActive {
		return ErrWrongStep
	}
	if to != domain.StepShipping && to != domain.StepPayment {
		return ErrWrongStep
	}
	if to >= s.step {
		return ErrWrongStep
	}
	s.step = to
	return nil
}

// Next advances past a back-navigated step whose data is already
// captured, without re-entering it.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.StatusActive {
		return ErrWrongStep
	}
	switch s.step {
	case domain.StepShipping:
		if s.shipping == nil {
			return ErrMissingDetails
		}
		s.step = domain.StepPayment
	case domain.StepPayment:
		if s.payment == nil {
			return ErrMissingDetails
		}
		s.step = domain.StepReview
	default:
		return ErrWrongStep
	}
	return nil
}

// PlaceOrder runs Review -> Submitting -> Completed/Failed. While a
// submission is in flight a second activation is rejected with
// ErrSubmitInFlight, so rapid repeated "Place Order" taps produce
// exactly one order-creation request.
func (s *Session) PlaceOrder(ctx context.Context) (domain.Confirmation, error) {
	s.mu.Lock()
	if s.status == domain.StatusSubmitting {
		s.mu.Unlock()
		return domain.Confirmation{}, ErrSubmitInFlight
	}
	if s.status == domain.StatusCompleted || s.step != domain.StepReview {
		s.mu.Unlock()
		return domain.Confirmation{}, ErrWrongStep
	}
	if s.shipping == nil || s.payment == nil {
		s.mu.Unlock()
		return domain.Confirmation{}, ErrMissingDetails
	}

	snap := s.cart.Snapshot()
	if snap.Empty() {
		// The cart can drain asynchronously (another tab cleared it).
		s.mu.Unlock()
		return domain.Confirmation{}, ErrEmptyCart
	}

	shipping := *s.shipping
	payment := *s.payment
	totals := pricing.ComputeForCart(snap, shipping.DeliveryMethod)
	s.status = domain.StatusSubmitting
	s.mu.Unlock()

	// The payment reference goes into the journal before the order
	// call so a failure past this point cannot lose it.
	now := time.Now().UTC()
	if err := s.journal.RecordPaid(ctx, domain.PaymentRecord{
		OrderRef:       s.orderRef,
		Method:         string(payment.Method),
		TransactionRef: payment.TransactionRef,
		Amount:         totals.Total,
		Status:         domain.RecordPaidUnplaced,
		CreatedAt:      now,
		UpdatedAt:      now,
	}); err != nil {
		s.log.Error("payment journal write failed", "order_ref", s.orderRef, "err", err)
	}

	conf, err := s.orders.Create(ctx, OrderDraft{
		OrderRef: s.orderRef,
		Items:    snap.Items,
		Shipping: shipping,
		Payment:  payment,
		Totals:   totals,
	})
	if err != nil {
		s.mu.Lock()
		s.status = domain.StatusActive // remain on review, data intact
		s.mu.Unlock()
		s.log.Error("order creation failed", "order_ref", s.orderRef, "err", err)
		return domain.Confirmation{}, &OrderCreateError{
			OrderRef:       s.orderRef,
			TransactionRef: payment.TransactionRef,
			Err:            err,
		}
	}

	if err := s.journal.MarkPlaced(ctx, s.orderRef, conf.OrderID); err != nil {
		s.log.Warn("payment journal update failed", "order_ref", s.orderRef, "err", err)
	}
	if err := s.cart.Clear(ctx); err != nil {
		s.log.Warn("cart clear after order failed", "order_ref", s.orderRef, "err", err)
	}

	s.publish(ctx, events.TypeOrderPlaced, events.OrderPlaced{
		OrderID:    conf.OrderID,
		OrderRef:   s.orderRef,
		TotalItems: snap.TotalItems(),
		Total:      totals.Total,
	})

	s.mu.Lock()
	s.status = domain.StatusCompleted
	s.confirmation = &conf
	s.mu.Unlock()
	s.log.Info("order placed", "order_ref", s.orderRef, "order_id", conf.OrderID)
	return conf, nil
}

func (s *Session) sessionTotalLocked() int64 {
	var method pricing.DeliveryMethod
	if s.shipping != nil {
		method = s.shipping.DeliveryMethod
	}
	return pricing.ComputeForCart(s.cart.Snapshot(), method).Total
}

func (s *Session) publish(ctx context.Context, eventType string, payload any) {
	event, err := events.New(eventType, s.orderRef, payload)
	if err != nil {
		s.log.Warn("event build failed", "type", eventType, "err", err)
		return
	}
	if err := s.pub.Publish(ctx, event); err != nil {
		s.log.Warn("event publish failed", "type", eventType, "err", err)
	}
}
