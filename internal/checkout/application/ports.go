package application

import (
	"context"

	cartdomain "github.com/adfinitum/storefront/internal/cart/domain"
	"github.com/adfinitum/storefront/internal/checkout/domain"
	paydomain "github.com/adfinitum/storefront/internal/payment/domain"
	"github.com/adfinitum/storefront/internal/pricing"
)

// CartStore is the slice of the cart store the checkout needs.
type CartStore interface {
	Snapshot() cartdomain.Snapshot
	Clear(ctx context.Context) error
}

// OrderDraft is everything the order service needs to accept an order.
type OrderDraft struct {
	OrderRef string
	Items    []cartdomain.LineItem
	Shipping domain.ShippingDetails
	Payment  paydomain.Details
	Totals   pricing.Totals
}

type OrderAPI interface {
	Create(ctx context.Context, draft OrderDraft) (domain.Confirmation, error)
}

// Journal durably records confirmed payment references across the
// order-creation boundary.
type Journal interface {
	RecordPaid(ctx context.Context, rec domain.PaymentRecord) error
	MarkPlaced(ctx context.Context, orderRef, orderID string) error
}
