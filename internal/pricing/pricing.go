// Package pricing derives order totals from cart contents and the
// selected delivery method. Everything here is pure: no I/O, no state,
// integer minor-unit arithmetic only.
package pricing

import "github.com/adfinitum/storefront/internal/cart/domain"

type DeliveryMethod string

const (
	DeliveryStandard DeliveryMethod = "standard"
	DeliveryExpress  DeliveryMethod = "express"
	DeliveryPickup   DeliveryMethod = "pickup"
)

func (m DeliveryMethod) Valid() bool {
	switch m {
	case DeliveryStandard, DeliveryExpress, DeliveryPickup:
		return true
	}
	return false
}

const (
	// VAT at 16%, applied to the subtotal.
	taxRatePercent = 16

	freeShippingThreshold = 10000
	standardShippingFee   = 500
	expressShippingFee    = 1500
)

type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

// Compute derives the full breakdown for a subtotal and delivery
// method. An unset or unknown method is priced by the standard rule.
func Compute(subtotal int64, method DeliveryMethod) Totals {
	shipping := shippingFee(subtotal, method)
	tax := Tax(subtotal)
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal + shipping + tax,
	}
}

// ComputeForCart prices a cart snapshot.
func ComputeForCart(snap domain.Snapshot, method DeliveryMethod) Totals {
	return Compute(snap.TotalPrice(), method)
}

// Tax is round-half-up(subtotal * 16%), in integer arithmetic so the
// result is deterministic across platforms.
func Tax(subtotal int64) int64 {
	return (subtotal*taxRatePercent + 50) / 100
}

func shippingFee(subtotal int64, method DeliveryMethod) int64 {
	switch method {
	case DeliveryPickup:
		return 0
	case DeliveryExpress:
		return expressShippingFee
	default:
		// Standard, and the default before a method is chosen.
		if subtotal >= freeShippingThreshold {
			return 0
		}
		return standardShippingFee
	}
}

// FreeShippingGap is how much more the customer must spend to reach
// free standard shipping. Zero once the threshold is met.
func FreeShippingGap(subtotal int64) int64 {
	if subtotal >= freeShippingThreshold {
		return 0
	}
	return freeShippingThreshold - subtotal
}
