package application

import (
	"context"

	"github.com/adfinitum/storefront/internal/payment/domain"
)

// API is the remote payment service.
type API interface {
	// InitiateMobilePayment triggers an STK push and returns the
	// transaction id to poll.
	InitiateMobilePayment(ctx context.Context, orderRef string, amount int64, phone string) (string, error)

	// MobilePaymentStatus reports the current state of a pending
	// mobile-money transaction.
	MobilePaymentStatus(ctx context.Context, transactionID string) (domain.Status, error)

	// ChargeCard submits a card charge and returns the transaction id.
	ChargeCard(ctx context.Context, card domain.CardInput, amount int64) (string, error)

	// SubmitBankClaim records the customer's claim of a completed
	// bank transfer for later manual reconciliation.
	SubmitBankClaim(ctx context.Context, orderRef, reference string) error
}
