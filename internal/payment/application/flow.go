package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adfinitum/storefront/internal/payment/domain"
)

const (
	defaultPollInterval = 5 * time.Second

	// 36 attempts at 5s bounds a never-resolving transaction to three
	// minutes before it is reported as a timeout failure.
	defaultPollAttempts = 36
)

// Flow runs one of the three payment protocols and produces a Details
// the checkout can consume. Every path ends in either a confirmed
// Details or an explicit error; there is no silent fallthrough.
type Flow struct {
	log *slog.Logger
	api API

	// Poll cadence for mobile-money confirmation; tests shorten these.
	PollInterval time.Duration
	PollAttempts int
}

func NewFlow(log *slog.Logger, api API) *Flow {
	return &Flow{
		log:          log,
		api:          api,
		PollInterval: defaultPollInterval,
		PollAttempts: defaultPollAttempts,
	}
}

// PayWithMpesa initiates an STK push and blocks until the transaction
// confirms, fails, times out, or ctx is canceled. The poller it owns
// is always torn down before returning.
func (f *Flow) PayWithMpesa(ctx context.Context, orderRef string, amount int64, phone string) (domain.Details, error) {
	if errs := domain.ValidatePhone(phone); errs != nil {
		return domain.Details{}, errs
	}

	txID, err := f.api.InitiateMobilePayment(ctx, orderRef, amount, phone)
	if err != nil {
		return domain.Details{}, fmt.Errorf("initiate mobile payment: %w", err)
	}
	f.log.Info("mobile payment initiated", "order_ref", orderRef, "tx_id", txID)

	poller := NewStatusPoller(f.log, f.api, txID, f.PollInterval, f.PollAttempts)
	defer poller.Cancel()

	res := <-poller.Start(ctx)
	if res.Err != nil {
		return domain.Details{}, res.Err
	}

	return domain.Details{
		Method:         domain.MethodMpesa,
		Phone:          phone,
		TransactionRef: res.TransactionID,
	}, nil
}

// PayWithCard validates the card locally, then submits the charge.
// Validation failures surface as FieldErrors before any network call.
func (f *Flow) PayWithCard(ctx context.Context, card domain.CardInput, amount int64) (domain.Details, error) {
	if errs := card.Validate(); errs != nil {
		return domain.Details{}, errs
	}

	txID, err := f.api.ChargeCard(ctx, card.Normalized(), amount)
	if err != nil {
		return domain.Details{}, fmt.Errorf("%w: %w", ErrPaymentRejected, err)
	}
	f.log.Info("card charge accepted", "tx_id", txID)

	// The raw card number and CVV are not retained past the charge.
	return domain.Details{
		Method:         domain.MethodCard,
		CardName:       card.Name,
		TransactionRef: txID,
	}, nil
}

// BankInstructions are the static transfer details shown to the
// customer, keyed by the order reference.
type BankInstructions struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"`
}

func (f *Flow) BankInstructions(orderRef string, amount int64) BankInstructions {
	return BankInstructions{
		AccountName:   "Adfinitum Trails Ltd",
		AccountNumber: "1234567890",
		BankCode:      "KCBLKENX",
		Reference:     orderRef,
		Amount:        amount,
	}
}

// ConfirmBankTransfer records the customer's claim of a completed
// transfer and advances optimistically; nothing blocks on the manual
// reconciliation that follows.
func (f *Flow) ConfirmBankTransfer(ctx context.Context, orderRef, reference string) (domain.Details, error) {
	if reference == "" {
		reference = orderRef
	}
	if err := f.api.SubmitBankClaim(ctx, orderRef, reference); err != nil {
		return domain.Details{}, fmt.Errorf("submit bank claim: %w", err)
	}
	f.log.Info("bank transfer claim submitted", "order_ref", orderRef, "reference", reference)

	return domain.Details{
		Method:         domain.MethodBank,
		BankReference:  reference,
		TransactionRef: reference,
	}, nil
}
