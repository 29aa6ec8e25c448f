package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/adfinitum/storefront/internal/pricing"
)

// Step is one of the three sequential checkout stages.
type Step int

const (
	StepShipping Step = 1
	StepPayment  Step = 2
	StepReview   Step = 3
)

func (s Step) String() string {
	switch s {
	case StepShipping:
		return "shipping"
	case StepPayment:
		return "payment"
	case StepReview:
		return "review"
	}
	return "unknown"
}

// SessionStatus tracks the session beyond the step sequence.
type SessionStatus string

const (
	StatusActive     SessionStatus = "active"
	StatusSubmitting SessionStatus = "submitting"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
)

// ShippingDetails is the step-1 form data. All fields except Notes are
// required; once the customer advances it is held immutably but stays
// revisitable through back navigation.
type ShippingDetails struct {
	FirstName      string                 `json:"first_name"`
	LastName       string                 `json:"last_name"`
	Email          string                 `json:"email"`
	Phone          string                 `json:"phone"`
	Address        string                 `json:"address"`
	City           string                 `json:"city"`
	PostalCode     string                 `json:"postal_code"`
	DeliveryMethod pricing.DeliveryMethod `json:"delivery_method"`
	Notes          string                 `json:"notes,omitempty"`
}

// FieldErrors maps field name to message for form display.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msg := range e {
		parts = append(parts, field+": "+msg)
	}
	return "invalid fields: " + strings.Join(parts, "; ")
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validate runs entirely locally; no network call is involved in form
// validation.
func (d ShippingDetails) Validate() FieldErrors {
	errs := FieldErrors{}
	required := map[string]string{
		"first_name":  d.FirstName,
		"last_name":   d.LastName,
		"email":       d.Email,
		"phone":       d.Phone,
		"address":     d.Address,
		"city":        d.City,
		"postal_code": d.PostalCode,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			errs[field] = "this field is required"
		}
	}
	if d.Email != "" && !emailPattern.MatchString(d.Email) {
		errs["email"] = "enter a valid email address"
	}
	if !d.DeliveryMethod.Valid() {
		errs["delivery_method"] = "choose standard, express or pickup"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// PaymentRecord is the durable journal entry for a confirmed payment.
// It exists so a payment reference is never lost when order creation
// fails after a successful charge.
type PaymentRecord struct {
	OrderRef       string
	Method         string
	TransactionRef string
	Amount         int64
	Status         RecordStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type RecordStatus string

const (
	// RecordPaidUnplaced: money moved, order not yet accepted by the
	// order service. These rows are the reconciliation worklist.
	RecordPaidUnplaced RecordStatus = "paid_unplaced"
	RecordPlaced       RecordStatus = "placed"
)

// Confirmation is the order service's answer to a placed order.
type Confirmation struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}
