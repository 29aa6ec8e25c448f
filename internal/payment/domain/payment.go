package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Method string

const (
	MethodMpesa Method = "mpesa"
	MethodCard  Method = "card"
	MethodBank  Method = "bank"
)

func (m Method) Valid() bool {
	switch m {
	case MethodMpesa, MethodCard, MethodBank:
		return true
	}
	return false
}

// Details is the payment data held by a checkout session. Only the
// fields of the selected method are ever populated; TransactionRef is
// set once the method's flow has produced a usable reference.
type Details struct {
	Method Method `json:"method"`

	Phone string `json:"phone,omitempty"`

	CardNumber string `json:"card_number,omitempty"`
	ExpiryDate string `json:"expiry_date,omitempty"`
	CVV        string `json:"cvv,omitempty"`
	CardName   string `json:"card_name,omitempty"`

	BankAccount   string `json:"bank_account,omitempty"`
	BankReference string `json:"bank_reference,omitempty"`

	TransactionRef string `json:"transaction_ref,omitempty"`
}

// SetMethod switches the payment method and clears every field that
// belongs to another method, so no stale sensitive data survives a
// switch (a card number must not linger after moving to bank transfer).
func (d *Details) SetMethod(m Method) {
	if d.Method == m {
		return
	}
	d.Method = m
	d.TransactionRef = ""
	switch m {
	case MethodMpesa:
		d.CardNumber, d.ExpiryDate, d.CVV, d.CardName = "", "", "", ""
		d.BankAccount, d.BankReference = "", ""
	case MethodCard:
		d.Phone = ""
		d.BankAccount, d.BankReference = "", ""
	case MethodBank:
		d.Phone = ""
		d.CardNumber, d.ExpiryDate, d.CVV, d.CardName = "", "", "", ""
	}
}

// Confirmed reports whether a flow has produced a transaction
// reference for this payment.
func (d Details) Confirmed() bool {
	return d.TransactionRef != ""
}

// FieldErrors maps field name to message, for form-level display.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msg := range e {
		parts = append(parts, field+": "+msg)
	}
	return "invalid fields: " + strings.Join(parts, "; ")
}

// Mobile money numbers are country-code-prefixed: 254 followed by nine
// digits, no plus sign.
var phonePattern = regexp.MustCompile(`^254\d{9}$`)

func ValidatePhone(phone string) FieldErrors {
	if !phonePattern.MatchString(phone) {
		return FieldErrors{"phone": "enter a valid phone number, e.g. 254712345678"}
	}
	return nil
}

// CardInput is the raw card form data, validated locally before any
// network call.
type CardInput struct {
	Number string `json:"number"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
	Name   string `json:"name"`
}

var (
	cardNumberPattern = regexp.MustCompile(`^\d{16}$`)
	expiryPattern     = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	cvvPattern        = regexp.MustCompile(`^\d{3,4}$`)
)

// Validate checks the card locally: 16 digits (spaces between groups
// allowed), MM/YY expiry not in the past, 3-4 digit CVV, non-empty
// holder name.
func (c CardInput) Validate() FieldErrors {
	errs := FieldErrors{}
	if strings.TrimSpace(c.Name) == "" {
		errs["name"] = "cardholder name is required"
	}
	if !cardNumberPattern.MatchString(strings.ReplaceAll(c.Number, " ", "")) {
		errs["number"] = "invalid card number"
	}
	if !expiryPattern.MatchString(c.Expiry) {
		errs["expiry"] = "invalid expiry date"
	} else if expiredBy(c.Expiry, time.Now()) {
		errs["expiry"] = "card has expired"
	}
	if !cvvPattern.MatchString(c.CVV) {
		errs["cvv"] = "invalid CVV"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// expiredBy reports whether an MM/YY expiry has passed. A card stays
// valid through the last day of its expiry month.
func expiredBy(expiry string, now time.Time) bool {
	month, _ := strconv.Atoi(expiry[:2])
	year, _ := strconv.Atoi(expiry[3:])
	endOfMonth := time.Date(2000+year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	return !endOfMonth.After(now)
}

// Normalized returns the card number with grouping spaces removed.
func (c CardInput) Normalized() CardInput {
	c.Number = strings.ReplaceAll(c.Number, " ", "")
	return c
}

// Status of an asynchronous payment as reported by the backend.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)
