// Package rest talks to the remote payment service.
package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/adfinitum/storefront/internal/payment/domain"
	"github.com/adfinitum/storefront/pkg/restclient"
)

type Client struct {
	rc *restclient.Client
}

func NewClient(rc *restclient.Client) *Client {
	return &Client{rc: rc}
}

func (c *Client) InitiateMobilePayment(ctx context.Context, orderRef string, amount int64, phone string) (string, error) {
	body := map[string]any{
		"order_ref":    orderRef,
		"amount":       amount,
		"phone_number": phone,
	}
	var res struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := c.rc.Do(ctx, http.MethodPost, "/payments/mpesa/initiate/", body, &res); err != nil {
		return "", err
	}
	if res.TransactionID == "" {
		return "", fmt.Errorf("initiate response missing transaction id")
	}
	return res.TransactionID, nil
}

func (c *Client) MobilePaymentStatus(ctx context.Context, transactionID string) (domain.Status, error) {
	var res struct {
		Status string `json:"status"`
	}
	if err := c.rc.Do(ctx, http.MethodGet, "/payments/"+transactionID+"/", nil, &res); err != nil {
		return "", err
	}
	switch s := domain.Status(res.Status); s {
	case domain.StatusPending, domain.StatusSuccess, domain.StatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("unknown payment status %q", res.Status)
	}
}

func (c *Client) ChargeCard(ctx context.Context, card domain.CardInput, amount int64) (string, error) {
	body := map[string]any{
		"card_number":     card.Number,
		"expiry_date":     card.Expiry,
		"cvv":             card.CVV,
		"cardholder_name": card.Name,
		"amount":          amount,
	}
	var res struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := c.rc.Do(ctx, http.MethodPost, "/payments/card/", body, &res); err != nil {
		return "", err
	}
	if res.TransactionID == "" {
		return "", fmt.Errorf("charge response missing transaction id")
	}
	return res.TransactionID, nil
}

func (c *Client) SubmitBankClaim(ctx context.Context, orderRef, reference string) error {
	body := map[string]string{
		"order_ref": orderRef,
		"reference": reference,
	}
	return c.rc.Do(ctx, http.MethodPost, "/payments/bank/submit/", body, nil)
}
