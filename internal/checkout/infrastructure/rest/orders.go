// Package rest submits completed checkouts to the remote order
// service.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/adfinitum/storefront/internal/checkout/application"
	"github.com/adfinitum/storefront/internal/checkout/domain"
	"github.com/adfinitum/storefront/pkg/restclient"
)

type OrderClient struct {
	rc *restclient.Client
}

func NewOrderClient(rc *restclient.Client) *OrderClient {
	return &OrderClient{rc: rc}
}

type wireOrderItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	Price     int64 `json:"price"`
}

type wireOrder struct {
	OrderRef       string          `json:"order_ref"`
	Items          []wireOrderItem `json:"items"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	Address        string          `json:"address"`
	City           string          `json:"city"`
	PostalCode     string          `json:"postal_code"`
	DeliveryMethod string          `json:"delivery_method"`
	Notes          string          `json:"notes,omitempty"`
	PaymentMethod  string          `json:"payment_method"`
	TransactionRef string          `json:"transaction_ref"`
	Subtotal       int64           `json:"subtotal"`
	ShippingFee    int64           `json:"shipping_fee"`
	Tax            int64           `json:"tax"`
	Total          int64           `json:"total"`
}

type wireConfirmation struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

func (c *OrderClient) Create(ctx context.Context, draft application.OrderDraft) (domain.Confirmation, error) {
	body := wireOrder{
		OrderRef:       draft.OrderRef,
		Items:          make([]wireOrderItem, 0, len(draft.Items)),
		FirstName:      draft.Shipping.FirstName,
		LastName:       draft.Shipping.LastName,
		Email:          draft.Shipping.Email,
		Phone:          draft.Shipping.Phone,
		Address:        draft.Shipping.Address,
		City:           draft.Shipping.City,
		PostalCode:     draft.Shipping.PostalCode,
		DeliveryMethod: string(draft.Shipping.DeliveryMethod),
		Notes:          draft.Shipping.Notes,
		PaymentMethod:  string(draft.Payment.Method),
		TransactionRef: draft.Payment.TransactionRef,
		Subtotal:       draft.Totals.Subtotal,
		ShippingFee:    draft.Totals.Shipping,
		Tax:            draft.Totals.Tax,
		Total:          draft.Totals.Total,
	}
	for _, item := range draft.Items {
		pid, err := strconv.ParseInt(item.ProductID, 10, 64)
		if err != nil {
			return domain.Confirmation{}, fmt.Errorf("invalid product id %q: %w", item.ProductID, err)
		}
		body.Items = append(body.Items, wireOrderItem{ProductID: pid, Quantity: item.Quantity, Price: item.UnitPrice})
	}

	var conf wireConfirmation
	if err := c.rc.Do(ctx, http.MethodPost, "/orders/", body, &conf); err != nil {
		return domain.Confirmation{}, err
	}
	return domain.Confirmation{
		OrderID: strconv.FormatInt(conf.OrderID, 10),
		Status:  conf.Status,
	}, nil
}
