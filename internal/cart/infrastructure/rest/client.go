// Package rest talks to the remote cart service. The backend returns
// the full cart after every mutation; this client maps that wire shape
// onto the domain snapshot.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/adfinitum/storefront/internal/cart/domain"
	"github.com/adfinitum/storefront/pkg/restclient"
)

type Client struct {
	rc *restclient.Client
}

func NewClient(rc *restclient.Client) *Client {
	return &Client{rc: rc}
}

type wireCart struct {
	ID    int64      `json:"id"`
	Items []wireItem `json:"items"`
}

type wireItem struct {
	ID      int64 `json:"id"`
	Product struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Price    int64  `json:"price"`
		Image    string `json:"image"`
		Category string `json:"category"`
	} `json:"product"`
	Quantity int   `json:"quantity"`
	Price    int64 `json:"price"`
}

func (w wireCart) snapshot() domain.Snapshot {
	snap := domain.Snapshot{Items: make([]domain.LineItem, 0, len(w.Items))}
	for _, it := range w.Items {
		unit := it.Price
		if unit == 0 {
			unit = it.Product.Price
		}
		snap.Items = append(snap.Items, domain.LineItem{
			ID:        strconv.FormatInt(it.ID, 10),
			ProductID: strconv.FormatInt(it.Product.ID, 10),
			Name:      it.Product.Name,
			UnitPrice: unit,
			Quantity:  it.Quantity,
			Image:     it.Product.Image,
			Category:  it.Product.Category,
		})
	}
	return snap
}

func (c *Client) Get(ctx context.Context) (domain.Snapshot, error) {
	var cart wireCart
	if err := c.rc.Do(ctx, http.MethodGet, "/cart/", nil, &cart); err != nil {
		return domain.Snapshot{}, err
	}
	return cart.snapshot(), nil
}

func (c *Client) AddItem(ctx context.Context, productID string, quantity int) (domain.Snapshot, error) {
	pid, err := strconv.ParseInt(productID, 10, 64)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("invalid product id %q: %w", productID, err)
	}
	body := map[string]any{"product_id": pid, "quantity": quantity}
	var cart wireCart
	if err := c.rc.Do(ctx, http.MethodPost, "/cart/items/", body, &cart); err != nil {
		return domain.Snapshot{}, err
	}
	return cart.snapshot(), nil
}

func (c *Client) UpdateItem(ctx context.Context, lineID string, quantity int) (domain.Snapshot, error) {
	var cart wireCart
	body := map[string]int{"quantity": quantity}
	if err := c.rc.Do(ctx, http.MethodPatch, "/cart/items/"+lineID+"/", body, &cart); err != nil {
		return domain.Snapshot{}, err
	}
	return cart.snapshot(), nil
}

func (c *Client) RemoveItem(ctx context.Context, lineID string) (domain.Snapshot, error) {
	if err := c.rc.Do(ctx, http.MethodDelete, "/cart/items/"+lineID+"/", nil, nil); err != nil {
		return domain.Snapshot{}, err
	}
	// Deletion returns no body; fetch the authoritative state.
	return c.Get(ctx)
}

func (c *Client) Clear(ctx context.Context) (domain.Snapshot, error) {
	if err := c.rc.Do(ctx, http.MethodPost, "/cart/clear/", nil, nil); err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{}, nil
}
