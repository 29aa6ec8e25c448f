// Package cache persists the last known cart snapshot in the injected
// kvstore under a fixed key, mirroring the web client's local cart copy.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/adfinitum/storefront/internal/cart/domain"
	"github.com/adfinitum/storefront/pkg/kvstore"
)

const snapshotKey = "adfinitum:cart"

type SnapshotCache struct {
	kv kvstore.Store
}

func New(kv kvstore.Store) *SnapshotCache {
	return &SnapshotCache{kv: kv}
}

func (c *SnapshotCache) Load(ctx context.Context) (domain.Snapshot, error) {
	data, err := c.kv.Get(ctx, snapshotKey)
	if err != nil {
		return domain.Snapshot{}, err
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("unmarshal cached cart: %w", err)
	}
	return snap, nil
}

func (c *SnapshotCache) Save(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal cart snapshot: %w", err)
	}
	return c.kv.Set(ctx, snapshotKey, data)
}

func (c *SnapshotCache) Drop(ctx context.Context) error {
	return c.kv.Delete(ctx, snapshotKey)
}
