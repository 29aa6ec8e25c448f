package application

import (
	"context"

	"github.com/adfinitum/storefront/internal/cart/domain"
)

// API is the remote cart service. Every call returns the server's
// authoritative snapshot after the operation.
type API interface {
	Get(ctx context.Context) (domain.Snapshot, error)
	AddItem(ctx context.Context, productID string, quantity int) (domain.Snapshot, error)
	UpdateItem(ctx context.Context, lineID string, quantity int) (domain.Snapshot, error)
	RemoveItem(ctx context.Context, lineID string) (domain.Snapshot, error)
	Clear(ctx context.Context) (domain.Snapshot, error)
}

// SnapshotCache persists the last known snapshot so a fresh process can
// render stale-but-plausible data before the remote fetch completes.
type SnapshotCache interface {
	Load(ctx context.Context) (domain.Snapshot, error)
	Save(ctx context.Context, snap domain.Snapshot) error
	Drop(ctx context.Context) error
}
