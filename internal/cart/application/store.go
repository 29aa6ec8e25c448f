package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/adfinitum/storefront/internal/cart/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// CartError marks a failed cart operation. The in-memory state before
// the operation is always preserved when one is returned.
type CartError struct {
	Op  string
	Err error
}

func (e *CartError) Error() string { return fmt.Sprintf("cart %s: %v", e.Op, e.Err) }
func (e *CartError) Unwrap() error { return e.Err }

// Store is the single source of truth for cart contents as seen by the
// UI. The remote service is authoritative when reachable; the injected
// cache is the read fallback.
type Store struct {
	log   *slog.Logger
	api   API
	cache SnapshotCache

	sfg singleflight.Group

	// opMu is the single in-flight-mutation slot: overlapping
	// mutations queue here instead of interleaving remote calls.
	opMu sync.Mutex

	mu      sync.Mutex
	snap    domain.Snapshot
	busy    bool
	lastErr error
}

func NewStore(log *slog.Logger, api API, cache SnapshotCache) *Store {
	return &Store{log: log, api: api, cache: cache}
}

// Load fetches the canonical cart from the remote service, falling
// back to the cached snapshot (or an empty cart) on any failure.
// Failures never escape this boundary; they are recorded and readable
// via LastError. Concurrent loads collapse into one remote call.
func (s *Store) Load(ctx context.Context) domain.Snapshot {
	v, _, _ := s.sfg.Do("load", func() (any, error) {
		snap, err := s.api.Get(ctx)
		if err != nil {
			s.log.Warn("cart load failed, using cached snapshot", "err", err)
			return s.loadFallback(ctx, err), nil
		}

		s.mu.Lock()
		s.snap = snap
		s.lastErr = nil
		s.mu.Unlock()

		if err := s.cache.Save(ctx, snap); err != nil {
			s.log.Warn("cart cache save failed", "err", err)
		}
		return snap, nil
	})
	return v.(domain.Snapshot)
}

func (s *Store) loadFallback(ctx context.Context, cause error) domain.Snapshot {
	snap, cacheErr := s.cache.Load(ctx)
	if cacheErr != nil {
		snap = domain.Snapshot{}
	}

	s.mu.Lock()
	s.snap = snap
	s.lastErr = &CartError{Op: "load", Err: cause}
	s.mu.Unlock()
	return snap
}

// AddItem merges quantity of product into the cart: an existing line
// for the product is incremented, otherwise a new line is created. The
// mutation is applied optimistically and reconciled with the server's
// authoritative response; on failure the prior state is restored.
func (s *Store) AddItem(ctx context.Context, p domain.Product, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}
	return s.mutate(ctx, "add",
		func(snap domain.Snapshot) domain.Snapshot {
			return snap.Merge(uuid.NewString(), p, quantity)
		},
		func(ctx context.Context) (domain.Snapshot, error) {
			return s.api.AddItem(ctx, p.ID, quantity)
		},
	)
}

// UpdateQuantity sets a line's quantity directly. Zero or negative is
// equivalent to RemoveItem.
func (s *Store) UpdateQuantity(ctx context.Context, lineID string, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, lineID)
	}
	return s.mutate(ctx, "update",
		func(snap domain.Snapshot) domain.Snapshot { return snap.SetQuantity(lineID, quantity) },
		func(ctx context.Context) (domain.Snapshot, error) {
			return s.api.UpdateItem(ctx, lineID, quantity)
		},
	)
}

// RemoveItem deletes a line. Removing a line that does not exist is a
// no-op, not an error, and makes no remote call.
func (s *Store) RemoveItem(ctx context.Context, lineID string) error {
	s.mu.Lock()
	_, exists := s.snap.Line(lineID)
	s.mu.Unlock()
	if !exists {
		return nil
	}
	return s.mutate(ctx, "remove",
		func(snap domain.Snapshot) domain.Snapshot { return snap.Remove(lineID) },
		func(ctx context.Context) (domain.Snapshot, error) {
			return s.api.RemoveItem(ctx, lineID)
		},
	)
}

// Clear empties the cart. Called exactly once after a successful order
// placement.
func (s *Store) Clear(ctx context.Context) error {
	err := s.mutate(ctx, "clear",
		func(domain.Snapshot) domain.Snapshot { return domain.Snapshot{} },
		func(ctx context.Context) (domain.Snapshot, error) {
			return s.api.Clear(ctx)
		},
	)
	if err != nil {
		return err
	}
	if dropErr := s.cache.Drop(ctx); dropErr != nil {
		s.log.Warn("cart cache drop failed", "err", dropErr)
	}
	return nil
}

// mutate serializes cart mutations through a single in-flight slot:
// apply locally, round-trip through the remote service, then adopt the
// server's snapshot. Any remote failure restores the prior state.
func (s *Store) mutate(
	ctx context.Context,
	op string,
	local func(domain.Snapshot) domain.Snapshot,
	remote func(context.Context) (domain.Snapshot, error),
) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	prior := s.snap.Clone()
	s.snap = local(s.snap)
	s.busy = true
	s.mu.Unlock()

	serverSnap, err := remote(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false

	if err != nil {
		s.snap = prior
		s.lastErr = &CartError{Op: op, Err: err}
		s.log.Warn("cart mutation failed, state preserved", "op", op, "err", err)
		return s.lastErr
	}

	s.snap = serverSnap
	s.lastErr = nil
	if cacheErr := s.cache.Save(ctx, serverSnap); cacheErr != nil {
		s.log.Warn("cart cache save failed", "op", op, "err", cacheErr)
	}
	return nil
}

// Snapshot returns the current cart contents.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Busy reports whether a mutation is in flight, so the UI can disable
// duplicate submissions.
func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// LastError returns the most recent non-fatal failure, or nil.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
