// Package authtoken keeps the access/refresh token pair for the remote
// storefront API. Tokens live in an injected kvstore so the package
// works the same against memory (tests) and redis (production).
package authtoken

import (
	"context"
	"errors"

	"github.com/adfinitum/storefront/pkg/kvstore"
)

const (
	accessKey  = "auth:access"
	refreshKey = "auth:refresh"
)

var ErrNoToken = errors.New("authtoken: no token stored")

type Store struct {
	kv kvstore.Store
}

func NewStore(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

func (s *Store) Access(ctx context.Context) (string, error) {
	return s.get(ctx, accessKey)
}

func (s *Store) Refresh(ctx context.Context) (string, error) {
	return s.get(ctx, refreshKey)
}

func (s *Store) SetPair(ctx context.Context, access, refresh string) error {
	if err := s.kv.Set(ctx, accessKey, []byte(access)); err != nil {
		return err
	}
	return s.kv.Set(ctx, refreshKey, []byte(refresh))
}

// SetAccess replaces only the access token, keeping the refresh token.
// Used after a successful token refresh.
func (s *Store) SetAccess(ctx context.Context, access string) error {
	return s.kv.Set(ctx, accessKey, []byte(access))
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, accessKey); err != nil {
		return err
	}
	return s.kv.Delete(ctx, refreshKey)
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, err := s.kv.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}
