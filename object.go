package datacache

import (
	"context"
	"fmt"
)

// CacheObject stores v under key with the default sliding expiration and
// no dependencies. It overwrites whatever key held.
func CacheObject[V any](ctx context.Context, s *Service, key string, v V) error {
	if key == "" {
		return ErrEmptyKey
	}
	if !s.enabled {
		return nil
	}
	if s.closed.Load() {
		return ErrClosed
	}
	b, err := s.ser.Marshal(v)
	if err != nil {
		return fmt.Errorf("datacache: encode: %w", err)
	}
	return s.store.Add(ctx, key, Entry{Shape: ShapeObject, Data: b}, s.expiration(0), nil)
}

// GetObject returns the object CacheObject stored under key.
func GetObject[V any](ctx context.Context, s *Service, key string) (V, bool, error) {
	var zero V
	if key == "" {
		return zero, false, ErrEmptyKey
	}
	if !s.enabled {
		return zero, false, nil
	}
	return read[V](ctx, s, key, ShapeObject)
}
