// Package tokens tracks a version counter per dependency token.
//
// A cached entry records the version of every token it depends on when it
// is written. Firing a token bumps its version, so every entry recorded
// against the old version is stale on its next read. Missing tokens are at
// version 0.
package tokens

import (
	"context"
	"time"
)

// Tracker abstracts where token versions live.
// Use Local (default) for a single process, or Redis when several
// processes share one provider.
type Tracker interface {
	// Version returns the current version of key; missing => 0.
	Version(ctx context.Context, key string) (uint64, error)
	// Versions returns versions for many keys; missing => 0.
	Versions(ctx context.Context, keys []string) (map[string]uint64, error)
	// Fire atomically increments and returns the new version.
	Fire(ctx context.Context, key string) (uint64, error)
	// Cleanup prunes old metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
