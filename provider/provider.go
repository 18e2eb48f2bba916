// Package provider defines the byte store underneath datacache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation).
//
// Important: datacache owns the frames it writes. External code MUST NOT
// write values under keys a Service manages; foreign bytes fail strict
// frame validation and are deleted on read.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs.
// Must be safe for concurrent use. A value passed to Set must be visible
// to Get once Set returns.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<= 0 means no expiry).
	// May ignore cost if unsupported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort). Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Toucher is implemented by providers that can push an entry's TTL
// forward without rewriting the value. Sliding expiration uses it when
// available and falls back to Set otherwise.
type Toucher interface {
	// Touch resets key's TTL. ok=false means the key was not present.
	Touch(ctx context.Context, key string, ttl time.Duration) (ok bool, err error)
}
