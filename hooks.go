package datacache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths, some of them under the population lock.
type Hooks interface {
	// A read found a value of the expected shape.
	Hit(key string, shape Shape)
	// A read found nothing.
	Miss(key string, shape Shape)

	// A collection was materialized and handed to the store.
	Populated(key string, shape Shape, items int, took time.Duration)
	// The double-check inside the lock found a value another caller stored.
	PopulateRaced(key string)
	// The source query (or descriptor population) failed; nothing was stored.
	PopulateFailed(key string, err error)
	// Time spent waiting for the population lock.
	LockWaited(key string, waited time.Duration)

	// The store deleted an entry on read.
	// reason ∈ {"corrupt", "expired", "stale_dependency", "value_decode"}
	SelfHeal(storageKey, reason string)
	// Provider returned ok=false on Set (backpressure/eviction).
	StoreRejected(storageKey string)
	// A dependency token fired.
	DependencyFired(dep Dependency)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Hit(string, Shape)                            {}
func (NopHooks) Miss(string, Shape)                           {}
func (NopHooks) Populated(string, Shape, int, time.Duration) {}
func (NopHooks) PopulateRaced(string)                         {}
func (NopHooks) PopulateFailed(string, error)                 {}
func (NopHooks) LockWaited(string, time.Duration)             {}
func (NopHooks) SelfHeal(string, string)                      {}
func (NopHooks) StoreRejected(string)                         {}
func (NopHooks) DependencyFired(Dependency)                   {}
