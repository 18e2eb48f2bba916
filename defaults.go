package datacache

import "time"

const (
	// DefaultExpiration is the factory sliding expiration.
	DefaultExpiration = 60 * time.Minute

	defaultLockStripes    = 64
	defaultTokenSweep     = time.Hour
	defaultTokenRetention = 30 * 24 * time.Hour
)

// coalesce returns def when v is the zero value of T - otherwise v.
// Scalars only: comparing an interface that holds an uncomparable value
// panics.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func loggerOrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}

func hooksOrNop(h Hooks) Hooks {
	if h == nil {
		return NopHooks{}
	}
	return h
}
