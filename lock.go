package datacache

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

// LockMode selects how population is serialized.
type LockMode int

const (
	// LockGlobal serializes every population of a Service behind one lock.
	LockGlobal LockMode = iota
	// LockStriped hashes the storage key onto a fixed set of locks, so
	// populations of unrelated keys rarely wait on each other.
	LockStriped
)

func (m LockMode) String() string {
	switch m {
	case LockGlobal:
		return "global"
	case LockStriped:
		return "striped"
	default:
		return fmt.Sprintf("LockMode(%d)", int(m))
	}
}

// ParseLockMode is the inverse of LockMode.String. "" is LockGlobal.
func ParseLockMode(s string) (LockMode, error) {
	switch s {
	case "", "global":
		return LockGlobal, nil
	case "striped":
		return LockStriped, nil
	default:
		return 0, fmt.Errorf("datacache: unknown lock mode %q", s)
	}
}

// Locker serializes populations. Lock blocks until the lock covering key
// is held or ctx is done; unlock must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// NewLocker returns the Locker for mode. stripes is rounded up to a power
// of two and ignored for LockGlobal.
func NewLocker(mode LockMode, stripes int) Locker {
	if mode == LockStriped {
		return newStripedLocker(stripes)
	}
	return &globalLocker{mu: newChanMutex()}
}

// chanMutex is a mutex whose acquisition can be abandoned.
type chanMutex chan struct{}

func newChanMutex() chanMutex { return make(chanMutex, 1) }

func (m chanMutex) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case m <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m chanMutex) unlock() { <-m }

func (m chanMutex) unlocker() func() {
	done := false
	return func() {
		if !done {
			done = true
			m.unlock()
		}
	}
}

type globalLocker struct {
	mu chanMutex
}

func (l *globalLocker) Lock(ctx context.Context, _ string) (func(), error) {
	if err := l.mu.lock(ctx); err != nil {
		return nil, err
	}
	return l.mu.unlocker(), nil
}

type stripedLocker struct {
	stripes []chanMutex
	mask    uint64
}

func newStripedLocker(n int) *stripedLocker {
	n = coalesce(n, defaultLockStripes)
	if n < 1 {
		n = 1
	}
	if n&(n-1) != 0 {
		n = 1 << bits.Len(uint(n))
	}
	l := &stripedLocker{stripes: make([]chanMutex, n), mask: uint64(n - 1)}
	for i := range l.stripes {
		l.stripes[i] = newChanMutex()
	}
	return l
}

func (l *stripedLocker) stripe(key string) uint64 { return xxhash.Sum64String(key) & l.mask }

func (l *stripedLocker) Lock(ctx context.Context, key string) (func(), error) {
	mu := l.stripes[l.stripe(key)]
	if err := mu.lock(ctx); err != nil {
		return nil, err
	}
	return mu.unlocker(), nil
}
