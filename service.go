package datacache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/datacache/codec"
	"github.com/unkn0wn-root/datacache/internal/util"
)

// Options configures a Service.
type Options struct {
	// Store holds populated entries. Required. Closed by Service.Close.
	Store Store
	// Serializer encodes collections for the Store. Default: codec.JSON.
	Serializer codec.Serializer

	// DefaultExpiration is the sliding expiration used when a call passes
	// no override (<= 0). Default: 60 minutes.
	DefaultExpiration time.Duration

	// Disabled bypasses the Store entirely: reads materialize directly
	// from the query they would populate from, writes and clears are
	// no-ops.
	Disabled bool

	// Lock selects the population lock. Default: LockGlobal.
	Lock LockMode
	// LockStripes is the stripe count for LockStriped. Default: 64.
	LockStripes int
	// Locker overrides Lock/LockStripes.
	Locker Locker

	// PopulateTimeout bounds the source query run during population.
	// 0 means no bound beyond the caller's context.
	PopulateTimeout time.Duration

	Logger Logger
	Hooks  Hooks
}

// Service is the population engine. One Service owns one Store and one
// population lock; Collections built on it share both.
type Service struct {
	store      Store
	ser        codec.Serializer
	locker     Locker
	log        Logger
	hooks      Hooks
	enabled    bool
	defaultExp atomic.Int64
	timeout    time.Duration
	closed     atomic.Bool
}

// New builds a Service.
func New(opts Options) (*Service, error) {
	if opts.Store == nil && !opts.Disabled {
		return nil, ErrNilStore
	}

	s := &Service{
		store:   opts.Store,
		ser:     opts.Serializer,
		log:     loggerOrNop(opts.Logger),
		hooks:   hooksOrNop(opts.Hooks),
		enabled: !opts.Disabled,
		timeout: opts.PopulateTimeout,
	}
	if s.ser == nil {
		s.ser = codec.JSON{}
	}
	s.defaultExp.Store(int64(DefaultExpiration))
	if opts.DefaultExpiration > 0 {
		s.defaultExp.Store(int64(opts.DefaultExpiration))
	}

	if opts.Locker != nil {
		s.locker = opts.Locker
	} else {
		s.locker = NewLocker(opts.Lock, opts.LockStripes)
	}
	return s, nil
}

func (s *Service) Enabled() bool { return s.enabled }

// DefaultExpiration returns the sliding expiration applied when a call
// passes no override.
func (s *Service) DefaultExpiration() time.Duration {
	return time.Duration(s.defaultExp.Load())
}

// SetDefaultExpiration replaces the default sliding expiration.
// Values <= 0 are ignored.
func (s *Service) SetDefaultExpiration(d time.Duration) {
	if d > 0 {
		s.defaultExp.Store(int64(d))
	}
}

// Invalidate fires the token of every dep. Each stored entry that
// recorded one of them misses on its next read.
func (s *Service) Invalidate(ctx context.Context, deps ...Dependency) error {
	if !s.enabled || len(deps) == 0 {
		return nil
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return s.store.Invalidate(ctx, deps...)
}

// ClearObject removes the single object stored under key. Clearing a
// blank or absent key is a no-op.
func (s *Service) ClearObject(ctx context.Context, key string) error {
	return s.remove(ctx, key)
}

// Close closes the Store. Closing twice is a no-op; every other operation
// fails with ErrClosed afterwards.
func (s *Service) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.store == nil {
		return nil
	}
	return s.store.Close(ctx)
}

// expiration resolves the sliding expiration for a call.
func (s *Service) expiration(override time.Duration) Expiration {
	if override > 0 {
		return Expiration{Sliding: override}
	}
	return Expiration{Sliding: s.DefaultExpiration()}
}

func (s *Service) remove(ctx context.Context, key string) error {
	if !s.enabled || key == "" {
		return nil
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return s.store.Remove(ctx, key)
}

// builder materializes one container. It returns the encoded container,
// one dependency per contributing record, and the number of records.
type builder func(ctx context.Context) (data []byte, deps []Dependency, n int, err error)

// populate runs the double-checked population protocol for key.
// With precheck=false the caller has already observed a miss.
func (s *Service) populate(ctx context.Context, key string, shape Shape, exp time.Duration, precheck bool, build builder) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if precheck {
		if _, ok, err := s.store.Get(ctx, key); err != nil || ok {
			return err
		}
	}

	start := time.Now()
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	s.hooks.LockWaited(key, time.Since(start))

	if _, ok, err := s.store.Get(ctx, key); err != nil {
		return err
	} else if ok {
		s.hooks.PopulateRaced(key)
		return nil
	}

	qctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	began := time.Now()
	data, deps, n, err := build(qctx)
	if err != nil {
		s.hooks.PopulateFailed(key, err)
		s.log.Warn("populate failed", Fields{"key": util.Redact(key), "shape": shape.String(), "err": err})
		return err
	}
	if err := s.store.Add(ctx, key, Entry{Shape: shape, Data: data}, s.expiration(exp), deps); err != nil {
		return err
	}
	took := time.Since(began)
	s.hooks.Populated(key, shape, n, took)
	s.log.Debug("populated", Fields{"key": util.Redact(key), "shape": shape.String(), "items": n, "took": took})
	return nil
}

// read fetches key and decodes it as V when it holds the wanted shape.
// An entry that no longer decodes is removed and reported as a miss.
func read[V any](ctx context.Context, s *Service, key string, shape Shape) (V, bool, error) {
	var zero V
	if s.closed.Load() {
		return zero, false, ErrClosed
	}
	e, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		s.hooks.Miss(key, shape)
		return zero, false, nil
	}
	if e.Shape != shape {
		s.log.Error("shape mismatch", Fields{"key": util.Redact(key), "want": shape.String(), "got": e.Shape.String()})
		return zero, false, &ShapeError{Key: key, Want: shape, Got: e.Shape}
	}
	v, err := codec.For[V](s.ser).Decode(e.Data)
	if err != nil {
		_ = s.store.Remove(ctx, key)
		s.hooks.SelfHeal(key, "value_decode")
		s.hooks.Miss(key, shape)
		return zero, false, nil
	}
	s.hooks.Hit(key, shape)
	return v, true, nil
}

// encode is the builder tail shared by every container form.
func encode[V any](s *Service, v V, deps []Dependency, n int) ([]byte, []Dependency, int, error) {
	b, err := codec.For[V](s.ser).Encode(v)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("datacache: encode: %w", err)
	}
	return b, deps, n, nil
}
