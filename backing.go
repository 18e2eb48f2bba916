package datacache

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"time"

	"github.com/unkn0wn-root/datacache/internal/util"
	"github.com/unkn0wn-root/datacache/internal/wire"
	pr "github.com/unkn0wn-root/datacache/provider"
	"github.com/unkn0wn-root/datacache/tokens"
)

// CostFunc computes the provider cost of a stored frame.
type CostFunc func(key string, raw []byte, deps int) int64

// StoreOptions configures NewStore.
type StoreOptions struct {
	// Provider is the byte store entries live in. Required.
	Provider pr.Provider

	// Tokens tracks dependency versions. Default: tokens.NewLocal.
	// Use tokens.Redis when several processes share one Provider.
	Tokens tokens.Tracker
	// Sweep/retention of the default local tracker.
	// Default: 1h / 30d.
	TokenSweep     time.Duration
	TokenRetention time.Duration

	// ComputeCost feeds Provider.Set. Default: 1 per entry.
	ComputeCost CostFunc

	// Now is the clock behind frame deadlines. Default: time.Now.
	Now func() time.Time

	Logger Logger
	Hooks  Hooks
}

type backingStore struct {
	provider  pr.Provider
	toucher   pr.Toucher // nil when the provider cannot move a TTL
	tokens    tokens.Tracker
	ownTokens bool
	cost      CostFunc
	now       func() time.Time
	log       Logger
	hooks     Hooks

	// writes serializes provider writes and deletes per key
	writes *stripedLocker
}

var _ Store = (*backingStore)(nil)

// NewStore returns a Store that keeps framed entries in a provider and
// validates them against dependency token versions on every read.
// Entries whose tokens moved since they were written are deleted on read.
//
// Sliding expiration uses provider.Toucher when the provider has it.
// Otherwise the frame carries its own deadline: a read past it is a miss,
// and a read in the second half of the window rewrites the frame with a
// fresh deadline.
func NewStore(opts StoreOptions) (Store, error) {
	if opts.Provider == nil {
		return nil, errors.New("datacache: provider is required")
	}

	s := &backingStore{
		provider: opts.Provider,
		log:      loggerOrNop(opts.Logger),
		hooks:    hooksOrNop(opts.Hooks),
		cost:     opts.ComputeCost,
		now:      opts.Now,
		writes:   newStripedLocker(defaultLockStripes),
	}
	if t, ok := opts.Provider.(pr.Toucher); ok {
		s.toucher = t
	}
	if s.cost == nil {
		s.cost = func(string, []byte, int) int64 { return 1 }
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Tokens != nil {
		s.tokens = opts.Tokens
	} else {
		s.tokens = tokens.NewLocal(
			coalesce(opts.TokenSweep, defaultTokenSweep),
			coalesce(opts.TokenRetention, defaultTokenRetention),
		)
		s.ownTokens = true
	}
	return s, nil
}

func (s *backingStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, ok, err := s.provider.Get(ctx, key)
	if err != nil || !ok {
		return Entry{}, false, err
	}

	f, err := wire.Decode(raw)
	if err != nil {
		s.heal(ctx, key, raw, "corrupt")
		return Entry{}, false, nil
	}

	renew := false
	if f.Deadline != 0 {
		left := time.Duration(f.Deadline - s.now().UnixNano())
		if left <= 0 {
			s.heal(ctx, key, raw, "expired")
			return Entry{}, false, nil
		}
		renew = left < f.Sliding/2
	}

	if len(f.Deps) > 0 {
		keys := make([]string, len(f.Deps))
		for i, d := range f.Deps {
			keys[i] = d.Key
		}
		cur, err := s.tokens.Versions(ctx, keys)
		if err != nil {
			// keep the entry; a tracker outage is not proof it is stale
			s.log.Warn("token snapshot error", Fields{"key": util.Redact(key), "deps": len(keys), "err": err})
			return Entry{}, false, nil
		}
		for _, d := range f.Deps {
			if cur[d.Key] != d.Version {
				s.heal(ctx, key, raw, "stale_dependency")
				return Entry{}, false, nil
			}
		}
	}

	switch {
	case renew:
		s.refresh(ctx, key, raw, f)
	case f.Sliding > 0 && s.toucher != nil:
		if _, err := s.toucher.Touch(ctx, key, f.Sliding); err != nil {
			s.log.Debug("touch failed", Fields{"key": util.Redact(key), "err": err})
		}
	}
	return Entry{Shape: Shape(f.Shape), Data: f.Payload}, true, nil
}

func (s *backingStore) Add(ctx context.Context, key string, e Entry, exp Expiration, deps []Dependency) error {
	keys := depKeys(deps)
	var cur map[string]uint64
	if len(keys) > 0 {
		var err error
		if cur, err = s.tokens.Versions(ctx, keys); err != nil {
			return err
		}
	}

	f := wire.Frame{
		Shape:   byte(e.Shape),
		Sliding: exp.Sliding,
		Payload: e.Data,
	}
	if exp.Sliding > 0 && s.toucher == nil {
		f.Deadline = s.now().Add(exp.Sliding).UnixNano()
	}
	if len(keys) > 0 {
		f.Deps = make([]wire.Dep, len(keys))
		for i, k := range keys {
			f.Deps[i] = wire.Dep{Key: k, Version: cur[k]}
		}
	}
	raw, err := wire.Encode(f)
	if err != nil {
		return err
	}

	unlock, err := s.writes.Lock(ctx, key)
	if err != nil {
		return err
	}
	ok, err := s.provider.Set(ctx, key, raw, s.cost(key, raw, len(keys)), exp.Sliding)
	unlock()
	if err != nil {
		return err
	}
	if !ok {
		s.hooks.StoreRejected(key)
		s.log.Debug("Set rejected by provider (pressure)", Fields{"key": util.Redact(key)})
	}
	return nil
}

func (s *backingStore) Remove(ctx context.Context, key string) error {
	unlock, err := s.writes.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return s.provider.Del(ctx, key)
}

func (s *backingStore) Invalidate(ctx context.Context, deps ...Dependency) error {
	var failed map[Dependency]error
	for _, d := range deps {
		v, err := s.tokens.Fire(ctx, d.key())
		if err != nil {
			if failed == nil {
				failed = make(map[Dependency]error)
			}
			failed[d] = err
			s.log.Error("token fire error", Fields{"dep": d.String(), "err": err})
			continue
		}
		s.hooks.DependencyFired(d)
		s.log.Debug("dependency fired", Fields{"dep": d.String(), "version": v})
	}
	if failed != nil {
		return &InvalidateError{Failed: failed}
	}
	return nil
}

func (s *backingStore) Close(ctx context.Context) error {
	if s.ownTokens {
		_ = s.tokens.Close(ctx)
	}
	return s.provider.Close(ctx)
}

// heal deletes key if it still holds raw.
func (s *backingStore) heal(ctx context.Context, key string, raw []byte, reason string) {
	s.holding(ctx, key, raw, func() {
		_ = s.provider.Del(ctx, key)
	})
	s.hooks.SelfHeal(key, reason)
}

// refresh rewrites f with a new deadline if key still holds raw. Best effort.
func (s *backingStore) refresh(ctx context.Context, key string, raw []byte, f wire.Frame) {
	f.Deadline = s.now().Add(f.Sliding).UnixNano()
	b, err := wire.Encode(f)
	if err != nil {
		return
	}
	s.holding(ctx, key, raw, func() {
		if _, err := s.provider.Set(ctx, key, b, s.cost(key, b, len(f.Deps)), f.Sliding); err != nil {
			s.log.Debug("sliding refresh failed", Fields{"key": util.Redact(key), "err": err})
		}
	})
}

// holding runs fn under key's write lock when the provider still holds raw
// at key. A concurrent clear or repopulation makes it a no-op.
func (s *backingStore) holding(ctx context.Context, key string, raw []byte, fn func()) {
	unlock, err := s.writes.Lock(ctx, key)
	if err != nil {
		return
	}
	defer unlock()
	cur, ok, err := s.provider.Get(ctx, key)
	if err != nil || !ok || !bytes.Equal(cur, raw) {
		return
	}
	fn()
}

// depKeys maps deps to token keys, sorted and deduplicated.
func depKeys(deps []Dependency) []string {
	if len(deps) == 0 {
		return nil
	}
	keys := make([]string, 0, len(deps))
	for _, d := range deps {
		keys = append(keys, d.key())
	}
	sort.Strings(keys)
	out := keys[:1]
	for _, k := range keys[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}
