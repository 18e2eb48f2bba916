// usage:
//
//	import (
//		"log/slog"
//
//		"github.com/unkn0wn-root/datacache"
//		asynchook "github.com/unkn0wn-root/datacache/hooks/async"
//		"github.com/unkn0wn-root/datacache/sloghooks"
//		"github.com/unkn0wn-root/datacache/tokens"
//	)
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    HitEvery:      100, // sample logs: ~every 100th hit
//	    SelfHealEvery: 10,
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	store, _ := datacache.NewStore(datacache.StoreOptions{
//	    Provider: provider,
//	    Tokens:   tokens.NewRedisWithTTL(rdb, "app:prod", 24*time.Hour),
//	    Hooks:    hooks,
//	})
//	svc, _ := datacache.New(datacache.Options{
//	    Store: store,
//	    Hooks: hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/datacache"
)

type Hooks struct {
	inner   datacache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

var _ datacache.Hooks = (*Hooks)(nil)

func New(inner datacache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped is the number of events discarded because the queue was full.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	defer func() {
		// send on a closed queue after Close
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) Hit(k string, s datacache.Shape)  { h.try(func() { h.inner.Hit(k, s) }) }
func (h *Hooks) Miss(k string, s datacache.Shape) { h.try(func() { h.inner.Miss(k, s) }) }
func (h *Hooks) PopulateRaced(k string)           { h.try(func() { h.inner.PopulateRaced(k) }) }
func (h *Hooks) StoreRejected(k string)           { h.try(func() { h.inner.StoreRejected(k) }) }
func (h *Hooks) SelfHeal(k, r string)             { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) Populated(k string, s datacache.Shape, n int, took time.Duration) {
	h.try(func() { h.inner.Populated(k, s, n, took) })
}
func (h *Hooks) PopulateFailed(k string, err error) {
	h.try(func() { h.inner.PopulateFailed(k, err) })
}
func (h *Hooks) LockWaited(k string, waited time.Duration) {
	h.try(func() { h.inner.LockWaited(k, waited) })
}
func (h *Hooks) DependencyFired(d datacache.Dependency) {
	h.try(func() { h.inner.DependencyFired(d) })
}
