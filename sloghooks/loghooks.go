// Package sloghooks logs datacache hook events through log/slog.
package sloghooks

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/datacache"
	"github.com/unkn0wn-root/datacache/internal/util"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitEvery      uint64
	MissEvery     uint64
	SelfHealEvery uint64
	// Skip populations faster than this. 0 = log all.
	SlowPopulate time.Duration
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr      atomic.Uint64
	missCtr     atomic.Uint64
	selfHealCtr atomic.Uint64
}

var _ datacache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return util.Redact(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Hit(key string, shape datacache.Shape) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("datacache.hit", "key", h.redact(key), "shape", shape.String())
}

func (h *Hooks) Miss(key string, shape datacache.Shape) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("datacache.miss", "key", h.redact(key), "shape", shape.String())
}

func (h *Hooks) Populated(key string, shape datacache.Shape, items int, took time.Duration) {
	if h.l == nil || took < h.opts.SlowPopulate {
		return
	}
	h.l.Info("datacache.populated",
		"key", h.redact(key),
		"shape", shape.String(),
		"items", items,
		"took", took)
}

func (h *Hooks) PopulateRaced(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("datacache.populate_raced", "key", h.redact(key))
}

func (h *Hooks) PopulateFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("datacache.populate_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) LockWaited(key string, waited time.Duration) {
	if h.l == nil || waited < h.opts.SlowPopulate || h.opts.SlowPopulate == 0 {
		return
	}
	h.l.Info("datacache.lock_waited",
		"key", h.redact(key),
		"waited", waited)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("datacache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) StoreRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("datacache.store_rejected", "key", h.redact(storageKey))
}

func (h *Hooks) DependencyFired(dep datacache.Dependency) {
	if h.l == nil {
		return
	}
	h.l.Debug("datacache.dependency_fired",
		"type", dep.Type,
		"id", dep.ID.String())
}
