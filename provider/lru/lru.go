// Package lru is an in-process provider bounded by entry count, built on
// hashicorp/golang-lru. Each entry carries its own deadline; expired
// entries are dropped lazily on access. Touch moves the deadline of the
// stored entry in place and never re-inserts it.
package lru

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	hlru "github.com/hashicorp/golang-lru/v2"

	pr "github.com/unkn0wn-root/datacache/provider"
)

const defaultSize = 10_000

type entry struct {
	v   []byte
	exp atomic.Int64 // unix nanos; 0 => no TTL
}

type Provider struct {
	c   *hlru.Cache[string, *entry]
	now func() time.Time
}

var (
	_ pr.Provider = (*Provider)(nil)
	_ pr.Toucher  = (*Provider)(nil)
)

type Config struct {
	Size int              // max entries; 0 => 10000
	Now  func() time.Time // clock; nil => time.Now
}

func New(cfg Config) (*Provider, error) {
	size := cfg.Size
	if size == 0 {
		size = defaultSize
	}
	if size < 0 {
		return nil, errors.New("lru: invalid size")
	}
	c, err := hlru.New[string, *entry](size)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{c: c, now: now}, nil
}

func (p *Provider) expired(e *entry) bool {
	exp := e.exp.Load()
	return exp != 0 && p.now().UnixNano() > exp
}

func (p *Provider) deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return p.now().Add(ttl).UnixNano()
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	if p.expired(e) {
		p.c.Remove(key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	e := &entry{v: value}
	e.exp.Store(p.deadline(ttl))
	p.c.Add(key, e)
	return true, nil
}

func (p *Provider) Touch(_ context.Context, key string, ttl time.Duration) (bool, error) {
	e, ok := p.c.Peek(key)
	if !ok || p.expired(e) {
		return false, nil
	}
	// a concurrent Del or Set leaves e orphaned; updating it is harmless
	e.exp.Store(p.deadline(ttl))
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Remove(key)
	return nil
}

// Len reports the number of entries, including expired ones not yet dropped.
func (p *Provider) Len() int { return p.c.Len() }

func (p *Provider) Close(_ context.Context) error {
	p.c.Purge()
	return nil
}
