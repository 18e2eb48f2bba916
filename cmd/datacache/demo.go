package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/datacache"
	"github.com/unkn0wn-root/datacache/config"
)

type demoOptions struct {
	Records int
	Dupes   int
	Readers int
	Latency time.Duration
}

// row is a synthetic source record.
type row struct {
	ID      uuid.UUID
	Section string
	Title   string
}

// catalog is the synthetic content source; it counts query executions.
type catalog struct {
	rows    []row
	latency time.Duration
	queries atomic.Int64
}

func newCatalog(opts demoOptions) *catalog {
	dupes := max(opts.Dupes, 1)
	c := &catalog{latency: opts.Latency}
	for i := 0; i < opts.Records; i++ {
		c.rows = append(c.rows, row{
			ID:      uuid.New(),
			Section: "section-" + strconv.Itoa(i/dupes),
			Title:   "page " + strconv.Itoa(i),
		})
	}
	return c
}

func (c *catalog) all() datacache.Query[row] {
	return datacache.QueryFunc[row](func(ctx context.Context) ([]row, error) {
		c.queries.Add(1)
		select {
		case <-time.After(c.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return c.rows, nil
	})
}

// page is the descriptor projected from row.
type page struct {
	UID     uuid.UUID `json:"id" msgpack:"id" cbor:"id"`
	Section string    `json:"section" msgpack:"section" cbor:"section"`
	Title   string    `json:"title" msgpack:"title" cbor:"title"`

	src *catalog
}

func (p *page) ID() uuid.UUID       { return p.UID }
func (p *page) ContentType() string { return "pages" }
func (p *page) ItemKey() string     { return p.Section }

func (p *page) PopulateFrom(r row) error {
	p.UID, p.Section, p.Title = r.ID, r.Section, r.Title
	return nil
}

func (p *page) BaseQuery() datacache.Query[row] { return p.src.all() }

// stats counts hook events.
type stats struct {
	datacache.NopHooks
	hits, misses, populated, raced, heals atomic.Int64
}

func (s *stats) Hit(string, datacache.Shape)  { s.hits.Add(1) }
func (s *stats) Miss(string, datacache.Shape) { s.misses.Add(1) }
func (s *stats) PopulateRaced(string)         { s.raced.Add(1) }
func (s *stats) SelfHeal(string, string)      { s.heals.Add(1) }
func (s *stats) Populated(string, datacache.Shape, int, time.Duration) {
	s.populated.Add(1)
}

func runDemo(ctx context.Context, w io.Writer, cfg config.Config, log datacache.Logger, opts demoOptions) error {
	if w == nil {
		w = os.Stdout
	}
	st := &stats{}
	svc, err := cfg.Build(ctx, config.Deps{Logger: log, Hooks: st})
	if err != nil {
		return err
	}
	defer svc.Close(context.WithoutCancel(ctx))

	src := newCatalog(opts)
	pages, err := datacache.NewCollection[*page, row](svc, func() *page { return &page{src: src} })
	if err != nil {
		return err
	}

	read := func() (sections, chained int, err error) {
		g, gctx := errgroup.WithContext(ctx)
		var secs, chains atomic.Int64
		for i := 0; i < max(opts.Readers, 1); i++ {
			g.Go(func() error {
				m, _, err := pages.GetLinkedDictionary(gctx, "by-section", src.all(), 0)
				if err != nil {
					return err
				}
				if _, _, err := pages.GetBaseList(gctx, true, 0); err != nil {
					return err
				}
				n := 0
				for _, c := range m {
					n += c.Len()
				}
				secs.Store(int64(len(m)))
				chains.Store(int64(n))
				return nil
			})
		}
		err = g.Wait()
		return int(secs.Load()), int(chains.Load()), err
	}

	start := time.Now()
	sections, chained, err := read()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "cold read: %d sections, %d pages, %d source queries, %s\n",
		sections, chained, src.queries.Load(), time.Since(start).Round(time.Millisecond))

	start = time.Now()
	if _, _, err := read(); err != nil {
		return err
	}
	fmt.Fprintf(w, "warm read: %d source queries total, %s\n",
		src.queries.Load(), time.Since(start).Round(time.Millisecond))

	if len(src.rows) > 0 {
		if err := pages.InvalidateItem(ctx, src.rows[0].ID); err != nil {
			return err
		}
		if _, _, err := read(); err != nil {
			return err
		}
		fmt.Fprintf(w, "after invalidating %s: %d source queries total\n",
			src.rows[0].Section, src.queries.Load())
	}

	fmt.Fprintf(w, "hooks: hits=%d misses=%d populated=%d raced=%d self_heals=%d\n",
		st.hits.Load(), st.misses.Load(), st.populated.Load(), st.raced.Load(), st.heals.Load())
	return nil
}
