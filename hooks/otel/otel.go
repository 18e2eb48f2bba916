// Package otelhooks records datacache hook events as OpenTelemetry metrics.
//
//	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
//	hooks, err := otelhooks.New(mp)
//	svc, _ := datacache.New(datacache.Options{Store: store, Hooks: hooks})
package otelhooks

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/unkn0wn-root/datacache"
)

const (
	scope = "github.com/unkn0wn-root/datacache"

	MetricLookups     = "datacache.lookups"
	MetricPopulations = "datacache.populations"
	MetricPopulateDur = "datacache.populate.duration"
	MetricLockWait    = "datacache.lock.wait"
	MetricSelfHeals   = "datacache.self_heals"
	MetricRejected    = "datacache.store.rejected"
	MetricFired       = "datacache.dependencies.fired"
)

// Hooks implements datacache.Hooks with counters and histograms. Keys are
// never recorded as attributes; only shapes, outcomes, reasons and
// dependency types are.
type Hooks struct {
	lookups     metric.Int64Counter
	populations metric.Int64Counter
	populateDur metric.Float64Histogram
	lockWait    metric.Float64Histogram
	selfHeals   metric.Int64Counter
	rejected    metric.Int64Counter
	fired       metric.Int64Counter
}

var _ datacache.Hooks = (*Hooks)(nil)

// New registers the instruments on mp.
func New(mp metric.MeterProvider) (*Hooks, error) {
	m := mp.Meter(scope)
	h := &Hooks{}
	var err error

	if h.lookups, err = m.Int64Counter(MetricLookups,
		metric.WithDescription("Cache reads by shape and result"),
		metric.WithUnit("{lookup}")); err != nil {
		return nil, err
	}
	if h.populations, err = m.Int64Counter(MetricPopulations,
		metric.WithDescription("Population attempts by outcome"),
		metric.WithUnit("{population}")); err != nil {
		return nil, err
	}
	if h.populateDur, err = m.Float64Histogram(MetricPopulateDur,
		metric.WithDescription("Time spent materializing a collection"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5)); err != nil {
		return nil, err
	}
	if h.lockWait, err = m.Float64Histogram(MetricLockWait,
		metric.WithDescription("Time spent waiting for the population lock"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.001, 0.01, 0.1, 1, 10)); err != nil {
		return nil, err
	}
	if h.selfHeals, err = m.Int64Counter(MetricSelfHeals,
		metric.WithDescription("Entries deleted on read"),
		metric.WithUnit("{entry}")); err != nil {
		return nil, err
	}
	if h.rejected, err = m.Int64Counter(MetricRejected,
		metric.WithDescription("Writes the provider refused"),
		metric.WithUnit("{entry}")); err != nil {
		return nil, err
	}
	if h.fired, err = m.Int64Counter(MetricFired,
		metric.WithDescription("Dependency tokens fired"),
		metric.WithUnit("{dependency}")); err != nil {
		return nil, err
	}
	return h, nil
}

func lookup(shape datacache.Shape, result string) metric.AddOption {
	return metric.WithAttributes(
		attribute.String("shape", shape.String()),
		attribute.String("result", result),
	)
}

func (h *Hooks) Hit(_ string, shape datacache.Shape) {
	h.lookups.Add(context.Background(), 1, lookup(shape, "hit"))
}

func (h *Hooks) Miss(_ string, shape datacache.Shape) {
	h.lookups.Add(context.Background(), 1, lookup(shape, "miss"))
}

func (h *Hooks) Populated(_ string, shape datacache.Shape, _ int, took time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("shape", shape.String()))
	h.populations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("shape", shape.String()),
		attribute.String("outcome", "stored"),
	))
	h.populateDur.Record(ctx, took.Seconds(), attrs)
}

func (h *Hooks) PopulateRaced(string) {
	h.populations.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", "raced")))
}

func (h *Hooks) PopulateFailed(string, error) {
	h.populations.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", "failed")))
}

func (h *Hooks) LockWaited(_ string, waited time.Duration) {
	h.lockWait.Record(context.Background(), waited.Seconds())
}

func (h *Hooks) SelfHeal(_ string, reason string) {
	h.selfHeals.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (h *Hooks) StoreRejected(string) {
	h.rejected.Add(context.Background(), 1)
}

func (h *Hooks) DependencyFired(dep datacache.Dependency) {
	h.fired.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", dep.Type)))
}
