package datacache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Collection is the typed surface of a Service for one descriptor type D
// projected from source records R.
//
// Keyed reads (GetList, GetDictionary, GetLinkedDictionary) populate from
// the fallback query on a miss when one is given. Base reads populate from
// D's BaseQuery when cacheOnFail is set. An override expiration <= 0 uses
// the Service default.
type Collection[D Descriptor[R], R any] struct {
	svc  *Service
	newD func() D
	ct   string
}

// NewCollection binds a descriptor factory to svc. factory must return a
// fresh, writable descriptor on every call.
func NewCollection[D Descriptor[R], R any](svc *Service, factory func() D) (*Collection[D, R], error) {
	if svc == nil {
		return nil, ErrNilService
	}
	if factory == nil {
		return nil, ErrNilFactory
	}
	return &Collection[D, R]{svc: svc, newD: factory, ct: factory().ContentType()}, nil
}

// ContentType is the source content type D binds to; "" when undefined.
func (c *Collection[D, R]) ContentType() string { return c.ct }

// BaseKey is the storage key of the base list; "" when the binding is
// undefined.
func (c *Collection[D, R]) BaseKey() string { return c.ct }

// BaseDictionaryKey is the storage key of the base dictionary.
func (c *Collection[D, R]) BaseDictionaryKey() string {
	if c.ct == "" {
		return ""
	}
	return dictionaryKey(c.ct)
}

// GetBaseList returns every live record of the content type as a list.
func (c *Collection[D, R]) GetBaseList(ctx context.Context, cacheOnFail bool, exp time.Duration) ([]D, bool, error) {
	if c.ct == "" {
		return nil, false, nil
	}
	var fallback Query[R]
	if cacheOnFail {
		q, err := c.baseQuery()
		if err != nil {
			return nil, false, err
		}
		fallback = q
	}
	return c.getList(ctx, c.BaseKey(), fallback, exp)
}

// GetBaseDictionary returns every live record of the content type keyed
// by ItemKey.
func (c *Collection[D, R]) GetBaseDictionary(ctx context.Context, cacheOnFail bool, exp time.Duration) (map[string]D, bool, error) {
	if c.ct == "" {
		return nil, false, nil
	}
	var fallback Query[R]
	if cacheOnFail {
		q, err := c.baseQuery()
		if err != nil {
			return nil, false, err
		}
		fallback = q
	}
	return c.getDictionary(ctx, c.BaseDictionaryKey(), fallback, exp)
}

// GetList returns the list stored under key.
func (c *Collection[D, R]) GetList(ctx context.Context, key string, fallback Query[R], exp time.Duration) ([]D, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	return c.getList(ctx, key, fallback, exp)
}

// GetDictionary returns the dictionary stored under key+"-dict".
func (c *Collection[D, R]) GetDictionary(ctx context.Context, key string, fallback Query[R], exp time.Duration) (map[string]D, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	return c.getDictionary(ctx, dictionaryKey(key), fallback, exp)
}

// GetLinkedDictionary returns the dictionary of chains stored under
// key+"-linked". Descriptors sharing an ItemKey are chained in source
// order.
func (c *Collection[D, R]) GetLinkedDictionary(ctx context.Context, key string, fallback Query[R], exp time.Duration) (map[string]Chain[D], bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	sk := linkedKey(key)
	if !c.svc.enabled {
		return direct(ctx, fallback, c.collectLinked)
	}
	var fill builder
	if fallback != nil && c.ct != "" {
		fill = c.linkedBuilder(fallback)
	}
	return lookup[map[string]Chain[D]](ctx, c.svc, sk, ShapeLinked, exp, fill)
}

// CacheBaseList populates the base list from D's BaseQuery unless it is
// already stored.
func (c *Collection[D, R]) CacheBaseList(ctx context.Context, exp time.Duration) error {
	if c.ct == "" || !c.svc.enabled {
		return nil
	}
	q, err := c.baseQuery()
	if err != nil {
		return err
	}
	return c.svc.populate(ctx, c.BaseKey(), ShapeList, exp, true, c.listBuilder(q))
}

// CacheBaseDictionary populates the base dictionary from D's BaseQuery
// unless it is already stored.
func (c *Collection[D, R]) CacheBaseDictionary(ctx context.Context, exp time.Duration) error {
	if c.ct == "" || !c.svc.enabled {
		return nil
	}
	q, err := c.baseQuery()
	if err != nil {
		return err
	}
	return c.svc.populate(ctx, c.BaseDictionaryKey(), ShapeDictionary, exp, true, c.dictionaryBuilder(q))
}

// CacheList populates the list under key from q unless it is already
// stored.
func (c *Collection[D, R]) CacheList(ctx context.Context, q Query[R], key string, exp time.Duration) error {
	if err := c.checkPopulate(q, key); err != nil || c.skipPopulate() {
		return err
	}
	return c.svc.populate(ctx, key, ShapeList, exp, true, c.listBuilder(q))
}

// CacheDictionary populates the dictionary under key+"-dict" from q
// unless it is already stored. A later record overwrites an earlier one
// with the same ItemKey.
func (c *Collection[D, R]) CacheDictionary(ctx context.Context, q Query[R], key string, exp time.Duration) error {
	if err := c.checkPopulate(q, key); err != nil || c.skipPopulate() {
		return err
	}
	return c.svc.populate(ctx, dictionaryKey(key), ShapeDictionary, exp, true, c.dictionaryBuilder(q))
}

// CacheLinkedDictionary populates the chained dictionary under
// key+"-linked" from q unless it is already stored.
func (c *Collection[D, R]) CacheLinkedDictionary(ctx context.Context, q Query[R], key string, exp time.Duration) error {
	if err := c.checkPopulate(q, key); err != nil || c.skipPopulate() {
		return err
	}
	return c.svc.populate(ctx, linkedKey(key), ShapeLinked, exp, true, c.linkedBuilder(q))
}

func (c *Collection[D, R]) ClearList(ctx context.Context, key string) error {
	return c.svc.remove(ctx, key)
}

func (c *Collection[D, R]) ClearDictionary(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return c.svc.remove(ctx, dictionaryKey(key))
}

func (c *Collection[D, R]) ClearLinkedDictionary(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return c.svc.remove(ctx, linkedKey(key))
}

func (c *Collection[D, R]) ClearBaseList(ctx context.Context) error {
	return c.svc.remove(ctx, c.BaseKey())
}

func (c *Collection[D, R]) ClearBaseDictionary(ctx context.Context) error {
	return c.svc.remove(ctx, c.BaseDictionaryKey())
}

// Add stores a single descriptor under its ItemKey with the default
// expiration and a dependency on its own ID.
func (c *Collection[D, R]) Add(ctx context.Context, item D) error {
	k := item.ItemKey()
	if k == "" {
		return ErrEmptyKey
	}
	if !c.svc.enabled {
		return nil
	}
	if c.svc.closed.Load() {
		return ErrClosed
	}
	b, err := c.svc.ser.Marshal(item)
	if err != nil {
		return fmt.Errorf("datacache: encode: %w", err)
	}
	deps := []Dependency{{Type: c.ct, ID: item.ID()}}
	return c.svc.store.Add(ctx, itemKey(c.ct, k), Entry{Shape: ShapeItem, Data: b}, c.svc.expiration(0), deps)
}

// GetItem returns the descriptor stored by Add under itemKey.
func (c *Collection[D, R]) GetItem(ctx context.Context, key string) (D, bool, error) {
	var zero D
	if key == "" {
		return zero, false, ErrEmptyKey
	}
	if !c.svc.enabled {
		return zero, false, nil
	}
	return read[D](ctx, c.svc, itemKey(c.ct, key), ShapeItem)
}

// ClearItem removes the descriptor stored by Add under itemKey.
func (c *Collection[D, R]) ClearItem(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return c.svc.remove(ctx, itemKey(c.ct, key))
}

// InvalidateItem fires the dependency of the record with id. Every stored
// collection that contains it misses on its next read.
func (c *Collection[D, R]) InvalidateItem(ctx context.Context, id uuid.UUID) error {
	return c.svc.Invalidate(ctx, Dependency{Type: c.ct, ID: id})
}

func (c *Collection[D, R]) getList(ctx context.Context, key string, fallback Query[R], exp time.Duration) ([]D, bool, error) {
	if !c.svc.enabled {
		return direct(ctx, fallback, c.collectList)
	}
	var fill builder
	if fallback != nil && c.ct != "" {
		fill = c.listBuilder(fallback)
	}
	return lookup[[]D](ctx, c.svc, key, ShapeList, exp, fill)
}

func (c *Collection[D, R]) getDictionary(ctx context.Context, key string, fallback Query[R], exp time.Duration) (map[string]D, bool, error) {
	if !c.svc.enabled {
		return direct(ctx, fallback, c.collectDictionary)
	}
	var fill builder
	if fallback != nil && c.ct != "" {
		fill = c.dictionaryBuilder(fallback)
	}
	return lookup[map[string]D](ctx, c.svc, key, ShapeDictionary, exp, fill)
}

func (c *Collection[D, R]) baseQuery() (Query[R], error) {
	q := c.newD().BaseQuery()
	if q == nil {
		return nil, fmt.Errorf("datacache: %s has no base query: %w", c.ct, ErrNilQuery)
	}
	return q, nil
}

func (c *Collection[D, R]) checkPopulate(q Query[R], key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if q == nil {
		return ErrNilQuery
	}
	return nil
}

// skipPopulate reports whether keyed population is a no-op: the Service
// is disabled or D has no content type to attach dependencies to.
func (c *Collection[D, R]) skipPopulate() bool {
	return !c.svc.enabled || c.ct == ""
}

// each runs q and hands every record, projected into a fresh descriptor,
// to fn. It returns one dependency per record.
func (c *Collection[D, R]) each(ctx context.Context, q Query[R], fn func(D)) ([]Dependency, error) {
	recs, err := q.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	deps := make([]Dependency, 0, len(recs))
	for _, r := range recs {
		d := c.newD()
		if err := d.PopulateFrom(r); err != nil {
			return nil, fmt.Errorf("datacache: populate %s descriptor: %w", c.ct, err)
		}
		fn(d)
		deps = append(deps, Dependency{Type: c.ct, ID: d.ID()})
	}
	return deps, nil
}

func (c *Collection[D, R]) collectList(ctx context.Context, q Query[R]) ([]D, []Dependency, error) {
	list := make([]D, 0)
	deps, err := c.each(ctx, q, func(d D) { list = append(list, d) })
	return list, deps, err
}

func (c *Collection[D, R]) collectDictionary(ctx context.Context, q Query[R]) (map[string]D, []Dependency, error) {
	m := make(map[string]D)
	deps, err := c.each(ctx, q, func(d D) { m[d.ItemKey()] = d })
	return m, deps, err
}

func (c *Collection[D, R]) collectLinked(ctx context.Context, q Query[R]) (map[string]Chain[D], []Dependency, error) {
	m := make(map[string]Chain[D])
	deps, err := c.each(ctx, q, func(d D) { link(m, d.ItemKey(), d) })
	return m, deps, err
}

func (c *Collection[D, R]) listBuilder(q Query[R]) builder {
	return func(ctx context.Context) ([]byte, []Dependency, int, error) {
		list, deps, err := c.collectList(ctx, q)
		if err != nil {
			return nil, nil, 0, err
		}
		return encode(c.svc, list, deps, len(deps))
	}
}

func (c *Collection[D, R]) dictionaryBuilder(q Query[R]) builder {
	return func(ctx context.Context) ([]byte, []Dependency, int, error) {
		m, deps, err := c.collectDictionary(ctx, q)
		if err != nil {
			return nil, nil, 0, err
		}
		return encode(c.svc, m, deps, len(deps))
	}
}

func (c *Collection[D, R]) linkedBuilder(q Query[R]) builder {
	return func(ctx context.Context) ([]byte, []Dependency, int, error) {
		m, deps, err := c.collectLinked(ctx, q)
		if err != nil {
			return nil, nil, 0, err
		}
		return encode(c.svc, m, deps, len(deps))
	}
}

// lookup reads key and, on a miss with a fill builder, populates and
// reads again. The second read can still miss when the store rejected
// the write.
func lookup[V any](ctx context.Context, s *Service, key string, shape Shape, exp time.Duration, fill builder) (V, bool, error) {
	v, ok, err := read[V](ctx, s, key, shape)
	if err != nil || ok || fill == nil {
		return v, ok, err
	}
	if err := s.populate(ctx, key, shape, exp, false, fill); err != nil {
		var zero V
		return zero, false, err
	}
	return read[V](ctx, s, key, shape)
}

// direct materializes q without touching the store. Used when the
// Service is disabled; without a query the result is absent.
func direct[V any, R any](ctx context.Context, q Query[R], collect func(context.Context, Query[R]) (V, []Dependency, error)) (V, bool, error) {
	var zero V
	if q == nil {
		return zero, false, nil
	}
	v, _, err := collect(ctx, q)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}
