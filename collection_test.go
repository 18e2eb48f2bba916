package datacache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestGetListPopulatesOnceThenHits(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1), rec("b", 2))
	news := newArticles(t, env.svc, src)

	got, ok, err := news.GetList(ctx, "front", src.query(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Key)
	assert.Equal(t, "b", got[1].Key)

	got, ok, err = news.GetList(ctx, "front", src.query(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 2)

	assert.EqualValues(t, 1, src.calls.Load(), "hit must not run the query")
	assert.Equal(t, 1, env.store.addCount())
}

func TestCacheListIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1))
	news := newArticles(t, env.svc, src)

	require.NoError(t, news.CacheList(ctx, src.query(), "k", 0))
	require.NoError(t, news.CacheList(ctx, src.query(), "k", 0))
	require.NoError(t, news.CacheDictionary(ctx, src.query(), "k", 0))
	require.NoError(t, news.CacheDictionary(ctx, src.query(), "k", 0))

	assert.Equal(t, 2, env.store.addCount())
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestEmptyResultIsCached(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource()
	news := newArticles(t, env.svc, src)

	got, ok, err := news.GetList(ctx, "empty", src.query(), 0)
	require.NoError(t, err)
	require.True(t, ok, "empty list is a present value")
	assert.Empty(t, got)
	assert.Empty(t, env.store.last().deps)

	_, ok, err = news.GetList(ctx, "empty", src.query(), 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, src.calls.Load())

	dict, ok, err := news.GetDictionary(ctx, "empty", src.query(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, dict)
}

func TestLinkedDictionaryChainsSharedKeys(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1), rec("a", 2), rec("b", 3))
	news := newArticles(t, env.svc, src)

	m, ok, err := news.GetLinkedDictionary(ctx, "tags", src.query(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, m, 2)

	a := m["a"]
	require.Equal(t, 2, a.Len())
	head, ok := a.Head()
	require.True(t, ok)
	assert.Equal(t, rec("a", 1).ID, head.ID())
	assert.Equal(t, rec("a", 2).ID, a[1].ID())

	b := m["b"]
	require.Equal(t, 1, b.Len())
	assert.Equal(t, rec("b", 3).ID, b[0].ID())

	var ids []byte
	for d := range a.All() {
		ids = append(ids, d.RID[15])
	}
	assert.Equal(t, []byte{1, 2}, ids)

	// every record contributes a dependency, chained or not
	assert.Len(t, env.store.last().deps, 3)
}

func TestDictionaryLaterRecordWins(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1), rec("a", 2), rec("b", 3))
	news := newArticles(t, env.svc, src)

	m, ok, err := news.GetDictionary(ctx, "k", src.query(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, m, 2)
	assert.Equal(t, rec("a", 2).ID, m["a"].ID())
	assert.Len(t, env.store.last().deps, 3)

	// the overwritten record still invalidates the dictionary
	require.NoError(t, news.InvalidateItem(ctx, rec("a", 1).ID))
	_, ok, err = news.GetDictionary(ctx, "k", nil, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFormsUnderOneKeyAreIsolated(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1))
	news := newArticles(t, env.svc, src)

	require.NoError(t, news.CacheList(ctx, src.query(), "k", 0))

	_, ok, err := news.GetDictionary(ctx, "k", nil, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = news.GetLinkedDictionary(ctx, "k", nil, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	list, ok, err := news.GetList(ctx, "k", nil, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, list, 1)

	require.NoError(t, news.CacheDictionary(ctx, src.query(), "k", 0))
	require.NoError(t, news.CacheLinkedDictionary(ctx, src.query(), "k", 0))
	require.NoError(t, news.ClearDictionary(ctx, "k"))

	_, ok, err = news.GetList(ctx, "k", nil, 0)
	require.NoError(t, err)
	assert.True(t, ok, "clearing the dictionary leaves the list")
	_, ok, err = news.GetLinkedDictionary(ctx, "k", nil, 0)
	require.NoError(t, err)
	assert.True(t, ok, "clearing the dictionary leaves the linked form")
}

func TestInvalidateItemEvictsContainingCollections(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1), rec("b", 2))
	other := newSource(rec("c", 3))
	news := newArticles(t, env.svc, src)

	require.NoError(t, news.CacheList(ctx, src.query(), "ab", 0))
	require.NoError(t, news.CacheList(ctx, other.query(), "c", 0))

	require.NoError(t, news.InvalidateItem(ctx, rec("a", 1).ID))
	assert.Equal(t, 1, env.hooks.count("fired"))

	_, ok, err := news.GetList(ctx, "ab", nil, 0)
	require.NoError(t, err)
	assert.False(t, ok, "collection containing the fired record must miss")
	assert.Equal(t, 1, env.hooks.count("heal"))

	_, ok, err = news.GetList(ctx, "c", nil, 0)
	require.NoError(t, err)
	assert.True(t, ok, "unrelated collection must survive")

	// the next fallback read repopulates
	got, ok, err := news.GetList(ctx, "ab", src.query(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 2)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestExpirationPrecedence(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1))
	news := newArticles(t, env.svc, src)

	require.NoError(t, news.CacheList(ctx, src.query(), "five", 5*time.Minute))
	assert.Equal(t, 5*time.Minute, env.store.last().exp.Sliding)

	require.NoError(t, news.CacheList(ctx, src.query(), "default", 0))
	assert.Equal(t, 60*time.Minute, env.store.last().exp.Sliding)

	require.NoError(t, news.CacheList(ctx, src.query(), "negative", -time.Minute))
	assert.Equal(t, 60*time.Minute, env.store.last().exp.Sliding)

	env.svc.SetDefaultExpiration(10 * time.Minute)
	env.svc.SetDefaultExpiration(0) // ignored
	require.NoError(t, news.CacheList(ctx, src.query(), "ten", 0))
	assert.Equal(t, 10*time.Minute, env.store.last().exp.Sliding)
	assert.Equal(t, 10*time.Minute, env.svc.DefaultExpiration())
}

func TestSlidingExpirationExtendsOnAccess(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1))
	news := newArticles(t, env.svc, src)

	require.NoError(t, news.CacheList(ctx, src.query(), "k", 5*time.Minute))

	for i := 0; i < 3; i++ {
		env.clock.Advance(4 * time.Minute)
		_, ok, err := news.GetList(ctx, "k", nil, 0)
		require.NoError(t, err)
		require.True(t, ok, "read %d within the window must hit", i)
	}

	env.clock.Advance(6 * time.Minute)
	_, ok, err := news.GetList(ctx, "k", nil, 0)
	require.NoError(t, err)
	assert.False(t, ok, "idle past the window must expire")
}

func TestConcurrentMissesPopulateOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1), rec("b", 2))
	src.delay = 20 * time.Millisecond
	news := newArticles(t, env.svc, src)

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			got, ok, err := news.GetList(ctx, "hot", src.query(), 0)
			if err != nil {
				return err
			}
			if !ok || len(got) != 2 {
				return errors.New("unexpected result")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, src.calls.Load())
	assert.Equal(t, 1, env.store.addCount())
	assert.Positive(t, env.hooks.count("raced"))
}

func TestStripedLockPopulatesOncePerKey(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, func(o *Options) {
		o.Lock = LockStriped
		o.LockStripes = 8
	})
	src := newSource(rec("a", 1))
	src.delay = 10 * time.Millisecond
	news := newArticles(t, env.svc, src)

	keys := []string{"k1", "k2", "k3", "k4"}
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		key := keys[i%len(keys)]
		g.Go(func() error {
			_, _, err := news.GetList(ctx, key, src.query(), 0)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, len(keys), src.calls.Load())
	assert.Equal(t, len(keys), env.store.addCount())
}

func TestPopulateFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	boom := errors.New("source down")
	src := newSource(rec("a", 1))
	src.err = boom
	news := newArticles(t, env.svc, src)

	_, ok, err := news.GetList(ctx, "k", src.query(), 0)
	require.ErrorIs(t, err, boom)
	assert.False(t, ok)
	assert.Equal(t, 0, env.store.addCount())
	assert.Equal(t, 1, env.hooks.count("failed"))

	bad := newSource(rec("", 2))
	err = news.CacheList(ctx, bad.query(), "k", 0)
	require.Error(t, err)
	assert.Equal(t, 0, env.store.addCount())

	_, ok, err = news.GetList(ctx, "k", nil, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPopulateTimeoutBoundsQuery(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, func(o *Options) { o.PopulateTimeout = 10 * time.Millisecond })
	src := newSource(rec("a", 1))
	src.delay = time.Second
	news := newArticles(t, env.svc, src)

	_, _, err := news.GetList(ctx, "slow", src.query(), 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, env.store.addCount())
}

func TestShapeMismatchIsReported(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1))
	news := newArticles(t, env.svc, src)

	require.NoError(t, CacheObject(ctx, env.svc, "shared", map[string]int{"x": 1}))

	_, _, err := news.GetList(ctx, "shared", src.query(), 0)
	var se *ShapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ShapeList, se.Want)
	assert.Equal(t, ShapeObject, se.Got)
	assert.EqualValues(t, 0, src.calls.Load())
}

func TestBlankKeys(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1))
	news := newArticles(t, env.svc, src)

	_, _, err := news.GetList(ctx, "", src.query(), 0)
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, _, err = news.GetDictionary(ctx, "", src.query(), 0)
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, _, err = news.GetLinkedDictionary(ctx, "", src.query(), 0)
	assert.ErrorIs(t, err, ErrEmptyKey)
	assert.ErrorIs(t, news.CacheList(ctx, src.query(), "", 0), ErrEmptyKey)
	_, _, err = news.GetItem(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyKey)

	assert.NoError(t, news.ClearList(ctx, ""))
	assert.NoError(t, news.ClearDictionary(ctx, ""))
	assert.NoError(t, news.ClearLinkedDictionary(ctx, ""))
	assert.NoError(t, news.ClearItem(ctx, ""))
	assert.NoError(t, env.svc.ClearObject(ctx, ""))

	assert.ErrorIs(t, news.CacheList(ctx, nil, "k", 0), ErrNilQuery)
	assert.EqualValues(t, 0, src.calls.Load())
}

func TestClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1))
	news := newArticles(t, env.svc, src)

	require.NoError(t, news.ClearList(ctx, "never"))

	require.NoError(t, news.CacheList(ctx, src.query(), "k", 0))
	require.NoError(t, news.ClearList(ctx, "k"))
	require.NoError(t, news.ClearList(ctx, "k"))

	_, ok, err := news.GetList(ctx, "k", nil, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBaseCollections(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1), rec("b", 2))
	news := newArticles(t, env.svc, src)

	assert.Equal(t, "news", news.BaseKey())
	assert.Equal(t, "news-dict", news.BaseDictionaryKey())

	_, ok, err := news.GetBaseList(ctx, false, 0)
	require.NoError(t, err)
	assert.False(t, ok, "no population without cacheOnFail")
	assert.EqualValues(t, 0, src.calls.Load())

	list, ok, err := news.GetBaseList(ctx, true, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, list, 2)
	assert.Equal(t, "news", env.store.last().key)

	dict, ok, err := news.GetBaseDictionary(ctx, true, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, dict, 2)
	assert.Equal(t, "news-dict", env.store.last().key)

	require.NoError(t, news.CacheBaseList(ctx, 0))
	require.NoError(t, news.CacheBaseDictionary(ctx, 0))
	assert.Equal(t, 2, env.store.addCount())

	require.NoError(t, news.ClearBaseList(ctx))
	require.NoError(t, news.ClearBaseDictionary(ctx))
	_, ok, err = news.GetBaseList(ctx, false, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = news.GetBaseDictionary(ctx, false, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUndefinedBindingIsNoop(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1))
	unbound, err := NewCollection[*article, record](env.svc, func() *article { return &article{src: src} })
	require.NoError(t, err)

	assert.Equal(t, "", unbound.BaseKey())
	assert.Equal(t, "", unbound.BaseDictionaryKey())

	_, ok, err := unbound.GetBaseList(ctx, true, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, unbound.CacheBaseList(ctx, 0))
	require.NoError(t, unbound.CacheBaseDictionary(ctx, 0))
	require.NoError(t, unbound.CacheList(ctx, src.query(), "k", 0))

	_, ok, err = unbound.GetList(ctx, "k", src.query(), 0)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 0, env.store.addCount())
	assert.EqualValues(t, 0, src.calls.Load())
}

func TestMissingBaseQuery(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	news := newArticles(t, env.svc, nil)

	_, _, err := news.GetBaseList(ctx, true, 0)
	assert.ErrorIs(t, err, ErrNilQuery)
	assert.ErrorIs(t, news.CacheBaseDictionary(ctx, 0), ErrNilQuery)
}

func TestHitsDecodeFreshCopies(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1))
	news := newArticles(t, env.svc, src)

	first, ok, err := news.GetList(ctx, "k", src.query(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	first[0].Title = "mutated"

	second, ok, err := news.GetList(ctx, "k", nil, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a-title", second[0].Title)
}

func TestCachedDescriptorsKeepOnlyExportedState(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1))
	news := newArticles(t, env.svc, src)

	got, ok, err := news.GetList(ctx, "k", src.query(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ItemKey())
	assert.Equal(t, uuid.UUID{15: 1}, got[0].ID())
	assert.Equal(t, "", got[0].ContentType(), "unexported binding does not survive the store")
	assert.Nil(t, got[0].BaseQuery())
	assert.Equal(t, "news", news.ContentType(), "the collection keeps the binding")
}

func TestItemAddGetInvalidate(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	news := newArticles(t, env.svc, nil)

	item := &article{RID: rec("x", 9).ID, Key: "x", Title: "one", ct: "news"}
	require.NoError(t, news.Add(ctx, item))
	assert.Equal(t, "item:news:x", env.store.last().key)
	assert.Equal(t, DefaultExpiration, env.store.last().exp.Sliding)

	got, ok, err := news.GetItem(ctx, "x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one", got.Title)
	assert.Equal(t, item.RID, got.ID())

	require.NoError(t, news.InvalidateItem(ctx, item.RID))
	_, ok, err = news.GetItem(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, news.Add(ctx, item))
	require.NoError(t, news.ClearItem(ctx, "x"))
	_, ok, err = news.GetItem(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, news.Add(ctx, &article{}), ErrEmptyKey)
}

func TestDisabledServiceBypassesStore(t *testing.T) {
	ctx := context.Background()
	svc, err := New(Options{Disabled: true})
	require.NoError(t, err)
	assert.False(t, svc.Enabled())
	src := newSource(rec("a", 1), rec("a", 2))
	news := newArticles(t, svc, src)

	for i := 0; i < 2; i++ {
		list, ok, err := news.GetList(ctx, "k", src.query(), 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Len(t, list, 2)
	}
	assert.EqualValues(t, 2, src.calls.Load(), "every read runs the query")

	linked, ok, err := news.GetLinkedDictionary(ctx, "k", src.query(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, linked["a"].Len())

	_, ok, err = news.GetList(ctx, "k", nil, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, news.CacheList(ctx, src.query(), "k", 0))
	require.NoError(t, news.ClearList(ctx, "k"))
	require.NoError(t, news.Add(ctx, &article{Key: "x"}))
	require.NoError(t, news.InvalidateItem(ctx, rec("a", 1).ID))
	require.NoError(t, CacheObject(ctx, svc, "o", 1))
	_, ok, err = GetObject[int](ctx, svc, "o")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, svc.Close(ctx))
}

func TestClosedServiceRejectsCalls(t *testing.T) {
	ctx := context.Background()
	env := newTestService(t, nil)
	src := newSource(rec("a", 1))
	news := newArticles(t, env.svc, src)

	require.NoError(t, env.svc.Close(ctx))
	require.NoError(t, env.svc.Close(ctx))

	_, _, err := news.GetList(ctx, "k", src.query(), 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, news.CacheList(ctx, src.query(), "k", 0), ErrClosed)
	assert.ErrorIs(t, env.svc.Invalidate(ctx, Dependency{Type: "news"}), ErrClosed)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrNilStore)

	env := newTestService(t, nil)
	_, err = NewCollection[*article, record](env.svc, nil)
	assert.ErrorIs(t, err, ErrNilFactory)
	_, err = NewCollection[*article, record](nil, articles(nil))
	assert.ErrorIs(t, err, ErrNilService)
	assert.Equal(t, DefaultExpiration, env.svc.DefaultExpiration())
}
