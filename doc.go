// Package datacache is a lazily populated, dependency-invalidated cache of
// descriptor collections that sits in front of an expensive content source.
//
// Callers ask for a named collection (list, dictionary, or dictionary of
// chains). On a miss the Service runs the caller's query (or the
// descriptor type's base query), turns every source record into a fresh
// descriptor, and stores the collection with a sliding expiration and one
// dependency token per contributing record. Firing any of those tokens
// evicts the whole collection.
//
// Components:
//   - Service: population engine. Double-checked locking around a
//     per-instance Locker (one global lock by default, optionally striped).
//   - Collection[D, R]: typed operations for one descriptor type.
//   - Store: backing-store capability (Get / Add / Remove / Invalidate).
//     NewStore builds one over a provider.Provider (Redis, Ristretto,
//     BigCache, LRU) and a tokens.Tracker.
//   - codec.Serializer: encodes collections for the provider.
//
// Keys:
//
//	<content-type>           base list
//	<content-type>-dict      base dictionary
//	<key>                    keyed list
//	<key>-dict               keyed dictionary
//	<key>-linked             keyed dictionary of chains
//	item:<content-type>:<k>  single descriptor (Collection.Add)
//	<key>                    single object (CacheObject)
//
// Population:
//
//	news, _ := datacache.NewCollection[*Article, cms.Record](svc, NewArticle)
//	list, ok, err := news.GetList(ctx, "front-page", frontPageQuery, 5*time.Minute)
package datacache
