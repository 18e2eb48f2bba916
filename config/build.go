package config

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/datacache"
	"github.com/unkn0wn-root/datacache/codec"
	pr "github.com/unkn0wn-root/datacache/provider"
	"github.com/unkn0wn-root/datacache/provider/bigcache"
	"github.com/unkn0wn-root/datacache/provider/lru"
	"github.com/unkn0wn-root/datacache/provider/redis"
	"github.com/unkn0wn-root/datacache/provider/ristretto"
	"github.com/unkn0wn-root/datacache/tokens"
)

// Deps are the runtime collaborators a document cannot describe.
type Deps struct {
	Logger datacache.Logger
	Hooks  datacache.Hooks
	// Redis is used instead of dialing provider.redis.addr. The caller
	// keeps ownership.
	Redis goredis.UniversalClient
}

// Build assembles the Service c describes. Closing the Service releases
// everything Build created.
func (c Config) Build(ctx context.Context, deps Deps) (*datacache.Service, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	lockMode, _ := datacache.ParseLockMode(c.Lock.Mode)

	opts := datacache.Options{
		DefaultExpiration: c.DefaultExpiration,
		Disabled:          !c.Enabled,
		Lock:              lockMode,
		LockStripes:       c.Lock.Stripes,
		PopulateTimeout:   c.PopulateTimeout,
		Logger:            deps.Logger,
		Hooks:             deps.Hooks,
	}
	if !c.Enabled {
		return datacache.New(opts)
	}

	ser, err := codec.ByName(c.Codec)
	if err != nil {
		return nil, err
	}
	if c.MaxDecodeBytes > 0 {
		ser = codec.Limit{Inner: ser, MaxDecode: c.MaxDecodeBytes}
	}
	opts.Serializer = ser

	rdb, ownClient := deps.Redis, false
	if rdb == nil && (c.Provider.Kind == "redis" || c.Tokens.Kind == "redis") {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     c.Provider.Redis.Addr,
			Username: c.Provider.Redis.Username,
			Password: c.Provider.Redis.Password,
			DB:       c.Provider.Redis.DB,
		})
		ownClient = true
	}

	p, err := c.provider(ctx, rdb, ownClient)
	if err != nil {
		if ownClient {
			_ = rdb.Close()
		}
		return nil, err
	}

	so := datacache.StoreOptions{
		Provider:       p,
		TokenSweep:     c.Tokens.Sweep,
		TokenRetention: c.Tokens.Retention,
		Logger:         deps.Logger,
		Hooks:          deps.Hooks,
	}
	if c.Tokens.Kind == "redis" {
		so.Tokens = tokens.NewRedisWithTTL(rdb, c.Tokens.Namespace, c.Tokens.TTL)
	}
	if ownClient && c.Provider.Kind != "redis" {
		// only the tracker uses the client; close it with the provider
		p = closingProvider{Provider: p, rdb: rdb}
		so.Provider = p
	}

	store, err := datacache.NewStore(so)
	if err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	opts.Store = store
	return datacache.New(opts)
}

func (c Config) provider(ctx context.Context, rdb goredis.UniversalClient, ownClient bool) (pr.Provider, error) {
	pc := c.Provider
	switch pc.Kind {
	case "lru":
		return lru.New(lru.Config{Size: pc.Size})
	case "ristretto":
		return ristretto.New(ristretto.Config{
			NumCounters: pc.NumCounters,
			MaxCost:     pc.MaxCost,
			BufferItems: pc.BufferItems,
		})
	case "bigcache":
		life := pc.LifeWindow
		if life <= 0 {
			life = c.DefaultExpiration
		}
		if life <= 0 {
			life = datacache.DefaultExpiration
		}
		return bigcache.New(ctx, bigcache.Config{
			LifeWindow:         life,
			CleanWindow:        pc.CleanWindow,
			HardMaxCacheSizeMB: pc.MaxSizeMB,
		})
	case "redis":
		return redis.New(redis.Config{Client: rdb, Prefix: pc.Redis.Prefix, CloseClient: ownClient})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalid, pc.Kind)
	}
}

// closingProvider closes a Redis client the provider itself does not use.
type closingProvider struct {
	pr.Provider
	rdb goredis.UniversalClient
}

func (p closingProvider) Close(ctx context.Context) error {
	err := p.Provider.Close(ctx)
	if cerr := p.rdb.Close(); err == nil {
		err = cerr
	}
	return err
}
