// Package config loads a datacache Service from a YAML or JSON document.
//
//	enabled: true
//	default_expiration: 60m
//	populate_timeout: 5s
//	codec: msgpack
//	lock:
//	  mode: striped
//	  stripes: 64
//	provider:
//	  kind: redis
//	  redis:
//	    addr: localhost:6379
//	    prefix: "app:prod:"
//	tokens:
//	  kind: redis
//	  namespace: app:prod
//	  ttl: 48h
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/unkn0wn-root/datacache"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var (
	ErrUnsupportedFormat = errors.New("config: unsupported format")
	ErrInvalid           = errors.New("config: invalid")
)

type Config struct {
	Enabled           bool          `koanf:"enabled"`
	DefaultExpiration time.Duration `koanf:"default_expiration"`
	PopulateTimeout   time.Duration `koanf:"populate_timeout"`
	// Codec is one of "json", "msgpack", "cbor".
	Codec string `koanf:"codec"`
	// MaxDecodeBytes treats larger stored payloads as misses. 0 = no limit.
	MaxDecodeBytes int `koanf:"max_decode_bytes"`

	Lock     Lock     `koanf:"lock"`
	Provider Provider `koanf:"provider"`
	Tokens   Tokens   `koanf:"tokens"`
}

type Lock struct {
	// Mode is "global" or "striped".
	Mode    string `koanf:"mode"`
	Stripes int    `koanf:"stripes"`
}

type Provider struct {
	// Kind is one of "lru", "ristretto", "bigcache", "redis".
	Kind string `koanf:"kind"`

	// lru
	Size int `koanf:"size"`

	// ristretto
	NumCounters int64 `koanf:"num_counters"`
	MaxCost     int64 `koanf:"max_cost"`
	BufferItems int64 `koanf:"buffer_items"`

	// bigcache
	LifeWindow  time.Duration `koanf:"life_window"`
	CleanWindow time.Duration `koanf:"clean_window"`
	MaxSizeMB   int           `koanf:"max_size_mb"`

	Redis Redis `koanf:"redis"`
}

type Redis struct {
	Addr     string `koanf:"addr"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

type Tokens struct {
	// Kind is "local" or "redis". The redis tracker shares the provider's
	// connection settings.
	Kind      string        `koanf:"kind"`
	Namespace string        `koanf:"namespace"`
	TTL       time.Duration `koanf:"ttl"`
	Sweep     time.Duration `koanf:"sweep"`
	Retention time.Duration `koanf:"retention"`
}

// Default returns the configuration used for keys a document leaves out.
func Default() Config {
	return Config{
		Enabled:           true,
		DefaultExpiration: datacache.DefaultExpiration,
		Codec:             "json",
		Lock:              Lock{Mode: "global", Stripes: 64},
		Provider: Provider{
			Kind:        "lru",
			Size:        10_000,
			NumCounters: 1e6,
			MaxCost:     1 << 28,
			BufferItems: 64,
		},
		Tokens: Tokens{
			Kind:      "local",
			Namespace: "datacache",
			Sweep:     time.Hour,
			Retention: 30 * 24 * time.Hour,
		},
	}
}

// Load reads path; the format follows the file extension.
func Load(path string) (Config, error) {
	format, err := detectFormat(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data, format)
}

// Parse decodes data over Default and validates the result.
func Parse(data []byte, format Format) (Config, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return Config{}, ErrUnsupportedFormat
	}

	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return Config{}, fmt.Errorf("config: parse: %w", err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.DefaultExpiration < 0 {
		return fmt.Errorf("%w: default_expiration must not be negative", ErrInvalid)
	}
	if c.PopulateTimeout < 0 {
		return fmt.Errorf("%w: populate_timeout must not be negative", ErrInvalid)
	}
	if _, err := datacache.ParseLockMode(c.Lock.Mode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch c.Codec {
	case "", "json", "msgpack", "cbor":
	default:
		return fmt.Errorf("%w: unknown codec %q", ErrInvalid, c.Codec)
	}
	switch c.Provider.Kind {
	case "lru", "ristretto", "bigcache":
	case "redis":
		if c.Provider.Redis.Addr == "" {
			return fmt.Errorf("%w: provider.redis.addr is required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalid, c.Provider.Kind)
	}
	switch c.Tokens.Kind {
	case "local":
	case "redis":
		if c.Provider.Redis.Addr == "" {
			return fmt.Errorf("%w: redis tokens need provider.redis.addr", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown tokens %q", ErrInvalid, c.Tokens.Kind)
	}
	return nil
}

func detectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}
