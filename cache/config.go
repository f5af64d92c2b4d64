package cache

import (
	"time"

	"github.com/goliatone/go-repository-router/internal/cacheinfra"
)

// Config exposes the in-process cache options to consumers of the package.
type Config struct {
	Capacity           int           `yaml:"capacity"`
	NumShards          int           `yaml:"shards"`
	TTL                time.Duration `yaml:"ttl"`
	EvictionPercentage int           `yaml:"eviction_percentage"`
	EvictionInterval   time.Duration `yaml:"eviction_interval"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return cacheinfra.Config(c).Validate()
}

// NewCacheService constructs the default sturdyc backed cache service.
func NewCacheService(cfg Config) (CacheService, error) {
	return cacheinfra.NewSturdycService(cacheinfra.Config(cfg))
}
