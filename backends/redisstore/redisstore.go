// Package redisstore keeps router values in Redis, msgpack encoded, under
// "<prefix>:<router>:<key>".
package redisstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-repository-router/router"
)

// TypeName is the backend type name the Redis backend registers under.
const TypeName = "redis"

// DefaultPrefix namespaces keys when no prefix is configured.
const DefaultPrefix = "router"

const scanCount = 100

// Client is the subset of the go-redis client the backend uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

var _ Client = (*redis.Client)(nil)

// Config holds connection settings.
type Config struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	KeyTTL   time.Duration `yaml:"key_ttl"`
}

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, cfg Config) (*redis.Client, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Annotatef(err, "connecting to redis at %s", addr)
	}
	return client, nil
}

// Backend stores the values of one router.
type Backend struct {
	client Client
	model  router.Model
	prefix string
	ttl    time.Duration
}

// New returns a backend for routerName. Values are decoded through model.
func New(client Client, routerName string, model router.Model, cfg Config) (*Backend, error) {
	if client == nil {
		return nil, errors.NotValidf("nil redis client")
	}
	if model == nil {
		return nil, errors.NotValidf("redis backend for router %q without a model", routerName)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Backend{
		client: client,
		model:  model,
		prefix: prefix + ":" + routerName + ":",
		ttl:    cfg.KeyTTL,
	}, nil
}

// Factory builds a backend sharing client for every router it is used by.
func Factory(client Client, cfg Config) router.Factory {
	return func(r *router.Router) (router.Backend, error) {
		return New(client, r.Name(), r.Model(), cfg)
	}
}

// Register adds the Redis backend for every named router to reg.
func Register(reg *router.Registry, client Client, cfg Config, routerNames ...string) error {
	for _, name := range routerNames {
		if err := reg.Register(name, TypeName, Factory(client, cfg)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) key(k string) string {
	return b.prefix + k
}

// Find decodes the value for the request key, nil when absent.
func (b *Backend) Find(ctx context.Context, req *router.Request) (router.Instance, error) {
	return b.load(ctx, req.Key())
}

func (b *Backend) load(ctx context.Context, key string) (router.Instance, error) {
	data, err := b.client.Get(ctx, b.key(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "reading %s", b.key(key))
	}
	instance := b.model.NewInstance(key)
	if err := msgpack.Unmarshal(data, instance); err != nil {
		return nil, errors.Annotatef(err, "decoding %s", b.key(key))
	}
	return instance, nil
}

// Search scans for keys matching the request key as a Redis glob.
func (b *Backend) Search(ctx context.Context, req *router.Request) ([]router.Instance, error) {
	pattern := req.Key()
	if pattern == "" {
		pattern = "*"
	}

	var keys []string
	var cursor uint64
	for {
		batch, next, err := b.client.Scan(ctx, cursor, b.key(pattern), scanCount).Result()
		if err != nil {
			return nil, errors.Annotatef(err, "scanning %s", b.key(pattern))
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, b.prefix))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(keys)

	results := make([]router.Instance, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		instance, err := b.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if instance != nil {
			results = append(results, instance)
		}
	}
	return results, nil
}

// Save encodes and stores the request instance.
func (b *Backend) Save(ctx context.Context, req *router.Request) (any, error) {
	if req.Instance() == nil {
		return nil, errors.NotValidf("save without instance for %s", req)
	}
	data, err := msgpack.Marshal(req.Instance())
	if err != nil {
		return nil, errors.Annotatef(err, "encoding %s", req)
	}
	if err := b.client.Set(ctx, b.key(req.Key()), data, b.ttl).Err(); err != nil {
		return nil, errors.Annotatef(err, "writing %s", b.key(req.Key()))
	}
	return req.Instance(), nil
}

// Destroy deletes the request key. Deleting an unknown key is an error.
func (b *Backend) Destroy(ctx context.Context, req *router.Request) (any, error) {
	n, err := b.client.Del(ctx, b.key(req.Key())).Result()
	if err != nil {
		return nil, errors.Annotatef(err, "deleting %s", b.key(req.Key()))
	}
	if n == 0 {
		return nil, errors.NewNotValid(nil, fmt.Sprintf("could not find %s to destroy", req.Key()))
	}
	return n, nil
}

// Doc describes the backend in reference output.
func (b *Backend) Doc() string {
	return "Stores msgpack encoded values in Redis under prefix:router:key."
}
