package di

import (
	"context"
	"sort"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-router/backends/fileserver"
	"github.com/goliatone/go-repository-router/backends/memory"
	"github.com/goliatone/go-repository-router/backends/plain"
	"github.com/goliatone/go-repository-router/backends/queue"
	"github.com/goliatone/go-repository-router/backends/redisstore"
	"github.com/goliatone/go-repository-router/backends/relational"
	"github.com/goliatone/go-repository-router/backends/rest"
	"github.com/goliatone/go-repository-router/backends/yamlstore"
	"github.com/goliatone/go-repository-router/cache"
	"github.com/goliatone/go-repository-router/config"
	"github.com/goliatone/go-repository-router/document"
	"github.com/goliatone/go-repository-router/httpapi"
	"github.com/goliatone/go-repository-router/internal/naming"
	"github.com/goliatone/go-repository-router/repositorycache"
	"github.com/goliatone/go-repository-router/router"
)

var logger = loggo.GetLogger("router.di")

// Container wires a configuration into a directory of routers, the
// backends they may use and the shared services behind those backends.
type Container struct {
	config        config.Config
	settings      *config.Settings
	clock         clock.Clock
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer

	registry  *router.Registry
	directory *router.Directory
	routes    *router.RouteTable
	metrics   *router.Metrics
	gatherer  *prometheus.Registry

	redis       redis.UniversalClient
	ownsRedis   bool
	queueClient queue.Client
	db          *bun.DB
}

// Option customizes a Container.
type Option func(*Container)

// WithClock sets the clock routers stamp expirations with.
func WithClock(c clock.Clock) Option {
	return func(ct *Container) {
		ct.clock = c
	}
}

// WithRedis uses client instead of dialing the configured address.
func WithRedis(client redis.UniversalClient) Option {
	return func(ct *Container) {
		ct.redis = client
	}
}

// WithQueueClient carries queue messages through client instead of Redis.
func WithQueueClient(client queue.Client) Option {
	return func(ct *Container) {
		ct.queueClient = client
	}
}

// NewContainer builds every component described by cfg. Routers declared in
// cfg are created with the document model, file routers with the file
// metadata model, and the static routes are applied last.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	c := &Container{config: cfg, clock: clock.WallClock}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.build(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDefaults builds a container for config.Default().
func NewContainerWithDefaults(ctx context.Context) (*Container, error) {
	return NewContainer(ctx, config.Default())
}

func (c *Container) build(ctx context.Context) error {
	var err error
	c.settings = c.config.NewSettings()

	if c.cacheService, err = cache.NewCacheService(c.config.Cache); err != nil {
		return errors.Annotate(err, "creating cache service")
	}
	c.keySerializer = cache.NewDefaultKeySerializer()

	var reg prometheus.Registerer
	if c.config.Metrics {
		c.gatherer = prometheus.NewRegistry()
		reg = c.gatherer
	}
	if c.metrics, err = router.NewMetrics(reg); err != nil {
		return err
	}

	c.registry = router.NewRegistry()
	c.directory = router.NewDirectory(
		router.WithRegistry(c.registry),
		router.WithSettings(c.settings),
		router.WithClock(c.clock),
		router.WithMetrics(c.metrics),
	)

	if err := c.connect(ctx); err != nil {
		return err
	}
	if err := c.registerBackends(c.routerNames()); err != nil {
		return err
	}
	if err := c.createRouters(); err != nil {
		return err
	}

	c.routes = router.NewRouteTable(c.directory)
	if err := c.routes.AddRoutes(c.config.Routes); err != nil {
		return err
	}
	return c.routes.Apply()
}

func (c *Container) connect(ctx context.Context) error {
	if c.redis == nil && c.config.Redis != nil {
		client, err := redisstore.Dial(ctx, *c.config.Redis)
		if err != nil {
			return err
		}
		c.redis, c.ownsRedis = client, true
	}
	if c.queueClient == nil && c.redis != nil {
		c.queueClient = queue.NewRedisClient(c.redis)
	}

	if db := c.config.Database; db != nil {
		conn, err := relational.Open(ctx, db.Driver, db.DSN)
		if err != nil {
			return err
		}
		c.db = conn
		if db.Migrate {
			if err := document.CreateTable(ctx, conn); err != nil {
				return err
			}
		}
	}
	return nil
}

// routerNames returns every router named by the configuration.
func (c *Container) routerNames() []string {
	seen := map[string]bool{}
	add := func(name string) {
		if n := naming.Normalize(name); n != "" {
			seen[n] = true
		}
	}
	for _, rc := range c.config.Routers {
		add(rc.Name)
	}
	for name := range c.config.Routes {
		add(name)
	}
	for _, qc := range c.config.Queue.Consumers {
		add(qc.From)
		add(qc.To)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Container) registerBackends(names []string) error {
	if len(names) == 0 {
		return nil
	}
	if err := memory.Register(c.registry, names...); err != nil {
		return err
	}
	if err := plain.Register(c.registry, names...); err != nil {
		return err
	}
	if err := repositorycache.Register(c.registry, c.cacheService, c.keySerializer, names...); err != nil {
		return err
	}
	if c.config.YAMLDir != "" {
		if err := yamlstore.Register(c.registry, c.config.YAMLDir, names...); err != nil {
			return err
		}
	}
	if c.config.Files.Root != "" {
		if err := fileserver.Register(c.registry, c.config.Files, names...); err != nil {
			return err
		}
	}
	if c.redis != nil {
		cfg := redisstore.Config{}
		if c.config.Redis != nil {
			cfg = *c.config.Redis
		}
		if err := redisstore.Register(c.registry, c.redis, cfg, names...); err != nil {
			return err
		}
	}
	if c.config.Rest != nil {
		cfg := *c.config.Rest
		if cfg.Environment == "" {
			cfg.Environment = c.config.Environment
		}
		if err := rest.Register(c.registry, cfg, names...); err != nil {
			return err
		}
	}
	if c.queueClient != nil {
		if err := queue.Register(c.registry, c.queueClient, names...); err != nil {
			return err
		}
	}
	if c.db != nil {
		store, err := document.NewStore(c.db)
		if err != nil {
			return err
		}
		if err := relational.Register[*document.Row](c.registry, store, document.RowMapper{Now: c.clock.Now}, names...); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) createRouters() error {
	declared := map[string]bool{}
	for _, rc := range c.config.Routers {
		model := document.Model
		if naming.Normalize(rc.Backend) == fileserver.TypeName {
			model = fileserver.Model
		}

		var opts []router.Option
		if rc.Backend != "" {
			opts = append(opts, router.WithBackendType(rc.Backend))
		}
		if rc.BackendSetting != "" {
			opts = append(opts, router.WithBackendSetting(rc.BackendSetting))
		}
		if rc.Cache != "" {
			opts = append(opts, router.WithCacheType(rc.Cache))
		}
		if rc.TTL > 0 {
			opts = append(opts, router.WithTTL(rc.TTL))
		}
		if rc.Doc != "" {
			opts = append(opts, router.WithDoc(rc.Doc))
		}

		if _, err := c.directory.New(rc.Name, model, opts...); err != nil {
			return errors.Annotatef(err, "creating router %s", rc.Name)
		}
		declared[naming.Normalize(rc.Name)] = true
	}

	// routers only named by routes or consumers get the document model
	for _, name := range c.routerNames() {
		if declared[name] {
			continue
		}
		if _, err := c.directory.New(name, document.Model); err != nil {
			return errors.Annotatef(err, "creating router %s", name)
		}
	}
	logger.Infof("created routers %v", c.directory.Instances())
	return nil
}

// StartConsumers starts one queue consumer per configured consumer. The
// caller owns the returned consumers.
func (c *Container) StartConsumers() ([]*queue.Consumer, error) {
	consumers := c.config.Queue.Consumers
	if len(consumers) == 0 {
		return nil, nil
	}
	if c.queueClient == nil {
		return nil, errors.NotValidf("queue consumers without redis or queue client")
	}

	var started []*queue.Consumer
	stop := func() {
		for _, consumer := range started {
			consumer.Kill()
			_ = consumer.Wait()
		}
	}
	for _, qc := range consumers {
		source := c.directory.Instance(qc.From)
		target := c.directory.Instance(qc.To)
		if source == nil || target == nil {
			stop()
			return nil, errors.NotFoundf("router for consumer %s -> %s", qc.From, qc.To)
		}
		consumer, err := queue.NewConsumer(c.queueClient, source, queue.SaveTo(target))
		if err != nil {
			stop()
			return nil, err
		}
		logger.Infof("consuming queue %s into %s", queue.Name(source.Name()), target.Name())
		started = append(started, consumer)
	}
	return started, nil
}

// Server returns the HTTP front end over the container's routers.
func (c *Container) Server() *httpapi.Server {
	var opts []httpapi.Option
	if c.gatherer != nil {
		opts = append(opts, httpapi.WithGatherer(c.gatherer))
	}
	return httpapi.NewServer(c.directory, opts...)
}

// Close releases the connections the container opened.
func (c *Container) Close() error {
	var errs []error
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	if c.redis != nil && c.ownsRedis {
		errs = append(errs, c.redis.Close())
	}
	for _, err := range errs {
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// CacheService returns the shared in-process cache service.
func (c *Container) CacheService() cache.CacheService {
	return c.cacheService
}

// KeySerializer returns the key serializer used by cache backends.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the configuration the container was built from.
func (c *Container) Config() config.Config {
	return c.config
}

// Settings returns the settings routers resolve against.
func (c *Container) Settings() *config.Settings { return c.settings }

// Registry returns the backend registry.
func (c *Container) Registry() *router.Registry { return c.registry }

// Directory returns the routers.
func (c *Container) Directory() *router.Directory { return c.directory }

// Routes returns the static route table.
func (c *Container) Routes() *router.RouteTable { return c.routes }

// Gatherer returns the metrics registry, nil when metrics are disabled.
func (c *Container) Gatherer() prometheus.Gatherer {
	if c.gatherer == nil {
		return nil
	}
	return c.gatherer
}
