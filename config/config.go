// Package config loads the daemon configuration and exposes its settings to
// routers.
package config

import (
	"io"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-repository-router/backends/fileserver"
	"github.com/goliatone/go-repository-router/backends/redisstore"
	"github.com/goliatone/go-repository-router/backends/rest"
	"github.com/goliatone/go-repository-router/cache"
	"github.com/goliatone/go-repository-router/internal/naming"
	"github.com/goliatone/go-repository-router/router"
)

// Config is the daemon configuration file.
type Config struct {
	// Name is the executable name routes are matched against.
	Name string `yaml:"name"`
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// RunInterval, in seconds, is the default TTL of found values.
	RunInterval int `yaml:"runinterval"`
	// Environment is the default request environment.
	Environment string `yaml:"environment"`
	// Logging is a loggo configuration string such as "<root>=INFO".
	Logging string `yaml:"logging"`
	// Metrics enables the /metrics endpoint.
	Metrics bool `yaml:"metrics"`

	Settings map[string]string           `yaml:"settings"`
	Routers  []RouterConfig              `yaml:"routers"`
	Routes   map[string]router.RouteSpec `yaml:"routes"`

	Cache    cache.Config       `yaml:"cache"`
	YAMLDir  string             `yaml:"yaml_dir"`
	Files    fileserver.Config  `yaml:"files"`
	Redis    *redisstore.Config `yaml:"redis"`
	Rest     *rest.Config       `yaml:"rest"`
	Database *DatabaseConfig    `yaml:"database"`
	Queue    QueueConfig        `yaml:"queue"`
}

// RouterConfig declares one router.
type RouterConfig struct {
	Name           string        `yaml:"name"`
	Backend        string        `yaml:"backend"`
	BackendSetting string        `yaml:"backend_setting"`
	Cache          string        `yaml:"cache"`
	TTL            time.Duration `yaml:"ttl"`
	Doc            string        `yaml:"doc"`
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// Migrate creates the document table on startup.
	Migrate bool `yaml:"migrate"`
}

// QueueConfig configures queue publishing and consumption. Queues travel over
// the configured Redis connection.
type QueueConfig struct {
	Consumers []ConsumerConfig `yaml:"consumers"`
}

// ConsumerConfig saves every value queued by From into To.
type ConsumerConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Default returns the configuration used for unset fields.
func Default() Config {
	return Config{
		Listen:      ":8140",
		RunInterval: DefaultRunInterval,
		Environment: DefaultEnvironment,
		Logging:     "<root>=INFO",
		Cache:       cache.DefaultConfig(),
	}
}

// Load decodes a YAML configuration over the defaults and validates it.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Annotate(err, "decoding configuration")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.NewNotValid(err, "invalid configuration")
	}
	return cfg, nil
}

// LoadFile reads the configuration at path.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Trace(err)
	}
	defer f.Close()
	cfg, err := Load(f)
	return cfg, errors.Annotatef(err, "loading %s", path)
}

var nameRule = validation.By(func(value any) error {
	s, _ := value.(string)
	if s != "" && !naming.Valid(s) {
		return errors.Errorf("must be a lower_snake_case name")
	}
	return nil
})

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Listen, validation.Required),
		validation.Field(&c.RunInterval, validation.Min(0)),
		validation.Field(&c.Routers),
		validation.Field(&c.Cache),
		validation.Field(&c.Rest),
		validation.Field(&c.Database),
		validation.Field(&c.Queue),
	)
}

// Validate checks a router declaration.
func (r RouterConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, nameRule),
		validation.Field(&r.Backend, nameRule),
		validation.Field(&r.Cache, nameRule),
		validation.Field(&r.TTL, validation.Min(time.Duration(0))),
	)
}

// Validate checks the database configuration.
func (d DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In("sqlite3", "postgres")),
		validation.Field(&d.DSN, validation.Required),
	)
}

// Validate checks the queue configuration.
func (q QueueConfig) Validate() error {
	return validation.ValidateStruct(&q, validation.Field(&q.Consumers))
}

// Validate checks a consumer declaration.
func (c ConsumerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.From, validation.Required, nameRule),
		validation.Field(&c.To, validation.Required, nameRule),
	)
}

// NewSettings returns the settings described by c: the defaults, then the
// settings map, then the top-level fields.
func (c Config) NewSettings() *Settings {
	s := NewSettings(c.Settings)
	if c.Name != "" {
		s.Set(SettingName, c.Name)
	}
	if c.RunInterval > 0 {
		s.Set(SettingRunInterval, strconv.Itoa(c.RunInterval))
	}
	if c.Environment != "" {
		s.Set(SettingEnvironment, c.Environment)
	}
	return s
}
