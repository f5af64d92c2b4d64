// Package rest reaches routers served by another process through its HTTP
// front end. Request paths are built with httpapi.URI, so a rest backend
// talks to any routerd started with the same router names.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/goliatone/go-repository-router/httpapi"
	"github.com/goliatone/go-repository-router/router"
)

// TypeName is the backend type name the REST backend registers under.
const TypeName = "rest"

// DefaultEnvironment is used for requests that carry no environment option.
const DefaultEnvironment = "production"

var logger = loggo.GetLogger("router.backends.rest")

// Interface assertions
var (
	_ router.Finder    = (*Backend)(nil)
	_ router.Searcher  = (*Backend)(nil)
	_ router.Saver     = (*Backend)(nil)
	_ router.Destroyer = (*Backend)(nil)
)

// Config locates the remote front end.
type Config struct {
	// URL is the base URL of the remote server, e.g. https://master:8140.
	URL string `yaml:"url"`

	// Environment fills requests without an environment option.
	Environment string `yaml:"environment"`

	// Timeout bounds a single HTTP attempt. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`

	// Retries is the number of retries after a failed attempt.
	Retries int `yaml:"retries"`

	// RetryWait is the minimum wait between attempts.
	RetryWait time.Duration `yaml:"retry_wait"`
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Retries, validation.Min(0)),
		validation.Field(&c.RetryWait, validation.Min(time.Duration(0))),
	)
}

// Backend performs router operations against a remote front end.
type Backend struct {
	routerName  string
	model       router.Model
	base        string
	environment string
	client      *retryablehttp.Client
}

// New creates a REST backend for routerName decoding values into model.
func New(routerName string, model router.Model, cfg Config) (*Backend, error) {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		return nil, errors.NotValidf("rest backend for router %q without url", routerName)
	}
	if model == nil {
		return nil, errors.NotValidf("rest backend for router %q without a model", routerName)
	}
	environment := cfg.Environment
	if environment == "" {
		environment = DefaultEnvironment
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.Retries
	if cfg.RetryWait > 0 {
		client.RetryWaitMin = cfg.RetryWait
		client.RetryWaitMax = 4 * cfg.RetryWait
	}
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = leveledLogger{logger}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Backend{
		routerName:  routerName,
		model:       model,
		base:        base,
		environment: environment,
		client:      client,
	}, nil
}

// Factory builds a REST backend over the router's model.
func Factory(cfg Config) router.Factory {
	return func(r *router.Router) (router.Backend, error) {
		return New(r.Name(), r.Model(), cfg)
	}
}

// Register adds the REST backend for every named router to reg.
func Register(reg *router.Registry, cfg Config, routerNames ...string) error {
	for _, name := range routerNames {
		if err := reg.Register(name, TypeName, Factory(cfg)); err != nil {
			return err
		}
	}
	return nil
}

// Doc describes the backend in reference output.
func (b *Backend) Doc() string {
	return fmt.Sprintf("Forwards requests to the HTTP front end at %s.", b.base)
}

// Find fetches a single value. A 404 from the remote side is a miss.
func (b *Backend) Find(ctx context.Context, req *router.Request) (router.Instance, error) {
	body, status, err := b.do(ctx, http.MethodGet, req, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err := b.check(req, status, body); err != nil {
		return nil, err
	}
	instance := b.model.NewInstance(req.Key())
	if err := json.Unmarshal(body, instance); err != nil {
		return nil, errors.Annotatef(err, "decoding %s", req)
	}
	return instance, nil
}

// Search fetches every value matching the request key.
func (b *Backend) Search(ctx context.Context, req *router.Request) ([]router.Instance, error) {
	body, status, err := b.do(ctx, http.MethodGet, req, nil)
	if err != nil {
		return nil, err
	}
	if err := b.check(req, status, body); err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Annotatef(err, "decoding %s", req)
	}
	results := make([]router.Instance, 0, len(raw))
	for _, item := range raw {
		instance := b.model.NewInstance("")
		if err := json.Unmarshal(item, instance); err != nil {
			return nil, errors.Annotatef(err, "decoding %s", req)
		}
		results = append(results, instance)
	}
	return results, nil
}

// Save sends the request instance and returns the decoded response.
func (b *Backend) Save(ctx context.Context, req *router.Request) (any, error) {
	if req.Instance() == nil {
		return nil, errors.NotValidf("save without instance for %s", req)
	}
	payload, err := json.Marshal(req.Instance())
	if err != nil {
		return nil, errors.Annotatef(err, "encoding %s", req)
	}
	return b.result(ctx, http.MethodPut, req, payload)
}

// Destroy removes the value remotely and returns the decoded response.
func (b *Backend) Destroy(ctx context.Context, req *router.Request) (any, error) {
	return b.result(ctx, http.MethodDelete, req, nil)
}

func (b *Backend) result(ctx context.Context, method string, req *router.Request, payload []byte) (any, error) {
	body, status, err := b.do(ctx, method, req, payload)
	if err != nil {
		return nil, err
	}
	if err := b.check(req, status, body); err != nil {
		return nil, err
	}
	var result any
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, errors.Annotatef(err, "decoding %s response", req)
	}
	return result, nil
}

// URL returns the address req is sent to.
func (b *Backend) URL(req *router.Request) (string, error) {
	if req.Environment() != "" {
		return b.base + httpapi.URI(req), nil
	}
	withEnv, err := router.NewRequest(req.RouterName(), req.Method(), req.Key(),
		router.WithOptions(req.Options()),
		router.WithEnvironment(b.environment),
	)
	if err != nil {
		return "", err
	}
	return b.base + httpapi.URI(withEnv), nil
}

func (b *Backend) do(ctx context.Context, method string, req *router.Request, payload []byte) ([]byte, int, error) {
	target, err := b.URL(req)
	if err != nil {
		return nil, 0, err
	}
	var body any
	if payload != nil {
		body = payload
	}
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, 0, errors.Annotatef(err, "building %s %s", method, target)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, 0, errors.Annotatef(err, "%s %s", method, target)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, errors.Annotatef(err, "reading %s %s", method, target)
	}
	logger.Debugf("%s %s: %d", method, target, resp.StatusCode)
	return data, resp.StatusCode, nil
}

// check maps an error status back to the error kind the remote router
// reported.
func (b *Backend) check(req *router.Request, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	msg = fmt.Sprintf("%s: %s", req, msg)

	switch status {
	case http.StatusBadRequest:
		return errors.NewNotValid(nil, msg)
	case http.StatusForbidden, http.StatusUnauthorized:
		return errors.NewUnauthorized(nil, msg)
	case http.StatusNotFound:
		return errors.NewNotFound(nil, msg)
	case http.StatusMethodNotAllowed:
		return errors.NewNotSupported(nil, msg)
	default:
		return errors.Errorf("%s (status %d)", msg, status)
	}
}

// leveledLogger routes retryablehttp logging to loggo.
type leveledLogger struct {
	logger loggo.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.logger.Errorf("%s %v", msg, kv) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.logger.Infof("%s %v", msg, kv) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.logger.Debugf("%s %v", msg, kv) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.logger.Warningf("%s %v", msg, kv) }
