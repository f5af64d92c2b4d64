// Package yamlstore keeps router values as YAML files, one file per key under
// <dir>/<router>/<key>.yaml.
package yamlstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/ryanuber/go-glob"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-repository-router/router"
)

// TypeName is the backend type name the YAML backend registers under.
const TypeName = "yaml"

const ext = ".yaml"

var logger = loggo.GetLogger("router.backends.yamlstore")

// Backend reads and writes YAML files for one router.
type Backend struct {
	dir   string
	model router.Model
}

// New returns a backend storing files in dir, decoding through model.
func New(dir string, model router.Model) (*Backend, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.NotValidf("empty yaml directory")
	}
	if model == nil {
		return nil, errors.NotValidf("yaml backend without a model")
	}
	return &Backend{dir: dir, model: model}, nil
}

// Factory stores each router's files in its own directory under root.
func Factory(root string) router.Factory {
	return func(r *router.Router) (router.Backend, error) {
		return New(filepath.Join(root, r.Name()), r.Model())
	}
}

// Register adds the YAML backend for every named router to reg.
func Register(reg *router.Registry, root string, routerNames ...string) error {
	for _, name := range routerNames {
		if err := reg.Register(name, TypeName, Factory(root)); err != nil {
			return err
		}
	}
	return nil
}

// Dir returns the directory holding the router's files.
func (b *Backend) Dir() string { return b.dir }

func (b *Backend) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", errors.NewNotValid(nil, fmt.Sprintf("invalid yaml key %q", key))
	}
	return filepath.Join(b.dir, key+ext), nil
}

// Find decodes the file for the request key, nil when it does not exist.
func (b *Backend) Find(_ context.Context, req *router.Request) (router.Instance, error) {
	file, err := b.path(req.Key())
	if err != nil {
		return nil, err
	}
	return b.load(req.Key(), file)
}

func (b *Backend) load(key, file string) (router.Instance, error) {
	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "reading %s", file)
	}
	instance := b.model.NewInstance(key)
	if err := yaml.Unmarshal(data, instance); err != nil {
		return nil, errors.Annotatef(err, "decoding %s", file)
	}
	return instance, nil
}

// Search decodes every file whose key matches the request key as a glob.
func (b *Backend) Search(_ context.Context, req *router.Request) ([]router.Instance, error) {
	pattern := req.Key()
	if pattern == "" {
		pattern = "*"
	}
	entries, err := os.ReadDir(b.dir)
	if os.IsNotExist(err) {
		return []router.Instance{}, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "listing %s", b.dir)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		key := strings.TrimSuffix(name, ext)
		if glob.Glob(pattern, key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	results := make([]router.Instance, 0, len(keys))
	for _, key := range keys {
		instance, err := b.load(key, filepath.Join(b.dir, key+ext))
		if err != nil {
			return nil, err
		}
		if instance != nil {
			results = append(results, instance)
		}
	}
	return results, nil
}

// Save writes the request instance atomically.
func (b *Backend) Save(_ context.Context, req *router.Request) (any, error) {
	if req.Instance() == nil {
		return nil, errors.NotValidf("save without instance for %s", req)
	}
	file, err := b.path(req.Key())
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(req.Instance())
	if err != nil {
		return nil, errors.Annotatef(err, "encoding %s", req)
	}
	if err := os.MkdirAll(b.dir, 0o750); err != nil {
		return nil, errors.Annotatef(err, "creating %s", b.dir)
	}
	if err := renameio.WriteFile(file, data, 0o640); err != nil {
		return nil, errors.Annotatef(err, "writing %s", file)
	}
	logger.Debugf("wrote %s", file)
	return req.Instance(), nil
}

// Destroy removes the file for the request key. Removing an unknown key is
// an error.
func (b *Backend) Destroy(_ context.Context, req *router.Request) (any, error) {
	file, err := b.path(req.Key())
	if err != nil {
		return nil, err
	}
	if err := os.Remove(file); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotValid(nil, fmt.Sprintf("could not find %s to destroy", req.Key()))
		}
		return nil, errors.Annotatef(err, "removing %s", file)
	}
	return nil, nil
}

// Doc describes the backend in reference output.
func (b *Backend) Doc() string {
	return "Stores one YAML file per value under the configured directory."
}
