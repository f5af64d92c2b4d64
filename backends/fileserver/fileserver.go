// Package fileserver serves metadata about files below a root directory.
// Keys are slash separated paths relative to the root.
package fileserver

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/ryanuber/go-glob"

	"github.com/goliatone/go-repository-router/router"
)

// TypeName is the backend type name the file backend registers under.
const TypeName = "file"

// Request options understood by the backend.
const (
	OptionLinks   = "links"
	OptionRecurse = "recurse"
)

// Config configures a file backend.
type Config struct {
	// Root is the directory keys are resolved against.
	Root string `yaml:"root"`
	// AllowNodes lists node name globs allowed to read. Empty allows all.
	AllowNodes []string `yaml:"allow_nodes"`
}

// Backend reads file metadata below a root.
type Backend struct {
	root  string
	allow []string
}

// New returns a backend for cfg.
func New(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, errors.NotValidf("file backend without root")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Backend{root: root, allow: cfg.AllowNodes}, nil
}

// Factory returns a factory serving cfg for every router it is used by.
func Factory(cfg Config) router.Factory {
	return func(*router.Router) (router.Backend, error) {
		return New(cfg)
	}
}

// Register adds the file backend for every named router to reg.
func Register(reg *router.Registry, cfg Config, routerNames ...string) error {
	for _, name := range routerNames {
		if err := reg.Register(name, TypeName, Factory(cfg)); err != nil {
			return err
		}
	}
	return nil
}

// resolve maps a key to a path below the root.
func (b *Backend) resolve(key string) (string, string, error) {
	clean := path.Clean("/" + strings.TrimPrefix(key, "/"))
	rel := strings.TrimPrefix(clean, "/")
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", "", errors.NotValidf("file key %q outside root", key)
		}
	}
	if rel == "" {
		rel = "."
	}
	return rel, filepath.Join(b.root, filepath.FromSlash(rel)), nil
}

func links(req *router.Request) (string, error) {
	switch mode := req.StringOption(OptionLinks); mode {
	case "", LinksManage:
		return LinksManage, nil
	case LinksFollow:
		return LinksFollow, nil
	default:
		return "", errors.NotValidf("links option %q", mode)
	}
}

func exists(full string) (bool, error) {
	_, err := os.Lstat(full)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Trace(err)
}

// Find returns the metadata of the file named by the request key, nil when
// it does not exist.
func (b *Backend) Find(_ context.Context, req *router.Request) (router.Instance, error) {
	rel, full, err := b.resolve(req.Key())
	if err != nil {
		return nil, err
	}
	mode, err := links(req)
	if err != nil {
		return nil, err
	}
	if ok, err := exists(full); err != nil || !ok {
		return nil, err
	}

	m := &Metadata{Path: rel, Links: mode}
	if err := m.collect(full); err != nil {
		return nil, err
	}
	return m, nil
}

// Search returns the metadata of the request key and, with the recurse
// option, of everything below it in lexical order. A missing key yields nil.
func (b *Backend) Search(_ context.Context, req *router.Request) ([]router.Instance, error) {
	rel, full, err := b.resolve(req.Key())
	if err != nil {
		return nil, err
	}
	mode, err := links(req)
	if err != nil {
		return nil, err
	}
	if ok, err := exists(full); err != nil || !ok {
		return nil, err
	}

	if !req.BoolOption(OptionRecurse) {
		m := &Metadata{Path: rel, Links: mode}
		if err := m.collect(full); err != nil {
			return nil, err
		}
		return []router.Instance{m}, nil
	}

	var results []router.Instance
	err = filepath.WalkDir(full, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		sub, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		m := &Metadata{Path: filepath.ToSlash(sub), Links: mode}
		if err := m.collect(p); err != nil {
			return err
		}
		results = append(results, m)
		return nil
	})
	if err != nil {
		return nil, errors.Annotatef(err, "walking %s", rel)
	}
	return results, nil
}

// Authorized allows reads by nodes matching the allow list. Writes are never
// allowed.
func (b *Backend) Authorized(_ context.Context, req *router.Request) bool {
	switch req.Method() {
	case router.OpFind, router.OpSearch:
	default:
		return false
	}
	if len(b.allow) == 0 {
		return true
	}
	node := req.Node()
	if node == "" {
		return false
	}
	for _, pattern := range b.allow {
		if glob.Glob(pattern, node) {
			return true
		}
	}
	return false
}

// Doc describes the backend in reference output.
func (b *Backend) Doc() string {
	return "Reports metadata of local files below the configured root."
}
