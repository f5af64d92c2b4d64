// Package plain answers every find with a fresh, empty model instance.
package plain

import (
	"context"

	"github.com/juju/errors"

	"github.com/goliatone/go-repository-router/router"
)

// TypeName is the backend type name the plain backend registers under.
const TypeName = "plain"

// Backend builds instances from the router's model.
type Backend struct {
	model router.Model
}

// New returns a plain backend producing instances of model.
func New(model router.Model) *Backend {
	return &Backend{model: model}
}

// Factory builds a plain backend over the router's model. Routers without a
// model cannot use it.
func Factory(r *router.Router) (router.Backend, error) {
	if r.Model() == nil {
		return nil, errors.NotValidf("plain backend for router %q without a model", r.Name())
	}
	return New(r.Model()), nil
}

// Register adds the plain backend for every named router to reg.
func Register(reg *router.Registry, routerNames ...string) error {
	for _, name := range routerNames {
		if err := reg.Register(name, TypeName, Factory); err != nil {
			return err
		}
	}
	return nil
}

// Find returns model.NewInstance(key).
func (b *Backend) Find(_ context.Context, req *router.Request) (router.Instance, error) {
	return b.model.NewInstance(req.Key()), nil
}

// Doc describes the backend in reference output.
func (b *Backend) Doc() string {
	return "Answers every find with an empty instance of the router model."
}
