// Package queue publishes saved router values on a message queue named after
// the router, and consumes them again on the other side.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-repository-router/router"
)

// TypeName is the backend type name the queue backend registers under.
const TypeName = "queue"

var logger = loggo.GetLogger("router.backends.queue")

// Client sends and receives raw messages.
type Client interface {
	// Publish sends payload on queue.
	Publish(ctx context.Context, queue string, payload []byte) error
	// Subscribe calls deliver for every message on queue until ctx is done
	// or the subscription fails.
	Subscribe(ctx context.Context, queue string, deliver func(payload []byte)) error
}

// Name returns the queue a router's values travel on.
func Name(routerName string) string {
	return routerName
}

// Backend writes values to the queue. It has no notion of lookup.
type Backend struct {
	client     Client
	routerName string
}

// New returns a backend publishing routerName values through client.
func New(client Client, routerName string) (*Backend, error) {
	if client == nil {
		return nil, errors.NotValidf("queue backend for router %q without client", routerName)
	}
	return &Backend{client: client, routerName: routerName}, nil
}

// Factory builds a backend sharing client for every router it is used by.
func Factory(client Client) router.Factory {
	return func(r *router.Router) (router.Backend, error) {
		return New(client, r.Name())
	}
}

// Register adds the queue backend for every named router to reg.
func Register(reg *router.Registry, client Client, routerNames ...string) error {
	for _, name := range routerNames {
		if err := reg.Register(name, TypeName, Factory(client)); err != nil {
			return err
		}
	}
	return nil
}

// Find always returns nil.
func (b *Backend) Find(context.Context, *router.Request) (router.Instance, error) {
	return nil, nil
}

// Save publishes the encoded request instance.
func (b *Backend) Save(ctx context.Context, req *router.Request) (any, error) {
	if req.Instance() == nil {
		return nil, errors.NotValidf("save without instance for %s", req)
	}
	start := time.Now()
	payload, err := msgpack.Marshal(req.Instance())
	if err == nil {
		err = b.client.Publish(ctx, Name(b.routerName), payload)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "could not write %s to queue", req.Key())
	}
	logger.Infof("queued %s for %s in %v", b.routerName, req.Key(), time.Since(start))
	return req.Instance(), nil
}

// Handler receives every decoded value of a subscription.
type Handler func(ctx context.Context, instance router.Instance) error

// Decode turns a payload into a value of model.
func Decode(model router.Model, payload []byte) (router.Instance, error) {
	instance := model.NewInstance("")
	if err := msgpack.Unmarshal(payload, instance); err != nil {
		return nil, errors.Annotate(err, "decoding queued value")
	}
	return instance, nil
}

// SaveTo returns a handler saving every received value through r.
func SaveTo(r *router.Router) Handler {
	return func(ctx context.Context, instance router.Instance) error {
		_, err := r.Save(ctx, instance)
		return err
	}
}

func describe(instance router.Instance) string {
	if instance == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T %q", instance, instance.Name())
}

// Doc describes the backend in reference output.
func (b *Backend) Doc() string {
	return "Publishes saved values to a queue named after the router. Finds return nothing."
}
