package queue

import (
	"context"

	"github.com/juju/errors"
	"gopkg.in/tomb.v2"

	"github.com/goliatone/go-repository-router/router"
)

// Consumer subscribes to a router's queue and hands every decoded value to a
// handler. Failures of single messages are logged and skipped.
type Consumer struct {
	tomb    tomb.Tomb
	client  Client
	queue   string
	model   router.Model
	handler Handler
}

// NewConsumer starts consuming the queue of source, decoding with its model.
func NewConsumer(client Client, source *router.Router, handler Handler) (*Consumer, error) {
	if client == nil || source == nil || handler == nil {
		return nil, errors.NotValidf("consumer without client, router or handler")
	}
	c := &Consumer{
		client:  client,
		queue:   Name(source.Name()),
		model:   source.Model(),
		handler: handler,
	}
	c.tomb.Go(c.loop)
	return c, nil
}

// Kill asks the consumer to stop.
func (c *Consumer) Kill() {
	c.tomb.Kill(nil)
}

// Wait blocks until the consumer stopped and returns the reason.
func (c *Consumer) Wait() error {
	return c.tomb.Wait()
}

// Dead is closed once the consumer stopped.
func (c *Consumer) Dead() <-chan struct{} {
	return c.tomb.Dead()
}

func (c *Consumer) loop() error {
	ctx := c.tomb.Context(context.Background())
	err := c.client.Subscribe(ctx, c.queue, func(payload []byte) {
		c.deliver(ctx, payload)
	})
	select {
	case <-c.tomb.Dying():
		return tomb.ErrDying
	default:
	}
	if err != nil {
		return errors.Annotatef(err, "subscription to queue %s", c.queue)
	}
	return nil
}

func (c *Consumer) deliver(ctx context.Context, payload []byte) {
	instance, err := Decode(c.model, payload)
	if err == nil {
		logger.Debugf("loaded queued %s", describe(instance))
		err = c.handler(ctx, instance)
	}
	if err != nil {
		logger.Errorf("error with subscription to queue %s: %v", c.queue, err)
	}
}
