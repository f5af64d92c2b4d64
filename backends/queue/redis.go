package queue

import (
	"context"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

// RedisClient carries queue messages over Redis pub/sub.
type RedisClient struct {
	client redis.UniversalClient
}

// NewRedisClient wraps client.
func NewRedisClient(client redis.UniversalClient) *RedisClient {
	return &RedisClient{client: client}
}

// Publish implements Client.
func (c *RedisClient) Publish(ctx context.Context, queue string, payload []byte) error {
	return errors.Trace(c.client.Publish(ctx, queue, payload).Err())
}

// Subscribe implements Client. It returns nil once ctx is done.
func (c *RedisClient) Subscribe(ctx context.Context, queue string, deliver func(payload []byte)) error {
	sub := c.client.Subscribe(ctx, queue)
	defer sub.Close()

	// wait for the subscription to be confirmed before reading messages
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Annotatef(err, "subscribing to %s", queue)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.Errorf("subscription to %s closed", queue)
			}
			deliver([]byte(msg.Payload))
		}
	}
}
