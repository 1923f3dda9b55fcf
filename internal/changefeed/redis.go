package changefeed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisPrefix = "venueboard:"

// Redis fans events out through Redis pub/sub so every API instance sees
// changes made by the others.
type Redis struct {
	client *redis.Client
	pubsub *redis.PubSub
	hub    *hub
	logger zerolog.Logger
	done   chan struct{}
}

// NewRedis pattern-subscribes to all venueboard channels and starts the
// receive loop.
func NewRedis(ctx context.Context, client *redis.Client, logger zerolog.Logger) (*Redis, error) {
	pubsub := client.PSubscribe(ctx, redisPrefix+"*")
	// Wait for the subscription confirmation so early publishes are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis psubscribe: %w", err)
	}

	r := &Redis{
		client: client,
		pubsub: pubsub,
		hub:    newHub(),
		logger: logger,
		done:   make(chan struct{}),
	}
	go r.run()
	return r, nil
}

func (r *Redis) run() {
	defer close(r.done)
	for msg := range r.pubsub.Channel() {
		topic := strings.TrimPrefix(msg.Channel, redisPrefix)
		r.hub.dispatch(Event{Topic: topic, At: parseStamp(msg.Payload)})
	}
}

func parseStamp(payload string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, payload); err == nil {
		return t
	}
	return time.Now().UTC()
}

// Publish sends a change notification for topic.
func (r *Redis) Publish(ctx context.Context, topic string) error {
	if r.hub.isClosed() {
		return ErrClosed
	}
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	if err := r.client.Publish(ctx, redisPrefix+topic, stamp).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a local listener; the Redis subscription is shared.
func (r *Redis) Subscribe(ctx context.Context, topic string) (*Listener, error) {
	return r.hub.add(ctx, topic)
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close stops the receive loop and closes every listener. The Redis client
// itself belongs to the caller.
func (r *Redis) Close() error {
	err := r.pubsub.Close()
	<-r.done
	r.hub.closeAll()
	if err != nil {
		r.logger.Warn().Err(err).Msg("close redis subscription")
	}
	return err
}
