package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stockledger-api/internal/model"
)

// RedisRelay shares notifications between API instances over a Redis
// pub/sub channel. As a Sink it publishes local notifications; its listener
// delivers notifications from other instances into the local hub.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	log     *zap.Logger

	pubsub   *redis.PubSub
	done     chan struct{}
	stopOnce sync.Once
}

// NewRedisRelay subscribes to channel and starts relaying into hub.
func NewRedisRelay(ctx context.Context, client *redis.Client, channel string, hub *Hub, log *zap.Logger) (*RedisRelay, error) {
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	r := &RedisRelay{
		client:  client,
		channel: channel,
		hub:     hub,
		log:     log.With(zap.String("component", "RedisRelay")),
		pubsub:  pubsub,
		done:    make(chan struct{}),
	}
	go r.listen()

	r.log.Info("relay started", zap.String("channel", channel), zap.String("origin", hub.Origin()))
	return r, nil
}

// Name implements Sink.
func (r *RedisRelay) Name() string { return "redis-relay" }

// Deliver publishes a locally originated notification to the channel.
func (r *RedisRelay) Deliver(ctx context.Context, n model.Notification) error {
	if n.Origin != r.hub.Origin() {
		return nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

func (r *RedisRelay) listen() {
	defer close(r.done)
	for msg := range r.pubsub.Channel() {
		n, ok := r.decode(msg.Payload)
		if !ok {
			continue
		}
		r.hub.Deliver(n)
	}
}

// decode parses a relayed payload, dropping malformed messages and
// messages that this instance published itself.
func (r *RedisRelay) decode(payload string) (model.Notification, bool) {
	var n model.Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		r.log.Warn("dropping malformed relay message", zap.Error(err))
		return n, false
	}
	if n.Origin == r.hub.Origin() {
		return n, false
	}
	return n, true
}

// Close stops the listener.
func (r *RedisRelay) Close() error {
	var err error
	r.stopOnce.Do(func() {
		err = r.pubsub.Close()
		<-r.done
	})
	return err
}

var _ Sink = (*RedisRelay)(nil)
