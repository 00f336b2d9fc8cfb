// README: Redis pub/sub relay so every API instance delivers to its own connected sessions.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type RedisRelay struct {
	client  *redis.Client
	channel string
	local   Sink
	log     *slog.Logger
}

func NewRedisRelay(client *redis.Client, channel string, local Sink, log *slog.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, local: local, log: log}
}

// Deliver publishes m for all instances. If Redis is unreachable the message
// still reaches sessions held by this instance.
func (r *RedisRelay) Deliver(ctx context.Context, m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		r.log.Error("encode relay message", slog.String("action", "relay_publish"), slog.Any("error", err))
		return
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.log.Error("publish relay message, delivering locally",
			slog.String("action", "relay_publish"),
			slog.String("channel", r.channel),
			slog.Any("error", err),
		)
		r.local.Deliver(ctx, m)
	}
}

// Run subscribes to the channel and hands every message to the local sink
// until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info("relay subscribed", slog.String("action", "relay_run"), slog.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				r.log.Warn("decode relay message", slog.String("action", "relay_run"), slog.Any("error", err))
				continue
			}
			r.local.Deliver(ctx, m)
		}
	}
}
