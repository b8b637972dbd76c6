// Package repository holds the event delivery transports. Each fanout pushes
// committed envelopes toward connected clients: redis pub/sub spans
// instances, memory serves a single process, and failover degrades from the
// former to the latter when redis misbehaves.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"korty/internal/config"
	"korty/internal/events"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisFanout publishes envelopes to a shared channel so every instance's
// hub delivers them, including this one's own via its subscription.
type RedisFanout struct {
	client  *redis.Client
	channel string
	logger  *zerolog.Logger
}

func NewRedisFanout(client *redis.Client, channel string, logger *zerolog.Logger) *RedisFanout {
	return &RedisFanout{client: client, channel: channel, logger: logger}
}

func (f *RedisFanout) Publish(ctx context.Context, env *events.Envelope) error {
	if f.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish envelope to redis: %w", err)
	}
	return nil
}

// Listen consumes the channel until the context ends, handing each decoded
// envelope to the handler. Undecodable messages are logged and skipped.
func (f *RedisFanout) Listen(ctx context.Context, handler func(*events.Envelope)) {
	pubsub := f.client.Subscribe(ctx, f.channel)
	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env events.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					f.logger.Error().Err(err).Msg("Failed to decode envelope from redis")
					continue
				}
				handler(&env)
			}
		}
	}()
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
