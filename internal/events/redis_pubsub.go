package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisPublisher struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisPublisher(client *redis.Client, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, stream string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, stream, string(data)).Err()
}

// PublishOnce publishes event unless key was already claimed within ttl.
// It reports whether the event went out.
func (p *RedisPublisher) PublishOnce(ctx context.Context, stream, key string, ttl time.Duration, event Event) (bool, error) {
	ok, err := p.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	if err := p.Publish(ctx, stream, event); err != nil {
		// отпускаем ключ, чтобы следующий проход повторил попытку
		_ = p.client.Del(ctx, key).Err()
		return false, err
	}
	return true, nil
}

type RedisSubscriber struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisSubscriber(client *redis.Client, log *zap.Logger) *RedisSubscriber {
	return &RedisSubscriber{client: client, log: log}
}

// Subscribe delivers messages to handler from a background goroutine until
// ctx is cancelled.
func (s *RedisSubscriber) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	pubsub := s.client.Subscribe(ctx, stream)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
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
				event, err := Decode(msg.Payload)
				if err != nil {
					s.log.Error("failed to unmarshal event", zap.String("stream", stream), zap.Error(err))
					continue
				}
				handler(event)
			}
		}
	}()

	return nil
}

// Decode parses one pub/sub message.
func Decode(payload string) (Event, error) {
	var event Event
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	err := dec.Decode(&event)
	return event, err
}
