package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const subscribeConfirmTimeout = 5 * time.Second

// RedisStore keeps each document as a string key and publishes every write
// on a channel of the same name.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	log    zerolog.Logger
}

// NewRedisStore creates a store using keys "<prefix><path>". An empty prefix
// defaults to "doc:".
func NewRedisStore(client redis.UniversalClient, prefix string, log zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "doc:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		log:    log.With().Str("component", "docstore.redis").Logger(),
	}
}

func (s *RedisStore) key(path string) string {
	return s.prefix + path
}

func (s *RedisStore) Read(ctx context.Context, path string) (json.RawMessage, error) {
	p, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.key(p)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return json.RawMessage(data), nil
}

func (s *RedisStore) Write(ctx context.Context, path string, doc any) error {
	p, err := CleanPath(path)
	if err != nil {
		return err
	}
	data, err := encode(p, doc)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(p), data, 0)
	pipe.Publish(ctx, s.key(p), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Subscribe(path string, fn func(doc json.RawMessage)) func() {
	p, err := CleanPath(path)
	if err != nil {
		return func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), subscribeConfirmTimeout)
	defer cancel()

	pubsub := s.client.Subscribe(ctx, s.key(p))
	// wait for the subscription to be acknowledged so no publish is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		s.log.Warn().Err(err).Str("path", p).Msg("subscribe failed; no push updates for path")
		_ = pubsub.Close()
		return func() {}
	}

	ch := pubsub.Channel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ch {
			fn(json.RawMessage(msg.Payload))
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = pubsub.Close()
			<-done
		})
	}
}

// Ping reports whether the backend is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var _ Store = (*RedisStore)(nil)
