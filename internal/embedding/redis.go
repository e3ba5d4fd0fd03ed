package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// cacheTTL bounds how long a cached embedding lives. Embeddings are
// deterministic per model, so the TTL only limits storage growth.
const cacheTTL = 7 * 24 * time.Hour

// RedisStore is a rueidis-backed KVStore for the embedding cache.
type RedisStore struct {
	client rueidis.Client
}

var _ KVStore = (*RedisStore)(nil)

// NewRedisStore connects to Redis/Valkey at addrs.
func NewRedisStore(addrs []string, password string) (*RedisStore, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  addrs,
		Password:     password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	cmd := s.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).
		Ex(cacheTTL).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() {
	s.client.Close()
}
