package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

var ErrResultNotCached = errors.New("import result not cached")

// ImportResultStore caches import summaries for later retrieval
type ImportResultStore interface {
	Save(ctx context.Context, userID uint, summary *ImportSummary) error
	Load(ctx context.Context, userID uint, importID string) (*ImportSummary, error)
}

// RedisImportResultStore keeps msgpack-encoded summaries in Redis with a TTL
type RedisImportResultStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisImportResultStore creates a new RedisImportResultStore
func NewRedisImportResultStore(redisClient *redis.Client, ttl time.Duration) *RedisImportResultStore {
	return &RedisImportResultStore{redis: redisClient, ttl: ttl}
}

func importResultKey(userID uint, importID string) string {
	return fmt.Sprintf("import:result:%d:%s", userID, importID)
}

// Save caches a summary under the owning user
func (s *RedisImportResultStore) Save(ctx context.Context, userID uint, summary *ImportSummary) error {
	data, err := msgpack.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode import result: %w", err)
	}
	return s.redis.Set(ctx, importResultKey(userID, summary.ImportID), data, s.ttl).Err()
}

// Load returns a cached summary or ErrResultNotCached
func (s *RedisImportResultStore) Load(ctx context.Context, userID uint, importID string) (*ImportSummary, error) {
	data, err := s.redis.Get(ctx, importResultKey(userID, importID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResultNotCached
		}
		return nil, err
	}

	var summary ImportSummary
	if err := msgpack.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode import result: %w", err)
	}
	return &summary, nil
}
