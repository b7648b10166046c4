package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisArtifactRepo implements the ArtifactRepository interface using Redis.
// Uploaded documents and their parsed previews are held here until the draft
// is accepted or rejected; TTL keeps abandoned drafts from piling up.
type RedisArtifactRepo struct {
	client redis.UniversalClient
}

// NewRedisArtifactRepo creates a new RedisArtifactRepo with the given Redis client.
func NewRedisArtifactRepo(client redis.UniversalClient) *RedisArtifactRepo {
	return &RedisArtifactRepo{client: client}
}

// Put stores a blob with the given key and TTL. A zero TTL stores the blob
// without expiration.
func (r *RedisArtifactRepo) Put(ctx context.Context, key string, blob []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	if err := r.client.Set(ctx, key, blob, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get retrieves a blob by key. A missing key returns nil without error.
func (r *RedisArtifactRepo) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}

	result, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Key doesn't exist
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	return []byte(result), nil
}

// Delete removes a key, reporting whether it existed.
func (r *RedisArtifactRepo) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	result, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}

	return result > 0, nil
}

// Health checks the health of the Redis connection.
func (r *RedisArtifactRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
