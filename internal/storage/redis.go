package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maneesh/filebroker/internal/models"
)

// DefaultCacheTTL is the time-to-live for cached file metadata (5 minutes)
const DefaultCacheTTL = 5 * time.Minute

// RedisClient caches file records by (owner, file) with tracing.
// The metadata store only writes tombstones of deleted records.
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient initializes a new Redis client
func NewRedisClient(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test the connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisClient{client: client, ttl: ttl}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// fileKey length-prefixes the owner so that no (owner, file) pair can
// produce another owner's key.
func fileKey(ownerID, fileID string) string {
	return fmt.Sprintf("file:%d:%s:%s", len(ownerID), ownerID, fileID)
}

// GetFileMetadata returns the cached record or nil on a miss.
func (rc *RedisClient) GetFileMetadata(ctx context.Context, ownerID, fileID string) (*models.FileRecord, error) {
	ctx, span := tracer.Start(ctx, "redis.get_file_metadata",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	data, err := rc.client.Get(ctx, fileKey(ownerID, fileID)).Result()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(
			attribute.Bool("cache_hit", false),
			attribute.String("cache_status", "miss"),
		)
		return nil, nil // Cache miss, not an error
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var f models.FileRecord
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	if f.OwnerID != ownerID || f.FileID != fileID {
		span.SetAttributes(attribute.String("cache_status", "mismatch"))
		return nil, nil
	}

	span.SetAttributes(
		attribute.Bool("cache_hit", true),
		attribute.String("cache_status", "hit"),
	)
	return &f, nil
}

// SetFileMetadata stores a record in the cache.
func (rc *RedisClient) SetFileMetadata(ctx context.Context, f *models.FileRecord) error {
	ctx, span := tracer.Start(ctx, "redis.set_file_metadata",
		trace.WithAttributes(
			attribute.String("file_id", f.FileID),
			attribute.String("status", string(f.Status)),
		),
	)
	defer span.End()

	data, err := json.Marshal(f)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal file: %w", err)
	}

	if err := rc.client.Set(ctx, fileKey(f.OwnerID, f.FileID), data, rc.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set cache: %w", err)
	}

	span.SetAttributes(
		attribute.Bool("cache_set_success", true),
		attribute.Int64("ttl_seconds", int64(rc.ttl.Seconds())),
	)
	return nil
}

// InvalidateFileMetadata removes a record from the cache.
func (rc *RedisClient) InvalidateFileMetadata(ctx context.Context, ownerID, fileID string) error {
	ctx, span := tracer.Start(ctx, "redis.invalidate_file_metadata",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	if err := rc.client.Del(ctx, fileKey(ownerID, fileID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	span.SetAttributes(attribute.Bool("cache_invalidate_success", true))
	return nil
}
