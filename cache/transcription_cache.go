package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	transcriptionKey     = "audio:%s:transcription" // String: lyrics text
	transcriptionPattern = "audio:*:transcription"
	scanBatch            = 200
)

// TranscriptionCache keeps transcriptions in Redis so repeated reads skip the database.
type TranscriptionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTranscriptionCache(client *redis.Client, ttl time.Duration) *TranscriptionCache {
	return &TranscriptionCache{client: client, ttl: ttl}
}

func transcriptionCacheKey(id string) string {
	return fmt.Sprintf(transcriptionKey, id)
}

// GetTranscription reports a miss as ("", false, nil).
func (c *TranscriptionCache) GetTranscription(ctx context.Context, id string) (string, bool, error) {
	if c.client == nil {
		return "", false, fmt.Errorf("Redis client not initialized")
	}
	val, err := c.client.Get(ctx, transcriptionCacheKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get transcription: %w", err)
	}
	return val, true, nil
}

func (c *TranscriptionCache) SetTranscription(ctx context.Context, id, text string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return c.client.Set(ctx, transcriptionCacheKey(id), text, c.ttl).Err()
}

func (c *TranscriptionCache) InvalidateTranscription(ctx context.Context, id string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return c.client.Del(ctx, transcriptionCacheKey(id)).Err()
}

// Count returns how many transcriptions are cached.
func (c *TranscriptionCache) Count(ctx context.Context) (int64, error) {
	var n int64
	err := c.scan(ctx, func(keys []string) error {
		n += int64(len(keys))
		return nil
	})
	return n, err
}

// Flush drops every cached transcription and returns how many were removed.
func (c *TranscriptionCache) Flush(ctx context.Context) (int64, error) {
	var removed int64
	err := c.scan(ctx, func(keys []string) error {
		n, err := c.client.Del(ctx, keys...).Result()
		removed += n
		return err
	})
	if err != nil {
		return removed, fmt.Errorf("failed to flush transcriptions: %w", err)
	}
	return removed, nil
}

// scan walks the keyspace with SCAN rather than KEYS so a large cache does not block Redis.
func (c *TranscriptionCache) scan(ctx context.Context, fn func(keys []string) error) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, transcriptionPattern, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
