package reasoning

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ResponseCache provides Redis-based caching for generated responses. Useful
// when replaying the same negotiation setup repeatedly, e.g. in demos.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
}

// responseCacheEntry represents a cached generation with metadata
type responseCacheEntry struct {
	Content   string    `json:"content"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
}

// NewResponseCache creates a new Redis-based response cache
// If client is nil, returns nil (optional Redis support)
func NewResponseCache(client *redis.Client, ttl time.Duration) *ResponseCache {
	if client == nil {
		return nil
	}

	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	return &ResponseCache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a cached response
// Returns the content and true if found, or "" and false if not found or on error
func (c *ResponseCache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}

	// Use a short timeout for cache operations to prevent blocking
	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	cached, err := c.client.Get(cacheCtx, key).Result()
	if err != nil {
		if err != redis.Nil {
			// Log error but don't fail - cache miss is acceptable
			log.Debug().
				Err(err).
				Str("key", key).
				Msg("Redis get error - treating as cache miss")
		}
		return "", false
	}

	var entry responseCacheEntry
	if err := json.Unmarshal([]byte(cached), &entry); err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to unmarshal cached response")
		return "", false
	}

	log.Debug().
		Str("key", key).
		Str("model", entry.Model).
		Time("cached_at", entry.Timestamp).
		Msg("Cache hit for reasoning response")

	return entry.Content, true
}

// Set stores a response in cache with the configured TTL
func (c *ResponseCache) Set(ctx context.Context, key, model, content string) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	entry := responseCacheEntry{
		Content:   content,
		Model:     model,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	// Use a short timeout for cache operations
	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := c.client.Set(cacheCtx, key, data, c.ttl).Err(); err != nil {
		// Log but don't fail the operation - cache failure should be graceful
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to cache reasoning response")
		return err
	}

	log.Debug().
		Str("key", key).
		Dur("ttl", c.ttl).
		Msg("Cached reasoning response")

	return nil
}

// Health checks if the Redis connection is healthy
func (c *ResponseCache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Ping(cacheCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	return nil
}

// CacheKey derives a stable key for a chat request from the model and the
// rendered messages
func CacheKey(model string, messages []ChatMessage) string {
	h := sha256.New()
	h.Write([]byte(model))
	for _, m := range messages {
		h.Write([]byte{0})
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
	}
	return fmt.Sprintf("dealdesk:reasoning:%x", h.Sum(nil))
}
