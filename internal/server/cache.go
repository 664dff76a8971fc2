package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// AnswerCache is an optional Redis-backed cache of full ask responses,
// keyed by a checksum of the normalized query. Every cache failure is
// ignored and the query proceeds uncached. A nil *AnswerCache is a no-op.
type AnswerCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewAnswerCache creates an AnswerCache. An empty addr returns nil.
func NewAnswerCache(addr, password string, db int, ttl time.Duration, logger *log.Logger) *AnswerCache {
	if addr == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[CACHE] ", log.LstdFlags)
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &AnswerCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached response for the query, if any.
func (c *AnswerCache) Get(ctx context.Context, query string) (AskResponse, bool) {
	if c == nil {
		return AskResponse{}, false
	}
	raw, err := c.client.Get(ctx, cacheKey(query)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Printf("cache get failed: %v", err)
		}
		return AskResponse{}, false
	}
	var resp AskResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return AskResponse{}, false
	}
	return resp, true
}

// Set stores the response for the query.
func (c *AnswerCache) Set(ctx context.Context, query string, resp AskResponse) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(query), raw, c.ttl).Err(); err != nil {
		c.logger.Printf("cache set failed: %v", err)
	}
}

func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return "sopdesk:answer:" + hex.EncodeToString(sum[:])
}
