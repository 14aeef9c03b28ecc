package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/klyra-ai/klyra-backend/internal/config"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Service caches generated follow-up questions. Chat replies are never
// cached; they depend on per-session memory.
type Service interface {
	Get(ctx context.Context, userMessage, aiResponse string) (string, bool)
	Set(ctx context.Context, userMessage, aiResponse, questions string) error
	Clear(ctx context.Context) error
}

// Cache implements the caching service on go-cache
type Cache struct {
	enabled bool
	cache   *cache.Cache
	logger  *logrus.Logger
	maxSize int
}

// NewCache creates a new cache service
func NewCache(cfg *config.Config, logger *logrus.Logger) Service {
	if !cfg.Cache.Enabled {
		return &Cache{enabled: false}
	}

	return &Cache{
		enabled: true,
		cache:   cache.New(cfg.Cache.TTL, cfg.Cache.TTL*2),
		logger:  logger,
		maxSize: cfg.Cache.MaxSize,
	}
}

// Get retrieves cached questions for the exchange
func (c *Cache) Get(ctx context.Context, userMessage, aiResponse string) (string, bool) {
	if !c.enabled {
		return "", false
	}

	key := c.generateKey(userMessage, aiResponse)
	if val, found := c.cache.Get(key); found {
		return val.(string), true
	}

	return "", false
}

// Set stores generated questions
func (c *Cache) Set(ctx context.Context, userMessage, aiResponse, questions string) error {
	if !c.enabled {
		return nil
	}

	if c.cache.ItemCount() >= c.maxSize {
		c.logger.Warn("Cache size limit reached, clearing expired entries")
		c.cache.DeleteExpired()
	}

	c.cache.SetDefault(c.generateKey(userMessage, aiResponse), questions)
	return nil
}

// Clear removes all cached entries
func (c *Cache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	c.cache.Flush()
	c.logger.Info("Cache cleared")
	return nil
}

func (c *Cache) generateKey(userMessage, aiResponse string) string {
	data := fmt.Sprintf("%s\x00%s", userMessage, aiResponse)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
