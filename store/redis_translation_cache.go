package store

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// RedisTranslationCache memoizes detection and translation results so repeated
// group messages do not re-hit the translation API.
type RedisTranslationCache struct {
	client *RedisClient
	ttl    time.Duration
}

func NewRedisTranslationCache(redisClient *RedisClient, ttlHours int) *RedisTranslationCache {
	ttl := time.Duration(ttlHours) * time.Hour
	if ttlHours <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisTranslationCache{
		client: redisClient,
		ttl:    ttl,
	}
}

func textDigest(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *RedisTranslationCache) GetDetection(text string) (string, bool) {
	key := c.client.generateKey("detect", textDigest(text))
	var lang string
	if err := c.client.Get(key, &lang); err != nil || lang == "" {
		return "", false
	}
	return lang, true
}

func (c *RedisTranslationCache) SetDetection(text, lang string) {
	key := c.client.generateKey("detect", textDigest(text))
	_ = c.client.Set(key, lang, c.ttl)
}

func (c *RedisTranslationCache) GetTranslation(text, target string) (string, bool) {
	key := c.client.generateKey("translate", target, textDigest(text))
	var out string
	if err := c.client.Get(key, &out); err != nil || out == "" {
		return "", false
	}
	return out, true
}

func (c *RedisTranslationCache) SetTranslation(text, target, translated string) {
	key := c.client.generateKey("translate", target, textDigest(text))
	_ = c.client.Set(key, translated, c.ttl)
}
