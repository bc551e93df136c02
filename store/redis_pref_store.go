package store

import (
	"fmt"
	"time"
)

// RedisPrefStore keeps per-user transport preferences (target language set)
// in a scoped, TTL-evicted cache rather than an in-process map.
type RedisPrefStore struct {
	client *RedisClient
	ttl    time.Duration
}

func NewRedisPrefStore(redisClient *RedisClient, ttlHours int) *RedisPrefStore {
	ttl := time.Duration(ttlHours) * time.Hour
	if ttlHours <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	return &RedisPrefStore{
		client: redisClient,
		ttl:    ttl,
	}
}

func (s *RedisPrefStore) GetLanguages(userID int64) ([]string, error) {
	key := s.client.generateKey("user_langs", fmt.Sprintf("%d", userID))
	var langs []string
	if err := s.client.Get(key, &langs); err != nil {
		return nil, nil
	}
	return langs, nil
}

func (s *RedisPrefStore) SetLanguages(userID int64, langs []string) error {
	key := s.client.generateKey("user_langs", fmt.Sprintf("%d", userID))
	return s.client.Set(key, langs, s.ttl)
}

func (s *RedisPrefStore) ClearLanguages(userID int64) error {
	key := s.client.generateKey("user_langs", fmt.Sprintf("%d", userID))
	return s.client.Del(key)
}
