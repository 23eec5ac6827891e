// Copyright 2026 the Jarvis authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const factKeyPrefix = "jarvis:facts:"

// DefaultRedisAddr is used when RedisConfig.Addr is empty.
const DefaultRedisAddr = "localhost:6379"

// RedisConfig configures the Redis-backed fact store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// TTL, when positive, expires a user's whole fact hash that long after
	// the last write.
	TTL time.Duration
}

// RedisFactStore implements FactMemoryService on a Redis hash per user.
type RedisFactStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisFactStore connects to Redis and verifies the connection.
func NewRedisFactStore(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*RedisFactStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultRedisAddr
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("memory: connect to redis at %s: %w", cfg.Addr, err)
	}
	logger.Info("connected to redis fact store", zap.String("addr", cfg.Addr))
	return &RedisFactStore{client: client, ttl: cfg.TTL, logger: logger}, nil
}

func factKey(userID string) string { return factKeyPrefix + userID }

// StoreFact implements FactMemoryService.
func (s *RedisFactStore) StoreFact(ctx context.Context, userID, key, value string) error {
	k := factKey(userID)
	if err := s.client.HSet(ctx, k, key, value).Err(); err != nil {
		return fmt.Errorf("memory: store fact: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, k, s.ttl).Err(); err != nil {
			s.logger.Warn("failed to refresh fact ttl",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}
	return nil
}

// GetFact implements FactMemoryService.
func (s *RedisFactStore) GetFact(ctx context.Context, userID, key string) (string, error) {
	value, err := s.client.HGet(ctx, factKey(userID), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoFact
	}
	if err != nil {
		return "", fmt.Errorf("memory: get fact: %w", err)
	}
	return value, nil
}

// ListFacts implements FactMemoryService.
func (s *RedisFactStore) ListFacts(ctx context.Context, userID string) (map[string]string, error) {
	facts, err := s.client.HGetAll(ctx, factKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("memory: list facts: %w", err)
	}
	return facts, nil
}

// DeleteFact implements FactMemoryService.
func (s *RedisFactStore) DeleteFact(ctx context.Context, userID, key string) error {
	if err := s.client.HDel(ctx, factKey(userID), key).Err(); err != nil {
		return fmt.Errorf("memory: delete fact: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisFactStore) Close() error { return s.client.Close() }
