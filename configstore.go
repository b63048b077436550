package dirgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	configValueKeyPrefix   = "dcf:v"
	configHistoryKeyPrefix = "dcf:h"
	configCounterKeyPrefix = "dcf:n"
)

// RedisConfigStore is the reference [ConfigStore]: current value per key
// plus a capped history list, so gated writes stay roll-backable. Version
// numbers come from a per-key counter and are never reused; a rollback
// writes a new version carrying the old value rather than rewriting
// history.
type RedisConfigStore struct {
	redis      *redis.Client
	maxHistory int64
}

type configHistoryEntry struct {
	Version   int64  `json:"version"`
	Value     string `json:"value"`
	UpdatedAt int64  `json:"updated_at"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

// NewRedisConfigStore describes the newredisconfigstore operation and its observable behavior.
//
// NewRedisConfigStore may return an error when input validation, dependency calls, or security checks fail.
// NewRedisConfigStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewRedisConfigStore(redisClient *redis.Client, maxHistory int) *RedisConfigStore {
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &RedisConfigStore{redis: redisClient, maxHistory: int64(maxHistory)}
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisConfigStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.redis.Get(ctx, configValueKeyPrefix+":"+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrConfigKeyNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
	}
	return value, nil
}

// Set describes the set operation and its observable behavior.
//
// Set may return an error when input validation, dependency calls, or security checks fail.
// Set does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisConfigStore) Set(ctx context.Context, key, value, updatedBy string) (int64, error) {
	version, err := s.redis.Incr(ctx, configCounterKeyPrefix+":"+key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
	}

	entry := configHistoryEntry{
		Version:   version,
		Value:     value,
		UpdatedAt: time.Now().Unix(),
		UpdatedBy: updatedBy,
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return 0, err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, configValueKeyPrefix+":"+key, value, 0)
	pipe.LPush(ctx, configHistoryKeyPrefix+":"+key, encoded)
	pipe.LTrim(ctx, configHistoryKeyPrefix+":"+key, 0, s.maxHistory-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
	}
	return version, nil
}

// History describes the history operation and its observable behavior.
//
// History may return an error when input validation, dependency calls, or security checks fail.
// History does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisConfigStore) History(ctx context.Context, key string, limit int) ([]ConfigVersion, error) {
	if limit <= 0 || int64(limit) > s.maxHistory {
		limit = int(s.maxHistory)
	}
	raw, err := s.redis.LRange(ctx, configHistoryKeyPrefix+":"+key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
	}

	out := make([]ConfigVersion, 0, len(raw))
	for _, item := range raw {
		var entry configHistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		out = append(out, ConfigVersion{
			Version:   entry.Version,
			Value:     entry.Value,
			UpdatedAt: time.Unix(entry.UpdatedAt, 0),
			UpdatedBy: entry.UpdatedBy,
		})
	}
	return out, nil
}

// Rollback describes the rollback operation and its observable behavior.
//
// Rollback may return an error when input validation, dependency calls, or security checks fail.
// Rollback does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisConfigStore) Rollback(ctx context.Context, key string, version int64) (string, error) {
	history, err := s.History(ctx, key, int(s.maxHistory))
	if err != nil {
		return "", err
	}
	for _, entry := range history {
		if entry.Version == version {
			if _, err := s.Set(ctx, key, entry.Value, entry.UpdatedBy); err != nil {
				return "", err
			}
			return entry.Value, nil
		}
	}
	return "", ErrConfigVersionNotFound
}
