package dirgate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const stepUpKeyPrefix = "dsu"

// stepUpStore holds the per-principal ActionStepUpState: a successful
// ConfirmStepUp grants a validity window; privileged mutations check the
// window on every access (lazy expiry, no sweeper). The state never touches
// durable storage beyond the short-TTL key.
type stepUpStore struct {
	redis *redis.Client
}

func newStepUpStore(redisClient *redis.Client) *stepUpStore {
	return &stepUpStore{redis: redisClient}
}

func (s *stepUpStore) key(principalDN string) string {
	return stepUpKeyPrefix + ":" + principalDN
}

// Grant opens the step-up window for the principal.
func (s *stepUpStore) Grant(ctx context.Context, principalDN string, window time.Duration) error {
	expires := time.Now().Add(window).Unix()
	value := strconv.FormatInt(expires, 10)
	if err := s.redis.Set(ctx, s.key(principalDN), value, window).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStepUpUnavailable, err)
	}
	return nil
}

// Valid reports whether the principal has a live step-up window. The
// expiry stamp is checked explicitly rather than trusting key TTL alone.
func (s *stepUpStore) Valid(ctx context.Context, principalDN string) (bool, error) {
	value, err := s.redis.Get(ctx, s.key(principalDN)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStepUpUnavailable, err)
	}

	expires, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return false, nil
	}
	if time.Now().Unix() >= expires {
		_, _ = s.redis.Del(ctx, s.key(principalDN)).Result()
		return false, nil
	}
	return true, nil
}

// Clear cancels any pending window, used on logout and explicit cancel.
func (s *stepUpStore) Clear(ctx context.Context, principalDN string) error {
	if err := s.redis.Del(ctx, s.key(principalDN)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStepUpUnavailable, err)
	}
	return nil
}
