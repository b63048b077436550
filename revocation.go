package dirgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revocationKeyPrefix = "drv"

// denyList records revoked session token IDs until their natural expiry.
// Session tokens are self-contained signed claims, so revocation cannot
// reach into outstanding tokens; the deny-list is consulted on every
// validation instead.
type denyList struct {
	redis *redis.Client
}

func newDenyList(redisClient *redis.Client) *denyList {
	return &denyList{redis: redisClient}
}

func (d *denyList) key(tokenID string) string {
	return revocationKeyPrefix + ":" + tokenID
}

// Revoke marks tokenID revoked for ttl, which callers set to the token's
// remaining lifetime.
func (d *denyList) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := d.redis.Set(ctx, d.key(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return nil
}

func (d *denyList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	_, err := d.redis.Get(ctx, d.key(tokenID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return true, nil
}
