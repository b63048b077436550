package dirgate

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockoutKeyPrefix      = "dlk"
	lockoutRecordVersion1 = 1
)

// lockoutRecord tracks consecutive credential failures for one principal,
// keyed by the login username so the check costs no directory round-trip.
// LockedUntil is zero while no lockout is active. Expiry is lazy: a record
// whose lockout has lapsed counts as fresh on the next attempt.
type lockoutRecord struct {
	FailCount    uint16
	FirstFailure int64
	LockedUntil  int64
}

type lockoutTracker struct {
	redis  *redis.Client
	config LockoutConfig
}

func newLockoutTracker(redisClient *redis.Client, cfg LockoutConfig) *lockoutTracker {
	return &lockoutTracker{redis: redisClient, config: cfg}
}

func (t *lockoutTracker) key(username string) string {
	return lockoutKeyPrefix + ":" + username
}

// IsLocked reports whether the principal is inside an active lockout
// window and, if so, when it ends.
func (t *lockoutTracker) IsLocked(ctx context.Context, username string) (time.Time, bool, error) {
	data, err := t.redis.Get(ctx, t.key(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	record, err := decodeLockoutRecord(data)
	if err != nil {
		return time.Time{}, false, err
	}
	if record.LockedUntil > 0 && time.Now().Unix() < record.LockedUntil {
		return time.Unix(record.LockedUntil, 0), true, nil
	}
	return time.Time{}, false, nil
}

// RecordFailure increments the failure counter with a per-key atomic
// read-modify-write. When the counter reaches the configured threshold the
// lockout window starts and the counter resets, so attempts after the
// window lapses count from zero again. Returns the lockout end time when
// this failure triggered a lockout.
func (t *lockoutTracker) RecordFailure(ctx context.Context, username string) (time.Time, bool, error) {
	const maxRetries = 4
	key := t.key(username)

	for i := 0; i < maxRetries; i++ {
		var lockedUntil time.Time
		var locked bool

		err := t.redis.Watch(ctx, func(tx *redis.Tx) error {
			record := &lockoutRecord{}
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil {
				record, err = decodeLockoutRecord(data)
				if err != nil {
					return err
				}
			}

			now := time.Now()
			if record.LockedUntil > 0 && now.Unix() >= record.LockedUntil {
				// Lapsed lockout: this attempt counts fresh.
				record = &lockoutRecord{}
			}
			if record.FailCount == 0 {
				record.FirstFailure = now.Unix()
			}
			record.FailCount++

			ttl := t.config.Duration
			if int(record.FailCount) >= t.config.Threshold {
				record.FailCount = 0
				record.LockedUntil = now.Add(t.config.Duration).Unix()
				lockedUntil = time.Unix(record.LockedUntil, 0)
				locked = true
				ttl = t.config.Duration
			}

			encoded, err := encodeLockoutRecord(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return time.Time{}, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
		return lockedUntil, locked, nil
	}

	return time.Time{}, false, fmt.Errorf("%w: concurrent update retries exhausted", ErrLockoutUnavailable)
}

// RecordSuccess clears the failure counter and any active lock.
func (t *lockoutTracker) RecordSuccess(ctx context.Context, username string) error {
	if err := t.redis.Del(ctx, t.key(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// FailureCount returns the current consecutive failure count.
func (t *lockoutTracker) FailureCount(ctx context.Context, username string) (int, error) {
	data, err := t.redis.Get(ctx, t.key(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	record, err := decodeLockoutRecord(data)
	if err != nil {
		return 0, err
	}
	return int(record.FailCount), nil
}

func encodeLockoutRecord(record *lockoutRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(lockoutRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.FailCount); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.FirstFailure); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.LockedUntil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeLockoutRecord(data []byte) (*lockoutRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != lockoutRecordVersion1 {
		return nil, errors.New("invalid lockout record version")
	}

	record := &lockoutRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.FailCount); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.FirstFailure); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.LockedUntil); err != nil {
		return nil, err
	}
	return record, nil
}
