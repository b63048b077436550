package dirgate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestChallengeStore(t *testing.T) (*challengeStore, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return newChallengeStore(rdb), rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

// The deadline check on read is the correctness mechanism; the Redis key
// TTL is only cleanup. A challenge whose deadline passed must be refused
// even while the backing key still exists.
func TestChallengeGetEnforcesDeadlineWhileKeyExists(t *testing.T) {
	store, rdb, done := newTestChallengeStore(t)
	defer done()
	ctx := context.Background()

	record := &otpChallenge{
		DN:        "CN=Alice,DC=example,DC=org",
		Username:  "alice",
		ExpiresAt: time.Now().Add(30 * time.Millisecond).UnixNano(),
	}
	if err := store.Save(ctx, "c1", record, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if exists := rdb.Exists(ctx, store.key("c1")).Val(); exists != 1 {
		t.Fatal("expected backing key still present")
	}
	if _, err := store.Get(ctx, "c1"); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}

	// The expired record is destroyed on that read.
	if _, err := store.Get(ctx, "c1"); !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid after destruction, got %v", err)
	}
}

func TestChallengeGetHonorsSubSecondRemainder(t *testing.T) {
	store, _, done := newTestChallengeStore(t)
	defer done()
	ctx := context.Background()

	record := &otpChallenge{
		DN:        "CN=Alice,DC=example,DC=org",
		Username:  "alice",
		ExpiresAt: time.Now().Add(200 * time.Millisecond).UnixNano(),
	}
	if err := store.Save(ctx, "c2", record, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "c2")
	if err != nil {
		t.Fatalf("expected live challenge readable, got %v", err)
	}
	if got.Username != "alice" {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestChallengeRecordFailurePastDeadline(t *testing.T) {
	store, _, done := newTestChallengeStore(t)
	defer done()
	ctx := context.Background()

	record := &otpChallenge{
		DN:        "CN=Alice,DC=example,DC=org",
		Username:  "alice",
		ExpiresAt: time.Now().Add(20 * time.Millisecond).UnixNano(),
	}
	if err := store.Save(ctx, "c3", record, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	if _, err := store.RecordFailure(ctx, "c3", 3); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}
