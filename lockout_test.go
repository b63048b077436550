package dirgate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLockout(t *testing.T, cfg LockoutConfig) (*lockoutTracker, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return newLockoutTracker(rdb, cfg), func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestLockoutTriggersAtThreshold(t *testing.T) {
	tracker, done := newTestLockout(t, LockoutConfig{Threshold: 3, Duration: 10 * time.Minute})
	defer done()
	ctx := context.Background()
	const user = "bob"

	for i := 0; i < 2; i++ {
		until, locked, err := tracker.RecordFailure(ctx, user)
		if err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
		if locked || !until.IsZero() {
			t.Fatalf("attempt %d: unexpected lock", i)
		}
	}

	until, locked, err := tracker.RecordFailure(ctx, user)
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if !locked {
		t.Fatal("expected lock at threshold")
	}
	if until.Before(time.Now().Add(9 * time.Minute)) {
		t.Fatalf("lockout end too early: %v", until)
	}

	if _, isLocked, err := tracker.IsLocked(ctx, user); err != nil || !isLocked {
		t.Fatalf("expected IsLocked true, got locked=%v err=%v", isLocked, err)
	}
}

func TestLockoutCounterResetsWhenLockTriggers(t *testing.T) {
	tracker, done := newTestLockout(t, LockoutConfig{Threshold: 2, Duration: 40 * time.Millisecond})
	defer done()
	ctx := context.Background()
	const user = "bob"

	for i := 0; i < 2; i++ {
		_, _, _ = tracker.RecordFailure(ctx, user)
	}
	count, err := tracker.FailureCount(ctx, user)
	if err != nil {
		t.Fatalf("FailureCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected counter reset to 0 when lock triggered, got %d", count)
	}

	// After the window lapses the next failure counts from one.
	time.Sleep(60 * time.Millisecond)
	if _, isLocked, _ := tracker.IsLocked(ctx, user); isLocked {
		t.Fatal("expected lock to lapse")
	}
	_, locked, err := tracker.RecordFailure(ctx, user)
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if locked {
		t.Fatal("first failure after lapse must not re-lock")
	}
}

func TestLockoutSuccessClearsState(t *testing.T) {
	tracker, done := newTestLockout(t, LockoutConfig{Threshold: 5, Duration: 10 * time.Minute})
	defer done()
	ctx := context.Background()
	const user = "bob"

	for i := 0; i < 3; i++ {
		_, _, _ = tracker.RecordFailure(ctx, user)
	}
	if err := tracker.RecordSuccess(ctx, user); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}

	count, err := tracker.FailureCount(ctx, user)
	if err != nil {
		t.Fatalf("FailureCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 failures after success, got %d", count)
	}
}

func TestLockoutRecordRoundTrip(t *testing.T) {
	record := &lockoutRecord{FailCount: 4, FirstFailure: 1700000000, LockedUntil: 1700000600}

	encoded, err := encodeLockoutRecord(record)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := decodeLockoutRecord(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if *decoded != *record {
		t.Fatalf("round trip mismatch: %+v != %+v", decoded, record)
	}
}
