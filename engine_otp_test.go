package dirgate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFirstAdminLoginEnrollsAndIssuesToken(t *testing.T) {
	engine, _, _, done := newTestEngine(t, nil)
	defer done()

	_, token := enrollAdmin(t, engine)

	sess, err := engine.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if sess.Role != RoleAdmin || sess.Username != "alice" {
		t.Fatalf("unexpected session %+v", sess)
	}

	// The enrollment is now verified.
	record, err := engine.enrollments.Get(context.Background(), sess.DN)
	if err != nil {
		t.Fatalf("enrollment Get failed: %v", err)
	}
	if record == nil || !record.Enrolled {
		t.Fatalf("expected verified enrollment, got %+v", record)
	}
}

func TestChallengeIsSingleUse(t *testing.T) {
	engine, _, _, done := newTestEngine(t, nil)
	defer done()

	secret, _ := enrollAdmin(t, engine)

	res, err := engine.Login(context.Background(), "alice", "correct-horse", RoleAdmin)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	code := codeForSecret(t, secret, engine.config.TOTP, time.Now())
	if _, err := engine.VerifyLogin(context.Background(), res.ChallengeID, code); err != nil {
		t.Fatalf("VerifyLogin failed: %v", err)
	}

	// Replaying the same challenge must fail even with a valid code.
	_, err = engine.VerifyLogin(context.Background(), res.ChallengeID, code)
	if !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid on replay, got %v", err)
	}
}

func TestVerifyLoginWrongCodeBurnsAttempts(t *testing.T) {
	engine, _, _, done := newTestEngine(t, func(cfg *Config) {
		cfg.Challenge.MaxAttempts = 3
	})
	defer done()

	enrollAdmin(t, engine)

	res, err := engine.Login(context.Background(), "alice", "correct-horse", RoleAdmin)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		_, err := engine.VerifyLogin(context.Background(), res.ChallengeID, "000000")
		if !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d: expected ErrInvalidCode, got %v", i, err)
		}
	}

	_, err = engine.VerifyLogin(context.Background(), res.ChallengeID, "000000")
	if !errors.Is(err, ErrChallengeAttemptsExceeded) {
		t.Fatalf("expected ErrChallengeAttemptsExceeded, got %v", err)
	}

	// The challenge is gone; even the right code is refused now.
	_, err = engine.VerifyLogin(context.Background(), res.ChallengeID, "000000")
	if !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid after destruction, got %v", err)
	}
}

func TestVerifyLoginExpiredChallenge(t *testing.T) {
	engine, _, _, done := newTestEngine(t, func(cfg *Config) {
		cfg.Challenge.TTL = 30 * time.Millisecond
	})
	defer done()

	secret, _ := enrollAdmin(t, engine)

	res, err := engine.Login(context.Background(), "alice", "correct-horse", RoleAdmin)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	code := codeForSecret(t, secret, engine.config.TOTP, time.Now())
	_, err = engine.VerifyLogin(context.Background(), res.ChallengeID, code)
	if !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestVerifyLoginWithoutEnrollment(t *testing.T) {
	engine, _, _, done := newTestEngine(t, nil)
	defer done()

	res, err := engine.Login(context.Background(), "alice", "correct-horse", RoleAdmin)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	_, err = engine.VerifyLogin(context.Background(), res.ChallengeID, "123456")
	if !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("expected ErrNotEnrolled, got %v", err)
	}
}

func TestSetupTOTPRebindInvalidatesOldSecret(t *testing.T) {
	engine, _, _, done := newTestEngine(t, nil)
	defer done()

	oldSecret, _ := enrollAdmin(t, engine)

	res, err := engine.Login(context.Background(), "alice", "correct-horse", RoleAdmin)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.SetupRequired {
		t.Fatal("expected existing enrollment before rebind")
	}

	setup, err := engine.SetupTOTP(context.Background(), res.ChallengeID)
	if err != nil {
		t.Fatalf("SetupTOTP rebind failed: %v", err)
	}
	if setup.Secret == oldSecret {
		t.Fatal("rebind must generate a fresh secret")
	}

	// The old authenticator stops working immediately.
	oldCode := codeForSecret(t, oldSecret, engine.config.TOTP, time.Now())
	_, err = engine.VerifyLogin(context.Background(), res.ChallengeID, oldCode)
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected old secret rejected, got %v", err)
	}

	newCode := codeForSecret(t, setup.Secret, engine.config.TOTP, time.Now())
	verified, err := engine.VerifyLogin(context.Background(), res.ChallengeID, newCode)
	if err != nil {
		t.Fatalf("VerifyLogin with new secret failed: %v", err)
	}
	if verified.Token == "" {
		t.Fatal("expected token after rebind verification")
	}
}

func TestSetupTOTPRequiresLiveChallenge(t *testing.T) {
	engine, _, _, done := newTestEngine(t, nil)
	defer done()

	_, err := engine.SetupTOTP(context.Background(), "no-such-challenge")
	if !errors.Is(err, ErrChallengeInvalid) {
		t.Fatalf("expected ErrChallengeInvalid, got %v", err)
	}
}

func TestSetupURIContainsIssuerAndAccount(t *testing.T) {
	engine, _, _, done := newTestEngine(t, nil)
	defer done()

	res, err := engine.Login(context.Background(), "alice", "correct-horse", RoleAdmin)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	setup, err := engine.SetupTOTP(context.Background(), res.ChallengeID)
	if err != nil {
		t.Fatalf("SetupTOTP failed: %v", err)
	}

	if setup.URI == "" || setup.Secret == "" {
		t.Fatalf("incomplete setup payload: %+v", setup)
	}
}
