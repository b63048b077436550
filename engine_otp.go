package dirgate

import (
	"context"
	"errors"
	"time"
)

// SetupTOTP provisions a fresh TOTP secret for the principal behind a live
// OTP challenge and returns the base32 secret plus its otpauth:// URI.
//
// Calling it again before the first verification, or against an already
// verified enrollment, replaces the stored secret outright. The new record
// starts unverified, so the old secret stops working the moment this call
// returns and no code is accepted until [Engine.VerifyLogin] proves
// possession of the new one. This doubles as the recovery path for a lost
// authenticator.
func (e *Engine) SetupTOTP(ctx context.Context, challengeID string) (*TOTPSetup, error) {
	if e == nil || e.enrollments == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	challenge, err := e.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	existing, err := e.enrollments.Get(ctx, challenge.DN)
	if err != nil {
		return nil, err
	}
	rebind := existing != nil && existing.Enrolled

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	record := &EnrollmentRecord{
		Secret:    secret,
		Enrolled:  false,
		CreatedAt: time.Now(),
	}
	if err := e.enrollments.Put(ctx, challenge.DN, record); err != nil {
		return nil, err
	}

	action := auditActionOTPSetup
	if rebind {
		e.metricInc(MetricOTPRebind)
		action = auditActionOTPRebind
	} else {
		e.metricInc(MetricOTPSetup)
	}
	e.emitAudit(ctx, AuditEvent{
		Action:    action,
		Actor:     challenge.Username,
		ActorRole: string(RoleAdmin),
		Success:   true,
	})

	return &TOTPSetup{
		Secret: secretBase32,
		URI:    e.totp.ProvisionURI(secretBase32, challenge.Username),
	}, nil
}

// VerifyLogin completes the admin login: it checks the submitted TOTP code
// against the challenge's principal and, on success, consumes the challenge
// and issues the admin session token.
//
// The challenge is single-use. Wrong codes burn an attempt; once the
// attempt limit is reached the challenge is destroyed and the admin must
// log in again. A first successful verification against a pending
// enrollment marks it verified.
func (e *Engine) VerifyLogin(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	if e == nil || e.enrollments == nil || e.totp == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	challenge, err := e.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	record, err := e.enrollments.Get(ctx, challenge.DN)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotEnrolled
	}

	ok, err := e.totp.VerifyCode(record.Secret, code, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		exceeded, recErr := e.challenges.RecordFailure(ctx, challengeID, e.config.Challenge.MaxAttempts)
		if recErr != nil && !errors.Is(recErr, ErrChallengeExpired) && !errors.Is(recErr, ErrChallengeInvalid) {
			return nil, recErr
		}
		e.metricInc(MetricOTPFailure)
		e.emitAudit(ctx, AuditEvent{
			Action:    auditActionOTPVerify,
			Actor:     challenge.Username,
			ActorRole: string(RoleAdmin),
			Success:   false,
			Error:     ErrInvalidCode.Error(),
		})
		if exceeded {
			return nil, ErrChallengeAttemptsExceeded
		}
		if recErr != nil {
			return nil, recErr
		}
		return nil, ErrInvalidCode
	}

	consumed, err := e.challenges.Consume(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !consumed {
		// Lost the race to another verification of the same challenge.
		e.metricInc(MetricChallengeReplay)
		return nil, ErrChallengeInvalid
	}

	if !record.Enrolled {
		if err := e.enrollments.Enable(ctx, challenge.DN); err != nil {
			return nil, err
		}
	}

	signed, claims, err := e.tokens.Issue(challenge.DN, challenge.Username, string(RoleAdmin))
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricOTPSuccess)
	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, AuditEvent{
		Action:    auditActionOTPVerify,
		Actor:     challenge.Username,
		ActorRole: string(RoleAdmin),
		Success:   true,
		Metadata:  map[string]string{"token_id": claims.ID},
	})

	return &LoginResult{Token: signed}, nil
}
