package dirgate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Login authenticates username/password against the directory and starts
// the session flow for the requested role.
//
// The order of checks is fixed: lockout state is consulted before the
// directory is contacted at all, so a locked principal is refused even with
// the correct password and costs no directory round-trip; failed binds feed
// the lockout tracker; admin logins never receive a token here. An admin
// login that passes the credential and group checks yields an OTP challenge
// instead, and the session token only exists once [Engine.VerifyLogin]
// consumes that challenge.
//
// Requesting [RoleAdmin] without membership in the administrators group
// fails with [ErrNoPermission] before any OTP state is created or
// revealed.
func (e *Engine) Login(ctx context.Context, username, password string, role Role) (*LoginResult, error) {
	if e == nil || e.directory == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	if role != RoleUser && role != RoleAdmin {
		role = RoleUser
	}

	if until, locked, err := e.lockout.IsLocked(ctx, username); err != nil {
		return nil, err
	} else if locked {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, AuditEvent{
			Action:  auditActionLogin,
			Actor:   username,
			Success: false,
			Error:   ErrLocked.Error(),
		})
		return nil, &LockedError{Until: until}
	}

	entry, err := e.directory.Lookup(ctx, username)
	if err != nil {
		if errors.Is(err, ErrDirectoryUnavailable) {
			e.metricInc(MetricDirectoryUnavailable)
			return nil, err
		}
		// Unknown principals get the same answer as a wrong password.
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditEvent{
			Action:  auditActionLogin,
			Actor:   username,
			Success: false,
			Error:   ErrInvalidCredentials.Error(),
		})
		return nil, ErrInvalidCredentials
	}

	if _, err := e.directory.Bind(ctx, username, password); err != nil {
		if errors.Is(err, ErrDirectoryUnavailable) {
			// Infrastructure trouble is not a credential failure and must
			// not move the lockout counter.
			e.metricInc(MetricDirectoryUnavailable)
			return nil, err
		}

		until, nowLocked, lockErr := e.lockout.RecordFailure(ctx, username)
		if lockErr != nil {
			return nil, lockErr
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditEvent{
			Action:  auditActionLogin,
			Actor:   username,
			Success: false,
			Error:   ErrInvalidCredentials.Error(),
		})
		if nowLocked {
			e.metricInc(MetricLoginLocked)
			return nil, &LockedError{Until: until}
		}
		return nil, ErrInvalidCredentials
	}

	if role == RoleAdmin {
		isAdmin, err := e.directory.IsAdmin(ctx, username)
		if err != nil {
			if errors.Is(err, ErrDirectoryUnavailable) {
				e.metricInc(MetricDirectoryUnavailable)
			}
			return nil, err
		}
		if !isAdmin {
			e.metricInc(MetricLoginNoPermission)
			e.emitAudit(ctx, AuditEvent{
				Action:  auditActionLogin,
				Actor:   username,
				Success: false,
				Error:   ErrNoPermission.Error(),
			})
			return nil, ErrNoPermission
		}
	}

	if err := e.lockout.RecordSuccess(ctx, username); err != nil {
		return nil, err
	}

	if role == RoleUser {
		signed, claims, err := e.tokens.Issue(entry.DN, entry.Username, string(RoleUser))
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricLoginSuccess)
		e.metricInc(MetricTokenIssued)
		e.emitAudit(ctx, AuditEvent{
			Action:    auditActionLogin,
			Actor:     entry.Username,
			ActorRole: string(RoleUser),
			Success:   true,
			Metadata:  map[string]string{"token_id": claims.ID},
		})
		return &LoginResult{Token: signed}, nil
	}

	return e.issueChallenge(ctx, entry)
}

// issueChallenge mints the single-use OTP challenge for an admin whose
// credentials already checked out. SetupRequired reflects whether the
// principal has a verified TOTP enrollment on file.
func (e *Engine) issueChallenge(ctx context.Context, entry *DirectoryEntry) (*LoginResult, error) {
	record, err := e.enrollments.Get(ctx, entry.DN)
	if err != nil {
		return nil, err
	}
	setupRequired := record == nil || !record.Enrolled

	challengeID := uuid.NewString()
	challenge := &otpChallenge{
		DN:            entry.DN,
		Username:      entry.Username,
		SetupRequired: setupRequired,
		ExpiresAt:     time.Now().Add(e.config.Challenge.TTL).UnixNano(),
	}
	if err := e.challenges.Save(ctx, challengeID, challenge, e.config.Challenge.TTL); err != nil {
		return nil, err
	}

	e.metricInc(MetricChallengeIssued)
	e.emitAudit(ctx, AuditEvent{
		Action:    auditActionChallenge,
		Actor:     entry.Username,
		ActorRole: string(RoleAdmin),
		Success:   true,
		Metadata:  map[string]string{"setup_required": boolString(setupRequired)},
	})

	return &LoginResult{
		OTPRequired:   true,
		SetupRequired: setupRequired,
		ChallengeID:   challengeID,
	}, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
