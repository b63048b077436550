package dirgate

import (
	"context"
	"errors"
	"time"

	"github.com/ashkog/dirgate/token"
	"github.com/redis/go-redis/v9"
)

// Engine defines a public type used by dirgate APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config      Config
	redis       *redis.Client
	directory   DirectoryClient
	enrollments EnrollmentStore
	configStore ConfigStore
	lockout     *lockoutTracker
	challenges  *challengeStore
	stepUp      *stepUpStore
	revoked     *denyList
	tokens      *token.Manager
	totp        *totpManager
	audit       *auditDispatcher
	metrics     *Metrics
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// emitAudit stamps caller context metadata into the event and hands it to
// the async dispatcher. Never blocks and never fails the caller.
func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	event.Timestamp = time.Now()
	event.IP = clientIPFromContext(ctx)
	event.UserAgent = userAgentFromContext(ctx)
	e.audit.Emit(ctx, event)
}

// Validate checks a bearer session token and returns the session it
// carries. Validation fails closed: expired, malformed, or revoked tokens
// are rejected with the matching sentinel and nothing else is trusted. The
// role in the returned session is the role fixed at issuance.
func (e *Engine) Validate(ctx context.Context, tokenStr string) (*Session, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if tokenStr == "" {
		return nil, ErrTokenMalformed
	}

	claims, err := e.tokens.Parse(tokenStr)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		switch {
		case errors.Is(err, token.ErrExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenMalformed
		}
	}

	revoked, err := e.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, err
	}
	if revoked {
		e.metricInc(MetricValidateFailure)
		return nil, ErrTokenRevoked
	}

	return &Session{
		DN:        claims.Subject,
		Username:  claims.Username,
		Role:      Role(claims.Role),
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes the given session token until its natural expiry and
// clears any open step-up window for the principal.
func (e *Engine) Logout(ctx context.Context, tokenStr string) error {
	sess, err := e.Validate(ctx, tokenStr)
	if err != nil {
		return err
	}

	if err := e.revoked.Revoke(ctx, sess.TokenID, time.Until(sess.ExpiresAt)); err != nil {
		return err
	}
	_ = e.stepUp.Clear(ctx, sess.DN)

	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, AuditEvent{
		Action:    auditActionLogout,
		Actor:     sess.Username,
		ActorRole: string(sess.Role),
		Success:   true,
	})
	return nil
}

// Ping reports reachability of the directory and the backing store.
func (e *Engine) Ping(ctx context.Context) Health {
	var h Health
	if e == nil {
		return h
	}
	if e.directory != nil {
		h.Directory = e.directory.Ping(ctx) == nil
	}
	if e.redis != nil {
		h.Store = e.redis.Ping(ctx).Err() == nil
	}
	return h
}
