package dirgate

import (
	"context"
	"time"
)

// ConfirmStepUp verifies a fresh TOTP code for an authenticated admin and
// opens the step-up window that privileged mutations require.
//
// Only a verified enrollment is accepted. A pending or missing enrollment
// fails with [ErrNotEnrolled]: step-up confirmation never provisions or
// completes an enrollment, that happens exclusively in the login flow.
func (e *Engine) ConfirmStepUp(ctx context.Context, session *Session, code string) error {
	if e == nil || e.enrollments == nil || e.totp == nil {
		return ErrEngineNotReady
	}
	if session == nil || session.Role != RoleAdmin {
		e.metricInc(MetricStepUpFailure)
		return ErrNoPermission
	}

	record, err := e.enrollments.Get(ctx, session.DN)
	if err != nil {
		return err
	}
	if record == nil || !record.Enrolled {
		e.metricInc(MetricStepUpFailure)
		return ErrNotEnrolled
	}

	ok, err := e.totp.VerifyCode(record.Secret, code, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricStepUpFailure)
		e.emitAudit(ctx, AuditEvent{
			Action:    auditActionStepUpConfirm,
			Actor:     session.Username,
			ActorRole: string(session.Role),
			Success:   false,
			Error:     ErrInvalidCode.Error(),
		})
		return ErrInvalidCode
	}

	if err := e.stepUp.Grant(ctx, session.DN, e.config.StepUp.Window); err != nil {
		return err
	}

	e.metricInc(MetricStepUpSuccess)
	e.emitAudit(ctx, AuditEvent{
		Action:    auditActionStepUpConfirm,
		Actor:     session.Username,
		ActorRole: string(session.Role),
		Success:   true,
	})
	return nil
}

// AuthorizeAction decides whether the session may perform a privileged
// mutation right now. It fails with [ErrStepUpRequired] when no live
// step-up window exists, which callers surface as a distinct signal so
// clients can prompt for a code instead of reporting a hard denial.
func (e *Engine) AuthorizeAction(ctx context.Context, session *Session) error {
	if e == nil || e.stepUp == nil {
		return ErrEngineNotReady
	}
	if session == nil || session.Role != RoleAdmin {
		e.metricInc(MetricActionDenied)
		return ErrNoPermission
	}

	valid, err := e.stepUp.Valid(ctx, session.DN)
	if err != nil {
		return err
	}
	if !valid {
		e.metricInc(MetricStepUpRequired)
		e.metricInc(MetricActionDenied)
		e.emitAudit(ctx, AuditEvent{
			Action:    auditActionStepUpDenied,
			Actor:     session.Username,
			ActorRole: string(session.Role),
			Success:   false,
			Error:     ErrStepUpRequired.Error(),
		})
		return ErrStepUpRequired
	}

	e.metricInc(MetricActionGranted)
	return nil
}

// CancelStepUp closes the principal's step-up window early.
func (e *Engine) CancelStepUp(ctx context.Context, session *Session) error {
	if e == nil || e.stepUp == nil {
		return ErrEngineNotReady
	}
	if session == nil {
		return ErrNoPermission
	}
	return e.stepUp.Clear(ctx, session.DN)
}
