package internaldefs

import (
	"github.com/ashkog/dirgate"
)

// CounterDef defines a public type used by dirgate APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   dirgate.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the directory auth engine.
var CounterDefs = []CounterDef{
	{ID: dirgate.MetricLoginSuccess, Name: "dirgate_login_success_total", Help: "Successful login attempts."},
	{ID: dirgate.MetricLoginFailure, Name: "dirgate_login_failure_total", Help: "Failed login attempts."},
	{ID: dirgate.MetricLoginLocked, Name: "dirgate_login_locked_total", Help: "Login attempts refused by an active lockout."},
	{ID: dirgate.MetricLoginNoPermission, Name: "dirgate_login_no_permission_total", Help: "Admin logins denied for missing group membership."},
	{ID: dirgate.MetricDirectoryUnavailable, Name: "dirgate_directory_unavailable_total", Help: "Operations aborted because the directory was unreachable."},
	{ID: dirgate.MetricChallengeIssued, Name: "dirgate_challenge_issued_total", Help: "OTP challenges issued to admin logins."},
	{ID: dirgate.MetricChallengeReplay, Name: "dirgate_challenge_replay_total", Help: "Detected replays of consumed OTP challenges."},
	{ID: dirgate.MetricOTPSetup, Name: "dirgate_otp_setup_total", Help: "TOTP provisioning operations."},
	{ID: dirgate.MetricOTPRebind, Name: "dirgate_otp_rebind_total", Help: "TOTP re-enrollment operations replacing an existing secret."},
	{ID: dirgate.MetricOTPSuccess, Name: "dirgate_otp_success_total", Help: "Successful OTP verifications."},
	{ID: dirgate.MetricOTPFailure, Name: "dirgate_otp_failure_total", Help: "Failed OTP verifications."},
	{ID: dirgate.MetricTokenIssued, Name: "dirgate_token_issued_total", Help: "Session tokens issued."},
	{ID: dirgate.MetricTokenRevoked, Name: "dirgate_token_revoked_total", Help: "Session tokens revoked by logout."},
	{ID: dirgate.MetricValidateFailure, Name: "dirgate_validate_failure_total", Help: "Token validations that failed."},
	{ID: dirgate.MetricStepUpRequired, Name: "dirgate_stepup_required_total", Help: "Gated actions refused for a missing step-up window."},
	{ID: dirgate.MetricStepUpSuccess, Name: "dirgate_stepup_success_total", Help: "Successful step-up confirmations."},
	{ID: dirgate.MetricStepUpFailure, Name: "dirgate_stepup_failure_total", Help: "Failed step-up confirmations."},
	{ID: dirgate.MetricActionGranted, Name: "dirgate_action_granted_total", Help: "Gated actions allowed through the step-up gate."},
	{ID: dirgate.MetricActionDenied, Name: "dirgate_action_denied_total", Help: "Gated actions denied by the step-up gate."},
}
