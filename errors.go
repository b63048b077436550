package dirgate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is an exported constant or variable used by the directory auth engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoPermission is an exported constant or variable used by the directory auth engine.
	ErrNoPermission = errors.New("no permission for requested role")
	// ErrLocked is an exported constant or variable used by the directory auth engine.
	ErrLocked = errors.New("account locked")
	// ErrNotEnrolled is an exported constant or variable used by the directory auth engine.
	ErrNotEnrolled = errors.New("totp not enrolled")
	// ErrInvalidCode is an exported constant or variable used by the directory auth engine.
	ErrInvalidCode = errors.New("invalid totp code")
	// ErrChallengeInvalid is an exported constant or variable used by the directory auth engine.
	ErrChallengeInvalid = errors.New("otp challenge invalid or already consumed")
	// ErrChallengeExpired is an exported constant or variable used by the directory auth engine.
	ErrChallengeExpired = errors.New("otp challenge expired")
	// ErrChallengeAttemptsExceeded is an exported constant or variable used by the directory auth engine.
	ErrChallengeAttemptsExceeded = errors.New("otp challenge attempts exceeded")
	// ErrStepUpRequired is an exported constant or variable used by the directory auth engine.
	ErrStepUpRequired = errors.New("step-up verification required")
	// ErrTokenExpired is an exported constant or variable used by the directory auth engine.
	ErrTokenExpired = errors.New("session token expired")
	// ErrTokenMalformed is an exported constant or variable used by the directory auth engine.
	ErrTokenMalformed = errors.New("session token malformed")
	// ErrTokenRevoked is an exported constant or variable used by the directory auth engine.
	ErrTokenRevoked = errors.New("session token revoked")
	// ErrDirectoryUnavailable is an exported constant or variable used by the directory auth engine.
	ErrDirectoryUnavailable = errors.New("directory unavailable")
	// ErrConfigKeyNotFound is an exported constant or variable used by the directory auth engine.
	ErrConfigKeyNotFound = errors.New("config key not found")
	// ErrConfigVersionNotFound is an exported constant or variable used by the directory auth engine.
	ErrConfigVersionNotFound = errors.New("config version not found")
	// ErrLockoutUnavailable is an exported constant or variable used by the directory auth engine.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
	// ErrChallengeUnavailable is an exported constant or variable used by the directory auth engine.
	ErrChallengeUnavailable = errors.New("challenge backend unavailable")
	// ErrEnrollmentUnavailable is an exported constant or variable used by the directory auth engine.
	ErrEnrollmentUnavailable = errors.New("enrollment backend unavailable")
	// ErrStepUpUnavailable is an exported constant or variable used by the directory auth engine.
	ErrStepUpUnavailable = errors.New("step-up backend unavailable")
	// ErrRevocationUnavailable is an exported constant or variable used by the directory auth engine.
	ErrRevocationUnavailable = errors.New("revocation backend unavailable")
	// ErrConfigUnavailable is an exported constant or variable used by the directory auth engine.
	ErrConfigUnavailable = errors.New("config backend unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the directory auth engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockedError wraps [ErrLocked] and carries the time at which the lockout
// window ends. Until may be surfaced to the end user: once past the
// credential check, a lockout is not usable for username enumeration.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Unwrap() error {
	return ErrLocked
}
