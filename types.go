package dirgate

import (
	"context"
	"time"
)

// Role identifies which login path and authorization surface a principal
// uses. The engine resolves it from directory group membership at login and
// fixes it into the session token at issuance.
type Role string

const (
	// RoleUser is an exported constant or variable used by the directory auth engine.
	RoleUser Role = "user"
	// RoleAdmin is an exported constant or variable used by the directory auth engine.
	RoleAdmin Role = "admin"
)

// DirectoryEntry is the identity record returned by [DirectoryClient]
// lookups and binds. The directory owns all of it; the engine treats it as
// read-only except for the write-through operations on [DirectoryClient].
type DirectoryEntry struct {
	DN          string
	Username    string
	DisplayName string
	Mail        string
	Groups      []string
	Enabled     bool
}

// NewUser describes an account to create in the directory. OUDN names the
// organizational unit the entry is placed under; the password is written
// through to the directory and never retained by the engine.
type NewUser struct {
	Username    string
	DisplayName string
	OUDN        string
	Password    string
	Mail        string
}

// DirectoryClient is the collaborator interface for the LDAP/AD directory.
// Implementations must return [ErrInvalidCredentials] for a failed bind
// (bad password or unknown user) and [ErrDirectoryUnavailable] when the
// directory cannot be reached — the engine counts the former against the
// lockout tracker and never counts the latter.
//
// The package directory provides an LDAP implementation.
type DirectoryClient interface {
	// Bind authenticates username/password with a user-level bind and
	// returns the entry on success.
	Bind(ctx context.Context, username, password string) (*DirectoryEntry, error)
	// Lookup resolves a username to its entry without authenticating.
	Lookup(ctx context.Context, username string) (*DirectoryEntry, error)
	// IsAdmin reports whether the user is a member of the configured
	// administrators group.
	IsAdmin(ctx context.Context, username string) (bool, error)
	// SetPassword writes a new password for the entry identified by dn.
	SetPassword(ctx context.Context, dn, newPassword string) error
	// SetEnabled toggles the enabled state of the entry identified by dn.
	SetEnabled(ctx context.Context, dn string, enabled bool) error
	// CreateUser creates an account under user.OUDN, sets its initial
	// password, and enables it.
	CreateUser(ctx context.Context, user NewUser) error
	// UpdateUser replaces the given attributes on the entry identified by
	// dn.
	UpdateUser(ctx context.Context, dn string, changes map[string]string) error
	// DeleteUser removes the entry identified by dn.
	DeleteUser(ctx context.Context, dn string) error
	// MoveUser moves the entry identified by dn under targetOUDN, keeping
	// its relative name.
	MoveUser(ctx context.Context, dn, targetOUDN string) error
	// CreateOU creates an organizational unit under parentDN.
	CreateOU(ctx context.Context, name, parentDN, description string) error
	// UpdateOU renames the OU when name is non-empty and replaces its
	// description when description is non-empty.
	UpdateOU(ctx context.Context, dn, name, description string) error
	// DeleteOU removes the organizational unit identified by dn.
	DeleteOU(ctx context.Context, dn string) error
	// Ping verifies directory reachability with a service bind.
	Ping(ctx context.Context) error
}

// EnrollmentRecord defines a public type used by dirgate APIs.
//
// EnrollmentRecord instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EnrollmentRecord struct {
	// Secret is the raw shared TOTP secret. Stores must persist it
	// encrypted at rest.
	Secret []byte
	// Enrolled flips to true on the first successful code verification
	// against this secret. A record with Enrolled=false is a pending
	// provisioning, not a usable enrollment.
	Enrolled  bool
	CreatedAt time.Time
}

// EnrollmentStore persists per-principal TOTP enrollments, keyed by the
// principal's directory DN. Get returns (nil, nil) when no enrollment
// exists. Put overwrites any prior record — a rebind invalidates the old
// secret atomically. Implementations must be safe for concurrent use.
//
// [NewRedisEnrollmentStore] provides a Redis-backed implementation that
// seals secrets with XChaCha20-Poly1305.
type EnrollmentStore interface {
	Get(ctx context.Context, principalDN string) (*EnrollmentRecord, error)
	Put(ctx context.Context, principalDN string, record *EnrollmentRecord) error
	Enable(ctx context.Context, principalDN string) error
	Delete(ctx context.Context, principalDN string) error
}

// ConfigVersion is one historical value of a config key.
type ConfigVersion struct {
	Version   int64
	Value     string
	UpdatedAt time.Time
	UpdatedBy string
}

// ConfigStore is the versioned key-value collaborator whose writes the
// engine gates behind step-up verification. The engine does not interpret
// values; it only routes gated writes and rollbacks through this interface.
type ConfigStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value, updatedBy string) (int64, error)
	History(ctx context.Context, key string, limit int) ([]ConfigVersion, error)
	Rollback(ctx context.Context, key string, version int64) (string, error)
}

// LoginResult is returned by [Engine.Login]. Exactly one of the two shapes
// is populated: a session token for the single-step user path, or an OTP
// challenge for the admin path. The challenge fields make the second factor
// structurally unavoidable for admins — no token exists until the challenge
// is consumed by [Engine.VerifyLogin].
type LoginResult struct {
	Token string

	OTPRequired   bool
	SetupRequired bool
	ChallengeID   string
}

// TOTPSetup holds the base32-encoded TOTP secret and the otpauth://
// provisioning URI returned by [Engine.SetupTOTP].
type TOTPSetup struct {
	Secret string
	URI    string
}

// Session is the validated identity carried by a session token, returned
// by [Engine.Validate]. Role is fixed at issuance: changing the principal's
// directory role does not alter outstanding sessions; they must be revoked
// and reissued.
type Session struct {
	DN        string
	Username  string
	Role      Role
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Health is a point-in-time reachability report returned by [Engine.Ping].
type Health struct {
	Directory bool
	Store     bool
}
