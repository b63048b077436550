// Package dirgate provides authentication and privileged-action authorization
// for directory-backed admin consoles: LDAP credential verification, TOTP
// second factors for administrators, signed session tokens, credential
// lockout, and per-action step-up gating.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// dirgate is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (LoginResult, Session, TOTPSetup, etc.). Session-token signing lives in the token
// sub-package, the LDAP client in directory, and HTTP guards in middleware. Ephemeral
// state (lockouts, challenges, step-up windows, the revocation deny-list) is Redis-backed
// and never exported.
//
// # What this package must NOT do
//
//   - Store or verify passwords locally. The directory is the sole credential
//     authority; every password check is a directory bind.
//   - Issue an admin session token before an OTP challenge has been consumed.
//   - Expose Redis clients, internal stores, or record encodings in its public API.
//
// # Trust model
//
// Role is resolved from directory group membership at login and fixed into the session
// token. Validation trusts the signature, the deny-list, and nothing else; directory
// role changes take effect only on the next login.
package dirgate
