// Package middleware exposes HTTP guards built on dirgate.Engine validation:
// bearer-token session checks, admin-role enforcement, and the step-up gate
// for privileged mutations.
//
// Each guard reads the Authorization header or the session already injected
// by [RequireSession], delegates the decision to the engine, and never
// implements authentication logic itself.
package middleware
