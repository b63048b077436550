package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ashkog/dirgate"
)

type sessionContextKey struct{}

// SessionFromContext returns the validated session injected by
// [RequireSession], if any.
func SessionFromContext(ctx context.Context) (*dirgate.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*dirgate.Session)
	return sess, ok
}

// RequireSession returns middleware that validates the bearer session token
// and injects the resulting [dirgate.Session] into the request context.
// Anything short of a valid, unrevoked token is a 401.
func RequireSession(engine *dirgate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sess, err := engine.Validate(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects sessions that were not issued through the admin
// login flow. It must be stacked inside [RequireSession].
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok || sess.Role != dirgate.RoleAdmin {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireStepUp gates the wrapped handler behind a live step-up window. A
// missing window answers 403 with the body "OTP_REQUIRED" so clients can
// prompt for a code instead of treating it as a hard denial. It must be
// stacked inside [RequireSession].
func RequireStepUp(engine *dirgate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if err := engine.AuthorizeAction(r.Context(), sess); err != nil {
				if errors.Is(err, dirgate.ErrStepUpRequired) {
					http.Error(w, "OTP_REQUIRED", http.StatusForbidden)
					return
				}
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
