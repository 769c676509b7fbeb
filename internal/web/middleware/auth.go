package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/csvshare/internal/auth"
	"github.com/JonMunkholm/csvshare/internal/core"
	"github.com/JonMunkholm/csvshare/internal/logging"
	"github.com/JonMunkholm/csvshare/internal/store"
)

// ErrorFunc writes an error response. The web package supplies one so
// middleware errors share the handlers' JSON shape.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error, status int)

// Authenticator resolves a bearer token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (store.User, error)
}

type userKey struct{}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user store.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the user stored by BearerAuth.
func UserFromContext(ctx context.Context) (store.User, bool) {
	user, ok := ctx.Value(userKey{}).(store.User)
	return user, ok
}

// BearerAuth requires an "Authorization: Bearer <token>" header that
// authn accepts. Failures get 401 with a WWW-Authenticate challenge.
func BearerAuth(authn Authenticator, onError ErrorFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				onError(w, r, core.ErrUnauthenticated, http.StatusUnauthorized)
				return
			}

			user, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrTokenExpired) {
					onError(w, r, err, http.StatusInternalServerError)
					return
				}
				w.Header().Set("WWW-Authenticate", "Bearer")
				onError(w, r, err, http.StatusUnauthorized)
				return
			}

			ctx := WithUser(r.Context(), user)
			ctx = logging.WithUserID(ctx, user.ID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
