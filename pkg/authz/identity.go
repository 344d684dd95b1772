package authz

import (
	"context"
	"net/http"
	"strings"
)

// Identity headers set by the authenticating proxy in front of the server.
const (
	HeaderRemoteUser  = "X-Remote-User"
	HeaderRemoteGroup = "X-Remote-Group"
)

type identityCtxKey struct{}

// Identity is the caller on whose behalf a policy is reconciled.
type Identity struct {
	User   string
	Groups []string
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext returns the identity stored in ctx, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// IdentityMiddleware stores the identity from the X-Remote-User and
// comma-separated X-Remote-Group headers in the request context. A missing
// user is "anonymous".
func IdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := strings.TrimSpace(r.Header.Get(HeaderRemoteUser))
			if user == "" {
				user = "anonymous"
			}
			var groups []string
			for _, g := range strings.Split(r.Header.Get(HeaderRemoteGroup), ",") {
				if g = strings.TrimSpace(g); g != "" {
					groups = append(groups, g)
				}
			}
			ctx := WithIdentity(r.Context(), Identity{User: user, Groups: groups})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
