package api

import (
	"fmt"
	"net/http"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
)

// RequireGroups returns middleware that only lets through callers belonging
// to at least one of groups. An empty groups list allows everyone.
func RequireGroups(groups []string) func(http.Handler) http.Handler {
	allowed := mapset.NewThreadUnsafeSet(groups...)
	return func(next http.Handler) http.Handler {
		if allowed.Cardinality() == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := authz.IdentityFromContext(r.Context())
			for _, g := range id.Groups {
				if allowed.Contains(g) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeMessage(w, http.StatusForbidden,
				fmt.Sprintf("user %q is not a member of an admin group", id.User))
		})
	}
}
