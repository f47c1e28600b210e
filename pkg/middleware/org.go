package middleware

import (
	"net/http"

	"github.com/corpushq/corpus/pkg/httputil"
	"github.com/corpushq/corpus/pkg/observability"
)

// OrgHeader is the header carrying the caller's organization, resolved by
// the session layer in front of this service.
const OrgHeader = "X-Organization-ID"

// OrgContext requires an organization on every request and puts it on the
// context. Requests without one never reach a handler.
func OrgContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := r.Header.Get(OrgHeader)
		if orgID == "" {
			httputil.WriteUnauthorized(w, "missing organization")
			return
		}

		ctx := observability.WithOrgID(r.Context(), orgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OrgID returns the caller's organization ID from the request context
func OrgID(r *http.Request) string {
	return observability.GetOrgID(r.Context())
}
