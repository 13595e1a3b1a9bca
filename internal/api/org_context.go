package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ignite/studio-platform/internal/featuregate"
	"github.com/ignite/studio-platform/internal/pkg/httputil"
	"github.com/ignite/studio-platform/internal/pkg/logger"
)

// OrgContextKey is the key for storing the organization id in a request context.
type OrgContextKey struct{}

// OrgHeader carries the calling organization's id.
const OrgHeader = "X-Organization-ID"

// WithOrgID returns a context carrying orgID.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, OrgContextKey{}, orgID)
}

// OrgIDFromContext returns the organization id set by RequireOrg, or "".
func OrgIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(OrgContextKey{}).(string)
	return id
}

// ExtractOrgID reads the organization id from the request.
// Priority: 1. context (set upstream), 2. X-Organization-ID header, 3. org_id query param.
func ExtractOrgID(r *http.Request) string {
	if id := OrgIDFromContext(r.Context()); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get(OrgHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("org_id"))
}

// RequireOrg rejects requests without an organization id and stores it in
// the request context. defaultOrgID, when non-empty, is used instead of
// rejecting (local development).
func RequireOrg(defaultOrgID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID := ExtractOrgID(r)
			if orgID == "" {
				orgID = defaultOrgID
			}
			if orgID == "" {
				httputil.ErrorWithCode(w, http.StatusBadRequest, codeMissingTenant,
					"organization id is required ("+OrgHeader+" header or org_id query)", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOrgID(r.Context(), orgID)))
		})
	}
}

// RequireCapability blocks the route unless the caller's plan grants c.
func (h *Handlers) RequireCapability(c featuregate.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID := OrgIDFromContext(r.Context())
			ok, err := h.audience.Allowed(r.Context(), orgID, c)
			if err != nil {
				respondServiceError(w, err)
				return
			}
			if !ok {
				logger.Info("request blocked by plan", "org_id", orgID, "capability", string(c), "path", r.URL.Path)
				httputil.ErrorWithCode(w, http.StatusForbidden, codeFeatureLocked,
					"this feature is not included in your plan", map[string]string{"capability": string(c)})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
