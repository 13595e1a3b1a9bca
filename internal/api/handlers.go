package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ignite/studio-platform/internal/domain"
	"github.com/ignite/studio-platform/internal/featuregate"
	"github.com/ignite/studio-platform/internal/pkg/httputil"
	"github.com/ignite/studio-platform/internal/segmentation"
	"github.com/ignite/studio-platform/internal/service/audience"
	"github.com/ignite/studio-platform/internal/service/segment"
)

// SegmentService is the saved-segment API surface.
type SegmentService interface {
	Create(ctx context.Context, orgID string, in segment.CreateInput) (*segmentation.Segment, error)
	Get(ctx context.Context, orgID, id string) (*segmentation.Segment, error)
	List(ctx context.Context, orgID string) ([]segmentation.Segment, error)
	Delete(ctx context.Context, orgID, id string) error
	Contacts(ctx context.Context, orgID, id string) ([]domain.Contact, error)
	Evaluate(ctx context.Context, orgID string, d segmentation.Definition) ([]domain.Contact, error)
	Preview(ctx context.Context, orgID string, d segmentation.Definition, limit int) (*segmentation.Preview, error)
	Memberships(ctx context.Context, orgID, contactID string) ([]segmentation.Membership, error)
}

// AudienceService answers plan questions and builds campaign recipient lists.
type AudienceService interface {
	Entitlements(ctx context.Context, orgID string) (featuregate.Entitlements, error)
	Allowed(ctx context.Context, orgID string, c featuregate.Capability) (bool, error)
	BuildRecipients(ctx context.Context, orgID string, d segmentation.Definition, ch domain.Channel) (*audience.RecipientList, error)
}

// Handlers holds the HTTP handlers and their collaborators.
type Handlers struct {
	segments SegmentService
	audience AudienceService
	gate     *featuregate.Gate
}

// NewHandlers creates the handler set.
func NewHandlers(segments SegmentService, aud AudienceService, gate *featuregate.Gate) *Handlers {
	if gate == nil {
		gate = featuregate.New(nil)
	}
	return &Handlers{segments: segments, audience: aud, gate: gate}
}

// Error codes returned in ErrorResponse.Code.
const (
	codeMissingTenant  = "missing_tenant"
	codeTenantNotFound = "tenant_not_found"
	codeNotFound       = "not_found"
	codeInvalidSegment = "invalid_segment"
	codeFeatureLocked  = "feature_locked"
	codeInvalidRequest = "invalid_request"
)

// respondServiceError maps domain errors to HTTP responses. Store failures
// and anything unrecognized become a generic 500.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, segmentation.ErrMissingTenant):
		httputil.ErrorWithCode(w, http.StatusBadRequest, codeMissingTenant, "organization id is required", nil)
	case errors.Is(err, audience.ErrTenantNotFound):
		httputil.ErrorWithCode(w, http.StatusNotFound, codeTenantNotFound, "organization not found", nil)
	case errors.Is(err, segment.ErrNotFound):
		httputil.ErrorWithCode(w, http.StatusNotFound, codeNotFound, "segment not found", nil)
	case errors.Is(err, segmentation.ErrContactNotFound):
		httputil.ErrorWithCode(w, http.StatusNotFound, codeNotFound, "contact not found", nil)
	case errors.Is(err, segment.ErrNameRequired),
		errors.Is(err, segment.ErrInvalidSegment),
		errors.Is(err, audience.ErrUnknownChannel):
		httputil.ErrorWithCode(w, http.StatusBadRequest, codeInvalidRequest, err.Error(), nil)
	case errors.Is(err, audience.ErrFeatureLocked):
		httputil.Forbidden(w, codeFeatureLocked, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

// validDefinition writes a 400 and returns false when d cannot be evaluated
// as written.
func validDefinition(w http.ResponseWriter, d segmentation.Definition) bool {
	errs := segmentation.Validate(d)
	if len(errs) == 0 {
		return true
	}
	details := make([]string, len(errs))
	for i, e := range errs {
		details[i] = e.Error()
	}
	httputil.ErrorWithCode(w, http.StatusBadRequest, codeInvalidSegment, "segment rules are invalid", details)
	return false
}
