package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/studio-platform/internal/domain"
	"github.com/ignite/studio-platform/internal/pkg/httputil"
	"github.com/ignite/studio-platform/internal/segmentation"
	"github.com/ignite/studio-platform/internal/service/segment"
)

const (
	defaultPreviewLimit = 10
	maxPreviewLimit     = 100
)

// ==========================================
// AD-HOC EVALUATION
// ==========================================

// EvaluateRequest is the body of the evaluate and preview endpoints.
type EvaluateRequest struct {
	Rules      []segmentation.Rule     `json:"rules"`
	Combinator segmentation.Combinator `json:"combinator"`
	Limit      int                     `json:"limit,omitempty"`
}

func (req EvaluateRequest) definition() segmentation.Definition {
	return segmentation.Definition{Rules: req.Rules, Combinator: req.Combinator}
}

// ContactListResponse wraps evaluated contacts.
type ContactListResponse struct {
	Count    int              `json:"count"`
	Contacts []domain.Contact `json:"contacts"`
}

func contactList(contacts []domain.Contact) ContactListResponse {
	if contacts == nil {
		contacts = []domain.Contact{}
	}
	return ContactListResponse{Count: len(contacts), Contacts: contacts}
}

// EvaluateSegment runs an unsaved definition against every contact.
//
//	POST /api/segments/evaluate
func (h *Handlers) EvaluateSegment(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	d := req.definition()
	if !validDefinition(w, d) {
		return
	}
	contacts, err := h.segments.Evaluate(r.Context(), OrgIDFromContext(r.Context()), d)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, contactList(contacts))
}

// PreviewSegment returns the size of an unsaved definition plus a sample.
//
//	POST /api/segments/preview
func (h *Handlers) PreviewSegment(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	d := req.definition()
	if !validDefinition(w, d) {
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPreviewLimit
	}
	if limit > maxPreviewLimit {
		limit = maxPreviewLimit
	}
	p, err := h.segments.Preview(r.Context(), OrgIDFromContext(r.Context()), d, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, p)
}

// ==========================================
// SAVED SEGMENTS
// ==========================================

// ListSegments returns the organization's saved segments.
//
//	GET /api/segments
func (h *Handlers) ListSegments(w http.ResponseWriter, r *http.Request) {
	segs, err := h.segments.List(r.Context(), OrgIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if segs == nil {
		segs = []segmentation.Segment{}
	}
	httputil.OK(w, map[string]any{"segments": segs, "count": len(segs)})
}

// CreateSegment saves a new segment.
//
//	POST /api/segments
func (h *Handlers) CreateSegment(w http.ResponseWriter, r *http.Request) {
	var in segment.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	seg, err := h.segments.Create(r.Context(), OrgIDFromContext(r.Context()), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, seg)
}

// GetSegment returns one saved segment.
//
//	GET /api/segments/{segmentID}
func (h *Handlers) GetSegment(w http.ResponseWriter, r *http.Request) {
	seg, err := h.segments.Get(r.Context(), OrgIDFromContext(r.Context()), chi.URLParam(r, "segmentID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, seg)
}

// DeleteSegment removes a saved segment.
//
//	DELETE /api/segments/{segmentID}
func (h *Handlers) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	if err := h.segments.Delete(r.Context(), OrgIDFromContext(r.Context()), chi.URLParam(r, "segmentID")); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// GetSegmentContacts evaluates a saved segment. An optional limit query
// parameter truncates the returned list; count is always the full size.
//
//	GET /api/segments/{segmentID}/contacts
func (h *Handlers) GetSegmentContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.segments.Contacts(r.Context(), OrgIDFromContext(r.Context()), chi.URLParam(r, "segmentID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	resp := contactList(contacts)
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit < len(resp.Contacts) {
		resp.Contacts = resp.Contacts[:limit]
	}
	httputil.OK(w, resp)
}

// GetContactSegments lists the saved segments a contact belongs to.
//
//	GET /api/contacts/{contactID}/segments
func (h *Handlers) GetContactSegments(w http.ResponseWriter, r *http.Request) {
	ms, err := h.segments.Memberships(r.Context(), OrgIDFromContext(r.Context()), chi.URLParam(r, "contactID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if ms == nil {
		ms = []segmentation.Membership{}
	}
	httputil.OK(w, map[string]any{"segments": ms})
}

// ==========================================
// OPERATORS
// ==========================================

// FieldResponse describes one segmentable field and its operators.
type FieldResponse struct {
	segmentation.Field
	Operators []segmentation.OperatorMetadata `json:"operators"`
}

// ListOperators returns the operator catalog and segmentable fields for
// segment-builder UIs.
//
//	GET /api/operators
func (h *Handlers) ListOperators(w http.ResponseWriter, r *http.Request) {
	fields := segmentation.Fields()
	out := make([]FieldResponse, 0, len(fields))
	for _, f := range fields {
		out = append(out, FieldResponse{Field: f, Operators: segmentation.GetAvailableOperators(f.Kind)})
	}
	httputil.OK(w, map[string]any{
		"operators": segmentation.GetOperatorMetadata(),
		"fields":    out,
	})
}
