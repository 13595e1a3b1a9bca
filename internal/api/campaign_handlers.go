package api

import (
	"net/http"

	"github.com/ignite/studio-platform/internal/domain"
	"github.com/ignite/studio-platform/internal/pkg/httputil"
	"github.com/ignite/studio-platform/internal/segmentation"
)

// RecipientsRequest asks for a campaign recipient list. Either SegmentID
// names a saved segment or Rules/Combinator give an ad-hoc definition with
// at least one rule.
type RecipientsRequest struct {
	Channel    domain.Channel          `json:"channel"`
	SegmentID  string                  `json:"segment_id,omitempty"`
	Rules      []segmentation.Rule     `json:"rules,omitempty"`
	Combinator segmentation.Combinator `json:"combinator"`
}

// BuildRecipients resolves a segment into reachable recipients for a
// campaign send.
//
//	POST /api/campaigns/recipients
func (h *Handlers) BuildRecipients(w http.ResponseWriter, r *http.Request) {
	var req RecipientsRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Channel == "" {
		req.Channel = domain.ChannelEmail
	}
	ctx := r.Context()
	orgID := OrgIDFromContext(ctx)

	d := segmentation.Definition{Rules: req.Rules, Combinator: req.Combinator}
	if req.SegmentID != "" {
		seg, err := h.segments.Get(ctx, orgID, req.SegmentID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		d = seg.Definition()
	} else {
		if len(d.Rules) == 0 {
			httputil.ErrorWithCode(w, http.StatusBadRequest, codeInvalidRequest,
				"segment_id or at least one rule is required", nil)
			return
		}
		if !validDefinition(w, d) {
			return
		}
	}

	list, err := h.audience.BuildRecipients(ctx, orgID, d, req.Channel)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, list)
}
