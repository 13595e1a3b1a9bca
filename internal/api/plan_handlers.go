package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/studio-platform/internal/featuregate"
	"github.com/ignite/studio-platform/internal/pkg/httputil"
)

// GetPlan returns what the calling organization's plan grants.
//
//	GET /api/plan
func (h *Handlers) GetPlan(w http.ResponseWriter, r *http.Request) {
	ent, err := h.audience.Entitlements(r.Context(), OrgIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, ent)
}

// ListPlans returns every tier's plan, for pricing pages.
//
//	GET /api/plans
func (h *Handlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	tiers := featuregate.Tiers()
	plans := make([]featuregate.Plan, 0, len(tiers))
	for _, t := range tiers {
		plans = append(plans, h.gate.Plan(t))
	}
	httputil.OK(w, map[string]any{"plans": plans})
}

// GetTierPlan returns one tier's plan.
//
//	GET /api/plans/{tier}
func (h *Handlers) GetTierPlan(w http.ResponseWriter, r *http.Request) {
	t, ok := featuregate.ParseTier(chi.URLParam(r, "tier"))
	if !ok {
		httputil.NotFound(w, "unknown tier")
		return
	}
	httputil.OK(w, h.gate.Plan(t))
}
