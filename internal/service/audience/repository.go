package audience

import "context"

// TenantRepository resolves an organization's billing state.
type TenantRepository interface {
	// BillingPriceID returns the active billing price id, or "" when the
	// organization has none. Returns ErrTenantNotFound for unknown orgs.
	BillingPriceID(ctx context.Context, orgID string) (string, error)
}
