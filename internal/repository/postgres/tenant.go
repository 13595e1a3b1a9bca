package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/studio-platform/internal/domain"
	"github.com/ignite/studio-platform/internal/service/audience"
)

// TenantRepo reads organizations and their billing state.
type TenantRepo struct{ db *sql.DB }

// NewTenantRepo creates a Postgres-backed tenant repository.
func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{db: db} }

var _ audience.TenantRepository = (*TenantRepo)(nil)

func (r *TenantRepo) Get(ctx context.Context, orgID string) (*domain.Organization, error) {
	var (
		o     domain.Organization
		price sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, billing_price_id, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`, orgID).Scan(&o.ID, &o.Name, &price, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, audience.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	if price.Valid && price.String != "" {
		o.BillingPriceID = &price.String
	}
	return &o, nil
}

// BillingPriceID returns the organization's active billing price id, or ""
// when it has none.
func (r *TenantRepo) BillingPriceID(ctx context.Context, orgID string) (string, error) {
	o, err := r.Get(ctx, orgID)
	if err != nil {
		return "", err
	}
	if o.BillingPriceID == nil {
		return "", nil
	}
	return *o.BillingPriceID, nil
}
