package domain

import "time"

// Organization is a single customer business account. All other data is
// scoped by its ID.
type Organization struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	// BillingPriceID is the external billing price the org is subscribed to.
	// Nil when the org has never subscribed (trial).
	BillingPriceID *string `json:"billing_price_id,omitempty" db:"billing_price_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
