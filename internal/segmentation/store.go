package segmentation

import (
	"context"

	"github.com/ignite/studio-platform/internal/domain"
)

// ContactStore is the read side of a tenant's contact data.
type ContactStore interface {
	// ListContacts returns every contact of the organization in storage order.
	ListContacts(ctx context.Context, orgID string) ([]domain.Contact, error)
	// GetContact returns ErrContactNotFound when the contact does not exist
	// in the organization.
	GetContact(ctx context.Context, orgID, contactID string) (*domain.Contact, error)
}

// QueryStore is implemented by stores that can evaluate a definition
// themselves, typically by running the SQL produced by QueryBuilder.
type QueryStore interface {
	ContactStore
	QueryContacts(ctx context.Context, orgID string, d Definition, limit int) ([]domain.Contact, error)
	CountContacts(ctx context.Context, orgID string, d Definition) (int, error)
}
