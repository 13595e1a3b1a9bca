package segment

import (
	"context"

	"github.com/ignite/studio-platform/internal/segmentation"
)

// Repository defines the data access contract for saved segments.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts a segment, assigning ID and timestamps.
	Create(ctx context.Context, s *segmentation.Segment) error

	// Get returns a single segment. Returns ErrNotFound if it doesn't exist
	// or was deleted.
	Get(ctx context.Context, orgID, id string) (*segmentation.Segment, error)

	// List returns the organization's segments ordered by name.
	List(ctx context.Context, orgID string) ([]segmentation.Segment, error)

	// Delete soft-deletes a segment. Returns ErrNotFound if it doesn't exist.
	Delete(ctx context.Context, orgID, id string) error

	// Organizations returns the ids of organizations with at least one segment.
	Organizations(ctx context.Context) ([]string, error)
}
