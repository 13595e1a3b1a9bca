package segment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/studio-platform/internal/domain"
	"github.com/ignite/studio-platform/internal/pkg/logger"
	"github.com/ignite/studio-platform/internal/segmentation"
)

// Evaluator is the part of segmentation.Engine the service needs.
type Evaluator interface {
	Evaluate(ctx context.Context, orgID string, d segmentation.Definition) ([]domain.Contact, error)
	Preview(ctx context.Context, orgID string, d segmentation.Definition, limit int) (*segmentation.Preview, error)
	Memberships(ctx context.Context, orgID, contactID string, segments []segmentation.Segment) ([]segmentation.Membership, error)
	Warm(ctx context.Context, orgID string, segments []segmentation.Segment) (int, error)
}

// Service implements saved-segment business logic. All public methods are
// safe for concurrent use if the repository and evaluator are.
type Service struct {
	repo   Repository
	engine Evaluator
}

// NewService creates a segment service.
func NewService(repo Repository, engine Evaluator) *Service {
	return &Service{repo: repo, engine: engine}
}

// CreateInput holds the fields for creating a new segment.
type CreateInput struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Rules       []segmentation.Rule     `json:"rules"`
	Combinator  segmentation.Combinator `json:"combinator"`
}

// Definition returns the membership-relevant part of the input.
func (in CreateInput) Definition() segmentation.Definition {
	return segmentation.Definition{Rules: in.Rules, Combinator: in.Combinator}
}

// Create validates and persists a new segment. Rules that could never
// match as written are rejected here rather than silently saved.
func (s *Service) Create(ctx context.Context, orgID string, in CreateInput) (*segmentation.Segment, error) {
	if orgID == "" {
		return nil, segmentation.ErrMissingTenant
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if errs := segmentation.Validate(in.Definition()); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSegment, errors.Join(errs...))
	}

	seg := &segmentation.Segment{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Name:           name,
		Description:    in.Description,
		Rules:          in.Rules,
		Combinator:     in.Combinator,
	}
	if seg.Rules == nil {
		seg.Rules = []segmentation.Rule{}
	}
	if err := s.repo.Create(ctx, seg); err != nil {
		return nil, err
	}
	logger.Info("segment created", "org_id", orgID, "segment_id", seg.ID, "rules", len(seg.Rules))
	return seg, nil
}

// Get returns a single segment.
func (s *Service) Get(ctx context.Context, orgID, id string) (*segmentation.Segment, error) {
	return s.repo.Get(ctx, orgID, id)
}

// List returns the organization's segments.
func (s *Service) List(ctx context.Context, orgID string) ([]segmentation.Segment, error) {
	return s.repo.List(ctx, orgID)
}

// Delete removes a segment.
func (s *Service) Delete(ctx context.Context, orgID, id string) error {
	return s.repo.Delete(ctx, orgID, id)
}

// Contacts evaluates a saved segment in bulk.
func (s *Service) Contacts(ctx context.Context, orgID, id string) ([]domain.Contact, error) {
	seg, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	return s.engine.Evaluate(ctx, orgID, seg.Definition())
}

// Evaluate runs an unsaved definition in bulk.
func (s *Service) Evaluate(ctx context.Context, orgID string, d segmentation.Definition) ([]domain.Contact, error) {
	return s.engine.Evaluate(ctx, orgID, d)
}

// Preview returns the size of an unsaved definition and a sample.
func (s *Service) Preview(ctx context.Context, orgID string, d segmentation.Definition, limit int) (*segmentation.Preview, error) {
	return s.engine.Preview(ctx, orgID, d, limit)
}

// Memberships lists the saved segments a contact currently belongs to.
func (s *Service) Memberships(ctx context.Context, orgID, contactID string) ([]segmentation.Membership, error) {
	segs, err := s.repo.List(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return s.engine.Memberships(ctx, orgID, contactID, segs)
}

// Refresh recomputes and caches every contact's memberships for one
// organization. It returns the number of contacts refreshed.
func (s *Service) Refresh(ctx context.Context, orgID string) (int, error) {
	segs, err := s.repo.List(ctx, orgID)
	if err != nil {
		return 0, err
	}
	return s.engine.Warm(ctx, orgID, segs)
}

// Organizations returns every organization with saved segments.
func (s *Service) Organizations(ctx context.Context) ([]string, error) {
	return s.repo.Organizations(ctx)
}
