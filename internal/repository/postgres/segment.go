package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/studio-platform/internal/segmentation"
	"github.com/ignite/studio-platform/internal/service/segment"
)

// SegmentRepo implements segment.Repository against PostgreSQL. Rules and
// combinator are stored together as a JSONB definition.
type SegmentRepo struct{ db *sql.DB }

// NewSegmentRepo creates a Postgres-backed segment repository.
func NewSegmentRepo(db *sql.DB) *SegmentRepo { return &SegmentRepo{db: db} }

var _ segment.Repository = (*SegmentRepo)(nil)

func (r *SegmentRepo) Create(ctx context.Context, s *segmentation.Segment) error {
	def, err := segmentation.MarshalRules(s.Definition())
	if err != nil {
		return fmt.Errorf("encode segment definition: %w", err)
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO segments (id, organization_id, name, description, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`, s.ID, s.OrganizationID, s.Name, s.Description, def).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	return nil
}

func (r *SegmentRepo) Get(ctx context.Context, orgID, id string) (*segmentation.Segment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, description, definition, created_at, updated_at
		FROM segments
		WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL
	`, orgID, id)

	s, err := scanSegment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, segment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return s, nil
}

func (r *SegmentRepo) List(ctx context.Context, orgID string) ([]segmentation.Segment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, name, description, definition, created_at, updated_at
		FROM segments
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY name, id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	out := make([]segmentation.Segment, 0)
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments: %w", err)
	}
	return out, nil
}

func (r *SegmentRepo) Delete(ctx context.Context, orgID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE segments SET deleted_at = NOW(), updated_at = NOW()
		WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL
	`, orgID, id)
	if err != nil {
		return fmt.Errorf("delete segment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return segment.ErrNotFound
	}
	return nil
}

func (r *SegmentRepo) Organizations(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT organization_id FROM segments
		WHERE deleted_at IS NULL
		ORDER BY organization_id
	`)
	if err != nil {
		return nil, fmt.Errorf("segment organizations: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanSegment(row rowScanner) (*segmentation.Segment, error) {
	var (
		s    segmentation.Segment
		desc sql.NullString
		def  []byte
	)
	if err := row.Scan(&s.ID, &s.OrganizationID, &s.Name, &desc, &def, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Description = desc.String

	// A stored definition that no longer decodes (e.g. an operator that was
	// removed) keeps the segment visible but matching nothing.
	d, err := segmentation.UnmarshalRules(def)
	if err != nil {
		d = segmentation.Definition{Rules: []segmentation.Rule{}, Combinator: segmentation.CombineOr}
	}
	s.Rules = d.Rules
	if s.Rules == nil {
		s.Rules = []segmentation.Rule{}
	}
	s.Combinator = d.Combinator
	return &s, nil
}
