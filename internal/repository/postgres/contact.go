package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/studio-platform/internal/domain"
	"github.com/ignite/studio-platform/internal/segmentation"
)

// ContactRepo implements segmentation.QueryStore against PostgreSQL.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

var _ segmentation.QueryStore = (*ContactRepo)(nil)

func (r *ContactRepo) ListContacts(ctx context.Context, orgID string) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+segmentation.ContactColumns+`
		FROM contacts c
		WHERE c.organization_id = $1
		ORDER BY c.created_at, c.id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return scanContacts(rows)
}

func (r *ContactRepo) GetContact(ctx context.Context, orgID, contactID string) (*domain.Contact, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+segmentation.ContactColumns+`
		FROM contacts c
		WHERE c.organization_id = $1 AND c.id = $2
	`, orgID, contactID)

	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, segmentation.ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// QueryContacts runs the segment predicate inside Postgres.
func (r *ContactRepo) QueryContacts(ctx context.Context, orgID string, d segmentation.Definition, limit int) ([]domain.Contact, error) {
	query, args, err := segmentation.NewQueryBuilder().
		SetOrganizationID(orgID).
		SetLimit(limit).
		BuildQuery(d)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	return scanContacts(rows)
}

func (r *ContactRepo) CountContacts(ctx context.Context, orgID string, d segmentation.Definition) (int, error) {
	query, args, err := segmentation.NewQueryBuilder().
		SetOrganizationID(orgID).
		BuildCountQuery(d)
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContact(row rowScanner) (*domain.Contact, error) {
	var (
		c                          domain.Contact
		phone, firstName, lastName sql.NullString
		totalSpent                 sql.NullFloat64
		lastBooking                sql.NullTime
		tags                       pq.StringArray
	)
	err := row.Scan(&c.ID, &c.OrganizationID, &c.Email, &phone, &firstName, &lastName,
		&c.EmailOptIn, &c.SMSOptIn, &c.Subscribed, &totalSpent, &lastBooking,
		&tags, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if phone.Valid {
		c.Phone = &phone.String
	}
	if firstName.Valid {
		c.FirstName = &firstName.String
	}
	if lastName.Valid {
		c.LastName = &lastName.String
	}
	if totalSpent.Valid {
		c.TotalSpent = &totalSpent.Float64
	}
	if lastBooking.Valid {
		c.LastBooking = &lastBooking.Time
	}
	c.Tags = []string(tags)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return &c, nil
}

func scanContacts(rows *sql.Rows) ([]domain.Contact, error) {
	defer rows.Close()

	out := make([]domain.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return out, nil
}
