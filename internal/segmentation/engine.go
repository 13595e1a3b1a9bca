package segmentation

import (
	"context"
	"time"

	"github.com/ignite/studio-platform/internal/domain"
	"github.com/ignite/studio-platform/internal/pkg/logger"
)

const defaultPreviewLimit = 10

// Engine evaluates segments against a ContactStore. It holds no per-call
// state and is safe for concurrent use.
type Engine struct {
	store    ContactStore
	pushDown bool
	cache    *MembershipCache
}

// Option configures an Engine.
type Option func(*Engine)

// WithPushDown lets bulk evaluation run inside the store when it implements
// QueryStore. Otherwise all contacts are fetched and filtered in memory.
func WithPushDown(enabled bool) Option {
	return func(e *Engine) { e.pushDown = enabled }
}

// WithMembershipCache caches single-contact results in Redis.
func WithMembershipCache(c *MembershipCache) Option {
	return func(e *Engine) { e.cache = c }
}

// NewEngine creates a new segmentation engine
func NewEngine(store ContactStore, opts ...Option) *Engine {
	e := &Engine{store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) queryStore() (QueryStore, bool) {
	if !e.pushDown {
		return nil, false
	}
	qs, ok := e.store.(QueryStore)
	return qs, ok
}

// ==========================================
// BULK EVALUATION
// ==========================================

// Evaluate returns every contact of the organization matching d.
func (e *Engine) Evaluate(ctx context.Context, orgID string, d Definition) ([]domain.Contact, error) {
	if orgID == "" {
		return nil, ErrMissingTenant
	}
	if qs, ok := e.queryStore(); ok {
		contacts, err := qs.QueryContacts(ctx, orgID, d, 0)
		if err != nil {
			return nil, storeErr("query contacts", err)
		}
		return contacts, nil
	}

	contacts, err := e.store.ListContacts(ctx, orgID)
	if err != nil {
		return nil, storeErr("list contacts", err)
	}
	return Filter(contacts, d), nil
}

// Count returns the number of contacts matching d.
func (e *Engine) Count(ctx context.Context, orgID string, d Definition) (int, error) {
	if orgID == "" {
		return 0, ErrMissingTenant
	}
	if qs, ok := e.queryStore(); ok {
		n, err := qs.CountContacts(ctx, orgID, d)
		if err != nil {
			return 0, storeErr("count contacts", err)
		}
		return n, nil
	}
	matched, err := e.Evaluate(ctx, orgID, d)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// Preview returns the segment size with the first limit matches.
func (e *Engine) Preview(ctx context.Context, orgID string, d Definition, limit int) (*Preview, error) {
	if limit <= 0 {
		limit = defaultPreviewLimit
	}

	var (
		count  int
		sample []domain.Contact
	)
	if qs, ok := e.queryStore(); ok {
		if orgID == "" {
			return nil, ErrMissingTenant
		}
		n, err := qs.CountContacts(ctx, orgID, d)
		if err != nil {
			return nil, storeErr("count contacts", err)
		}
		sample, err = qs.QueryContacts(ctx, orgID, d, limit)
		if err != nil {
			return nil, storeErr("query contacts", err)
		}
		count = n
	} else {
		matched, err := e.Evaluate(ctx, orgID, d)
		if err != nil {
			return nil, err
		}
		count = len(matched)
		sample = matched
		if len(sample) > limit {
			sample = sample[:limit]
		}
	}

	previews := make([]ContactPreview, 0, len(sample))
	for _, c := range sample {
		previews = append(previews, ContactPreview{ID: c.ID, Email: c.Email, Name: c.DisplayName()})
	}
	return &Preview{Count: count, Sample: previews, CalculatedAt: time.Now()}, nil
}

// ==========================================
// SINGLE-CONTACT EVALUATION
// ==========================================

// IsMember reports whether one contact belongs to the segment.
func (e *Engine) IsMember(ctx context.Context, orgID, contactID string, d Definition) (bool, error) {
	results, err := e.evaluateContact(ctx, orgID, contactID, []Definition{d})
	if err != nil {
		return false, err
	}
	return results[0], nil
}

// Memberships returns the segments, in input order, the contact belongs to.
func (e *Engine) Memberships(ctx context.Context, orgID, contactID string, segments []Segment) ([]Membership, error) {
	defs := make([]Definition, len(segments))
	for i, s := range segments {
		defs[i] = s.Definition()
	}
	results, err := e.evaluateContact(ctx, orgID, contactID, defs)
	if err != nil {
		return nil, err
	}
	out := make([]Membership, 0)
	for i, member := range results {
		if member {
			out = append(out, Membership{SegmentID: segments[i].ID, SegmentName: segments[i].Name})
		}
	}
	return out, nil
}

// evaluateContact always reads the contact from the store so single-contact
// results track the same data bulk evaluation sees. The cache only spares
// re-evaluating definitions for an unchanged contact.
func (e *Engine) evaluateContact(ctx context.Context, orgID, contactID string, defs []Definition) ([]bool, error) {
	if orgID == "" {
		return nil, ErrMissingTenant
	}
	c, err := e.store.GetContact(ctx, orgID, contactID)
	if err != nil {
		return nil, storeErr("get contact", err)
	}

	results := make([]bool, len(defs))
	if e.cache == nil {
		for i, d := range defs {
			results[i] = Matches(c, d)
		}
		return results, nil
	}

	fp := ContactFingerprint(c)
	hashes := make([]string, len(defs))
	for i, d := range defs {
		hashes[i] = HashDefinition(d, orgID)
	}
	cached, err := e.cache.Get(ctx, orgID, contactID, fp, hashes)
	if err != nil {
		logger.Warn("membership cache read failed", "org_id", orgID, "contact_id", contactID, "error", err)
		cached = map[string]bool{}
	}

	fresh := make(map[string]bool)
	for i, h := range hashes {
		if member, ok := cached[h]; ok {
			results[i] = member
			continue
		}
		results[i] = Matches(c, defs[i])
		fresh[h] = results[i]
	}
	if err := e.cache.Set(ctx, orgID, contactID, fp, fresh); err != nil {
		logger.Warn("membership cache write failed", "org_id", orgID, "contact_id", contactID, "error", err)
	}
	return results, nil
}

// Warm evaluates every segment for every contact of the organization and
// stores the results in the membership cache. It returns the number of
// contacts written. Without a cache it does nothing.
func (e *Engine) Warm(ctx context.Context, orgID string, segments []Segment) (int, error) {
	if e.cache == nil || len(segments) == 0 {
		return 0, nil
	}
	if orgID == "" {
		return 0, ErrMissingTenant
	}
	contacts, err := e.store.ListContacts(ctx, orgID)
	if err != nil {
		return 0, storeErr("list contacts", err)
	}

	hashes := make([]string, len(segments))
	for i, s := range segments {
		hashes[i] = HashDefinition(s.Definition(), orgID)
	}

	warmed := 0
	for i := range contacts {
		if err := ctx.Err(); err != nil {
			return warmed, err
		}
		results := make(map[string]bool, len(segments))
		for j, s := range segments {
			results[hashes[j]] = Matches(&contacts[i], s.Definition())
		}
		if err := e.cache.Set(ctx, orgID, contacts[i].ID, ContactFingerprint(&contacts[i]), results); err != nil {
			return warmed, err
		}
		warmed++
	}
	return warmed, nil
}
