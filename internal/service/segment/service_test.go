package segment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/ignite/studio-platform/internal/domain"
	"github.com/ignite/studio-platform/internal/segmentation"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu    sync.RWMutex
	store map[string]*segmentation.Segment // keyed by "orgID:id"
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[string]*segmentation.Segment)}
}

func (m *mockRepo) key(orgID, id string) string { return orgID + ":" + id }

func (m *mockRepo) Create(_ context.Context, s *segmentation.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[m.key(s.OrganizationID, s.ID)] = &cp
	return nil
}

func (m *mockRepo) Get(_ context.Context, orgID, id string) (*segmentation.Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[m.key(orgID, id)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, orgID string) ([]segmentation.Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]segmentation.Segment, 0)
	for _, s := range m.store {
		if s.OrganizationID == orgID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockRepo) Delete(_ context.Context, orgID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(orgID, id)
	if _, ok := m.store[k]; !ok {
		return ErrNotFound
	}
	delete(m.store, k)
	return nil
}

func (m *mockRepo) Organizations(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, s := range m.store {
		if !seen[s.OrganizationID] {
			seen[s.OrganizationID] = true
			out = append(out, s.OrganizationID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// memContacts is an in-memory segmentation.ContactStore.
type memContacts []domain.Contact

func (m memContacts) ListContacts(_ context.Context, orgID string) ([]domain.Contact, error) {
	var out []domain.Contact
	for _, c := range m {
		if c.OrganizationID == orgID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m memContacts) GetContact(_ context.Context, orgID, id string) (*domain.Contact, error) {
	for _, c := range m {
		if c.OrganizationID == orgID && c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, segmentation.ErrContactNotFound
}

const testOrgID = "org-001"

func spend(f float64) *float64 { return &f }

func newTestService() *Service {
	contacts := memContacts{
		{ID: "c1", OrganizationID: testOrgID, Email: "one@example.com", TotalSpent: spend(600), Tags: []string{"vip"}},
		{ID: "c2", OrganizationID: testOrgID, Email: "two@example.com", TotalSpent: spend(400), Tags: []string{}},
		{ID: "c3", OrganizationID: testOrgID, Email: "three@example.com", Tags: []string{"vip"}},
		{ID: "x1", OrganizationID: "org-002", Email: "x@example.com", TotalSpent: spend(900), Tags: []string{}},
	}
	return NewService(newMockRepo(), segmentation.NewEngine(contacts))
}

func bigSpenders() CreateInput {
	return CreateInput{
		Name: "Big spenders",
		Rules: []segmentation.Rule{
			{Field: "totalSpent", Operator: segmentation.OpGreaterThan, Value: 500},
		},
	}
}

func TestCreate_PersistsSegment(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	seg, err := svc.Create(ctx, testOrgID, bigSpenders())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if seg.ID == "" {
		t.Error("expected an ID to be assigned")
	}

	got, err := svc.Get(ctx, testOrgID, seg.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Big spenders" || len(got.Rules) != 1 {
		t.Errorf("unexpected segment: %+v", got)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, testOrgID, CreateInput{Name: "  "}); !errors.Is(err, ErrNameRequired) {
		t.Errorf("expected ErrNameRequired, got %v", err)
	}

	in := bigSpenders()
	in.Rules = append(in.Rules, segmentation.Rule{Field: "shoeSize", Operator: segmentation.OpEquals, Value: 9})
	_, err := svc.Create(ctx, testOrgID, in)
	if !errors.Is(err, ErrInvalidSegment) {
		t.Errorf("expected ErrInvalidSegment, got %v", err)
	}
	if !errors.Is(err, segmentation.ErrUnknownField) {
		t.Errorf("expected the field error to be wrapped, got %v", err)
	}

	if _, err := svc.Create(ctx, "", bigSpenders()); !errors.Is(err, segmentation.ErrMissingTenant) {
		t.Errorf("expected ErrMissingTenant, got %v", err)
	}
}

func TestContacts_EvaluatesSavedSegment(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	seg, _ := svc.Create(ctx, testOrgID, bigSpenders())
	contacts, err := svc.Contacts(ctx, testOrgID, seg.ID)
	if err != nil {
		t.Fatalf("Contacts: %v", err)
	}
	if len(contacts) != 1 || contacts[0].ID != "c1" {
		t.Errorf("expected only c1, got %+v", contacts)
	}

	if _, err := svc.Contacts(ctx, "org-002", seg.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound across tenants, got %v", err)
	}
}

func TestMemberships(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, _ = svc.Create(ctx, testOrgID, bigSpenders())
	_, _ = svc.Create(ctx, testOrgID, CreateInput{
		Name:  "VIP",
		Rules: []segmentation.Rule{{Field: "tags", Operator: segmentation.OpContains, Value: "vip"}},
	})

	got, err := svc.Memberships(ctx, testOrgID, "c3")
	if err != nil {
		t.Fatalf("Memberships: %v", err)
	}
	if len(got) != 1 || got[0].SegmentName != "VIP" {
		t.Errorf("expected c3 in VIP only, got %+v", got)
	}

	if _, err := svc.Memberships(ctx, testOrgID, "nobody"); !errors.Is(err, segmentation.ErrContactNotFound) {
		t.Errorf("expected ErrContactNotFound, got %v", err)
	}
}

func TestDelete_RemovesSegment(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	seg, _ := svc.Create(ctx, testOrgID, bigSpenders())
	if err := svc.Delete(ctx, testOrgID, seg.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, testOrgID, seg.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.Delete(ctx, testOrgID, seg.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestRefresh_WithoutCacheIsNoop(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, _ = svc.Create(ctx, testOrgID, bigSpenders())

	n, err := svc.Refresh(ctx, testOrgID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 contacts warmed without a cache, got %d", n)
	}

	orgs, _ := svc.Organizations(ctx)
	if len(orgs) != 1 || orgs[0] != testOrgID {
		t.Errorf("unexpected organizations: %v", orgs)
	}
}
