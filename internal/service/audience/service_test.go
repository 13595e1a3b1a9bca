package audience

import (
	"context"
	"errors"
	"testing"

	"github.com/ignite/studio-platform/internal/domain"
	"github.com/ignite/studio-platform/internal/featuregate"
	"github.com/ignite/studio-platform/internal/segmentation"
)

// mockTenants is an in-memory tenant repository for testing.
type mockTenants struct {
	prices map[string]string
}

func (m *mockTenants) BillingPriceID(_ context.Context, orgID string) (string, error) {
	p, ok := m.prices[orgID]
	if !ok {
		return "", ErrTenantNotFound
	}
	return p, nil
}

// mockContacts is an in-memory segmentation.ContactStore.
type mockContacts struct {
	contacts []domain.Contact
	calls    int
	err      error
}

func (m *mockContacts) ListContacts(_ context.Context, orgID string) ([]domain.Contact, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Contact
	for _, c := range m.contacts {
		if c.OrganizationID == orgID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockContacts) GetContact(_ context.Context, orgID, id string) (*domain.Contact, error) {
	for _, c := range m.contacts {
		if c.OrganizationID == orgID && c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, segmentation.ErrContactNotFound
}

const (
	starterOrg = "org-starter"
	growthOrg  = "org-growth"
	trialOrg   = "org-trial"
)

func strPtr(s string) *string { return &s }

func newTestService(contacts *mockContacts) *Service {
	tenants := &mockTenants{prices: map[string]string{
		starterOrg: "price_starter_monthly",
		growthOrg:  "price_growth_monthly",
		trialOrg:   "",
	}}
	return NewService(tenants, segmentation.NewEngine(contacts), featuregate.New(nil))
}

func growthContacts() *mockContacts {
	return &mockContacts{contacts: []domain.Contact{
		{ID: "a", OrganizationID: growthOrg, Email: "a@example.com", FirstName: strPtr("Ana"),
			Subscribed: true, EmailOptIn: true, Tags: []string{"vip"}},
		{ID: "b", OrganizationID: growthOrg, Email: "b@example.com", Phone: strPtr("+15550001"),
			Subscribed: true, EmailOptIn: false, SMSOptIn: true, Tags: []string{"vip"}},
		{ID: "c", OrganizationID: growthOrg, Email: "c@example.com",
			Subscribed: false, EmailOptIn: true, Tags: []string{"vip"}},
		{ID: "d", OrganizationID: growthOrg, Email: "d@example.com",
			Subscribed: true, EmailOptIn: true, Tags: []string{}},
	}}
}

var vipSegment = segmentation.Definition{Rules: []segmentation.Rule{
	{Field: "tags", Operator: segmentation.OpContains, Value: "vip"},
}}

func TestBuildRecipients_Email(t *testing.T) {
	svc := newTestService(growthContacts())

	list, err := svc.BuildRecipients(context.Background(), growthOrg, vipSegment, domain.ChannelEmail)
	if err != nil {
		t.Fatalf("BuildRecipients: %v", err)
	}
	if list.Matched != 3 {
		t.Errorf("expected 3 matched contacts, got %d", list.Matched)
	}
	if len(list.Recipients) != 1 || list.Recipients[0].ContactID != "a" {
		t.Fatalf("expected only contact a, got %+v", list.Recipients)
	}
	if list.Recipients[0].Name != "Ana" || list.Recipients[0].Address != "a@example.com" {
		t.Errorf("unexpected recipient: %+v", list.Recipients[0])
	}
	if list.Skipped != 2 {
		t.Errorf("expected 2 skipped, got %d", list.Skipped)
	}
	if list.Tier != featuregate.TierGrowth {
		t.Errorf("expected growth tier, got %s", list.Tier)
	}
}

func TestBuildRecipients_SMS(t *testing.T) {
	svc := newTestService(growthContacts())

	list, err := svc.BuildRecipients(context.Background(), growthOrg, vipSegment, domain.ChannelSMS)
	if err != nil {
		t.Fatalf("BuildRecipients: %v", err)
	}
	if len(list.Recipients) != 1 || list.Recipients[0].Address != "+15550001" {
		t.Errorf("expected only contact b by phone, got %+v", list.Recipients)
	}
}

func TestBuildRecipients_LockedTierSkipsEvaluation(t *testing.T) {
	contacts := growthContacts()
	svc := newTestService(contacts)

	for _, org := range []string{starterOrg, trialOrg} {
		_, err := svc.BuildRecipients(context.Background(), org, vipSegment, domain.ChannelEmail)
		if !errors.Is(err, ErrFeatureLocked) {
			t.Errorf("%s: expected ErrFeatureLocked, got %v", org, err)
		}
	}
	if contacts.calls != 0 {
		t.Errorf("expected no contact reads for locked tiers, got %d", contacts.calls)
	}
}

func TestBuildRecipients_UnknownChannel(t *testing.T) {
	svc := newTestService(growthContacts())
	_, err := svc.BuildRecipients(context.Background(), growthOrg, vipSegment, domain.Channel("fax"))
	if !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestBuildRecipients_StoreErrorPropagates(t *testing.T) {
	contacts := growthContacts()
	contacts.err = errors.New("database is down")
	svc := newTestService(contacts)

	_, err := svc.BuildRecipients(context.Background(), growthOrg, vipSegment, domain.ChannelEmail)
	if !errors.Is(err, segmentation.ErrStore) {
		t.Errorf("expected ErrStore, got %v", err)
	}
}

func TestBuildRecipients_UnknownTenant(t *testing.T) {
	svc := newTestService(growthContacts())
	_, err := svc.BuildRecipients(context.Background(), "org-ghost", vipSegment, domain.ChannelEmail)
	if !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestEntitlements(t *testing.T) {
	svc := newTestService(growthContacts())
	ctx := context.Background()

	e, err := svc.Entitlements(ctx, trialOrg)
	if err != nil {
		t.Fatalf("Entitlements: %v", err)
	}
	if e.Tier != featuregate.TierTrial {
		t.Errorf("expected trial for org without price, got %s", e.Tier)
	}

	ok, err := svc.Allowed(ctx, growthOrg, featuregate.HasMarketingTools)
	if err != nil || !ok {
		t.Errorf("expected growth to have marketing tools, got %v, %v", ok, err)
	}
	ok, _ = svc.Allowed(ctx, starterOrg, featuregate.HasMarketingTools)
	if ok {
		t.Error("expected starter to lack marketing tools")
	}
}
