package audience

import (
	"context"
	"fmt"

	"github.com/ignite/studio-platform/internal/domain"
	"github.com/ignite/studio-platform/internal/featuregate"
	"github.com/ignite/studio-platform/internal/pkg/logger"
	"github.com/ignite/studio-platform/internal/segmentation"
)

// Evaluator runs a segment definition in bulk.
type Evaluator interface {
	Evaluate(ctx context.Context, orgID string, d segmentation.Definition) ([]domain.Contact, error)
}

// Service resolves tenant entitlements and builds recipient lists.
type Service struct {
	tenants TenantRepository
	engine  Evaluator
	gate    *featuregate.Gate
}

// NewService creates an audience service.
func NewService(tenants TenantRepository, engine Evaluator, gate *featuregate.Gate) *Service {
	return &Service{tenants: tenants, engine: engine, gate: gate}
}

// Recipient is one reachable contact on a recipient list.
type Recipient struct {
	ContactID string `json:"contact_id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
}

// RecipientList is the result of BuildRecipients.
type RecipientList struct {
	Channel    domain.Channel   `json:"channel"`
	Tier       featuregate.Tier `json:"tier"`
	Matched    int              `json:"matched"`
	Skipped    int              `json:"skipped"`
	Recipients []Recipient      `json:"recipients"`
}

// Tier returns the organization's current tier.
func (s *Service) Tier(ctx context.Context, orgID string) (featuregate.Tier, error) {
	priceID, err := s.tenants.BillingPriceID(ctx, orgID)
	if err != nil {
		return featuregate.TierTrial, err
	}
	return s.gate.ResolveTier(priceID), nil
}

// Entitlements returns everything the organization's plan grants.
func (s *Service) Entitlements(ctx context.Context, orgID string) (featuregate.Entitlements, error) {
	priceID, err := s.tenants.BillingPriceID(ctx, orgID)
	if err != nil {
		return featuregate.Entitlements{}, err
	}
	return s.gate.ForPrice(priceID), nil
}

// Allowed reports whether the organization's tier grants the capability.
func (s *Service) Allowed(ctx context.Context, orgID string, c featuregate.Capability) (bool, error) {
	tier, err := s.Tier(ctx, orgID)
	if err != nil {
		return false, err
	}
	return s.gate.Has(tier, c), nil
}

func requiredCapabilities(ch domain.Channel) ([]featuregate.Capability, error) {
	switch ch {
	case domain.ChannelEmail:
		return []featuregate.Capability{featuregate.HasMarketingTools}, nil
	case domain.ChannelSMS:
		return []featuregate.Capability{featuregate.HasMarketingTools, featuregate.HasSmsReminders}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
}

// BuildRecipients evaluates the segment and keeps the contacts reachable on
// the channel. It returns ErrFeatureLocked when the tier does not allow the
// send; the segment is not evaluated in that case.
func (s *Service) BuildRecipients(ctx context.Context, orgID string, d segmentation.Definition, ch domain.Channel) (*RecipientList, error) {
	required, err := requiredCapabilities(ch)
	if err != nil {
		return nil, err
	}
	tier, err := s.Tier(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, c := range required {
		if !s.gate.Has(tier, c) {
			logger.Info("recipient list blocked by plan", "org_id", orgID, "tier", string(tier), "capability", string(c))
			return nil, fmt.Errorf("%w: %s requires %s", ErrFeatureLocked, tier, c)
		}
	}

	contacts, err := s.engine.Evaluate(ctx, orgID, d)
	if err != nil {
		return nil, err
	}

	list := &RecipientList{
		Channel:    ch,
		Tier:       tier,
		Matched:    len(contacts),
		Recipients: make([]Recipient, 0, len(contacts)),
	}
	for i := range contacts {
		c := &contacts[i]
		if !c.Reachable(ch) {
			list.Skipped++
			continue
		}
		addr := c.Email
		if ch == domain.ChannelSMS {
			addr = *c.Phone
		}
		list.Recipients = append(list.Recipients, Recipient{ContactID: c.ID, Name: c.DisplayName(), Address: addr})
	}

	logger.Info("recipient list built",
		"org_id", orgID, "channel", string(ch), "matched", list.Matched, "recipients", len(list.Recipients))
	return list, nil
}
