// Package featuregate maps a tenant's billing price to a subscription tier
// and answers capability and usage-ceiling questions for that tier.
//
// Tier contents are configuration data (a YAML catalog), not code. Every
// lookup fails closed: an unknown price or tier behaves like trial.
package featuregate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tier is a subscription tier.
type Tier string

const (
	TierTrial   Tier = "trial"
	TierStarter Tier = "starter"
	TierGrowth  Tier = "growth"
	TierPremium Tier = "premium"
)

// Tiers lists every tier from most to least restrictive.
func Tiers() []Tier {
	return []Tier{TierTrial, TierStarter, TierGrowth, TierPremium}
}

// ParseTier returns the named tier. Unknown names yield trial with ok=false.
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TierTrial, TierStarter, TierGrowth, TierPremium:
		return t, true
	default:
		return TierTrial, false
	}
}

// Capability is a boolean feature flag name.
type Capability string

const (
	HasMarketingTools    Capability = "hasMarketingTools"
	HasSmsReminders      Capability = "hasSmsReminders"
	HasExpenseTracking   Capability = "hasExpenseTracking"
	HasPayroll           Capability = "hasPayroll"
	HasAdsSync           Capability = "hasAdsSync"
	HasWhiteLabel        Capability = "hasWhiteLabel"
	HasAdvancedAnalytics Capability = "hasAdvancedAnalytics"
	HasCustomDomain      Capability = "hasCustomDomain"
)

// Capabilities lists every known capability.
func Capabilities() []Capability {
	return []Capability{
		HasMarketingTools, HasSmsReminders, HasExpenseTracking, HasPayroll,
		HasAdsSync, HasWhiteLabel, HasAdvancedAnalytics, HasCustomDomain,
	}
}

func (c Capability) known() bool {
	for _, k := range Capabilities() {
		if k == c {
			return true
		}
	}
	return false
}

// Limit is a numeric ceiling name.
type Limit string

const (
	MaxBookingsPerMonth Limit = "maxBookingsPerMonth"
	MaxTeamMembers      Limit = "maxTeamMembers"
)

// Limits lists every known limit.
func Limits() []Limit {
	return []Limit{MaxBookingsPerMonth, MaxTeamMembers}
}

func (l Limit) known() bool {
	return l == MaxBookingsPerMonth || l == MaxTeamMembers
}

// Ceiling is the maximum allowed usage for a limit. Unlimited has no bound.
type Ceiling int64

// Unlimited is the unbounded ceiling.
const Unlimited Ceiling = -1

const unlimitedText = "unlimited"

// IsUnlimited reports whether the ceiling has no bound.
func (c Ceiling) IsUnlimited() bool { return c == Unlimited }

// Allows reports whether current usage is strictly below the ceiling.
func (c Ceiling) Allows(current int64) bool {
	return c.IsUnlimited() || current < int64(c)
}

func (c Ceiling) String() string {
	if c.IsUnlimited() {
		return unlimitedText
	}
	return strconv.FormatInt(int64(c), 10)
}

func parseCeiling(s string) (Ceiling, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, unlimitedText) {
		return Unlimited, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ceiling %q", s)
	}
	if n < 0 && n != int64(Unlimited) {
		return 0, fmt.Errorf("invalid ceiling %d: only -1 means unlimited", n)
	}
	return Ceiling(n), nil
}

// UnmarshalYAML accepts an integer, -1, or the literal "unlimited".
func (c *Ceiling) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: ceiling must be a scalar", node.Line)
	}
	v, err := parseCeiling(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*c = v
	return nil
}

// MarshalJSON renders unlimited as the string "unlimited".
func (c Ceiling) MarshalJSON() ([]byte, error) {
	if c.IsUnlimited() {
		return json.Marshal(unlimitedText)
	}
	return []byte(strconv.FormatInt(int64(c), 10)), nil
}
