package featuregate

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidCatalog is returned when a plan catalog cannot be used.
var ErrInvalidCatalog = errors.New("invalid plan catalog")

//go:embed default_plans.yaml
var defaultPlansYAML []byte

// Plan is the fixed record of capabilities and ceilings for one tier.
// Capabilities missing from the record are false.
type Plan struct {
	Tier         Tier                `yaml:"-" json:"tier"`
	Name         string              `yaml:"name" json:"name"`
	Capabilities map[Capability]bool `yaml:"capabilities" json:"capabilities"`
	Limits       map[Limit]Ceiling   `yaml:"limits" json:"limits"`
}

// Catalog holds every tier's plan and the billing price lookup table.
type Catalog struct {
	Tiers  map[Tier]Plan   `yaml:"tiers"`
	Prices map[string]Tier `yaml:"prices"`
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultPlansYAML)
	if err != nil {
		panic(fmt.Sprintf("featuregate: embedded catalog: %v", err))
	}
	return c
}

func (c *Catalog) validate() error {
	var problems []string

	for tier := range c.Tiers {
		if _, ok := ParseTier(string(tier)); !ok || Tier(strings.ToLower(string(tier))) != tier {
			problems = append(problems, fmt.Sprintf("unknown tier %q", tier))
		}
	}
	for _, tier := range Tiers() {
		plan, ok := c.Tiers[tier]
		if !ok {
			problems = append(problems, fmt.Sprintf("tier %q is not defined", tier))
			continue
		}
		for name := range plan.Capabilities {
			if !name.known() {
				problems = append(problems, fmt.Sprintf("tier %q: unknown capability %q", tier, name))
			}
		}
		for l := range plan.Limits {
			if !l.known() {
				problems = append(problems, fmt.Sprintf("tier %q: unknown limit %q", tier, l))
			}
		}
		for _, l := range Limits() {
			if _, ok := plan.Limits[l]; !ok {
				problems = append(problems, fmt.Sprintf("tier %q: limit %q is not set", tier, l))
			}
		}
		plan.Tier = tier
		c.Tiers[tier] = plan
	}
	for price, tier := range c.Prices {
		if _, ok := c.Tiers[tier]; !ok {
			problems = append(problems, fmt.Sprintf("price %q maps to unknown tier %q", price, tier))
		}
	}
	if c.Prices == nil {
		c.Prices = make(map[string]Tier)
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(problems, "; "))
	}
	return nil
}

// WithPrices returns a copy of the catalog with extra price to tier
// mappings, e.g. price ids supplied through the environment. Entries with an
// empty price id are skipped.
func (c *Catalog) WithPrices(prices map[string]string) (*Catalog, error) {
	out := &Catalog{
		Tiers:  c.Tiers,
		Prices: make(map[string]Tier, len(c.Prices)+len(prices)),
	}
	for p, t := range c.Prices {
		out.Prices[p] = t
	}
	for p, name := range prices {
		if p == "" {
			continue
		}
		t, ok := ParseTier(name)
		if !ok {
			return nil, fmt.Errorf("%w: price %q maps to unknown tier %q", ErrInvalidCatalog, p, name)
		}
		out.Prices[p] = t
	}
	return out, nil
}
