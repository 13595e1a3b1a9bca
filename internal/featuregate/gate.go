package featuregate

// Gate answers entitlement questions against an immutable catalog. It is
// safe for concurrent use.
type Gate struct {
	catalog *Catalog
}

// Entitlements is everything a tier grants, resolved for one price id.
type Entitlements struct {
	Tier         Tier                `json:"tier"`
	Name         string              `json:"name"`
	Capabilities map[Capability]bool `json:"capabilities"`
	Limits       map[Limit]Ceiling   `json:"limits"`
}

// New creates a Gate. A nil catalog means the embedded default.
func New(c *Catalog) *Gate {
	if c == nil {
		c = DefaultCatalog()
	}
	return &Gate{catalog: c}
}

// ResolveTier maps a billing price id to its tier. Empty and unknown ids
// resolve to trial.
func (g *Gate) ResolveTier(priceID string) Tier {
	if priceID == "" {
		return TierTrial
	}
	if t, ok := g.catalog.Prices[priceID]; ok {
		return t
	}
	return TierTrial
}

func (g *Gate) plan(t Tier) Plan {
	if p, ok := g.catalog.Tiers[t]; ok {
		return p
	}
	return g.catalog.Tiers[TierTrial]
}

// Has reports whether the tier grants the capability. Unknown capabilities
// are never granted.
func (g *Gate) Has(t Tier, c Capability) bool {
	return g.plan(t).Capabilities[c]
}

// Ceiling returns the tier's ceiling for a limit. Unknown limits are 0.
func (g *Gate) Ceiling(t Tier, l Limit) Ceiling {
	return g.plan(t).Limits[l]
}

// WithinLimit reports whether current usage is strictly below the ceiling,
// i.e. whether one more unit may be added.
func (g *Gate) WithinLimit(t Tier, l Limit, current int64) bool {
	return g.Ceiling(t, l).Allows(current)
}

// CanAddBooking reports whether another booking fits this month's ceiling.
func (g *Gate) CanAddBooking(t Tier, bookingsThisMonth int64) bool {
	return g.WithinLimit(t, MaxBookingsPerMonth, bookingsThisMonth)
}

// CanAddTeamMember reports whether another team member fits the ceiling.
func (g *Gate) CanAddTeamMember(t Tier, teamMembers int64) bool {
	return g.WithinLimit(t, MaxTeamMembers, teamMembers)
}

// Plan returns a copy of the tier's plan.
func (g *Gate) Plan(t Tier) Plan {
	p := g.plan(t)
	out := Plan{
		Tier:         p.Tier,
		Name:         p.Name,
		Capabilities: make(map[Capability]bool, len(Capabilities())),
		Limits:       make(map[Limit]Ceiling, len(p.Limits)),
	}
	for _, c := range Capabilities() {
		out.Capabilities[c] = p.Capabilities[c]
	}
	for l, v := range p.Limits {
		out.Limits[l] = v
	}
	return out
}

// ForPrice resolves a price id and returns the full entitlements.
func (g *Gate) ForPrice(priceID string) Entitlements {
	p := g.Plan(g.ResolveTier(priceID))
	return Entitlements{
		Tier:         p.Tier,
		Name:         p.Name,
		Capabilities: p.Capabilities,
		Limits:       p.Limits,
	}
}
