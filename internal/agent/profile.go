// Package agent holds the expert profile registry: who sits on the council,
// what each expert is good at, and how much weight their word carries.
package agent

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Role identifies an expert persona bound to an analysis prompt.
type Role string

const (
	RoleFundamentalExpert Role = "fundamental_expert"
	RoleTechnicalAnalyst  Role = "technical_analyst"
	RoleRiskManager       Role = "risk_manager"
	RoleSentimentAnalyst  Role = "sentiment_analyst"
	RolePolicyAnalyst     Role = "policy_analyst"
	RoleQuantStrategist   Role = "quant_strategist"
)

// KnownRoles lists every built-in role in stable order.
func KnownRoles() []Role {
	return []Role{
		RoleFundamentalExpert,
		RoleTechnicalAnalyst,
		RoleRiskManager,
		RoleSentimentAnalyst,
		RolePolicyAnalyst,
		RoleQuantStrategist,
	}
}

// ParseRole resolves a role string case-insensitively.
func ParseRole(value string) (Role, error) {
	normalized := Role(strings.ToLower(strings.TrimSpace(value)))
	for _, role := range KnownRoles() {
		if role == normalized {
			return role, nil
		}
	}
	return "", fmt.Errorf("agent: unknown role %q", value)
}

// Capability pairs a skill name with a proficiency in [0,1].
type Capability struct {
	Name        string
	Proficiency float64
}

// Profile describes one council expert. Reputation and the performance
// history are mutable; everything else is fixed at construction.
type Profile struct {
	Role         Role
	Name         string
	Capabilities []Capability
	Domains      []string
	Authority    float64

	mu         sync.Mutex
	reputation float64
	history    *outcomeRing
}

// NewProfile builds a validated profile. Proficiencies, authority, and the
// initial reputation are clamped to [0,1].
func NewProfile(role Role, name string, authority float64, capabilities []Capability, domains []string) (*Profile, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("agent: name is required for %s", role)
	}
	caps := make([]Capability, 0, len(capabilities))
	for _, c := range capabilities {
		trimmed := strings.ToLower(strings.TrimSpace(c.Name))
		if trimmed == "" {
			continue
		}
		caps = append(caps, Capability{Name: trimmed, Proficiency: clamp01(c.Proficiency)})
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].Name < caps[j].Name })
	cleanDomains := make([]string, 0, len(domains))
	for _, d := range domains {
		trimmed := strings.ToLower(strings.TrimSpace(d))
		if trimmed == "" {
			continue
		}
		cleanDomains = append(cleanDomains, trimmed)
	}
	return &Profile{
		Role:         role,
		Name:         strings.TrimSpace(name),
		Capabilities: caps,
		Domains:      cleanDomains,
		Authority:    clamp01(authority),
		reputation:   0.5,
		history:      newOutcomeRing(historyCapacity),
	}, nil
}

// Proficiency returns the proficiency for a capability name, or 0 when the
// profile does not claim it.
func (p *Profile) Proficiency(name string) float64 {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range p.Capabilities {
		if c.Name == name {
			return c.Proficiency
		}
	}
	return 0
}

// HasDomain reports whether the profile claims expertise in a domain.
func (p *Profile) HasDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	for _, d := range p.Domains {
		if d == domain {
			return true
		}
	}
	return false
}

// Reputation returns the current reputation score.
func (p *Profile) Reputation() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reputation
}

// Registry maintains the set of known council experts keyed by role.
type Registry struct {
	mu       sync.RWMutex
	profiles map[Role]*Profile
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{profiles: map[Role]*Profile{}}
}

// Add installs a profile. The last profile registered for a role wins.
func (r *Registry) Add(profile *Profile) error {
	if profile == nil {
		return fmt.Errorf("agent: profile is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.Role] = profile
	return nil
}

// Get resolves a profile by role.
func (r *Registry) Get(role Role) (*Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	profile, ok := r.profiles[role]
	return profile, ok
}

// All returns every profile sorted by role for deterministic iteration.
func (r *Registry) All() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	profiles := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Role < profiles[j].Role })
	return profiles
}

// Len reports the number of registered profiles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

// DefaultRegistry seeds the built-in Chinese-market expert roster used when
// no agents are configured.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	for _, seed := range defaultRoster() {
		profile, err := NewProfile(seed.role, seed.name, seed.authority, seed.capabilities, seed.domains)
		if err != nil {
			// The built-in roster is static; a bad entry is a programming error.
			panic(err)
		}
		if err := registry.Add(profile); err != nil {
			panic(err)
		}
	}
	return registry
}

type rosterSeed struct {
	role         Role
	name         string
	authority    float64
	capabilities []Capability
	domains      []string
}

func defaultRoster() []rosterSeed {
	return []rosterSeed{
		{
			role: RoleFundamentalExpert, name: "Shen Hua", authority: 0.85,
			capabilities: []Capability{
				{Name: "financial_statements", Proficiency: 0.9},
				{Name: "valuation", Proficiency: 0.85},
				{Name: "industry_analysis", Proficiency: 0.8},
			},
			domains: []string{"fundamentals", "valuation", "a-shares"},
		},
		{
			role: RoleTechnicalAnalyst, name: "Lin Zhao", authority: 0.6,
			capabilities: []Capability{
				{Name: "chart_patterns", Proficiency: 0.85},
				{Name: "momentum", Proficiency: 0.8},
				{Name: "volume_analysis", Proficiency: 0.75},
			},
			domains: []string{"technicals", "momentum"},
		},
		{
			role: RoleRiskManager, name: "Wei Qing", authority: 0.9,
			capabilities: []Capability{
				{Name: "drawdown_control", Proficiency: 0.9},
				{Name: "position_sizing", Proficiency: 0.85},
				{Name: "liquidity_risk", Proficiency: 0.8},
			},
			domains: []string{"risk", "portfolio"},
		},
		{
			role: RoleSentimentAnalyst, name: "Gao Yan", authority: 0.55,
			capabilities: []Capability{
				{Name: "news_sentiment", Proficiency: 0.8},
				{Name: "retail_flow", Proficiency: 0.75},
			},
			domains: []string{"sentiment", "news"},
		},
		{
			role: RolePolicyAnalyst, name: "Du Ming", authority: 0.8,
			capabilities: []Capability{
				{Name: "regulatory_policy", Proficiency: 0.85},
				{Name: "macro_analysis", Proficiency: 0.8},
			},
			domains: []string{"policy", "macro", "a-shares"},
		},
		{
			role: RoleQuantStrategist, name: "Xu Lan", authority: 0.7,
			capabilities: []Capability{
				{Name: "factor_models", Proficiency: 0.85},
				{Name: "backtesting", Proficiency: 0.8},
			},
			domains: []string{"quant", "factors"},
		},
	}
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
