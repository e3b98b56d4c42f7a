package coordination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/panshi-quant/tradecouncil/internal/agent"
	"github.com/panshi-quant/tradecouncil/internal/llm"
)

// ErrNoAgents means the registry holds no candidates for selection.
var ErrNoAgents = errors.New("coordination: no agents available")

// Fitness term weights. Authority only participates above the priority
// threshold; the remaining weights are renormalized when it does not.
const (
	weightCapability  = 0.35
	weightDomain      = 0.25
	weightPerformance = 0.25
	weightAuthority   = 0.15

	// authorityPriorityFloor is the task priority above which authority
	// contributes to fitness.
	authorityPriorityFloor = 0.7

	// mandatePriorityFloor is the task priority above which every
	// high-authority expert must be seated.
	mandatePriorityFloor = 0.8

	// mandateAuthorityFloor marks an expert as mandatory for
	// high-priority tasks.
	mandateAuthorityFloor = 0.8
)

// Selector picks which experts deliberate on a task.
type Selector struct {
	registry  *agent.Registry
	orch      *llm.Orchestrator
	maxAgents int
	logger    llm.Logger
}

// SelectorOption customizes selector construction.
type SelectorOption func(*Selector)

// WithSelectionLLM enables LLM-assisted picking through the orchestrator.
func WithSelectionLLM(orch *llm.Orchestrator) SelectorOption {
	return func(s *Selector) { s.orch = orch }
}

// WithSelectorLogger overrides the default no-op logger.
func WithSelectorLogger(l llm.Logger) SelectorOption {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSelector builds a selector over the registry. maxAgents values below
// one default to one.
func NewSelector(registry *agent.Registry, maxAgents int, opts ...SelectorOption) *Selector {
	if maxAgents < 1 {
		maxAgents = 1
	}
	s := &Selector{registry: registry, maxAgents: maxAgents, logger: nopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type scoredAgent struct {
	profile *agent.Profile
	score   float64
}

// Select returns up to maxAgents experts for the task. High-priority tasks
// always seat every high-authority expert first. When an LLM is configured
// it may reorder the remaining picks; a malformed reply falls back to the
// fitness heuristic.
func (s *Selector) Select(ctx context.Context, task Task) ([]*agent.Profile, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	candidates := s.registry.All()
	if len(candidates) == 0 {
		return nil, ErrNoAgents
	}

	ranked := make([]scoredAgent, 0, len(candidates))
	for _, profile := range candidates {
		ranked = append(ranked, scoredAgent{profile: profile, score: s.Fitness(profile, task)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score == ranked[j].score {
			return ranked[i].profile.Role < ranked[j].profile.Role
		}
		return ranked[i].score > ranked[j].score
	})

	if s.orch != nil {
		if picked, err := s.selectViaLLM(ctx, task, ranked); err == nil {
			return s.enforceMandates(task, ranked, picked), nil
		} else {
			s.logger.Printf("coordination: llm selection failed, using fitness ranking: %v", err)
		}
	}
	return s.selectHeuristic(task, ranked), nil
}

// Fitness scores a profile against a task in [0,1].
func (s *Selector) Fitness(profile *agent.Profile, task Task) float64 {
	capScore := capabilityScore(profile, task.RequiredCapabilities)
	domScore := domainScore(profile, task.Domains)
	perfScore := profile.RollingScore()

	if task.Priority > authorityPriorityFloor {
		return weightCapability*capScore +
			weightDomain*domScore +
			weightPerformance*perfScore +
			weightAuthority*profile.Authority
	}
	base := weightCapability + weightDomain + weightPerformance
	return (weightCapability*capScore + weightDomain*domScore + weightPerformance*perfScore) / base
}

func capabilityScore(profile *agent.Profile, required []string) float64 {
	if len(required) == 0 {
		return 0.5
	}
	var sum float64
	for _, name := range required {
		sum += profile.Proficiency(name)
	}
	return sum / float64(len(required))
}

func domainScore(profile *agent.Profile, domains []string) float64 {
	if len(domains) == 0 {
		return 0.5
	}
	matched := 0
	for _, d := range domains {
		if profile.HasDomain(d) {
			matched++
		}
	}
	return float64(matched) / float64(len(domains))
}

// selectHeuristic greedily fills the panel from the fitness ranking,
// preferring experts whose domains are not yet covered. Mandatory
// high-authority experts are seated first.
func (s *Selector) selectHeuristic(task Task, ranked []scoredAgent) []*agent.Profile {
	selected := make([]*agent.Profile, 0, s.maxAgents)
	taken := map[agent.Role]bool{}

	if task.Priority > mandatePriorityFloor {
		for _, candidate := range ranked {
			if len(selected) >= s.maxAgents {
				return selected
			}
			if candidate.profile.Authority > mandateAuthorityFloor {
				selected = append(selected, candidate.profile)
				taken[candidate.profile.Role] = true
			}
		}
	}

	covered := map[string]bool{}
	for _, p := range selected {
		for _, d := range p.Domains {
			covered[d] = true
		}
	}

	// First pass favors candidates adding uncovered domains.
	for _, candidate := range ranked {
		if len(selected) >= s.maxAgents {
			return selected
		}
		if taken[candidate.profile.Role] {
			continue
		}
		if !addsCoverage(candidate.profile, covered) {
			continue
		}
		selected = append(selected, candidate.profile)
		taken[candidate.profile.Role] = true
		for _, d := range candidate.profile.Domains {
			covered[d] = true
		}
	}
	// Second pass fills remaining seats by raw fitness.
	for _, candidate := range ranked {
		if len(selected) >= s.maxAgents {
			break
		}
		if taken[candidate.profile.Role] {
			continue
		}
		selected = append(selected, candidate.profile)
		taken[candidate.profile.Role] = true
	}
	return selected
}

func addsCoverage(profile *agent.Profile, covered map[string]bool) bool {
	if len(profile.Domains) == 0 {
		return false
	}
	for _, d := range profile.Domains {
		if !covered[d] {
			return true
		}
	}
	return false
}

// enforceMandates prepends mandatory high-authority experts to an LLM pick
// so the high-priority invariant holds regardless of what the model chose.
func (s *Selector) enforceMandates(task Task, ranked []scoredAgent, picked []*agent.Profile) []*agent.Profile {
	if task.Priority <= mandatePriorityFloor {
		if len(picked) > s.maxAgents {
			picked = picked[:s.maxAgents]
		}
		return picked
	}
	ordered := make([]*agent.Profile, 0, s.maxAgents)
	taken := map[agent.Role]bool{}
	for _, candidate := range ranked {
		if len(ordered) >= s.maxAgents {
			return ordered
		}
		if candidate.profile.Authority > mandateAuthorityFloor {
			ordered = append(ordered, candidate.profile)
			taken[candidate.profile.Role] = true
		}
	}
	for _, p := range picked {
		if len(ordered) >= s.maxAgents {
			break
		}
		if taken[p.Role] {
			continue
		}
		ordered = append(ordered, p)
		taken[p.Role] = true
	}
	return ordered
}

// selectViaLLM asks the orchestrator to pick a panel, parsing a JSON array
// of role names out of the free-text reply.
func (s *Selector) selectViaLLM(ctx context.Context, task Task, ranked []scoredAgent) ([]*agent.Profile, error) {
	var sb strings.Builder
	sb.WriteString("You assemble an expert panel for a China-market analysis task.\n")
	fmt.Fprintf(&sb, "Task: %s\nPriority: %.2f\n\nCandidates (role, name, fitness):\n", task.Description, task.Priority)
	for _, candidate := range ranked {
		fmt.Fprintf(&sb, "- %s (%s): %.3f\n", candidate.profile.Role, candidate.profile.Name, candidate.score)
	}
	fmt.Fprintf(&sb, "\nReply with a JSON array of at most %d role names, best suited first.\n", s.maxAgents)

	resp, err := s.orch.Complete(ctx, llm.Request{Prompt: sb.String(), MaxTokens: 200})
	if err != nil {
		return nil, err
	}
	roles, err := parseRoleArray(resp.Text)
	if err != nil {
		return nil, err
	}
	picked := make([]*agent.Profile, 0, len(roles))
	seen := map[agent.Role]bool{}
	for _, role := range roles {
		if seen[role] {
			continue
		}
		if profile, ok := s.registry.Get(role); ok {
			picked = append(picked, profile)
			seen[role] = true
		}
	}
	if len(picked) == 0 {
		return nil, fmt.Errorf("coordination: llm picked no known roles")
	}
	return picked, nil
}

// parseRoleArray extracts the first JSON string array embedded in free text.
func parseRoleArray(text string) ([]agent.Role, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("coordination: no JSON array in reply")
	}
	var names []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &names); err != nil {
		return nil, fmt.Errorf("coordination: parse role array: %w", err)
	}
	roles := make([]agent.Role, 0, len(names))
	for _, name := range names {
		role, err := agent.ParseRole(name)
		if err != nil {
			continue
		}
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("coordination: reply named no known roles")
	}
	return roles, nil
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
