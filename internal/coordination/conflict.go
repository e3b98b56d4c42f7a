package coordination

import (
	"context"
	"fmt"
	"strings"

	"github.com/panshi-quant/tradecouncil/internal/agent"
	"github.com/panshi-quant/tradecouncil/internal/llm"
)

// Resolver settles low-consensus results. Strategies are tried in order:
// LLM mediation, evidence weighting, authority, and finally a hedged
// synthesis that always succeeds.
type Resolver struct {
	registry *agent.Registry
	orch     *llm.Orchestrator
	logger   llm.Logger
}

// ResolverOption customizes resolver construction.
type ResolverOption func(*Resolver)

// WithMediationLLM enables LLM-backed mediation.
func WithMediationLLM(orch *llm.Orchestrator) ResolverOption {
	return func(r *Resolver) { r.orch = orch }
}

// WithResolverLogger overrides the default no-op logger.
func WithResolverLogger(l llm.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver builds a conflict resolver.
func NewResolver(registry *agent.Registry, opts ...ResolverOption) *Resolver {
	r := &Resolver{registry: registry, logger: nopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve amends a low-consensus result. The returned result always carries
// a decision; the final synthesis strategy cannot fail.
func (r *Resolver) Resolve(ctx context.Context, task Task, result Result) Result {
	if r.orch != nil {
		if resolved, err := r.mediate(ctx, task, result); err == nil {
			return resolved
		} else {
			r.logger.Printf("coordination: mediation failed: %v", err)
		}
	}
	if resolved, ok := r.resolveByEvidence(result); ok {
		return resolved
	}
	if resolved, ok := r.resolveByAuthority(result); ok {
		return resolved
	}
	return r.hedgedSynthesis(result)
}

// mediate re-prompts the model with every opinion and the disagreement.
func (r *Resolver) mediate(ctx context.Context, task Task, result Result) (Result, error) {
	var sb strings.Builder
	sb.WriteString("The expert panel below disagrees. As mediator, weigh the positions and produce one actionable decision (2-3 sentences) with the key caveat.\n\n")
	fmt.Fprintf(&sb, "Task: %s\n\n", task.Description)
	for _, op := range result.Opinions {
		fmt.Fprintf(&sb, "%s (confidence %.2f): %s\n", op.Role, op.Confidence, strings.TrimSpace(op.Position))
	}
	resp, err := r.orch.Complete(ctx, llm.Request{Prompt: sb.String(), MaxTokens: 300})
	if err != nil {
		return Result{}, err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Result{}, fmt.Errorf("coordination: empty mediation reply")
	}
	result.Decision = text
	result.Reasoning = "Low consensus; decision produced by mediator review of all positions."
	result.ResolvedBy = StrategyMediation
	return result, nil
}

// resolveByEvidence prefers the opinion backed by the most evidence
// entries, breaking ties by confidence.
func (r *Resolver) resolveByEvidence(result Result) (Result, bool) {
	best := -1
	for i, op := range result.Opinions {
		if len(op.Evidence) == 0 {
			continue
		}
		if best < 0 ||
			len(op.Evidence) > len(result.Opinions[best].Evidence) ||
			(len(op.Evidence) == len(result.Opinions[best].Evidence) && op.Confidence > result.Opinions[best].Confidence) {
			best = i
		}
	}
	if best < 0 {
		return Result{}, false
	}
	chosen := result.Opinions[best]
	result.Decision = strings.TrimSpace(chosen.Position)
	result.Confidence = chosen.Confidence
	result.Reasoning = fmt.Sprintf("Low consensus; adopted the position of %s, which cited the most supporting evidence (%d items).",
		chosen.Role, len(chosen.Evidence))
	result.ResolvedBy = StrategyEvidence
	return result, true
}

// resolveByAuthority adopts the position of the highest-authority
// participant, using authority as a confidence proxy.
func (r *Resolver) resolveByAuthority(result Result) (Result, bool) {
	if r.registry == nil {
		return Result{}, false
	}
	best := -1
	bestAuthority := -1.0
	for i, op := range result.Opinions {
		profile, ok := r.registry.Get(op.Role)
		if !ok {
			continue
		}
		if profile.Authority > bestAuthority {
			bestAuthority = profile.Authority
			best = i
		}
	}
	if best < 0 {
		return Result{}, false
	}
	chosen := result.Opinions[best]
	result.Decision = strings.TrimSpace(chosen.Position)
	result.Confidence = bestAuthority
	result.Reasoning = fmt.Sprintf("Low consensus; deferred to %s as the highest-authority participant (%.2f).",
		chosen.Role, bestAuthority)
	result.ResolvedBy = StrategyAuthority
	return result, true
}

// hedgedSynthesis combines the top positions into a cautioned statement.
// It never fails and so terminates the strategy chain.
func (r *Resolver) hedgedSynthesis(result Result) Result {
	positions := make([]string, 0, len(result.Opinions))
	seen := map[string]bool{}
	for _, op := range result.Opinions {
		key := strings.TrimSpace(op.Position)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		positions = append(positions, key)
	}
	result.Decision = fmt.Sprintf("No consensus reached; proceed with caution. Competing views: %s.",
		strings.Join(positions, " / "))
	result.Reasoning = "Low consensus and no resolution signal; emitted a hedged combination of all distinct positions."
	result.ResolvedBy = StrategySynthesis
	return result
}
