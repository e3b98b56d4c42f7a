package coordination

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/panshi-quant/tradecouncil/internal/agent"
	"github.com/panshi-quant/tradecouncil/internal/llm"
)

// ErrNoOpinions means consensus was requested over an empty opinion set.
var ErrNoOpinions = errors.New("coordination: no opinions to combine")

// Engine combines expert opinions into one Result.
type Engine struct {
	registry *agent.Registry
	orch     *llm.Orchestrator
	logger   llm.Logger
}

// EngineOption customizes engine construction.
type EngineOption func(*Engine)

// WithSynthesisLLM enables LLM synthesis for weighted-average decisions.
func WithSynthesisLLM(orch *llm.Orchestrator) EngineOption {
	return func(e *Engine) { e.orch = orch }
}

// WithEngineLogger overrides the default no-op logger.
func WithEngineLogger(l llm.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine builds a consensus engine. The registry supplies authority
// levels for weighting.
func NewEngine(registry *agent.Registry, opts ...EngineOption) *Engine {
	e := &Engine{registry: registry, logger: nopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Build combines opinions using the given method.
func (e *Engine) Build(ctx context.Context, method Method, opinions []Opinion) (Result, error) {
	if len(opinions) == 0 {
		return Result{}, ErrNoOpinions
	}
	switch method {
	case MethodMajorityVote:
		return e.majorityVote(opinions), nil
	case MethodWeighted:
		return e.weightedAverage(ctx, MethodWeighted, opinions), nil
	case MethodDelphi:
		// Single-round: the historical delphi mode is weighted averaging
		// under another name.
		return e.weightedAverage(ctx, MethodDelphi, opinions), nil
	case MethodFusion:
		return e.confidenceFusion(opinions), nil
	case MethodExpert:
		return e.expertOverrule(opinions), nil
	default:
		return Result{}, fmt.Errorf("coordination: unknown consensus method %q", method)
	}
}

// majorityVote groups opinions by identical position text and returns the
// plurality. Ties break toward the group seen first.
func (e *Engine) majorityVote(opinions []Opinion) Result {
	type group struct {
		position string
		members  []Opinion
	}
	var groups []group
	index := map[string]int{}
	for _, op := range opinions {
		key := strings.TrimSpace(op.Position)
		if i, ok := index[key]; ok {
			groups[i].members = append(groups[i].members, op)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, group{position: key, members: []Opinion{op}})
	}
	winner := groups[0]
	for _, g := range groups[1:] {
		if len(g.members) > len(winner.members) {
			winner = g
		}
	}

	var confSum float64
	for _, op := range winner.members {
		confSum += op.Confidence
	}
	result := Result{
		Decision:     winner.position,
		Score:        float64(len(winner.members)) / float64(len(opinions)),
		Participants: participantRoles(opinions),
		Method:       MethodMajorityVote,
		Opinions:     opinions,
		Confidence:   confSum / float64(len(winner.members)),
		Reasoning: fmt.Sprintf("%d of %d experts took the position %q.",
			len(winner.members), len(opinions), winner.position),
	}
	for _, op := range opinions {
		if strings.TrimSpace(op.Position) != winner.position {
			result.Dissenting = append(result.Dissenting, op)
		}
	}
	return result
}

// weightedAverage weights each opinion by confidence x (1 + authority),
// synthesizes a decision via the LLM when available, and scores consensus
// as 1 - variance(confidences) clipped at zero.
func (e *Engine) weightedAverage(ctx context.Context, method Method, opinions []Opinion) Result {
	weights := e.opinionWeights(opinions)

	decision := ""
	reasoning := ""
	if e.orch != nil {
		if text, err := e.synthesize(ctx, opinions, weights); err == nil {
			decision = text
			reasoning = "Decision synthesized from all weighted positions."
		} else {
			e.logger.Printf("coordination: synthesis failed, concatenating positions: %v", err)
		}
	}
	if decision == "" {
		decision = concatenatePositions(opinions, weights)
		reasoning = "Positions concatenated in weight order; no synthesis model available."
	}

	var confidence float64
	for i, op := range opinions {
		confidence += weights[i] * op.Confidence
	}

	result := Result{
		Decision:     decision,
		Score:        confidenceConsensusScore(opinions),
		Participants: participantRoles(opinions),
		Method:       method,
		Opinions:     opinions,
		Confidence:   confidence,
		Reasoning:    reasoning,
	}
	// With a synthesized decision no single position matches the text;
	// dissent here means an opinion carried materially less than an equal
	// share of the weight.
	cutoff := 1.0 / float64(2*len(opinions))
	for i, op := range opinions {
		if weights[i] < cutoff {
			result.Dissenting = append(result.Dissenting, op)
		}
	}
	return result
}

// confidenceFusion picks the position carrying the most normalized
// confidence mass. This is weighted counting, not Bayesian updating.
func (e *Engine) confidenceFusion(opinions []Opinion) Result {
	var total float64
	for _, op := range opinions {
		total += op.Confidence
	}
	mass := map[string]float64{}
	order := []string{}
	for _, op := range opinions {
		key := strings.TrimSpace(op.Position)
		if _, ok := mass[key]; !ok {
			order = append(order, key)
		}
		if total > 0 {
			mass[key] += op.Confidence / total
		} else {
			mass[key] += 1.0 / float64(len(opinions))
		}
	}
	best := order[0]
	for _, key := range order[1:] {
		if mass[key] > mass[best] {
			best = key
		}
	}

	result := Result{
		Decision:     best,
		Score:        mass[best],
		Participants: participantRoles(opinions),
		Method:       MethodFusion,
		Opinions:     opinions,
		Confidence:   mass[best],
		Reasoning: fmt.Sprintf("Fused %d expert assessments weighted by stated confidence; %q carried %.0f%% of the confidence mass.",
			len(opinions), best, mass[best]*100),
	}
	for _, op := range opinions {
		if strings.TrimSpace(op.Position) != best {
			result.Dissenting = append(result.Dissenting, op)
		}
	}
	return result
}

// expertOverrule returns the single highest-confidence opinion. Ties break
// toward the opinion seen first.
func (e *Engine) expertOverrule(opinions []Opinion) Result {
	best := opinions[0]
	for _, op := range opinions[1:] {
		if op.Confidence > best.Confidence {
			best = op
		}
	}
	result := Result{
		Decision:     strings.TrimSpace(best.Position),
		Score:        best.Confidence,
		Participants: participantRoles(opinions),
		Method:       MethodExpert,
		Opinions:     opinions,
		Confidence:   best.Confidence,
		Reasoning:    fmt.Sprintf("Deferred to %s, the most confident expert (%.2f).", best.Role, best.Confidence),
	}
	for _, op := range opinions {
		if strings.TrimSpace(op.Position) != result.Decision {
			result.Dissenting = append(result.Dissenting, op)
		}
	}
	return result
}

// opinionWeights returns normalized confidence x (1 + authority) weights
// aligned with the opinions slice.
func (e *Engine) opinionWeights(opinions []Opinion) []float64 {
	weights := make([]float64, len(opinions))
	var total float64
	for i, op := range opinions {
		authority := 0.0
		if e.registry != nil {
			if profile, ok := e.registry.Get(op.Role); ok {
				authority = profile.Authority
			}
		}
		weights[i] = op.Confidence * (1 + authority)
		total += weights[i]
	}
	if total == 0 {
		for i := range weights {
			weights[i] = 1.0 / float64(len(weights))
		}
		return weights
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

func (e *Engine) synthesize(ctx context.Context, opinions []Opinion, weights []float64) (string, error) {
	var sb strings.Builder
	sb.WriteString("Synthesize the expert positions below into one clear trading decision (2-3 sentences). Weigh each position by the given weight.\n\n")
	for i, op := range opinions {
		fmt.Fprintf(&sb, "[weight %.2f] %s: %s\n", weights[i], op.Role, strings.TrimSpace(op.Position))
	}
	resp, err := e.orch.Complete(ctx, llm.Request{Prompt: sb.String(), MaxTokens: 300})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("coordination: empty synthesis reply")
	}
	return text, nil
}

// concatenatePositions joins positions ordered by descending weight.
func concatenatePositions(opinions []Opinion, weights []float64) string {
	type entry struct {
		text   string
		role   agent.Role
		weight float64
	}
	entries := make([]entry, len(opinions))
	for i, op := range opinions {
		entries[i] = entry{text: strings.TrimSpace(op.Position), role: op.Role, weight: weights[i]}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].weight > entries[j].weight })
	parts := make([]string, len(entries))
	for i, en := range entries {
		parts[i] = fmt.Sprintf("%s: %s", en.role, en.text)
	}
	return strings.Join(parts, " | ")
}

// confidenceConsensusScore is 1 - variance(confidences), clipped at zero.
// It measures how tightly self-reported confidences cluster, not agreement
// on content.
func confidenceConsensusScore(opinions []Opinion) float64 {
	n := float64(len(opinions))
	var mean float64
	for _, op := range opinions {
		mean += op.Confidence
	}
	mean /= n
	var variance float64
	for _, op := range opinions {
		d := op.Confidence - mean
		variance += d * d
	}
	variance /= n
	score := 1 - variance
	if score < 0 {
		return 0
	}
	return score
}

func participantRoles(opinions []Opinion) []agent.Role {
	roles := make([]agent.Role, len(opinions))
	for i, op := range opinions {
		roles[i] = op.Role
	}
	return roles
}
