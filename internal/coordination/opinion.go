package coordination

import (
	"fmt"
	"strings"
	"time"

	"github.com/panshi-quant/tradecouncil/internal/agent"
)

// Opinion is one expert's answer to a task.
type Opinion struct {
	Role agent.Role
	// Position is the expert's stated call, e.g. "reduce position".
	Position string
	// Confidence in [0,1], as reported by the expert.
	Confidence float64
	// Reasoning is a capped excerpt of the raw model reply.
	Reasoning string
	// Evidence lists supporting bullet points extracted from the reply.
	Evidence []string
	At       time.Time
}

// Method selects how opinions are combined into a decision.
type Method string

const (
	MethodMajorityVote Method = "majority_vote"
	MethodWeighted     Method = "weighted_average"
	// MethodFusion is confidence-weighted fusion: positions compete on
	// accumulated confidence mass, not Bayesian updating.
	MethodFusion Method = "confidence_fusion"
	MethodExpert Method = "expert_overrule"
	// MethodDelphi runs a single weighted round; no multi-round
	// elicitation is performed.
	MethodDelphi Method = "delphi"
)

// ParseMethod resolves a method string case-insensitively.
func ParseMethod(value string) (Method, error) {
	normalized := Method(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case MethodMajorityVote, MethodWeighted, MethodFusion, MethodExpert, MethodDelphi:
		return normalized, nil
	}
	return "", fmt.Errorf("coordination: unknown consensus method %q", value)
}

// ResolutionStrategy names how a low-consensus result was settled.
type ResolutionStrategy string

const (
	StrategyNone      ResolutionStrategy = ""
	StrategyMediation ResolutionStrategy = "llm_mediation"
	StrategyEvidence  ResolutionStrategy = "evidence_weight"
	StrategyAuthority ResolutionStrategy = "authority"
	StrategySynthesis ResolutionStrategy = "hedged_synthesis"
)

// Result is the council's combined decision for one task.
type Result struct {
	Decision     string
	Score        float64
	Participants []agent.Role
	Method       Method
	Opinions     []Opinion
	Reasoning    string
	Confidence   float64
	Dissenting   []Opinion
	// ResolvedBy is set when conflict resolution replaced or amended the
	// original consensus.
	ResolvedBy ResolutionStrategy
}
