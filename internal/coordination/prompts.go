package coordination

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/panshi-quant/tradecouncil/internal/agent"
	"github.com/panshi-quant/tradecouncil/internal/knowledge"
)

// reasoningCap bounds how much of the raw model reply is retained as the
// opinion's reasoning excerpt.
const reasoningCap = 200

var rolePrompts = map[agent.Role]string{
	agent.RoleFundamentalExpert: "You are a fundamental analyst covering China A-shares. Judge the company on earnings quality, valuation, and industry position.",
	agent.RoleTechnicalAnalyst:  "You are a technical analyst for Chinese equities. Judge the setup on price action, volume, and momentum only.",
	agent.RoleRiskManager:       "You are a portfolio risk manager. Judge the proposal on drawdown risk, liquidity, and position sizing. Be conservative.",
	agent.RoleSentimentAnalyst:  "You are a market sentiment analyst. Judge the situation on news flow, retail positioning, and northbound flows.",
	agent.RolePolicyAnalyst:     "You are a China policy analyst. Judge the situation on regulatory direction, macro policy, and state media signals.",
	agent.RoleQuantStrategist:   "You are a quantitative strategist. Judge the idea on factor exposures and historical analogues.",
}

// systemPrompt returns the persona prompt for a role, with a generic
// fallback for roles added through configuration.
func systemPrompt(role agent.Role) string {
	if prompt, ok := rolePrompts[role]; ok {
		return prompt
	}
	return fmt.Sprintf("You are the council's %s. Analyze the task from that perspective.", strings.ReplaceAll(string(role), "_", " "))
}

// buildAnalysisPrompt assembles the user prompt: task, context hints, and
// retrieved research snippets.
func buildAnalysisPrompt(task Task, snippets []knowledge.Scored) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task (%s): %s\n", task.Type, task.Description)
	if len(task.Context) > 0 {
		sb.WriteString("Context:\n")
		for _, key := range sortedKeys(task.Context) {
			fmt.Fprintf(&sb, "  %s: %s\n", key, task.Context[key])
		}
	}
	if len(snippets) > 0 {
		sb.WriteString("\nRelevant research excerpts:\n")
		for _, s := range snippets {
			fmt.Fprintf(&sb, "--- %s ---\n%s\n", s.Snippet.ID, s.Snippet.Text)
		}
	}
	sb.WriteString(`
Respond in exactly this format:
POSITION: <your call in one sentence>
CONFIDENCE: <0.0-1.0>
EVIDENCE:
- <supporting point>
- <supporting point>
REASONING: <brief explanation>
`)
	return sb.String()
}

// parseOpinion extracts a structured opinion from a model reply. Missing
// fields degrade to defaults rather than failing: the position falls back
// to the first non-empty line and confidence to 0.6.
func parseOpinion(role agent.Role, reply string, at time.Time) Opinion {
	opinion := Opinion{
		Role:       role,
		Confidence: 0.6,
		Reasoning:  truncateRunes(strings.TrimSpace(reply), reasoningCap),
		At:         at,
	}
	for _, line := range strings.Split(reply, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "POSITION:"):
			opinion.Position = strings.TrimSpace(strings.TrimPrefix(trimmed, "POSITION:"))
		case strings.HasPrefix(trimmed, "CONFIDENCE:"):
			raw := strings.TrimSpace(strings.TrimPrefix(trimmed, "CONFIDENCE:"))
			if value, err := strconv.ParseFloat(raw, 64); err == nil {
				opinion.Confidence = clamp01(value)
			}
		case strings.HasPrefix(trimmed, "- "):
			opinion.Evidence = append(opinion.Evidence, strings.TrimPrefix(trimmed, "- "))
		}
	}
	if opinion.Position == "" {
		for _, line := range strings.Split(reply, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				opinion.Position = trimmed
				break
			}
		}
	}
	return opinion
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
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

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
