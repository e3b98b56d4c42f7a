package coordination

import (
	"context"
	"errors"
	"testing"

	"github.com/panshi-quant/tradecouncil/internal/agent"
	"github.com/panshi-quant/tradecouncil/internal/llm"
)

// scriptProvider replies with a fixed script, or an error.
type scriptProvider struct {
	name  string
	reply func(req llm.Request) (string, error)
}

func (s *scriptProvider) Name() string  { return s.name }
func (s *scriptProvider) Model() string { return s.name + "-model" }
func (s *scriptProvider) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	text, err := s.reply(req)
	if err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Text: text, Model: s.Model()}, nil
}

func scriptedOrchestrator(reply func(req llm.Request) (string, error)) *llm.Orchestrator {
	return llm.NewOrchestrator([]llm.Provider{&scriptProvider{name: "script", reply: reply}})
}

func highPriorityTask() Task {
	task := NewTask("position_review", "Review the Moutai overweight ahead of Golden Week")
	task.Priority = 0.9
	task.Domains = []string{"risk", "fundamentals"}
	task.RequiredCapabilities = []string{"drawdown_control", "valuation"}
	return task
}

func TestSelectHighPrioritySeatsAllHighAuthority(t *testing.T) {
	registry := agent.DefaultRegistry()
	selector := NewSelector(registry, 4)
	panel, err := selector.Select(context.Background(), highPriorityTask())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(panel) > 4 {
		t.Fatalf("panel exceeds max agents: %d", len(panel))
	}
	seated := map[agent.Role]bool{}
	for _, p := range panel {
		seated[p.Role] = true
	}
	for _, profile := range registry.All() {
		if profile.Authority > 0.8 && !seated[profile.Role] {
			t.Fatalf("high-authority %s (%.2f) not seated: %v", profile.Role, profile.Authority, panel)
		}
	}
}

func TestSelectPrefersUncoveredDomains(t *testing.T) {
	registry := agent.DefaultRegistry()
	selector := NewSelector(registry, 3)
	task := NewTask("idea_review", "Assess CATL momentum setup")
	task.Priority = 0.5
	task.Domains = []string{"technicals"}
	panel, err := selector.Select(context.Background(), task)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(panel) != 3 {
		t.Fatalf("panel size = %d, want 3", len(panel))
	}
	// The technical analyst matches the sole task domain and must lead.
	if panel[0].Role != agent.RoleTechnicalAnalyst {
		t.Fatalf("expected technical analyst first, got %s", panel[0].Role)
	}
	// No duplicate roles.
	seen := map[agent.Role]bool{}
	for _, p := range panel {
		if seen[p.Role] {
			t.Fatalf("role %s seated twice", p.Role)
		}
		seen[p.Role] = true
	}
}

func TestSelectEmptyRegistry(t *testing.T) {
	selector := NewSelector(agent.NewRegistry(), 4)
	if _, err := selector.Select(context.Background(), highPriorityTask()); !errors.Is(err, ErrNoAgents) {
		t.Fatalf("expected ErrNoAgents, got %v", err)
	}
}

func TestSelectRejectsInvalidTask(t *testing.T) {
	selector := NewSelector(agent.DefaultRegistry(), 4)
	task := highPriorityTask()
	task.Priority = 1.5
	if _, err := selector.Select(context.Background(), task); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestSelectViaLLMParsesRoleArray(t *testing.T) {
	orch := scriptedOrchestrator(func(req llm.Request) (string, error) {
		return "Based on the scores I would pick:\n[\"sentiment_analyst\", \"technical_analyst\"]\nThey cover it.", nil
	})
	selector := NewSelector(agent.DefaultRegistry(), 4, WithSelectionLLM(orch))
	task := NewTask("idea_review", "Assess sentiment around 300750")
	task.Priority = 0.4
	panel, err := selector.Select(context.Background(), task)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(panel) != 2 {
		t.Fatalf("panel size = %d, want 2: %v", len(panel), panel)
	}
	if panel[0].Role != agent.RoleSentimentAnalyst || panel[1].Role != agent.RoleTechnicalAnalyst {
		t.Fatalf("unexpected panel order: %s, %s", panel[0].Role, panel[1].Role)
	}
}

func TestSelectViaLLMHighPriorityStillSeatsMandates(t *testing.T) {
	orch := scriptedOrchestrator(func(req llm.Request) (string, error) {
		return "[\"sentiment_analyst\"]", nil
	})
	registry := agent.DefaultRegistry()
	selector := NewSelector(registry, 4, WithSelectionLLM(orch))
	panel, err := selector.Select(context.Background(), highPriorityTask())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	seated := map[agent.Role]bool{}
	for _, p := range panel {
		seated[p.Role] = true
	}
	for _, profile := range registry.All() {
		if profile.Authority > 0.8 && !seated[profile.Role] {
			t.Fatalf("mandated %s missing from LLM-assisted panel", profile.Role)
		}
	}
	if !seated[agent.RoleSentimentAnalyst] {
		t.Fatalf("LLM pick should be kept alongside mandates")
	}
}

func TestSelectFallsBackOnGarbageReply(t *testing.T) {
	orch := scriptedOrchestrator(func(req llm.Request) (string, error) {
		return "I cannot decide, ask the committee.", nil
	})
	selector := NewSelector(agent.DefaultRegistry(), 2, WithSelectionLLM(orch))
	task := NewTask("idea_review", "Assess CATL momentum setup")
	task.Domains = []string{"technicals"}
	panel, err := selector.Select(context.Background(), task)
	if err != nil {
		t.Fatalf("Select should fall back, got: %v", err)
	}
	if len(panel) != 2 {
		t.Fatalf("fallback panel size = %d, want 2", len(panel))
	}
	if panel[0].Role != agent.RoleTechnicalAnalyst {
		t.Fatalf("fallback should rank by fitness: %s first", panel[0].Role)
	}
}

func TestParseRoleArray(t *testing.T) {
	roles, err := parseRoleArray("prefix [\"risk_manager\", \"unknown_role\", \"risk_manager\"] suffix")
	if err != nil {
		t.Fatalf("parseRoleArray: %v", err)
	}
	if len(roles) != 2 || roles[0] != agent.RoleRiskManager {
		t.Fatalf("unexpected roles: %v", roles)
	}
	if _, err := parseRoleArray("no array here"); err == nil {
		t.Fatalf("expected error without array")
	}
	if _, err := parseRoleArray("[\"astrologer\"]"); err == nil {
		t.Fatalf("expected error when no known roles named")
	}
}

func TestFitnessWeighsAuthorityOnlyAboveFloor(t *testing.T) {
	registry := agent.DefaultRegistry()
	selector := NewSelector(registry, 4)
	risk, _ := registry.Get(agent.RoleRiskManager)

	task := NewTask("review", "check risk")
	task.RequiredCapabilities = []string{"drawdown_control"}
	task.Domains = []string{"risk"}

	task.Priority = 0.5
	low := selector.Fitness(risk, task)
	task.Priority = 0.9
	high := selector.Fitness(risk, task)
	// With authority 0.9 the term should lift the high-priority score.
	if high <= low*0.85 {
		t.Fatalf("authority term missing: low=%f high=%f", low, high)
	}
}
