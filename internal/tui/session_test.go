package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/panshi-quant/tradecouncil/internal/agent"
	"github.com/panshi-quant/tradecouncil/internal/coordination"
)

func newTestView() *SessionView {
	events := make(chan coordination.Event)
	close(events)
	return NewSessionView("review 600519", events, func() (*coordination.Session, error) {
		return &coordination.Session{}, nil
	})
}

func apply(t *testing.T, view *SessionView, msg tea.Msg) *SessionView {
	t.Helper()
	model, _ := view.Update(msg)
	next, ok := model.(*SessionView)
	if !ok {
		t.Fatalf("Update returned %T", model)
	}
	return next
}

func TestViewShowsOpinionFeed(t *testing.T) {
	view := newTestView()
	op := coordination.Opinion{Role: agent.RoleRiskManager, Position: "trim to 2%", Confidence: 0.8}
	view = apply(t, view, sessionEventMsg{event: coordination.Event{
		Kind:    coordination.EventOpinion,
		Role:    agent.RoleRiskManager,
		Opinion: &op,
	}})
	out := view.View()
	if !strings.Contains(out, "trim to 2%") {
		t.Fatalf("opinion missing from view:\n%s", out)
	}
	if !strings.Contains(out, "deliberating") {
		t.Fatalf("spinner line missing while running:\n%s", out)
	}
}

func TestViewShowsDecisionPanelOnCompletion(t *testing.T) {
	view := newTestView()
	session := &coordination.Session{
		Result: coordination.Result{
			Decision:   "hold through earnings",
			Score:      0.82,
			Confidence: 0.75,
			Method:     coordination.MethodMajorityVote,
		},
	}
	view = apply(t, view, sessionDoneMsg{session: session})
	out := view.View()
	if !strings.Contains(out, "hold through earnings") {
		t.Fatalf("decision missing from view:\n%s", out)
	}
	if strings.Contains(out, "deliberating") {
		t.Fatalf("spinner should stop once done:\n%s", out)
	}
	if !strings.Contains(out, "press q to exit") {
		t.Fatalf("exit hint missing:\n%s", out)
	}
}

func TestViewShowsFailure(t *testing.T) {
	view := newTestView()
	view = apply(t, view, sessionDoneMsg{err: errors.New("no providers configured")})
	if out := view.View(); !strings.Contains(out, "no providers configured") {
		t.Fatalf("error missing from view:\n%s", out)
	}
}

func TestQuitKeysOnlyWorkAfterCompletion(t *testing.T) {
	view := newTestView()
	if _, cmd := view.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}); cmd != nil {
		t.Fatalf("q must not quit mid-session")
	}
	view = apply(t, view, sessionDoneMsg{session: &coordination.Session{}})
	if _, cmd := view.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}); cmd == nil {
		t.Fatalf("q should quit once done")
	}
}

func TestRenderEventAgentFailure(t *testing.T) {
	line := renderEvent(coordination.Event{
		Kind: coordination.EventAgentFailed,
		Role: agent.RoleSentimentAnalyst,
		Err:  errors.New("model unavailable"),
	})
	if !strings.Contains(line.text, "sentiment_analyst") || !strings.Contains(line.text, "model unavailable") {
		t.Fatalf("unexpected failure line: %q", line.text)
	}
}
