package coordination

import (
	"strings"
	"testing"
	"time"

	"github.com/panshi-quant/tradecouncil/internal/agent"
)

func TestParseOpinionStructuredReply(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	reply := "POSITION: reduce to a 2% weight\nCONFIDENCE: 0.85\nEVIDENCE:\n- VaR breach on Monday\n- turnover drying up\nREASONING: risk first"
	op := parseOpinion(agent.RoleRiskManager, reply, at)
	if op.Position != "reduce to a 2% weight" {
		t.Fatalf("position = %q", op.Position)
	}
	if op.Confidence != 0.85 {
		t.Fatalf("confidence = %f", op.Confidence)
	}
	if len(op.Evidence) != 2 || op.Evidence[0] != "VaR breach on Monday" {
		t.Fatalf("evidence = %v", op.Evidence)
	}
	if !op.At.Equal(at) {
		t.Fatalf("at = %v", op.At)
	}
}

func TestParseOpinionDegradesOnFreeText(t *testing.T) {
	reply := "\n  The chart looks exhausted here.\nI would stand aside."
	op := parseOpinion(agent.RoleTechnicalAnalyst, reply, time.Now())
	if op.Position != "The chart looks exhausted here." {
		t.Fatalf("fallback position = %q", op.Position)
	}
	if op.Confidence != 0.6 {
		t.Fatalf("default confidence = %f", op.Confidence)
	}
}

func TestParseOpinionClampsConfidence(t *testing.T) {
	op := parseOpinion(agent.RoleQuantStrategist, "POSITION: buy\nCONFIDENCE: 1.7", time.Now())
	if op.Confidence != 1.0 {
		t.Fatalf("confidence = %f, want clamped 1.0", op.Confidence)
	}
}

func TestParseOpinionCapsReasoning(t *testing.T) {
	long := strings.Repeat("很长的理由", 100)
	op := parseOpinion(agent.RolePolicyAnalyst, "POSITION: hold\n"+long, time.Now())
	if got := len([]rune(op.Reasoning)); got > reasoningCap {
		t.Fatalf("reasoning runes = %d, cap is %d", got, reasoningCap)
	}
}

func TestBuildAnalysisPromptOrdersContextKeys(t *testing.T) {
	task := NewTask("review", "check 600519")
	task.Context["symbol"] = "600519"
	task.Context["horizon"] = "3m"
	prompt := buildAnalysisPrompt(task, nil)
	if strings.Index(prompt, "horizon: 3m") > strings.Index(prompt, "symbol: 600519") {
		t.Fatalf("context keys not sorted:\n%s", prompt)
	}
	if !strings.Contains(prompt, "POSITION:") {
		t.Fatalf("format instructions missing:\n%s", prompt)
	}
}

func TestAlignment(t *testing.T) {
	if got := Alignment("hold the position", "hold the position"); got != 1.0 {
		t.Fatalf("identical texts = %f", got)
	}
	if got := Alignment("buy aggressively", "sell everything now"); got != 0.0 {
		t.Fatalf("disjoint texts = %f", got)
	}
	partial := Alignment("trim the moutai position", "trim the position slowly")
	if partial <= 0 || partial >= 1 {
		t.Fatalf("partial overlap = %f, want strictly between 0 and 1", partial)
	}
	if Alignment("", "anything") != 0.0 {
		t.Fatalf("empty position should score zero")
	}
}
