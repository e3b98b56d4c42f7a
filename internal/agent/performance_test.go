package agent

import (
	"fmt"
	"math"
	"testing"
)

func newTestProfile(t *testing.T) *Profile {
	t.Helper()
	profile, err := NewProfile(RoleQuantStrategist, "Xu Lan", 0.7, nil, nil)
	if err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	return profile
}

func TestRollingScoreNeutralWithoutHistory(t *testing.T) {
	profile := newTestProfile(t)
	if got := profile.RollingScore(); got != 0.5 {
		t.Fatalf("RollingScore = %f, want 0.5", got)
	}
}

func TestRecordOutcomeUpdatesRollingScore(t *testing.T) {
	profile := newTestProfile(t)
	profile.RecordOutcome(Outcome{TaskID: "t1", Alignment: 1.0})
	profile.RecordOutcome(Outcome{TaskID: "t2", Alignment: 0.5})
	if got := profile.RollingScore(); math.Abs(got-0.75) > 1e-9 {
		t.Fatalf("RollingScore = %f, want 0.75", got)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	profile := newTestProfile(t)
	for i := 0; i < historyCapacity+10; i++ {
		profile.RecordOutcome(Outcome{TaskID: fmt.Sprintf("t%d", i), Alignment: 0.5})
	}
	history := profile.History()
	if len(history) != historyCapacity {
		t.Fatalf("history length = %d, want %d", len(history), historyCapacity)
	}
	// Oldest retained entry should be the 11th recorded outcome.
	if history[0].TaskID != "t10" {
		t.Fatalf("unexpected oldest entry: %s", history[0].TaskID)
	}
	if history[len(history)-1].TaskID != fmt.Sprintf("t%d", historyCapacity+9) {
		t.Fatalf("unexpected newest entry: %s", history[len(history)-1].TaskID)
	}
}

func TestReputationTracksAlignment(t *testing.T) {
	profile := newTestProfile(t)
	start := profile.Reputation()
	profile.RecordOutcome(Outcome{TaskID: "t1", Alignment: 1.0})
	if profile.Reputation() <= start {
		t.Fatalf("reputation did not increase: %f -> %f", start, profile.Reputation())
	}
	for i := 0; i < 50; i++ {
		profile.RecordOutcome(Outcome{TaskID: "t", Alignment: 0})
	}
	if profile.Reputation() > 0.1 {
		t.Fatalf("reputation did not decay toward 0: %f", profile.Reputation())
	}
}

func TestRecordOutcomeClampsAlignment(t *testing.T) {
	profile := newTestProfile(t)
	profile.RecordOutcome(Outcome{TaskID: "t1", Alignment: 3.0})
	if got := profile.RollingScore(); got != 1.0 {
		t.Fatalf("alignment not clamped: %f", got)
	}
}
