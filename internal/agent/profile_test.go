package agent

import (
	"testing"
)

func TestParseRole(t *testing.T) {
	role, err := ParseRole("  Risk_Manager ")
	if err != nil {
		t.Fatalf("ParseRole: %v", err)
	}
	if role != RoleRiskManager {
		t.Fatalf("unexpected role: %s", role)
	}
	if _, err := ParseRole("astrologer"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestNewProfileNormalizesAndClamps(t *testing.T) {
	profile, err := NewProfile(RoleFundamentalExpert, " Shen Hua ", 1.4,
		[]Capability{
			{Name: " Valuation ", Proficiency: 1.2},
			{Name: "", Proficiency: 0.5},
		},
		[]string{" Fundamentals ", ""},
	)
	if err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	if profile.Name != "Shen Hua" {
		t.Fatalf("name not trimmed: %q", profile.Name)
	}
	if profile.Authority != 1.0 {
		t.Fatalf("authority not clamped: %f", profile.Authority)
	}
	if got := profile.Proficiency("valuation"); got != 1.0 {
		t.Fatalf("proficiency not clamped: %f", got)
	}
	if len(profile.Capabilities) != 1 {
		t.Fatalf("empty capability not dropped: %+v", profile.Capabilities)
	}
	if !profile.HasDomain("fundamentals") {
		t.Fatalf("domain not normalized: %+v", profile.Domains)
	}
}

func TestNewProfileRejectsBadInput(t *testing.T) {
	if _, err := NewProfile("astrologer", "X", 0.5, nil, nil); err == nil {
		t.Fatalf("expected unknown role error")
	}
	if _, err := NewProfile(RoleRiskManager, "  ", 0.5, nil, nil); err == nil {
		t.Fatalf("expected missing name error")
	}
}

func TestRegistryAddGetAll(t *testing.T) {
	registry := NewRegistry()
	for _, role := range []Role{RoleRiskManager, RoleFundamentalExpert} {
		profile, err := NewProfile(role, string(role), 0.5, nil, nil)
		if err != nil {
			t.Fatalf("NewProfile(%s): %v", role, err)
		}
		if err := registry.Add(profile); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if registry.Len() != 2 {
		t.Fatalf("Len = %d, want 2", registry.Len())
	}
	if _, ok := registry.Get(RoleRiskManager); !ok {
		t.Fatalf("risk manager missing")
	}
	all := registry.All()
	if all[0].Role != RoleFundamentalExpert {
		t.Fatalf("All not sorted by role: %s first", all[0].Role)
	}
}

func TestDefaultRegistryCoversKnownRoles(t *testing.T) {
	registry := DefaultRegistry()
	if registry.Len() != len(KnownRoles()) {
		t.Fatalf("default roster has %d entries, want %d", registry.Len(), len(KnownRoles()))
	}
	for _, role := range KnownRoles() {
		profile, ok := registry.Get(role)
		if !ok {
			t.Fatalf("missing role %s", role)
		}
		if len(profile.Capabilities) == 0 {
			t.Fatalf("role %s has no capabilities", role)
		}
	}
}
