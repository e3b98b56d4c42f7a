package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/panshi-quant/tradecouncil/internal/config"
)

func TestInitCouncilDirCreatesStructure(t *testing.T) {
	projectDir := t.TempDir()
	if err := config.InitCouncilDir(projectDir); err != nil {
		t.Fatalf("InitCouncilDir: %v", err)
	}
	for _, dir := range []string{"logs", "sessions", "research"} {
		path := filepath.Join(projectDir, config.CouncilDir, dir)
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("expected %s to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %s to be a directory", dir)
		}
	}
	if _, err := os.Stat(filepath.Join(projectDir, config.CouncilDir, "config.yaml")); err != nil {
		t.Fatalf("expected default config.yaml: %v", err)
	}
}

func TestNewConfigDefaults(t *testing.T) {
	projectDir := t.TempDir()
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Project.Consensus.Method != "weighted_average" {
		t.Fatalf("unexpected default method: %s", cfg.Project.Consensus.Method)
	}
	if cfg.Project.Consensus.ConflictThreshold != 0.6 {
		t.Fatalf("unexpected default threshold: %f", cfg.Project.Consensus.ConflictThreshold)
	}
	if cfg.Project.Selection.MaxAgents != 4 {
		t.Fatalf("unexpected default max agents: %d", cfg.Project.Selection.MaxAgents)
	}
}

func TestNewConfigParsesProjectFile(t *testing.T) {
	projectDir := t.TempDir()
	writeConfig(t, projectDir, `
version: 1
consensus:
  method: Expert_Overrule
  conflict_threshold: 0.5
selection:
  max_agents: 2
llm:
  providers:
    - name: deepseek
      model: deepseek-chat
      base_url: https://api.deepseek.com/v1/
agents:
  - role: Risk_Manager
    name: Wei
    authority: 0.9
    capabilities:
      drawdown_control: 0.8
    domains: [Risk]
`)
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Project.Consensus.Method != "expert_overrule" {
		t.Fatalf("method not normalized: %s", cfg.Project.Consensus.Method)
	}
	if got := cfg.Project.LLM.Providers[0].BaseURL; got != "https://api.deepseek.com/v1" {
		t.Fatalf("base url not trimmed: %s", got)
	}
	if got := cfg.Project.LLM.Providers[0].TimeoutSeconds; got != 60 {
		t.Fatalf("timeout default not applied: %d", got)
	}
	agent := cfg.Project.Agents[0]
	if agent.Role != "risk_manager" || agent.Domains[0] != "risk" {
		t.Fatalf("agent not normalized: %+v", agent)
	}
}

func TestNewConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad method":    "consensus:\n  method: guesswork\n",
		"bad threshold": "consensus:\n  conflict_threshold: 1.5\n",
		"bad authority": "agents:\n  - role: risk_manager\n    authority: 2.0\n",
		"missing model": "llm:\n  providers:\n    - name: deepseek\n      base_url: https://x\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			projectDir := t.TempDir()
			writeConfig(t, projectDir, "version: 1\n"+body)
			if _, err := config.NewConfig(projectDir); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func writeConfig(t *testing.T, projectDir, body string) {
	t.Helper()
	dir := filepath.Join(projectDir, config.CouncilDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
