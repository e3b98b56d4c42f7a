// internal/config/config.go
//
// This package handles configuration and the .tradecouncil directory
// structure. Every project that runs the council gets a .tradecouncil/
// folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// CouncilDir is the name of the directory we create in each project.
	CouncilDir = ".tradecouncil"

	defaultMethod            = "weighted_average"
	defaultConflictThreshold = 0.6
	defaultMaxAgents         = 4
	defaultMaxConcurrent     = 4
	defaultBreakerFailures   = 3
	defaultBreakerCooldown   = 30
	defaultProviderTimeout   = 60
)

const defaultProjectConfigYAML = `# tradecouncil project configuration
version: 1

consensus:
  # majority_vote | weighted_average | confidence_fusion | expert_overrule | delphi
  method: weighted_average
  conflict_threshold: 0.6

selection:
  max_agents: 4
  llm_assisted: false

llm:
  max_concurrent: 4
  breaker_failures: 3
  breaker_cooldown_seconds: 30
  providers:
    - name: deepseek
      model: deepseek-chat
      base_url: https://api.deepseek.com/v1
      api_key_env: DEEPSEEK_API_KEY
    - name: qwen
      model: qwen-plus
      base_url: https://dashscope.aliyuncs.com/compatible-mode/v1
      api_key_env: DASHSCOPE_API_KEY

knowledge:
  # Research documents (.md, .txt, .pdf) ingested for retrieval.
  dir: research

# Leave empty to use the built-in expert roster.
agents: []
`

// AgentEntry declares one expert agent inside .tradecouncil/config.yaml.
type AgentEntry struct {
	Role         string             `yaml:"role"`
	Name         string             `yaml:"name"`
	Authority    float64            `yaml:"authority"`
	Capabilities map[string]float64 `yaml:"capabilities"`
	Domains      []string           `yaml:"domains"`
}

// ConsensusConfig captures how opinions are combined.
type ConsensusConfig struct {
	Method            string  `yaml:"method"`
	ConflictThreshold float64 `yaml:"conflict_threshold"`
}

// SelectionConfig controls the dynamic agent selector.
type SelectionConfig struct {
	MaxAgents   int  `yaml:"max_agents"`
	LLMAssisted bool `yaml:"llm_assisted"`
}

// ProviderEntry declares one LLM provider in failover order.
type ProviderEntry struct {
	Name           string `yaml:"name"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

// LLMConfig controls the provider chain and its guardrails.
type LLMConfig struct {
	MaxConcurrent          int             `yaml:"max_concurrent"`
	BreakerFailures        int             `yaml:"breaker_failures"`
	BreakerCooldownSeconds int             `yaml:"breaker_cooldown_seconds"`
	Providers              []ProviderEntry `yaml:"providers"`
}

// KnowledgeConfig locates research documents for retrieval.
type KnowledgeConfig struct {
	Dir string `yaml:"dir"`
}

// ProjectConfig models .tradecouncil/config.yaml.
type ProjectConfig struct {
	Version   int             `yaml:"version"`
	Consensus ConsensusConfig `yaml:"consensus"`
	Selection SelectionConfig `yaml:"selection"`
	LLM       LLMConfig       `yaml:"llm"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Agents    []AgentEntry    `yaml:"agents"`
}

// Config holds the runtime configuration for a council session.
type Config struct {
	// ProjectDir is the directory where the user ran `tradecouncil` from.
	ProjectDir string

	// CouncilProjectDir is ProjectDir/.tradecouncil.
	CouncilProjectDir string

	Project ProjectConfig
}

// InitCouncilDir creates the .tradecouncil directory structure in the given
// project directory.
//
// Structure created:
// .tradecouncil/
// ├── logs/       <- session logbook
// ├── sessions/   <- per-session coordination records
// └── research/   <- documents indexed for retrieval
func InitCouncilDir(projectDir string) error {
	councilDir := filepath.Join(projectDir, CouncilDir)

	dirs := []string{
		filepath.Join(councilDir, "logs"),
		filepath.Join(councilDir, "sessions"),
		filepath.Join(councilDir, "research"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	return ensureProjectConfig(filepath.Join(councilDir, "config.yaml"))
}

// NewConfig creates a Config populated with project settings.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:        projectDir,
		CouncilProjectDir: filepath.Join(projectDir, CouncilDir),
		Project:           defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.CouncilProjectDir, "logs")
}

// SessionsDir returns the directory holding per-session records.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.CouncilProjectDir, "sessions")
}

// KnowledgeDir returns the research document directory. Relative paths are
// resolved inside the council directory.
func (c *Config) KnowledgeDir() string {
	dir := c.Project.Knowledge.Dir
	if dir == "" {
		dir = "research"
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(c.CouncilProjectDir, dir)
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.CouncilProjectDir, "config.yaml")
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		Consensus: ConsensusConfig{
			Method:            defaultMethod,
			ConflictThreshold: defaultConflictThreshold,
		},
		Selection: SelectionConfig{MaxAgents: defaultMaxAgents},
		LLM: LLMConfig{
			MaxConcurrent:          defaultMaxConcurrent,
			BreakerFailures:        defaultBreakerFailures,
			BreakerCooldownSeconds: defaultBreakerCooldown,
		},
		Knowledge: KnowledgeConfig{Dir: "research"},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Consensus.Method == "" {
		pc.Consensus.Method = defaultMethod
	}
	if pc.Consensus.ConflictThreshold == 0 {
		pc.Consensus.ConflictThreshold = defaultConflictThreshold
	}
	if pc.Selection.MaxAgents == 0 {
		pc.Selection.MaxAgents = defaultMaxAgents
	}
	if pc.LLM.MaxConcurrent == 0 {
		pc.LLM.MaxConcurrent = defaultMaxConcurrent
	}
	if pc.LLM.BreakerFailures == 0 {
		pc.LLM.BreakerFailures = defaultBreakerFailures
	}
	if pc.LLM.BreakerCooldownSeconds == 0 {
		pc.LLM.BreakerCooldownSeconds = defaultBreakerCooldown
	}
	if pc.Knowledge.Dir == "" {
		pc.Knowledge.Dir = "research"
	}
	for i := range pc.LLM.Providers {
		if pc.LLM.Providers[i].TimeoutSeconds == 0 {
			pc.LLM.Providers[i].TimeoutSeconds = defaultProviderTimeout
		}
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Consensus.Method = strings.ToLower(strings.TrimSpace(pc.Consensus.Method))
	for i := range pc.LLM.Providers {
		p := &pc.LLM.Providers[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Model = strings.TrimSpace(p.Model)
		p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
		p.APIKeyEnv = strings.TrimSpace(p.APIKeyEnv)
	}
	for i := range pc.Agents {
		a := &pc.Agents[i]
		a.Role = strings.ToLower(strings.TrimSpace(a.Role))
		a.Name = strings.TrimSpace(a.Name)
		for j := range a.Domains {
			a.Domains[j] = strings.ToLower(strings.TrimSpace(a.Domains[j]))
		}
	}
}

func (pc ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.Consensus.Method {
	case "majority_vote", "weighted_average", "confidence_fusion", "expert_overrule", "delphi":
	default:
		return fmt.Errorf("consensus.method %q is not recognized", pc.Consensus.Method)
	}
	if pc.Consensus.ConflictThreshold < 0 || pc.Consensus.ConflictThreshold > 1 {
		return fmt.Errorf("consensus.conflict_threshold must be in [0,1]")
	}
	if pc.Selection.MaxAgents < 1 {
		return fmt.Errorf("selection.max_agents must be >= 1")
	}
	if pc.LLM.MaxConcurrent < 1 {
		return fmt.Errorf("llm.max_concurrent must be >= 1")
	}
	for i, p := range pc.LLM.Providers {
		if p.Name == "" {
			return fmt.Errorf("llm.providers[%d]: name is required", i)
		}
		if p.Model == "" {
			return fmt.Errorf("llm.providers[%d]: model is required for %s", i, p.Name)
		}
		if p.BaseURL == "" {
			return fmt.Errorf("llm.providers[%d]: base_url is required for %s", i, p.Name)
		}
	}
	for i, a := range pc.Agents {
		if a.Role == "" {
			return fmt.Errorf("agents[%d]: role is required", i)
		}
		if a.Authority < 0 || a.Authority > 1 {
			return fmt.Errorf("agents[%d]: authority must be in [0,1] for %s", i, a.Role)
		}
		for name, prof := range a.Capabilities {
			if prof < 0 || prof > 1 {
				return fmt.Errorf("agents[%d]: capability %s proficiency must be in [0,1]", i, name)
			}
		}
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
