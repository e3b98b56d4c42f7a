// cmd/tradecouncil/main.go
//
// Entry point for the tradecouncil CLI. It initializes the .tradecouncil
// directory in the current project, assembles the expert council from
// configuration, and runs one analysis session, either as a live terminal
// view or in plain text for scripts and pipes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/panshi-quant/tradecouncil/internal/agent"
	"github.com/panshi-quant/tradecouncil/internal/config"
	"github.com/panshi-quant/tradecouncil/internal/coordination"
	"github.com/panshi-quant/tradecouncil/internal/knowledge"
	"github.com/panshi-quant/tradecouncil/internal/llm"
	"github.com/panshi-quant/tradecouncil/internal/logbook"
	"github.com/panshi-quant/tradecouncil/internal/tui"
)

func main() {
	var (
		taskDesc  = flag.String("task", "", "analysis task for the council (required)")
		taskType  = flag.String("type", "analysis", "task type label")
		symbol    = flag.String("symbol", "", "ticker the task concerns, e.g. 600519")
		method    = flag.String("method", "", "consensus method override")
		priority  = flag.Float64("priority", 0.5, "task priority in [0,1]")
		timeout   = flag.Duration("timeout", 5*time.Minute, "overall session timeout")
		plain     = flag.Bool("plain", false, "print results as plain text instead of the terminal view")
		showPanel = flag.Bool("roster", false, "print the configured expert roster and exit")
	)
	flag.Parse()

	cwd, err := os.Getwd()
	if err != nil {
		fatal("get working directory: %v", err)
	}
	if err := config.InitCouncilDir(cwd); err != nil {
		fatal("initialize .tradecouncil: %v", err)
	}
	cfg, err := config.NewConfig(cwd)
	if err != nil {
		fatal("load configuration: %v", err)
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		fatal("build expert roster: %v", err)
	}
	if *showPanel {
		printRoster(registry)
		return
	}
	if *taskDesc == "" {
		fmt.Fprintln(os.Stderr, "usage: tradecouncil -task \"review the 600519 overweight\" [-symbol 600519]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	book, err := logbook.New(filepath.Join(cfg.LogsDir(), "council.log"))
	if err != nil {
		fatal("open logbook: %v", err)
	}

	store := knowledge.NewStore()
	if count, err := store.IngestDir(cfg.KnowledgeDir()); err != nil {
		book.Warn("knowledge ingest failed: %v", err)
	} else if count > 0 {
		book.Info("ingested %d research snippets", count)
	}

	orch, err := buildOrchestrator(cfg, book)
	if err != nil {
		fatal("configure LLM providers: %v", err)
	}

	methodName := cfg.Project.Consensus.Method
	if *method != "" {
		methodName = *method
	}
	consensusMethod, err := coordination.ParseMethod(methodName)
	if err != nil {
		fatal("%v", err)
	}

	task := coordination.NewTask(*taskType, *taskDesc)
	task.Priority = *priority
	if *symbol != "" {
		task.Context["symbol"] = *symbol
	}

	events := make(chan coordination.Event, 64)
	opts := []coordination.CoordinatorOption{
		coordination.WithKnowledge(store),
		coordination.WithLogbook(book),
		coordination.WithConflictThreshold(cfg.Project.Consensus.ConflictThreshold),
		coordination.WithSessionsDir(cfg.SessionsDir()),
		coordination.WithObserver(func(ev coordination.Event) { events <- ev }),
	}
	if cfg.Project.Selection.LLMAssisted {
		opts = append(opts, coordination.WithLLMAssistedSelection())
	}
	coord := coordination.NewCoordinator(registry, orch, consensusMethod, cfg.Project.Selection.MaxAgents, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	run := func() (*coordination.Session, error) {
		defer close(events)
		return coord.Run(ctx, task)
	}

	if *plain {
		runPlain(run, events)
		return
	}
	view := tui.NewSessionView(*taskDesc, events, run)
	if err := tui.Run(view); err != nil {
		fatal("%v", err)
	}
}

// runPlain executes the session and streams progress as plain lines.
func runPlain(run func() (*coordination.Session, error), events <-chan coordination.Event) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			switch ev.Kind {
			case coordination.EventOpinion:
				if ev.Opinion != nil {
					fmt.Printf("%s: %s (%.2f)\n", ev.Role, ev.Opinion.Position, ev.Opinion.Confidence)
				}
			case coordination.EventAgentFailed:
				fmt.Printf("%s: failed: %v\n", ev.Role, ev.Err)
			}
		}
	}()

	session, err := run()
	<-done
	if err != nil {
		fatal("%v", err)
	}
	result := session.Result
	fmt.Printf("\ndecision: %s\n", result.Decision)
	fmt.Printf("score %.2f · confidence %.2f · %s", result.Score, result.Confidence, result.Method)
	if result.ResolvedBy != "" {
		fmt.Printf(" · resolved by %s", result.ResolvedBy)
	}
	fmt.Println()
}

// buildRegistry assembles the roster from configuration, falling back to
// the built-in experts when none are declared.
func buildRegistry(cfg *config.Config) (*agent.Registry, error) {
	if len(cfg.Project.Agents) == 0 {
		return agent.DefaultRegistry(), nil
	}
	registry := agent.NewRegistry()
	for _, entry := range cfg.Project.Agents {
		role, err := agent.ParseRole(entry.Role)
		if err != nil {
			return nil, err
		}
		capabilities := make([]agent.Capability, 0, len(entry.Capabilities))
		for name, proficiency := range entry.Capabilities {
			capabilities = append(capabilities, agent.Capability{Name: name, Proficiency: proficiency})
		}
		profile, err := agent.NewProfile(role, entry.Name, entry.Authority, capabilities, entry.Domains)
		if err != nil {
			return nil, err
		}
		if err := registry.Add(profile); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// buildOrchestrator wires the configured provider chain with its breaker
// policy and concurrency limit.
func buildOrchestrator(cfg *config.Config, book *logbook.Logbook) (*llm.Orchestrator, error) {
	providers := make([]llm.Provider, 0, len(cfg.Project.LLM.Providers))
	for _, entry := range cfg.Project.LLM.Providers {
		providers = append(providers, llm.NewChatProvider(
			entry.Name,
			entry.Model,
			entry.BaseURL,
			entry.APIKeyEnv,
			time.Duration(entry.TimeoutSeconds)*time.Second,
		))
	}
	if len(providers) == 0 {
		return nil, llm.ErrNoProviders
	}
	return llm.NewOrchestrator(providers,
		llm.WithLogger(book),
		llm.WithMaxConcurrent(cfg.Project.LLM.MaxConcurrent),
		llm.WithBreakerPolicy(cfg.Project.LLM.BreakerFailures, time.Duration(cfg.Project.LLM.BreakerCooldownSeconds)*time.Second),
	), nil
}

func printRoster(registry *agent.Registry) {
	for _, profile := range registry.All() {
		fmt.Printf("%-20s %-10s authority %.2f  domains %v\n", profile.Role, profile.Name, profile.Authority, profile.Domains)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "tradecouncil: "+format+"\n", args...)
	os.Exit(1)
}
