package coordination

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/panshi-quant/tradecouncil/internal/agent"
	"github.com/panshi-quant/tradecouncil/internal/knowledge"
	"github.com/panshi-quant/tradecouncil/internal/llm"
	"github.com/panshi-quant/tradecouncil/internal/logbook"
)

const retrievedSnippets = 4

// EventKind tags coordinator progress events.
type EventKind string

const (
	EventPanelSelected EventKind = "panel_selected"
	EventOpinion       EventKind = "opinion"
	EventAgentFailed   EventKind = "agent_failed"
	EventConsensus     EventKind = "consensus"
	EventResolved      EventKind = "resolved"
)

// Event is emitted as a session progresses. Observers receive events from
// multiple goroutines and must be safe for concurrent use.
type Event struct {
	Kind    EventKind
	Role    agent.Role
	Opinion *Opinion
	Result  *Result
	Err     error
}

// Session is the record of one full coordination run.
type Session struct {
	ID        string
	Task      Task
	Panel     []agent.Role
	Opinions  []Opinion
	Result    Result
	StartedAt time.Time
	Duration  time.Duration
	// Failures maps roles that produced no opinion to the error text.
	Failures map[agent.Role]string
}

// Coordinator sequences selection, opinion gathering, consensus, and
// conflict resolution for council sessions.
type Coordinator struct {
	registry *agent.Registry
	selector *Selector
	engine   *Engine
	resolver *Resolver
	orch     *llm.Orchestrator
	store    *knowledge.Store
	book     *logbook.Logbook

	method            Method
	conflictThreshold float64
	maxConcurrent     int
	sessionsDir       string

	llmSelection bool

	now      func() time.Time
	newID    func() string
	observer func(Event)
}

// CoordinatorOption customizes coordinator construction.
type CoordinatorOption func(*Coordinator)

// WithKnowledge wires the retrieval store.
func WithKnowledge(store *knowledge.Store) CoordinatorOption {
	return func(c *Coordinator) { c.store = store }
}

// WithLogbook wires the session logbook.
func WithLogbook(book *logbook.Logbook) CoordinatorOption {
	return func(c *Coordinator) { c.book = book }
}

// WithConflictThreshold sets the consensus score below which conflict
// resolution runs.
func WithConflictThreshold(threshold float64) CoordinatorOption {
	return func(c *Coordinator) {
		if threshold >= 0 && threshold <= 1 {
			c.conflictThreshold = threshold
		}
	}
}

// WithFanoutLimit bounds concurrent per-agent analyses.
func WithFanoutLimit(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxConcurrent = n
		}
	}
}

// WithSessionsDir enables persisted session records.
func WithSessionsDir(dir string) CoordinatorOption {
	return func(c *Coordinator) { c.sessionsDir = dir }
}

// WithCoordinatorClock overrides the timestamp source. Intended for tests.
func WithCoordinatorClock(clock func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithSessionID overrides session ID generation. Intended for tests.
func WithSessionID(gen func() string) CoordinatorOption {
	return func(c *Coordinator) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithObserver registers a progress callback.
func WithObserver(fn func(Event)) CoordinatorOption {
	return func(c *Coordinator) { c.observer = fn }
}

// WithLLMAssistedSelection lets the orchestrator propose the panel.
func WithLLMAssistedSelection() CoordinatorOption {
	return func(c *Coordinator) { c.llmSelection = true }
}

// NewCoordinator wires a coordinator over its collaborators. The selector,
// engine, and resolver are built internally around the shared registry and
// orchestrator.
func NewCoordinator(registry *agent.Registry, orch *llm.Orchestrator, method Method, maxAgents int, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		registry:          registry,
		orch:              orch,
		method:            method,
		conflictThreshold: 0.6,
		maxConcurrent:     4,
		now:               time.Now,
		newID:             func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	selectorOpts := []SelectorOption{WithSelectorLogger(c.book)}
	if c.llmSelection {
		selectorOpts = append(selectorOpts, WithSelectionLLM(orch))
	}
	c.selector = NewSelector(registry, maxAgents, selectorOpts...)
	c.engine = NewEngine(registry, WithSynthesisLLM(orch), WithEngineLogger(c.book))
	c.resolver = NewResolver(registry, WithMediationLLM(orch), WithResolverLogger(c.book))
	return c
}

// Run executes one full council session for the task. Individual agent
// failures degrade; Run only errors when selection fails, the context is
// cancelled, or no opinion at all could be collected.
func (c *Coordinator) Run(ctx context.Context, task Task) (*Session, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	start := c.now()
	session := &Session{
		ID:        c.newID(),
		Task:      task,
		StartedAt: start,
		Failures:  map[agent.Role]string{},
	}
	c.logf("session %s: %s", session.ID, task.Description)

	panel, err := c.selector.Select(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("coordination: select panel: %w", err)
	}
	for _, profile := range panel {
		session.Panel = append(session.Panel, profile.Role)
	}
	c.emit(Event{Kind: EventPanelSelected})
	c.logf("session %s: panel %v", session.ID, session.Panel)

	snippets := c.retrieve(task)
	session.Opinions = c.gatherOpinions(ctx, task, panel, snippets, session)
	if len(session.Opinions) == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("coordination: session %s: %w", session.ID, ErrNoOpinions)
	}

	result, err := c.engine.Build(ctx, c.method, session.Opinions)
	if err != nil {
		return nil, fmt.Errorf("coordination: build consensus: %w", err)
	}
	c.emit(Event{Kind: EventConsensus, Result: &result})
	c.logf("session %s: consensus %.2f via %s", session.ID, result.Score, result.Method)

	if result.Score < c.conflictThreshold {
		result = c.resolver.Resolve(ctx, task, result)
		c.emit(Event{Kind: EventResolved, Result: &result})
		c.logf("session %s: conflict resolved by %s", session.ID, result.ResolvedBy)
	}
	session.Result = result
	session.Duration = c.now().Sub(start)

	c.recordOutcomes(session)
	if err := c.writeSessionRecord(session); err != nil {
		c.logf("session %s: record not persisted: %v", session.ID, err)
	}
	return session, nil
}

// gatherOpinions fans the panel out across goroutines, bounded by the
// configured limit, and collects whatever opinions arrive before the
// context ends.
func (c *Coordinator) gatherOpinions(ctx context.Context, task Task, panel []*agent.Profile, snippets []knowledge.Scored, session *Session) []Opinion {
	type outcome struct {
		role    agent.Role
		opinion Opinion
		err     error
	}

	sem := make(chan struct{}, c.maxConcurrent)
	results := make(chan outcome, len(panel))
	var wg sync.WaitGroup
	prompt := buildAnalysisPrompt(task, snippets)

	for _, profile := range panel {
		wg.Add(1)
		go func(profile *agent.Profile) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- outcome{role: profile.Role, err: ctx.Err()}
				return
			}
			resp, err := c.orch.Complete(ctx, llm.Request{
				System:      systemPrompt(profile.Role),
				Prompt:      prompt,
				MaxTokens:   600,
				Temperature: 0.4,
			})
			if err != nil {
				results <- outcome{role: profile.Role, err: err}
				return
			}
			results <- outcome{role: profile.Role, opinion: parseOpinion(profile.Role, resp.Text, c.now())}
		}(profile)
	}
	wg.Wait()
	close(results)

	var opinions []Opinion
	for out := range results {
		if out.err != nil {
			session.Failures[out.role] = out.err.Error()
			c.emit(Event{Kind: EventAgentFailed, Role: out.role, Err: out.err})
			c.logf("agent %s failed: %v", out.role, out.err)
			continue
		}
		opinions = append(opinions, out.opinion)
		op := out.opinion
		c.emit(Event{Kind: EventOpinion, Role: out.role, Opinion: &op})
	}
	// Channel drain order is nondeterministic; keep sessions reproducible.
	sort.Slice(opinions, func(i, j int) bool { return opinions[i].Role < opinions[j].Role })
	return opinions
}

func (c *Coordinator) retrieve(task Task) []knowledge.Scored {
	if c.store == nil {
		return nil
	}
	query := task.Description
	if symbol := task.Symbol(); symbol != "" {
		query = symbol + " " + query
	}
	return c.store.Retrieve(query, retrievedSnippets)
}

// recordOutcomes updates each participant's performance history with their
// alignment against the final decision.
func (c *Coordinator) recordOutcomes(session *Session) {
	for _, opinion := range session.Opinions {
		profile, ok := c.registry.Get(opinion.Role)
		if !ok {
			continue
		}
		profile.RecordOutcome(agent.Outcome{
			TaskID:    session.Task.ID,
			Alignment: Alignment(opinion.Position, session.Result.Decision),
			Success:   true,
			Latency:   session.Duration,
			At:        c.now(),
		})
	}
}

type sessionRecord struct {
	ID         string            `json:"id"`
	TaskID     string            `json:"taskId"`
	Task       string            `json:"task"`
	Panel      []agent.Role      `json:"panel"`
	Method     Method            `json:"method"`
	Decision   string            `json:"decision"`
	Score      float64           `json:"score"`
	Confidence float64           `json:"confidence"`
	ResolvedBy string            `json:"resolvedBy,omitempty"`
	Failures   map[string]string `json:"failures,omitempty"`
	Opinions   []opinionRecord   `json:"opinions"`
	StartedAt  string            `json:"startedAt"`
	DurationMS int64             `json:"durationMs"`
}

type opinionRecord struct {
	Role       agent.Role `json:"role"`
	Position   string     `json:"position"`
	Confidence float64    `json:"confidence"`
	Evidence   []string   `json:"evidence,omitempty"`
	Reasoning  string     `json:"reasoning,omitempty"`
}

// writeSessionRecord persists a JSON summary under the sessions directory.
func (c *Coordinator) writeSessionRecord(session *Session) error {
	if c.sessionsDir == "" {
		return nil
	}
	record := sessionRecord{
		ID:         session.ID,
		TaskID:     session.Task.ID,
		Task:       session.Task.Description,
		Panel:      session.Panel,
		Method:     session.Result.Method,
		Decision:   session.Result.Decision,
		Score:      session.Result.Score,
		Confidence: session.Result.Confidence,
		ResolvedBy: string(session.Result.ResolvedBy),
		StartedAt:  session.StartedAt.UTC().Format(time.RFC3339),
		DurationMS: session.Duration.Milliseconds(),
	}
	if len(session.Failures) > 0 {
		record.Failures = map[string]string{}
		for role, msg := range session.Failures {
			record.Failures[string(role)] = msg
		}
	}
	for _, op := range session.Opinions {
		record.Opinions = append(record.Opinions, opinionRecord{
			Role:       op.Role,
			Position:   op.Position,
			Confidence: op.Confidence,
			Evidence:   op.Evidence,
			Reasoning:  op.Reasoning,
		})
	}
	body, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("coordination: encode session record: %w", err)
	}
	if err := os.MkdirAll(c.sessionsDir, 0o755); err != nil {
		return fmt.Errorf("coordination: ensure sessions dir: %w", err)
	}
	path := filepath.Join(c.sessionsDir, session.ID+".json")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("coordination: write session record: %w", err)
	}
	return nil
}

func (c *Coordinator) emit(event Event) {
	if c.observer != nil {
		c.observer(event)
	}
}

func (c *Coordinator) logf(format string, args ...any) {
	if c.book != nil {
		c.book.Info(format, args...)
	}
}
