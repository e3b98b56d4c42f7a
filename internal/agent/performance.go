package agent

import (
	"time"
)

const (
	// historyCapacity bounds how many recent outcomes a profile remembers.
	historyCapacity = 32

	// reputationWeight controls how fast reputation tracks new outcomes.
	reputationWeight = 0.1

	// neutralScore is used before an agent has any recorded outcomes.
	neutralScore = 0.5
)

// Outcome records how one coordination task went for an agent. Alignment is
// the token overlap between the agent's position and the final decision,
// not the session's consensus score.
type Outcome struct {
	TaskID    string
	Alignment float64
	Success   bool
	Latency   time.Duration
	At        time.Time
}

// RecordOutcome appends an outcome to the bounded history and nudges the
// reputation toward the observed alignment.
func (p *Profile) RecordOutcome(outcome Outcome) {
	outcome.Alignment = clamp01(outcome.Alignment)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history.push(outcome)
	p.reputation = (1-reputationWeight)*p.reputation + reputationWeight*outcome.Alignment
}

// RollingScore returns the mean alignment over the retained history, or a
// neutral score when the agent has no history yet.
func (p *Profile) RollingScore() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	outcomes := p.history.items()
	if len(outcomes) == 0 {
		return neutralScore
	}
	var sum float64
	for _, o := range outcomes {
		sum += o.Alignment
	}
	return sum / float64(len(outcomes))
}

// History returns a copy of the retained outcomes, oldest first.
func (p *Profile) History() []Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.history.items()
}

// outcomeRing is a fixed-capacity ring buffer of outcomes.
type outcomeRing struct {
	buf   []Outcome
	start int
	count int
}

func newOutcomeRing(capacity int) *outcomeRing {
	if capacity < 1 {
		capacity = 1
	}
	return &outcomeRing{buf: make([]Outcome, capacity)}
}

func (r *outcomeRing) push(outcome Outcome) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = outcome
		r.count++
		return
	}
	r.buf[r.start] = outcome
	r.start = (r.start + 1) % len(r.buf)
}

func (r *outcomeRing) items() []Outcome {
	out := make([]Outcome, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}
