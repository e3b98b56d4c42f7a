// Package coordination implements the council engine: dynamic expert
// selection, concurrent opinion gathering, consensus building, and conflict
// resolution.
package coordination

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Complexity labels how demanding a task is.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Task describes one piece of analysis work put before the council.
type Task struct {
	ID          string
	Type        string
	Description string
	// Context carries free-form key/value hints (symbol, horizon, size).
	Context map[string]string
	// RequiredCapabilities lists capability names the task calls for.
	RequiredCapabilities []string
	// Domains lists expertise domains relevant to the task.
	Domains    []string
	Complexity Complexity
	// Priority in [0,1]; above 0.7 authority starts to matter for
	// selection, above 0.8 high-authority experts are mandatory.
	Priority float64
	Deadline *time.Time
}

// NewTask builds a task with a generated ID and medium complexity.
func NewTask(taskType, description string) Task {
	return Task{
		ID:          uuid.New().String(),
		Type:        strings.TrimSpace(taskType),
		Description: strings.TrimSpace(description),
		Context:     map[string]string{},
		Complexity:  ComplexityMedium,
		Priority:    0.5,
	}
}

// Validate checks the task is well-formed.
func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("coordination: task id is required")
	}
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("coordination: task %s has no description", t.ID)
	}
	if t.Priority < 0 || t.Priority > 1 {
		return fmt.Errorf("coordination: task %s priority must be in [0,1]", t.ID)
	}
	switch t.Complexity {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
	default:
		return fmt.Errorf("coordination: task %s has unknown complexity %q", t.ID, t.Complexity)
	}
	return nil
}

// Symbol returns the ticker the task concerns, when provided.
func (t Task) Symbol() string {
	return strings.TrimSpace(t.Context["symbol"])
}
