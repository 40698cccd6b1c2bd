package agent

import (
	"time"

	"github.com/idris/kestrel/pkg/tools"
)

// Status is a run's lifecycle state. All states other than running are
// terminal; a run never transitions out of a terminal state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusMaxSteps  Status = "max_steps"
)

// Terminal reports whether the status ends a run.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// Step records one loop iteration that produced a visible action. Steps
// are appended to the run's sequence and never mutated afterwards.
type Step struct {
	Index       int            `json:"index"`
	ID          string         `json:"id"`
	Thought     string         `json:"thought,omitempty"`
	Tool        string         `json:"tool,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	Observation string         `json:"observation,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Duration    time.Duration  `json:"duration"`
}

// Run is the aggregate result of one agent execution. It is owned
// exclusively by the orchestrator while running and becomes immutable once
// a terminal status is assigned.
type Run struct {
	ID          string        `json:"id"`
	Goal        string        `json:"goal"`
	Status      Status        `json:"status"`
	Steps       []Step        `json:"steps"`
	Result      string        `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
	Provider    string        `json:"provider,omitempty"` // served the first successful step
	Model       string        `json:"model,omitempty"`
	ToolsUsed   []string      `json:"tools_used,omitempty"` // de-duplicated
}

// Callbacks are invoked synchronously at the corresponding point in the
// loop. A callback that blocks stalls the run; callers own that risk.
type Callbacks struct {
	OnStep          func(Step)
	OnToolCall      func(tool string, params map[string]any)
	OnToolResult    func(tool string, result tools.Result)
	OnComplete      func(*Run)
	OnError         func(error)
	OnConfirmAction func(tool string, params map[string]any) bool
}

func (c *Callbacks) confirm(tool string, params map[string]any) bool {
	if c == nil || c.OnConfirmAction == nil {
		// No confirmer wired means nobody can approve; decline.
		return false
	}
	return c.OnConfirmAction(tool, params)
}

func (c *Callbacks) step(s Step) {
	if c != nil && c.OnStep != nil {
		c.OnStep(s)
	}
}

func (c *Callbacks) toolCall(tool string, params map[string]any) {
	if c != nil && c.OnToolCall != nil {
		c.OnToolCall(tool, params)
	}
}

func (c *Callbacks) toolResult(tool string, result tools.Result) {
	if c != nil && c.OnToolResult != nil {
		c.OnToolResult(tool, result)
	}
}

func (c *Callbacks) complete(r *Run) {
	if c != nil && c.OnComplete != nil {
		c.OnComplete(r)
	}
}

func (c *Callbacks) failed(err error) {
	if c != nil && c.OnError != nil {
		c.OnError(err)
	}
}
