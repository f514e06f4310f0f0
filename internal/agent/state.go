// Package agent implements the bounded reasoning loop: a think/act/observe
// cycle that drives a decision model, dispatches tool calls, folds
// observations back into conversation state, and publishes progress through
// the broadcast hub.
package agent

import (
	"time"

	"github.com/hookflow/hookflow/internal/provider"
)

// Step is the loop's current phase.
type Step string

const (
	StepReason   Step = "reason"
	StepAct      Step = "act"
	StepObserve  Step = "observe"
	StepComplete Step = "complete"
)

// Status is the terminal outcome of a run.
type Status string

const (
	StatusCompleted     Status = "completed"
	StatusMaxIterations Status = "max_iterations"
	StatusError         Status = "error"
)

// Iteration bounds.
const (
	DefaultMaxIterations = 10
	MinIterationsLimit   = 1
	MaxIterationsLimit   = 20
)

// ToolCallRecord is one entry in the audit log of tool activity.
type ToolCallRecord struct {
	Tool      string    `json:"tool"`
	Input     any       `json:"input"`
	Output    any       `json:"output"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the working state of one run. It exists from loop start to loop
// end and is never persisted by this package; the caller decides what to do
// with the returned Result.
type State struct {
	Input      string
	Messages   []provider.Message
	ToolCalls  []ToolCallRecord
	Step       Step
	Iterations int
	Output     string
	Error      string
}

// Result is the output contract returned to the caller regardless of
// outcome. It is always structurally complete so downstream workflow steps
// can rely on its shape even on failure.
type Result struct {
	Answer     string             `json:"answer"`
	ToolCalls  []ToolCallRecord   `json:"toolCalls"`
	Iterations int                `json:"iterations"`
	Status     Status             `json:"status"`
	Messages   []provider.Message `json:"messages"`
	Error      string             `json:"error,omitempty"`
}

func (s *State) result(status Status) *Result {
	res := &Result{
		Answer:     s.Output,
		ToolCalls:  s.ToolCalls,
		Iterations: s.Iterations,
		Status:     status,
		Messages:   s.Messages,
		Error:      s.Error,
	}
	if res.ToolCalls == nil {
		res.ToolCalls = []ToolCallRecord{}
	}
	if res.Messages == nil {
		res.Messages = []provider.Message{}
	}
	return res
}

// clampIterations bounds the caller-supplied iteration cap.
func clampIterations(n int) int {
	if n <= 0 {
		return DefaultMaxIterations
	}
	if n < MinIterationsLimit {
		return MinIterationsLimit
	}
	if n > MaxIterationsLimit {
		return MaxIterationsLimit
	}
	return n
}
