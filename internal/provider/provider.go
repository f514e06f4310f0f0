// Package provider defines the decision-model boundary used by the
// reasoning loop. Provider-native tool-call shapes are normalized into one
// internal invocation form at this boundary so nothing above it branches on
// wire format.
package provider

import (
	"context"
	"errors"
)

// ErrMissingAPIKey indicates no usable credential was configured or found
// in the environment. It is a configuration error, not a degradation.
var ErrMissingAPIKey = errors.New("no API key configured for provider")

// Message is one role-tagged conversation turn in provider-neutral form.
type Message struct {
	Role       string       `json:"role"`
	Content    string       `json:"content,omitempty"`
	ToolCalls  []Invocation `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Invocation is the normalized shape of a single tool call emitted by the
// model, regardless of the provider's native "function" or "custom" call
// format.
type Invocation struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ArgumentsJSON string `json:"arguments"`
}

// ToolSchema describes one callable tool to the model.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Request is one decision-model call: the full message history plus the
// tool schemas available this run.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSchema
	Temperature *float32
	MaxTokens   int
}

// Completion is the model's answer to one Request. Content and ToolCalls
// may both be present; a completion with no tool calls is a final answer.
type Completion struct {
	Content   string
	ToolCalls []Invocation
}

// Client is a decision-model client.
type Client interface {
	// Name identifies the provider type, e.g. "openai".
	Name() string

	// Complete performs one model call over the full conversation.
	Complete(ctx context.Context, req Request) (*Completion, error)
}
