package hub

import "time"

// EventType discriminates the broadcast event union.
type EventType string

const (
	EventConnected  EventType = "connected"
	EventAgentStart EventType = "agent_start"
	EventAgentThink EventType = "agent_thinking"
	EventToolStart  EventType = "agent_tool_start"
	EventToolEnd    EventType = "agent_tool_end"
	EventAgentDone  EventType = "agent_complete"
	EventAgentError EventType = "agent_error"
	EventNodeOutput EventType = "node_output"
)

// Event is a single progress event broadcast to stream subscribers.
// Events are transient: they are forwarded to currently-open subscriptions
// and never stored.
type Event struct {
	Type       EventType `json:"type"`
	WorkflowID string    `json:"workflowId,omitempty"`
	NodeID     string    `json:"nodeId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`

	// Type-specific fields.
	Iteration int    `json:"iteration,omitempty"`
	Tool      string `json:"tool,omitempty"`
	ToolIndex int    `json:"toolIndex,omitempty"`
	Input     any    `json:"input,omitempty"`
	Output    any    `json:"output,omitempty"`
	Answer    string `json:"answer,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

// NewEvent stamps a new event of the given type.
func NewEvent(typ EventType, nodeID string) Event {
	return Event{Type: typ, NodeID: nodeID, Timestamp: time.Now().UTC()}
}
