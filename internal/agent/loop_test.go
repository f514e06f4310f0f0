package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hookflow/hookflow/internal/hub"
	"github.com/hookflow/hookflow/internal/provider"
	"github.com/hookflow/hookflow/internal/storage/memory"
	"github.com/hookflow/hookflow/internal/tool"
)

// stubClient scripts decision-model responses for the loop.
type stubClient struct {
	completions []*provider.Completion
	err         error
	requests    []provider.Request
}

func (s *stubClient) Name() string { return "stub" }

func (s *stubClient) Complete(ctx context.Context, req provider.Request) (*provider.Completion, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	idx := len(s.requests) - 1
	if idx >= len(s.completions) {
		// Repeat the last scripted completion.
		idx = len(s.completions) - 1
	}
	return s.completions[idx], nil
}

func newTestRunner(client provider.Client) (*Runner, *stubClient) {
	stub, _ := client.(*stubClient)
	r := NewRunner(hub.New(), nil, tool.Deps{}, nil)
	r.newClient = func(provider.Config) (provider.Client, error) {
		return client, nil
	}
	return r, stub
}

func echoToolConfig() tool.Config {
	return tool.Config{
		Kind: tool.KindCustom,
		Settings: map[string]any{
			"name":        "echo",
			"description": "Echo the arguments back.",
		},
	}
}

func toolCallCompletion(id, name, args string) *provider.Completion {
	return &provider.Completion{
		ToolCalls: []provider.Invocation{
			{ID: id, Name: name, ArgumentsJSON: args},
		},
	}
}

func TestRun_TextOnlyCompletesFirstIteration(t *testing.T) {
	r, stub := newTestRunner(&stubClient{
		completions: []*provider.Completion{
			{Content: "the answer is 42"},
		},
	})

	result := r.Run(context.Background(), Config{}, RunInput{
		WorkflowID: "wf1",
		NodeID:     "n1",
		Fields:     map[string]any{"query": "what is the answer?"},
	})

	if result.Status != StatusCompleted {
		t.Fatalf("status = %q, want %q", result.Status, StatusCompleted)
	}
	if result.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", result.Iterations)
	}
	if result.Answer != "the answer is 42" {
		t.Errorf("answer = %q", result.Answer)
	}
	if len(stub.requests) != 1 {
		t.Errorf("model called %d times, want 1", len(stub.requests))
	}
	if len(result.ToolCalls) != 0 {
		t.Errorf("tool call log should be empty, got %d entries", len(result.ToolCalls))
	}
}

func TestRun_AlwaysToolCallsHitsIterationCap(t *testing.T) {
	r, stub := newTestRunner(&stubClient{
		completions: []*provider.Completion{
			toolCallCompletion("call_1", "echo", `{"n":1}`),
		},
	})

	result := r.Run(context.Background(), Config{
		MaxIterations: 3,
		Tools:         []tool.Config{echoToolConfig()},
	}, RunInput{WorkflowID: "wf1", NodeID: "n1"})

	if result.Status != StatusMaxIterations {
		t.Fatalf("status = %q, want %q", result.Status, StatusMaxIterations)
	}
	if result.Iterations != 3 {
		t.Errorf("iterations = %d, want exactly 3", result.Iterations)
	}
	if len(stub.requests) != 3 {
		t.Errorf("model called %d times, want 3", len(stub.requests))
	}
	if result.Answer == "" {
		t.Error("cap-hit runs must synthesize a fallback answer")
	}
	if !strings.Contains(result.Answer, "echo") {
		t.Errorf("fallback answer should mention recent tool activity, got %q", result.Answer)
	}
}

func TestRun_IterationCapIsClamped(t *testing.T) {
	r, _ := newTestRunner(&stubClient{
		completions: []*provider.Completion{
			toolCallCompletion("call_1", "echo", `{}`),
		},
	})

	result := r.Run(context.Background(), Config{
		MaxIterations: 50,
		Tools:         []tool.Config{echoToolConfig()},
	}, RunInput{WorkflowID: "wf1", NodeID: "n1"})

	if result.Iterations != MaxIterationsLimit {
		t.Errorf("iterations = %d, want clamp at %d", result.Iterations, MaxIterationsLimit)
	}
}

func TestRun_ToolCallIDRoundTrip(t *testing.T) {
	r, _ := newTestRunner(&stubClient{
		completions: []*provider.Completion{
			{ToolCalls: []provider.Invocation{
				{ID: "call_a", Name: "echo", ArgumentsJSON: `{"step":1}`},
				{ID: "call_b", Name: "echo", ArgumentsJSON: `{"step":2}`},
			}},
			toolCallCompletion("call_c", "echo", `{"step":3}`),
			{Content: "done"},
		},
	})

	result := r.Run(context.Background(), Config{
		Tools: []tool.Config{echoToolConfig()},
	}, RunInput{WorkflowID: "wf1", NodeID: "n1"})

	if result.Status != StatusCompleted {
		t.Fatalf("status = %q", result.Status)
	}

	// Every tool-role message must answer a tool call recorded on the
	// assistant turn before it.
	pending := map[string]bool{}
	for _, msg := range result.Messages {
		switch msg.Role {
		case provider.RoleAssistant:
			for _, call := range msg.ToolCalls {
				pending[call.ID] = true
			}
		case provider.RoleTool:
			if msg.ToolCallID == "" {
				t.Error("tool message missing tool_call_id")
				continue
			}
			if !pending[msg.ToolCallID] {
				t.Errorf("tool message answers unknown call id %q", msg.ToolCallID)
			}
			delete(pending, msg.ToolCallID)
		}
	}
	if len(pending) != 0 {
		t.Errorf("unanswered tool calls: %v", pending)
	}
	if len(result.ToolCalls) != 3 {
		t.Errorf("tool call log has %d entries, want 3", len(result.ToolCalls))
	}
}

func TestRun_SynthesizesMissingCallIDs(t *testing.T) {
	r, _ := newTestRunner(&stubClient{
		completions: []*provider.Completion{
			toolCallCompletion("", "echo", `{}`),
			{Content: "done"},
		},
	})

	result := r.Run(context.Background(), Config{
		Tools: []tool.Config{echoToolConfig()},
	}, RunInput{WorkflowID: "wf1", NodeID: "n1"})

	for _, msg := range result.Messages {
		if msg.Role == provider.RoleTool && msg.ToolCallID == "" {
			t.Error("tool message must carry a synthesized call id")
		}
	}
}

func TestRun_ModelErrorAbortsImmediately(t *testing.T) {
	r, stub := newTestRunner(&stubClient{
		err: errors.New("upstream unavailable"),
	})

	result := r.Run(context.Background(), Config{}, RunInput{WorkflowID: "wf1", NodeID: "n1"})

	if result.Status != StatusError {
		t.Fatalf("status = %q, want %q", result.Status, StatusError)
	}
	if result.Error == "" {
		t.Error("error status must carry an error description")
	}
	if len(stub.requests) != 1 {
		t.Errorf("loop must abort after the failed call, made %d calls", len(stub.requests))
	}
	// The contract is structurally complete even on failure.
	if result.ToolCalls == nil || result.Messages == nil {
		t.Error("result must be structurally complete on error")
	}
}

func TestRun_MissingCredentialIsError(t *testing.T) {
	r := NewRunner(hub.New(), nil, tool.Deps{}, nil)
	r.newClient = func(provider.Config) (provider.Client, error) {
		return nil, provider.ErrMissingAPIKey
	}

	result := r.Run(context.Background(), Config{}, RunInput{WorkflowID: "wf1", NodeID: "n1"})
	if result.Status != StatusError {
		t.Fatalf("status = %q, want %q", result.Status, StatusError)
	}
	if !strings.Contains(result.Error, "provider configuration") {
		t.Errorf("error = %q", result.Error)
	}
}

func TestRun_UnknownToolBecomesObservation(t *testing.T) {
	r, _ := newTestRunner(&stubClient{
		completions: []*provider.Completion{
			toolCallCompletion("call_x", "no_such_tool", `{}`),
			{Content: "recovered"},
		},
	})

	result := r.Run(context.Background(), Config{}, RunInput{WorkflowID: "wf1", NodeID: "n1"})

	if result.Status != StatusCompleted {
		t.Fatalf("the loop must continue past an unknown tool, status = %q", result.Status)
	}
	found := false
	for _, msg := range result.Messages {
		if msg.Role == provider.RoleTool && strings.Contains(msg.Content, "not available") {
			found = true
		}
	}
	if !found {
		t.Error("unknown tool should be folded into conversation as an error observation")
	}
}

func TestRun_MalformedArgumentsBecomeObservation(t *testing.T) {
	r, _ := newTestRunner(&stubClient{
		completions: []*provider.Completion{
			toolCallCompletion("call_x", "echo", `{not json`),
			{Content: "recovered"},
		},
	})

	result := r.Run(context.Background(), Config{
		Tools: []tool.Config{echoToolConfig()},
	}, RunInput{WorkflowID: "wf1", NodeID: "n1"})

	if result.Status != StatusCompleted {
		t.Fatalf("status = %q", result.Status)
	}
	found := false
	for _, msg := range result.Messages {
		if msg.Role == provider.RoleTool && strings.Contains(msg.Content, "valid JSON") {
			found = true
		}
	}
	if !found {
		t.Error("malformed arguments should produce an error observation")
	}
}

func TestRun_PublishesProgressEvents(t *testing.T) {
	h := hub.New()
	sub := h.Subscribe("wf1")
	defer h.Unsubscribe(sub)

	r := NewRunner(h, nil, tool.Deps{}, nil)
	r.newClient = func(provider.Config) (provider.Client, error) {
		return &stubClient{completions: []*provider.Completion{
			toolCallCompletion("call_1", "echo", `{}`),
			{Content: "done"},
		}}, nil
	}

	r.Run(context.Background(), Config{
		Tools: []tool.Config{echoToolConfig()},
	}, RunInput{WorkflowID: "wf1", NodeID: "n1"})

	var types []hub.EventType
	timeout := time.After(time.Second)
drain:
	for {
		select {
		case ev := <-sub.Events():
			types = append(types, ev.Type)
			if ev.Type == hub.EventNodeOutput {
				break drain
			}
		case <-timeout:
			break drain
		}
	}

	want := []hub.EventType{
		hub.EventConnected,
		hub.EventAgentStart,
		hub.EventAgentThink,
		hub.EventToolStart,
		hub.EventToolEnd,
		hub.EventAgentThink,
		hub.EventAgentDone,
		hub.EventNodeOutput,
	}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Errorf("event sequence = %v, want %v", types, want)
	}
}

func TestRun_RecordsCompletedRun(t *testing.T) {
	store := memory.New()
	r := NewRunner(hub.New(), store, tool.Deps{}, nil)
	r.newClient = func(provider.Config) (provider.Client, error) {
		return &stubClient{completions: []*provider.Completion{{Content: "hi"}}}, nil
	}

	r.Run(context.Background(), Config{}, RunInput{WorkflowID: "wf1", NodeID: "n1"})

	runs, err := store.ListRuns(context.Background(), "wf1")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(runs))
	}
	rec := runs[0]
	if rec.Status != string(StatusCompleted) || rec.Answer != "hi" || rec.NodeID != "n1" {
		t.Errorf("unexpected record %+v", rec)
	}
}
