package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hookflow/hookflow/internal/hub"
	"github.com/hookflow/hookflow/internal/provider"
	"github.com/hookflow/hookflow/internal/storage"
	"github.com/hookflow/hookflow/internal/tool"
)

const defaultSystemPrompt = "You are a helpful assistant embedded in an automated workflow. " +
	"Use the available tools when they help you answer. " +
	"When you have enough information, reply with your final answer as plain text."

// Config is the per-node agent configuration resolved by the caller. Tool
// identity comes from here, not from a global registry: two runs may expose
// different tool sets under the same names.
type Config struct {
	Provider      provider.Config `json:"provider"`
	SystemPrompt  string          `json:"systemPrompt,omitempty"`
	MaxIterations int             `json:"maxIterations,omitempty"`
	Tools         []tool.Config   `json:"tools,omitempty"`
}

// RunInput is the resolved input handed to one node execution.
type RunInput struct {
	WorkflowID     string         `json:"workflowId"`
	NodeID         string         `json:"nodeId"`
	Fields         map[string]any `json:"fields,omitempty"`
	TriggerBody    any            `json:"triggerBody,omitempty"`
	UpstreamOutput any            `json:"upstreamOutput,omitempty"`
}

// Runner executes reasoning loops. One Runner serves the whole process; a
// fresh State is created per run and discarded at loop end.
type Runner struct {
	hub    *hub.Hub
	store  storage.RunStore
	deps   tool.Deps
	logger *slog.Logger

	// newClient is swappable for tests.
	newClient func(provider.Config) (provider.Client, error)
}

// NewRunner creates a runner. store may be nil when run recording is
// disabled.
func NewRunner(h *hub.Hub, store storage.RunStore, deps tool.Deps, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		hub:       h,
		store:     store,
		deps:      deps,
		logger:    logger,
		newClient: provider.New,
	}
}

// Run executes the bounded reason/act/observe cycle for one node. It never
// panics or returns a Go error to the caller: every outcome, including a
// decision-model failure, is folded into the uniform Result.
func (r *Runner) Run(ctx context.Context, cfg Config, in RunInput) *Result {
	started := time.Now()
	maxIterations := clampIterations(cfg.MaxIterations)

	state := &State{Step: StepReason}
	state.Input = ResolveInput(in.Fields, in.TriggerBody, in.UpstreamOutput)

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	state.Messages = []provider.Message{
		{Role: provider.RoleSystem, Content: systemPrompt},
		{Role: provider.RoleUser, Content: state.Input},
	}

	r.publish(in, hub.EventAgentStart, func(ev *hub.Event) {
		ev.Input = state.Input
	})

	client, err := r.newClient(r.resolveProvider(cfg.Provider))
	if err != nil {
		state.Error = fmt.Sprintf("provider configuration: %v", err)
		return r.finish(ctx, state, StatusError, in, started)
	}

	definitions := tool.Build(cfg.Tools, r.deps)
	schemas := make([]provider.ToolSchema, len(definitions))
	byName := make(map[string]tool.Definition, len(definitions))
	for i, def := range definitions {
		schemas[i] = provider.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		}
		byName[def.Name] = def
	}

	for state.Iterations < maxIterations {
		state.Iterations++
		state.Step = StepReason

		r.publish(in, hub.EventAgentThink, func(ev *hub.Event) {
			ev.Iteration = state.Iterations
		})

		completion, err := client.Complete(ctx, provider.Request{
			Model:    cfg.Provider.Model,
			Messages: state.Messages,
			Tools:    schemas,
		})
		if err != nil {
			// A decision-model failure is fatal for the run; tool failures
			// below are not.
			state.Error = fmt.Sprintf("decision model call failed: %v", err)
			return r.finish(ctx, state, StatusError, in, started)
		}

		if len(completion.ToolCalls) == 0 {
			state.Output = completion.Content
			state.Messages = append(state.Messages, provider.Message{
				Role:    provider.RoleAssistant,
				Content: completion.Content,
			})
			return r.finish(ctx, state, StatusCompleted, in, started)
		}

		// Record the assistant turn with its call identifiers first so the
		// tool-result turns below can be correlated back to it.
		calls := completion.ToolCalls
		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = "call_" + uuid.NewString()
			}
		}
		state.Messages = append(state.Messages, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: calls,
		})

		state.Step = StepAct
		for i, call := range calls {
			output := r.executeCall(ctx, byName, call, i, in)

			state.Step = StepObserve
			state.ToolCalls = append(state.ToolCalls, ToolCallRecord{
				Tool:      call.Name,
				Input:     parseArguments(call.ArgumentsJSON),
				Output:    output,
				Timestamp: time.Now().UTC(),
			})
			state.Messages = append(state.Messages, provider.Message{
				Role:       provider.RoleTool,
				Content:    serializeResult(output),
				ToolCallID: call.ID,
			})
		}
	}

	state.Output = r.fallbackAnswer(state, maxIterations)
	return r.finish(ctx, state, StatusMaxIterations, in, started)
}

// executeCall runs one tool invocation with its own bounded timeout and
// converts every failure into a structured observation.
func (r *Runner) executeCall(ctx context.Context, byName map[string]tool.Definition, call provider.Invocation, index int, in RunInput) any {
	args := parseArguments(call.ArgumentsJSON)

	r.publish(in, hub.EventToolStart, func(ev *hub.Event) {
		ev.Tool = call.Name
		ev.ToolIndex = index
		ev.Input = args
	})

	var output any
	def, ok := byName[call.Name]
	switch {
	case !ok:
		output = map[string]any{"error": fmt.Sprintf("tool %q is not available", call.Name)}
	case args == nil:
		output = map[string]any{"error": "tool arguments were not valid JSON"}
	default:
		result, err := def.Execute(ctx, args)
		if err != nil {
			output = map[string]any{"error": err.Error()}
		} else {
			output = result
		}
	}

	r.publish(in, hub.EventToolEnd, func(ev *hub.Event) {
		ev.Tool = call.Name
		ev.ToolIndex = index
		ev.Output = output
	})

	return output
}

func (r *Runner) finish(ctx context.Context, state *State, status Status, in RunInput, started time.Time) *Result {
	state.Step = StepComplete
	result := state.result(status)

	switch status {
	case StatusError:
		r.publish(in, hub.EventAgentError, func(ev *hub.Event) {
			ev.Error = state.Error
			ev.Iteration = state.Iterations
		})
	default:
		r.publish(in, hub.EventAgentDone, func(ev *hub.Event) {
			ev.Answer = result.Answer
			ev.Iteration = state.Iterations
		})
	}
	r.publish(in, hub.EventNodeOutput, func(ev *hub.Event) {
		ev.Output = map[string]any{
			"answer":     result.Answer,
			"status":     string(result.Status),
			"iterations": result.Iterations,
		}
	})

	r.record(ctx, result, in, started)
	return result
}

// record saves the run summary, best effort: a storage failure is logged
// and never affects the run outcome.
func (r *Runner) record(ctx context.Context, result *Result, in RunInput, started time.Time) {
	if r.store == nil {
		return
	}

	toolCalls, err := json.Marshal(result.ToolCalls)
	if err != nil {
		toolCalls = []byte("[]")
	}
	rec := &storage.RunRecord{
		ID:         uuid.NewString(),
		WorkflowID: in.WorkflowID,
		NodeID:     in.NodeID,
		Status:     string(result.Status),
		Answer:     result.Answer,
		Error:      result.Error,
		Iterations: result.Iterations,
		ToolCalls:  string(toolCalls),
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
	}
	if err := r.store.SaveRun(ctx, rec); err != nil {
		r.logger.Warn("failed to record run",
			slog.String("workflow_id", in.WorkflowID),
			slog.String("node_id", in.NodeID),
			slog.String("error", err.Error()))
	}
}

// fallbackAnswer synthesizes a final message when the iteration cap is hit
// without the model producing one.
func (r *Runner) fallbackAnswer(state *State, maxIterations int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I was unable to produce a final answer within %d reasoning steps.", maxIterations)

	recent := state.ToolCalls
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	if len(recent) > 0 {
		names := make([]string, len(recent))
		for i, call := range recent {
			names[i] = call.Tool
		}
		fmt.Fprintf(&b, " Most recent tool activity: %s.", strings.Join(names, ", "))
	}
	return b.String()
}

// resolveProvider fills the API key from the environment-scoped secret when
// node configuration leaves it empty.
func (r *Runner) resolveProvider(cfg provider.Config) provider.Config {
	if cfg.Type == "" {
		cfg.Type = "openai"
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(strings.ToUpper(cfg.Type) + "_API_KEY")
	}
	return cfg
}

func (r *Runner) publish(in RunInput, typ hub.EventType, fill func(*hub.Event)) {
	if r.hub == nil {
		return
	}
	ev := hub.NewEvent(typ, in.NodeID)
	if fill != nil {
		fill(&ev)
	}
	r.hub.Publish(in.WorkflowID, ev)
}

// parseArguments decodes the model-supplied JSON arguments. It returns nil
// when the payload is present but malformed, which the loop converts into a
// structured error observation.
func parseArguments(argumentsJSON string) map[string]any {
	if strings.TrimSpace(argumentsJSON) == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
		return nil
	}
	if args == nil {
		return map[string]any{}
	}
	return args
}

func serializeResult(output any) string {
	encoded, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprint(output)
	}
	return string(encoded)
}
