// Package openai implements the decision-model provider backed by the
// OpenAI Chat Completions API.
package openai

import (
	"context"
	"fmt"

	openaiapi "github.com/hookflow/hookflow/internal/api/openai"
	"github.com/hookflow/hookflow/internal/provider"
)

// ProviderType is the provider type identifier used in configuration.
const ProviderType = "openai"

func init() {
	provider.RegisterFactory(provider.Factory{
		Type:        ProviderType,
		Description: "OpenAI Chat Completions API",
		Create: func(cfg provider.Config) (provider.Client, error) {
			return New(cfg)
		},
	})
}

// Provider implements provider.Client using the chat completions client.
type Provider struct {
	client *openaiapi.Client
}

// New creates a provider from configuration. A missing API key is a
// configuration error caught here, before any loop work starts.
func New(cfg provider.Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrMissingAPIKey
	}

	var clientOpts []openaiapi.ClientOption
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, openaiapi.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client: openaiapi.NewClient(cfg.APIKey, clientOpts...),
	}, nil
}

func (p *Provider) Name() string {
	return ProviderType
}

// Complete performs one chat completion and normalizes the response into
// the provider-neutral form.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (*provider.Completion, error) {
	apiReq := toAPIRequest(req)

	resp, err := p.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}

	msg := resp.Choices[0].Message
	completion := &provider.Completion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, normalizeToolCall(tc))
	}
	return completion, nil
}

func toAPIRequest(req provider.Request) *openaiapi.ChatCompletionRequest {
	apiReq := &openaiapi.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	for _, m := range req.Messages {
		apiMsg := openaiapi.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, call := range m.ToolCalls {
			apiMsg.ToolCalls = append(apiMsg.ToolCalls, openaiapi.ToolCall{
				ID:   call.ID,
				Type: "function",
				Function: openaiapi.FunctionCall{
					Name:      call.Name,
					Arguments: call.ArgumentsJSON,
				},
			})
		}
		apiReq.Messages = append(apiReq.Messages, apiMsg)
	}

	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, openaiapi.Tool{
			Type: "function",
			Function: openaiapi.FunctionTool{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return apiReq
}

// normalizeToolCall folds the provider's discriminated call shapes
// ("function" vs "custom") into the single internal invocation form.
func normalizeToolCall(tc openaiapi.ToolCall) provider.Invocation {
	inv := provider.Invocation{ID: tc.ID}
	if tc.Custom != nil {
		inv.Name = tc.Custom.Name
		inv.ArgumentsJSON = tc.Custom.Input
		return inv
	}
	inv.Name = tc.Function.Name
	inv.ArgumentsJSON = tc.Function.Arguments
	return inv
}
