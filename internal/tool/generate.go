package tool

import (
	"context"
	"fmt"
	"os"

	"github.com/hookflow/hookflow/internal/provider"
)

// GenerateSettings configures the llm_generate tool: a second language
// model used for content generation, distinct from the loop's own
// decision-making model.
type GenerateSettings struct {
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model"`
	APIKey       string `json:"apiKey,omitempty"`
	BaseURL      string `json:"baseUrl,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
	MaxTokens    int    `json:"maxTokens,omitempty"`
	Timeout      int    `json:"timeout,omitempty"`
}

func buildGenerate(cfg Config, deps Deps) (Definition, error) {
	var settings GenerateSettings
	if err := decodeSettings(cfg.Settings, &settings); err != nil {
		return Definition{}, err
	}
	if settings.Model == "" {
		return Definition{}, fmt.Errorf("llm_generate tool requires a model")
	}
	if settings.Provider == "" {
		settings.Provider = "openai"
	}

	client, err := provider.New(provider.Config{
		Type:    settings.Provider,
		APIKey:  resolveAPIKey(settings.APIKey),
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
	})
	if err != nil {
		return Definition{}, fmt.Errorf("llm_generate tool: %w", err)
	}

	return Definition{
		Name:        "llm_generate",
		Description: "Generate text content with a language model. Use for drafting, summarizing, or rewriting text.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "What to generate.",
				},
			},
			"required": []string{"prompt"},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return executeGenerate(ctx, settings, client, args)
		},
	}, nil
}

func executeGenerate(ctx context.Context, settings GenerateSettings, client provider.Client, args map[string]any) (any, error) {
	prompt := stringArg(args, "prompt")
	if prompt == "" {
		return errorResult("prompt argument is required"), nil
	}

	ctx, cancel := context.WithTimeout(ctx, settingsTimeout(settings.Timeout))
	defer cancel()

	var messages []provider.Message
	if settings.SystemPrompt != "" {
		messages = append(messages, provider.Message{
			Role:    provider.RoleSystem,
			Content: settings.SystemPrompt,
		})
	}
	messages = append(messages, provider.Message{
		Role:    provider.RoleUser,
		Content: prompt,
	})

	completion, err := client.Complete(ctx, provider.Request{
		Model:     settings.Model,
		Messages:  messages,
		MaxTokens: settings.MaxTokens,
	})
	if err != nil {
		return errorResult("generation failed: %v", err), nil
	}

	return map[string]any{"text": completion.Content}, nil
}

// resolveAPIKey falls back to the environment-scoped secret when the node
// configuration leaves the key empty.
func resolveAPIKey(configured string) string {
	if configured != "" {
		return configured
	}
	return os.Getenv("OPENAI_API_KEY")
}
