package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// CustomSettings configures a fully caller-defined tool. When Endpoint is
// set, execution POSTs the arguments to it as JSON; otherwise the tool is a
// stub that acknowledges the call.
type CustomSettings struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Endpoint    string         `json:"endpoint,omitempty"`
	Timeout     int            `json:"timeout,omitempty"`
}

func buildCustom(cfg Config, deps Deps) (Definition, error) {
	var settings CustomSettings
	if err := decodeSettings(cfg.Settings, &settings); err != nil {
		return Definition{}, err
	}
	if settings.Name == "" {
		return Definition{}, fmt.Errorf("custom tool requires a name")
	}

	description := settings.Description
	if description == "" {
		description = "Caller-defined tool " + settings.Name + "."
	}

	return Definition{
		Name:        settings.Name,
		Description: description,
		Parameters:  settings.Parameters,
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return executeCustom(ctx, settings, deps, args)
		},
	}, nil
}

func executeCustom(ctx context.Context, settings CustomSettings, deps Deps, args map[string]any) (any, error) {
	if settings.Endpoint == "" {
		// Stub tool: acknowledge the call so the model can proceed.
		return map[string]any{
			"acknowledged": true,
			"tool":         settings.Name,
			"arguments":    args,
		}, nil
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return errorResult("arguments are not serializable: %v", err), nil
	}

	ctx, cancel := context.WithTimeout(ctx, settingsTimeout(settings.Timeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := deps.httpClient().Do(req)
	if err != nil {
		return errorResult("endpoint call failed: %v", err), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errorResult("failed to read endpoint response: %v", err), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorResult("endpoint returned status %d: %s", resp.StatusCode, string(body)), nil
	}

	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return map[string]any{"result": string(body)}, nil
	}
	return parsed, nil
}
