package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// HTTPSettings configures the http_request tool.
type HTTPSettings struct {
	URL            string            `json:"url"`
	AllowedMethods []string          `json:"allowedMethods,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Timeout        int               `json:"timeout,omitempty"`
}

func buildHTTPRequest(cfg Config, deps Deps) (Definition, error) {
	var settings HTTPSettings
	if err := decodeSettings(cfg.Settings, &settings); err != nil {
		return Definition{}, err
	}
	if settings.URL == "" {
		return Definition{}, fmt.Errorf("http_request tool requires a url")
	}
	if _, err := url.Parse(settings.URL); err != nil {
		return Definition{}, fmt.Errorf("http_request tool url is invalid: %w", err)
	}

	allowed := settings.AllowedMethods
	if len(allowed) == 0 {
		allowed = []string{http.MethodGet, http.MethodPost}
	}
	for i, m := range allowed {
		allowed[i] = strings.ToUpper(m)
	}

	return Definition{
		Name:        "http_request",
		Description: "Make an HTTP request to " + settings.URL + ". Use for fetching or sending data to external APIs.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"method": map[string]any{
					"type":        "string",
					"description": "HTTP method, one of: " + strings.Join(allowed, ", "),
				},
				"path": map[string]any{
					"type":        "string",
					"description": "Path appended to the configured URL.",
				},
				"query": map[string]any{
					"type":        "object",
					"description": "Query parameters.",
				},
				"body": map[string]any{
					"description": "Request body, sent as JSON.",
				},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return executeHTTPRequest(ctx, settings, allowed, deps, args)
		},
	}, nil
}

func executeHTTPRequest(ctx context.Context, settings HTTPSettings, allowed []string, deps Deps, args map[string]any) (any, error) {
	method := strings.ToUpper(stringArg(args, "method"))
	if method == "" {
		method = allowed[0]
	}
	if !slices.Contains(allowed, method) {
		return errorResult("method %s is not allowed, use one of: %s", method, strings.Join(allowed, ", ")), nil
	}

	target := settings.URL + stringArg(args, "path")
	u, err := url.Parse(target)
	if err != nil {
		return errorResult("invalid request target %q: %v", target, err), nil
	}
	if query, ok := args["query"].(map[string]any); ok {
		q := u.Query()
		for k, v := range query {
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if raw, ok := args["body"]; ok && raw != nil {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return errorResult("request body is not serializable: %v", err), nil
		}
		body = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(ctx, settingsTimeout(settings.Timeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range settings.Headers {
		req.Header.Set(k, v)
	}

	resp, err := deps.httpClient().Do(req)
	if err != nil {
		return errorResult("request failed: %v", err), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errorResult("failed to read response: %v", err), nil
	}

	// Non-2xx is an expected outcome the model should see, not a failure of
	// the tool itself.
	result := map[string]any{
		"status": resp.StatusCode,
	}
	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err == nil {
		result["body"] = parsed
	} else {
		result["body"] = string(respBody)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result["error"] = fmt.Sprintf("upstream returned status %d", resp.StatusCode)
	}
	return result, nil
}
