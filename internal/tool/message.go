package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

// MessageSettings configures the message_publish tool.
type MessageSettings struct {
	URL             string   `json:"url,omitempty"`
	Subject         string   `json:"subject,omitempty"`
	AllowedSubjects []string `json:"allowedSubjects,omitempty"`
	Timeout         int      `json:"timeout,omitempty"`
}

func buildMessagePublish(cfg Config, deps Deps) (Definition, error) {
	var settings MessageSettings
	if err := decodeSettings(cfg.Settings, &settings); err != nil {
		return Definition{}, err
	}
	if deps.NATS == nil && settings.URL == "" {
		return Definition{}, fmt.Errorf("message_publish tool requires a messaging connection or url")
	}
	if settings.Subject == "" && len(settings.AllowedSubjects) == 0 {
		return Definition{}, fmt.Errorf("message_publish tool requires a subject or subject allow-list")
	}

	// The connection is established on first use so a misconfigured broker
	// surfaces as a structured result, not a build failure.
	var (
		connOnce sync.Once
		conn     *nats.Conn
		connErr  error
	)
	connect := func() (*nats.Conn, error) {
		if deps.NATS != nil {
			return deps.NATS, nil
		}
		connOnce.Do(func() {
			conn, connErr = nats.Connect(settings.URL,
				nats.Timeout(settingsTimeout(settings.Timeout)))
		})
		return conn, connErr
	}

	description := "Publish a message to the messaging system."
	if settings.Subject != "" {
		description += " Default subject: " + settings.Subject + "."
	}

	return Definition{
		Name:        "message_publish",
		Description: description,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"subject": map[string]any{
					"type":        "string",
					"description": "Subject to publish to. Optional when the tool has a default.",
				},
				"message": map[string]any{
					"description": "Message payload, sent as JSON.",
				},
			},
			"required": []string{"message"},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return executeMessagePublish(ctx, settings, connect, args)
		},
	}, nil
}

func executeMessagePublish(ctx context.Context, settings MessageSettings, connect func() (*nats.Conn, error), args map[string]any) (any, error) {
	subject := stringArg(args, "subject")
	if subject == "" {
		subject = settings.Subject
	}
	if subject == "" {
		return errorResult("subject argument is required"), nil
	}
	if len(settings.AllowedSubjects) > 0 && !containsFold(settings.AllowedSubjects, subject) {
		return errorResult("subject %q is not allowed, use one of: %s", subject, strings.Join(settings.AllowedSubjects, ", ")), nil
	}

	payload, err := json.Marshal(args["message"])
	if err != nil {
		return errorResult("message payload is not serializable: %v", err), nil
	}

	conn, err := connect()
	if err != nil {
		return errorResult("messaging connection failed: %v", err), nil
	}

	if err := conn.Publish(subject, payload); err != nil {
		return errorResult("publish failed: %v", err), nil
	}
	if err := conn.FlushTimeout(settingsTimeout(settings.Timeout)); err != nil {
		return errorResult("publish was not confirmed: %v", err), nil
	}

	return map[string]any{"published": true, "subject": subject}, nil
}
