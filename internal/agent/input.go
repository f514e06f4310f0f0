package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// fallbackGreeting seeds the model when no input can be resolved from any
// source; the model must never be left with an empty prompt.
const fallbackGreeting = "Hello! Please introduce yourself and explain what you can help with."

// inputFields are checked on the node's input, in precedence order.
var inputFields = []string{"query", "prompt", "message", "input"}

// ResolveInput determines the seed user text for a run. Precedence, first
// match wins: an explicit input field on the node's input; the webhook
// trigger's body; the nearest upstream node's output; a generic greeting.
func ResolveInput(fields map[string]any, triggerBody any, upstreamOutput any) string {
	for _, key := range inputFields {
		if v, ok := fields[key]; ok {
			if s := stringify(v); s != "" {
				return s
			}
		}
	}
	if s := stringify(triggerBody); s != "" {
		return s
	}
	if s := stringify(upstreamOutput); s != "" {
		return s
	}
	return fallbackGreeting
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		s := string(encoded)
		if s == "{}" || s == "[]" || s == "null" {
			return ""
		}
		return s
	}
}
