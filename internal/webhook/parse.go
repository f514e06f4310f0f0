package webhook

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// maxBodyBytes bounds how much of an inbound webhook body is read.
const maxBodyBytes = 4 << 20

// sensitiveHeaders are stripped from stored inbound events.
var sensitiveHeaders = map[string]struct{}{
	"cookie":        {},
	"authorization": {},
}

// parseBody decodes the request body according to its content type:
// JSON and form-encoded bodies become structured values, text bodies become
// strings, and anything else gets a best-effort JSON parse that defaults to
// an empty object on failure.
func parseBody(r *http.Request) any {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(raw) == 0 {
		return map[string]any{}
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	switch {
	case mediaType == "application/json":
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return map[string]any{}
		}
		return parsed
	case mediaType == "application/x-www-form-urlencoded":
		return parseForm(string(raw))
	case strings.HasPrefix(mediaType, "text/"):
		return string(raw)
	default:
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return map[string]any{}
		}
		return parsed
	}
}

func parseForm(body string) map[string]any {
	parsed, err := url.ParseQuery(body)
	if err != nil {
		return map[string]any{}
	}
	values := make(map[string]any, len(parsed))
	for key, vals := range parsed {
		if len(vals) > 0 {
			values[key] = vals[0]
		}
	}
	return values
}

// queryValues flattens the URL query to first values.
func queryValues(r *http.Request) map[string]string {
	query := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}
	return query
}

// sanitizedHeaders lowercases header names and strips sensitive ones.
func sanitizedHeaders(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for key, values := range h {
		lower := strings.ToLower(key)
		if _, sensitive := sensitiveHeaders[lower]; sensitive {
			continue
		}
		if len(values) > 0 {
			headers[lower] = values[0]
		}
	}
	return headers
}
