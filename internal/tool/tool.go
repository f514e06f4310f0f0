// Package tool builds the per-run set of callable tools from declarative
// node configuration. Each known kind maps to exactly one definition with a
// fixed name; unknown kinds are skipped so old runtimes tolerate new
// configuration. Executors validate their settings-derived constraints
// before any side effect, return plain structured data, and surface
// expected external failures as {"error": ...} results rather than Go
// errors; a Go error from Execute means the tool itself is unusable.
package tool

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultTimeout bounds a single tool execution when settings do not
// override it.
const DefaultTimeout = 30 * time.Second

// Kind discriminates the tool configuration variants.
type Kind string

const (
	KindHTTPRequest    Kind = "http_request"
	KindDatabaseQuery  Kind = "database_query"
	KindMessagePublish Kind = "message_publish"
	KindGenerate       Kind = "llm_generate"
	KindCustom         Kind = "custom"
)

// Config is one declarative tool entry from node configuration.
type Config struct {
	Kind     Kind           `json:"kind"`
	Settings map[string]any `json:"settings,omitempty"`
}

// Definition is a named, schema-described callable capability resolved for
// one run. Two different runs may expose different tool sets under the
// same name.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
	Execute     func(ctx context.Context, args map[string]any) (any, error)
}

// Deps carries the shared resources executors may use. Any of them may be
// nil; executors that need a missing dependency fail at execution time with
// a descriptive error.
type Deps struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
	DB         *sql.DB
	NATS       *nats.Conn
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Deps) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return http.DefaultClient
}

// Build resolves tool definitions from configuration. Unknown kinds are
// skipped with a warning; a config entry that cannot produce a definition
// (malformed settings) is likewise skipped so one bad entry does not sink
// the whole run.
func Build(configs []Config, deps Deps) []Definition {
	defs := make([]Definition, 0, len(configs))
	for _, cfg := range configs {
		var (
			def Definition
			err error
		)
		switch cfg.Kind {
		case KindHTTPRequest:
			def, err = buildHTTPRequest(cfg, deps)
		case KindDatabaseQuery:
			def, err = buildDatabaseQuery(cfg, deps)
		case KindMessagePublish:
			def, err = buildMessagePublish(cfg, deps)
		case KindGenerate:
			def, err = buildGenerate(cfg, deps)
		case KindCustom:
			def, err = buildCustom(cfg, deps)
		default:
			deps.logger().Warn("skipping unknown tool kind",
				slog.String("kind", string(cfg.Kind)))
			continue
		}
		if err != nil {
			deps.logger().Warn("skipping misconfigured tool",
				slog.String("kind", string(cfg.Kind)),
				slog.String("error", err.Error()))
			continue
		}
		defs = append(defs, def)
	}
	return defs
}

// decodeSettings round-trips the loosely-typed settings map into the typed
// settings struct for a kind.
func decodeSettings(settings map[string]any, out any) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	return nil
}

// errorResult wraps an expected external failure as structured data the
// decision model can reason about.
func errorResult(format string, args ...any) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, args...)}
}

func settingsTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(seconds) * time.Second
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
