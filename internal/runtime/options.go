package runtime

import (
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/hookflow/hookflow/internal/config"
	"github.com/hookflow/hookflow/internal/storage"
)

// Option is a functional option for configuring a Runtime.
type Option func(*Runtime) error

// WithConfig uses an already-loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(rt *Runtime) error {
		rt.cfg = cfg
		return nil
	}
}

// WithFileConfig loads configuration from a YAML file (plus environment
// overrides).
func WithFileConfig(path string) Option {
	return func(rt *Runtime) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
		rt.cfg = cfg
		return nil
	}
}

// WithLogger sets the structured logger shared by all components.
func WithLogger(logger *slog.Logger) Option {
	return func(rt *Runtime) error {
		rt.logger = logger
		return nil
	}
}

// WithRunStore overrides the run-record store selected by configuration.
func WithRunStore(store storage.RunStore) Option {
	return func(rt *Runtime) error {
		rt.Store = store
		return nil
	}
}

// WithNATS connects to the messaging system at url and shares the
// connection with the message_publish tool executor.
func WithNATS(url string) Option {
	return func(rt *Runtime) error {
		conn, err := nats.Connect(url, nats.Name("hookflow"))
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		rt.nats = conn
		return nil
	}
}
