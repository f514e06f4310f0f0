// Package runtime owns the process-wide coordination state: the broadcast
// hub, the synchronization bridge, the run store, and the HTTP server. It
// is constructed once at startup and passed to the handlers, keeping the
// lifecycle of the shared in-memory stores explicit and testable.
package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/hookflow/hookflow/internal/agent"
	"github.com/hookflow/hookflow/internal/bridge"
	"github.com/hookflow/hookflow/internal/config"
	"github.com/hookflow/hookflow/internal/hub"
	"github.com/hookflow/hookflow/internal/server"
	"github.com/hookflow/hookflow/internal/storage"
	"github.com/hookflow/hookflow/internal/storage/memory"
	sqlitestore "github.com/hookflow/hookflow/internal/storage/sqlite"
	"github.com/hookflow/hookflow/internal/tool"
	"github.com/hookflow/hookflow/internal/webhook"

	// Register built-in decision-model providers.
	_ "github.com/hookflow/hookflow/internal/provider/openai"
)

// Runtime wires the coordination core together.
type Runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	Hub    *hub.Hub
	Bridge *bridge.Bridge
	Store  storage.RunStore
	Runner *agent.Runner
	Server *server.Server

	nats   *nats.Conn
	cancel context.CancelFunc
}

// New builds a runtime from configuration and options.
func New(opts ...Option) (*Runtime, error) {
	rt := &Runtime{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(rt); err != nil {
			return nil, err
		}
	}

	if rt.cfg == nil {
		cfg, err := config.Load("")
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		rt.cfg = cfg
	}

	rt.Hub = hub.New()
	rt.Bridge = bridge.New(bridge.WithLogger(rt.logger))

	if rt.Store == nil {
		store, err := openStore(rt.cfg)
		if err != nil {
			return nil, err
		}
		rt.Store = store
	}

	deps := tool.Deps{
		Logger: rt.logger,
		NATS:   rt.nats,
	}
	if sqliteStore, ok := rt.Store.(*sqlitestore.Store); ok {
		deps.DB = sqliteStore.DB()
	}
	rt.Runner = agent.NewRunner(rt.Hub, rt.Store, deps, rt.logger)

	rt.Server = server.New(rt.cfg.Server.Port, rt.logger)
	handler := webhook.NewHandler(rt.Bridge, rt.Hub, rt.Runner, rt.logger, rt.cfg.ResponseTimeoutDuration())
	handler.Register(rt.Server.Router)

	return rt, nil
}

func openStore(cfg *config.Config) (storage.RunStore, error) {
	switch cfg.Storage.Type {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		path := cfg.Storage.SQLite.Path
		if path == "" {
			path = "./data/hookflow.db"
		}
		store, err := sqlitestore.New(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

// Start launches the background sweep and the HTTP server. It blocks until
// the server stops.
func (rt *Runtime) Start(ctx context.Context) error {
	ctx, rt.cancel = context.WithCancel(ctx)
	go rt.Bridge.Run(ctx)
	return rt.Server.Start()
}

// Shutdown stops the server, the sweep, and releases held resources.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	if rt.cancel != nil {
		rt.cancel()
	}
	if rt.nats != nil {
		rt.nats.Close()
	}
	if err := rt.Server.Shutdown(ctx); err != nil {
		return err
	}
	return rt.Store.Close()
}
