// Package sqlite is a SQLite-backed RunStore.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/hookflow/hookflow/internal/storage"
)

// Store is a SQLite implementation of storage.RunStore.
type Store struct {
	db *sql.DB
}

var _ storage.RunStore = (*Store)(nil)

// New opens (or creates) the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL,
		node_id TEXT NOT NULL,
		status TEXT NOT NULL,
		answer TEXT,
		error TEXT,
		iterations INTEGER NOT NULL,
		tool_calls TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow_id)`)
	return err
}

// DB exposes the underlying handle; the runtime shares it with the
// database_query tool executor.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) SaveRun(ctx context.Context, rec *storage.RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs
		 (id, workflow_id, node_id, status, answer, error, iterations, tool_calls, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.WorkflowID, rec.NodeID, rec.Status, rec.Answer, rec.Error,
		rec.Iterations, rec.ToolCalls, rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*storage.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, node_id, status, answer, error, iterations, tool_calls, started_at, finished_at
		 FROM runs WHERE id = ?`, id)

	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return rec, nil
}

func (s *Store) ListRuns(ctx context.Context, workflowID string) ([]*storage.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, node_id, status, answer, error, iterations, tool_calls, started_at, finished_at
		 FROM runs WHERE workflow_id = ? ORDER BY started_at`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var result []*storage.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*storage.RunRecord, error) {
	var rec storage.RunRecord
	var answer, errText, toolCalls sql.NullString
	err := row.Scan(&rec.ID, &rec.WorkflowID, &rec.NodeID, &rec.Status,
		&answer, &errText, &rec.Iterations, &toolCalls, &rec.StartedAt, &rec.FinishedAt)
	if err != nil {
		return nil, err
	}
	rec.Answer = answer.String
	rec.Error = errText.String
	rec.ToolCalls = toolCalls.String
	return &rec, nil
}
