// Package storage defines the run-record store. The coordination core keeps
// everything in process memory; completed agent runs are additionally
// recorded here for audit, best effort.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no run record exists for the given id.
var ErrNotFound = errors.New("run not found")

// RunRecord is the persisted summary of one agent run.
type RunRecord struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflowId"`
	NodeID     string    `json:"nodeId"`
	Status     string    `json:"status"`
	Answer     string    `json:"answer,omitempty"`
	Error      string    `json:"error,omitempty"`
	Iterations int       `json:"iterations"`
	ToolCalls  string    `json:"toolCalls,omitempty"` // JSON-encoded tool call log
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// RunStore persists run records.
type RunStore interface {
	SaveRun(ctx context.Context, rec *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, workflowID string) ([]*RunRecord, error)
	Close() error
}
