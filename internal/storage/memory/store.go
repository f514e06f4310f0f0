// Package memory is an in-memory RunStore, the default when no database is
// configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hookflow/hookflow/internal/storage"
)

// Store is an in-memory implementation of storage.RunStore.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*storage.RunRecord
}

var _ storage.RunStore = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		runs: make(map[string]*storage.RunRecord),
	}
}

func (s *Store) SaveRun(ctx context.Context, rec *storage.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rec
	s.runs[rec.ID] = &copied
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*storage.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.runs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (s *Store) ListRuns(ctx context.Context, workflowID string) ([]*storage.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.RunRecord
	for _, rec := range s.runs {
		if workflowID != "" && rec.WorkflowID != workflowID {
			continue
		}
		copied := *rec
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result, nil
}

func (s *Store) Close() error {
	return nil
}
