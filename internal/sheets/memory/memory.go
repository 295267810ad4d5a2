package memory

import (
	"context"
	"fmt"
	"sync"

	"tally/internal/core"
)

// Store is an in-memory history writer for tests and local runs without
// a spreadsheet configured.
type Store struct {
	mu     sync.Mutex
	rows   []core.ProcessedTransaction
	resets []string
}

func New() *Store {
	return &Store{}
}

// Append stores the processed transaction and returns a synthetic row
// reference.
func (s *Store) Append(_ context.Context, p core.ProcessedTransaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, p)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// AppendReset stores a reset marker.
func (s *Store) AppendReset(_ context.Context, at string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, at)
	return fmt.Sprintf("mem:reset:%d", len(s.resets)), nil
}

// Rows returns a copy of the appended rows.
func (s *Store) Rows() []core.ProcessedTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ProcessedTransaction(nil), s.rows...)
}

// Resets returns a copy of the appended reset markers.
func (s *Store) Resets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.resets...)
}
