package agent

import (
	"sync"

	"askdb/internal/database"
)

// ResultSlot holds the most recent successful execute_sql result of one run.
// The execute tool writes it; the plot stage reads it.
type ResultSlot struct {
	mu    sync.Mutex
	query string
	rows  *database.Rows
}

// Store replaces the slot contents.
func (s *ResultSlot) Store(query string, rows *database.Rows) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = query
	s.rows = rows
}

// Load returns the stored query and rows. ok is false when nothing was stored.
func (s *ResultSlot) Load() (query string, rows *database.Rows, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query, s.rows, s.rows != nil
}

// Reset empties the slot.
func (s *ResultSlot) Reset() {
	s.Store("", nil)
}
