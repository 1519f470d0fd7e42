package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/progress"
	"fintrack/internal/sheets"
)

// Store keeps written reports in memory. It backs REPORT_BACKEND=memory and
// tests.
type Store struct {
	mu      sync.Mutex
	reports []Written
}

type Written struct {
	Title string
	Rows  [][]any
}

var _ sheets.ReportWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// WriteReport stores the report rows and returns a synthetic reference.
func (s *Store) WriteReport(_ context.Context, r progress.Report) (string, error) {
	if r.Month < 1 || r.Month > 12 {
		return "", fmt.Errorf("invalid month: %d", r.Month)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, Written{Title: sheets.Title(r), Rows: sheets.Rows(r)})
	return fmt.Sprintf("mem:%d", len(s.reports)), nil
}

// Reports returns a copy of everything written so far.
func (s *Store) Reports() []Written {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Written(nil), s.reports...)
}
