package memory

import (
	"context"
	"fmt"
	"sync"

	"prestiti/internal/amort"
	"prestiti/internal/core"
)

// Store is an in-memory ScheduleWriter used for tests and local runs
// without Google credentials.
type Store struct {
	mu        sync.Mutex
	schedules map[int64]amort.Schedule
}

func New() *Store {
	return &Store{schedules: make(map[int64]amort.Schedule)}
}

// WriteSchedule stores the schedule and returns a synthetic reference.
// Re-exports for the same loan overwrite the previous schedule.
func (s *Store) WriteSchedule(_ context.Context, loan core.Loan, schedule amort.Schedule) (string, error) {
	if len(schedule.Entries) == 0 {
		return "", fmt.Errorf("empty schedule for loan %d", loan.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[loan.ID] = schedule
	return fmt.Sprintf("mem:%d", loan.ID), nil
}

// Exported returns the stored schedule for a loan, if any.
func (s *Store) Exported(loanID int64) (amort.Schedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[loanID]
	return sch, ok
}

// Count returns the number of exported schedules.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.schedules)
}
