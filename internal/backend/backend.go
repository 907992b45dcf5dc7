package backend

import (
	"prestiti/internal/sheets"
)

// Kind selects the schedule export sink.
type Kind string

const (
	SheetsBackend Kind = "sheets"
	MemoryBackend Kind = "memory"
)

// String implements fmt.Stringer
func (k Kind) String() string {
	return string(k)
}

// IsValid returns true if the backend kind is valid
func (k Kind) IsValid() bool {
	switch k {
	case SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Kinds returns all valid backend kinds.
func Kinds() []Kind {
	return []Kind{SheetsBackend, MemoryBackend}
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the export sink and optional cleanup function.
type Result struct {
	Writer  sheets.ScheduleWriter
	Cleanup CleanupFunc
}
