package sheets

import (
	"context"

	"prestiti/internal/amort"
	"prestiti/internal/core"
)

// Ports for outbound adapters.
type (
	// ScheduleWriter exports a loan's full amortization schedule to an
	// external sink. Implementations must be safe to call repeatedly for
	// the same loan (re-exports overwrite).
	ScheduleWriter interface {
		WriteSchedule(ctx context.Context, loan core.Loan, schedule amort.Schedule) (ref string, err error)
	}
)
