package worker

import (
	"context"
	"fmt"
	"log/slog"

	"prestiti/internal/amort"
	"prestiti/internal/amqp"
	"prestiti/internal/core"
	"prestiti/internal/sheets"
	"prestiti/internal/storage"
)

// ExportStore is the storage surface the export worker needs. Implemented
// by storage.SQLiteRepository.
type ExportStore interface {
	GetLoan(ctx context.Context, id int64) (core.Loan, error)
	GetPendingExports(ctx context.Context, limit int) ([]storage.PendingExport, error)
	MarkExported(ctx context.Context, loanID int64) error
	MarkExportError(ctx context.Context, loanID int64) error
}

// ExportWorker recomputes amortization schedules from stored loan terms and
// writes them to the configured sink.
type ExportWorker struct {
	storage   ExportStore
	writer    sheets.ScheduleWriter
	batchSize int
}

func NewExportWorker(storage ExportStore, writer sheets.ScheduleWriter, batchSize int) *ExportWorker {
	return &ExportWorker{
		storage:   storage,
		writer:    writer,
		batchSize: batchSize,
	}
}

// HandleExportMessage processes a single export request from AMQP. The
// returned error drives the nack/requeue decision in the consumer.
func (w *ExportWorker) HandleExportMessage(ctx context.Context, msg *amqp.ScheduleExportMessage) error {
	slog.InfoContext(ctx, "Processing export message",
		"loan_id", msg.LoanID,
		"requested_at", msg.Timestamp)

	return w.exportLoan(ctx, msg.LoanID)
}

// ProcessPendingExports re-processes loans stuck in a pending or errored
// state. This is a backup mechanism in case AMQP messages are lost.
func (w *ExportWorker) ProcessPendingExports(ctx context.Context) error {
	pending, err := w.storage.GetPendingExports(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	var failed int
	for _, p := range pending {
		if err := w.exportLoan(ctx, p.LoanID); err != nil {
			slog.ErrorContext(ctx, "Pending export failed",
				"loan_id", p.LoanID, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pending exports failed", failed, len(pending))
	}
	return nil
}

func (w *ExportWorker) exportLoan(ctx context.Context, loanID int64) error {
	loan, err := w.storage.GetLoan(ctx, loanID)
	if err != nil {
		// A deleted loan cannot be exported and must not be requeued forever.
		slog.WarnContext(ctx, "Loan not found for export, dropping", "loan_id", loanID)
		return nil
	}

	schedule, err := amort.Build(amort.Terms{
		Principal:         loan.Principal,
		AnnualRatePercent: loan.AnnualRatePercent,
		TermMonths:        loan.TermMonths,
	})
	if err != nil {
		// Stored terms that fail the engine's contract are a data defect,
		// mark and drop instead of retrying.
		if markErr := w.storage.MarkExportError(ctx, loanID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "loan_id", loanID, "error", markErr)
		}
		slog.ErrorContext(ctx, "Stored loan terms rejected by engine",
			"loan_id", loanID, "error", err)
		return nil
	}

	ref, err := w.writer.WriteSchedule(ctx, loan, schedule)
	if err != nil {
		if markErr := w.storage.MarkExportError(ctx, loanID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "loan_id", loanID, "error", markErr)
		}
		return fmt.Errorf("write schedule for loan %d: %w", loanID, err)
	}

	if err := w.storage.MarkExported(ctx, loanID); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}

	slog.InfoContext(ctx, "Loan schedule exported",
		"loan_id", loanID,
		"ref", ref,
		"months", len(schedule.Entries))
	return nil
}
