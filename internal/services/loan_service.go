package services

import (
	"context"
	"fmt"
	"log/slog"

	"prestiti/internal/amort"
	"prestiti/internal/core"
)

// Store is the storage surface the loan service needs. Implemented by
// storage.SQLiteRepository.
type Store interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
	ListUsers(ctx context.Context) ([]core.User, error)

	CreateLoan(ctx context.Context, l core.Loan) (core.Loan, error)
	GetLoan(ctx context.Context, id int64) (core.Loan, error)
	ListLoans(ctx context.Context) ([]core.Loan, error)
	ListLoansByOwner(ctx context.Context, userID int64) ([]core.Loan, error)
	AddShare(ctx context.Context, loanID, userID int64) error
	MarkExportPending(ctx context.Context, loanID int64) error

	Ping(ctx context.Context) error
	Close() error
}

// ExportPublisher publishes schedule export requests. Implemented by
// amqp.Client.
type ExportPublisher interface {
	PublishScheduleExport(ctx context.Context, loanID int64) error
}

// LoanService orchestrates loan operations across storage, the amortization
// engine and the AMQP export queue.
type LoanService struct {
	storage   Store
	publisher ExportPublisher
}

func NewLoanService(storage Store, publisher ExportPublisher) *LoanService {
	return &LoanService{
		storage:   storage,
		publisher: publisher,
	}
}

// CreateUser registers a user with a unique username and email.
func (s *LoanService) CreateUser(ctx context.Context, username, email string) (core.User, error) {
	u := core.User{Username: username, Email: email}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	return s.storage.CreateUser(ctx, u)
}

func (s *LoanService) ListUsers(ctx context.Context) ([]core.User, error) {
	return s.storage.ListUsers(ctx)
}

// CreateLoan registers a loan for an existing owner. Terms are validated
// here, the engine only re-checks its own contract defensively.
func (s *LoanService) CreateLoan(ctx context.Context, l core.Loan) (core.Loan, error) {
	if err := l.Validate(); err != nil {
		return core.Loan{}, err
	}
	if _, err := s.storage.GetUser(ctx, l.UserID); err != nil {
		return core.Loan{}, err
	}
	return s.storage.CreateLoan(ctx, l)
}

func (s *LoanService) ListLoans(ctx context.Context) ([]core.Loan, error) {
	return s.storage.ListLoans(ctx)
}

// ListLoansForUser returns loans owned by the given user. The user must exist.
func (s *LoanService) ListLoansForUser(ctx context.Context, userID int64) ([]core.Loan, error) {
	if _, err := s.storage.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.storage.ListLoansByOwner(ctx, userID)
}

func (s *LoanService) GetLoan(ctx context.Context, id int64) (core.Loan, error) {
	return s.storage.GetLoan(ctx, id)
}

// ShareLoan grants another user read access to a loan. Sharing with the
// owner or re-sharing with the same user is rejected.
func (s *LoanService) ShareLoan(ctx context.Context, loanID, userID int64) (core.Loan, error) {
	loan, err := s.storage.GetLoan(ctx, loanID)
	if err != nil {
		return core.Loan{}, err
	}
	if _, err := s.storage.GetUser(ctx, userID); err != nil {
		return core.Loan{}, err
	}
	if loan.UserID == userID {
		return core.Loan{}, core.ErrOwnerShare
	}
	if loan.SharedWith(userID) {
		return core.Loan{}, core.ErrAlreadyShared
	}

	if err := s.storage.AddShare(ctx, loanID, userID); err != nil {
		return core.Loan{}, err
	}
	return s.storage.GetLoan(ctx, loanID)
}

// Schedule recomputes the full amortization schedule from the stored terms.
// Schedules are never cached or persisted.
func (s *LoanService) Schedule(ctx context.Context, loanID int64) (amort.Schedule, error) {
	loan, err := s.storage.GetLoan(ctx, loanID)
	if err != nil {
		return amort.Schedule{}, err
	}
	schedule, err := amort.Build(loanTerms(loan))
	if err != nil {
		return amort.Schedule{}, fmt.Errorf("build schedule for loan %d: %w", loanID, err)
	}
	return schedule, nil
}

// Summary returns the point-in-time view after `month` payments.
func (s *LoanService) Summary(ctx context.Context, loanID int64, month int) (amort.Summary, error) {
	schedule, err := s.Schedule(ctx, loanID)
	if err != nil {
		return amort.Summary{}, err
	}
	return schedule.Summary(month)
}

// RequestExport marks the loan export-pending and publishes an export
// message. A publish failure is not fatal, the worker's periodic sweep
// will pick the loan up from its pending state.
func (s *LoanService) RequestExport(ctx context.Context, loanID int64) error {
	if _, err := s.storage.GetLoan(ctx, loanID); err != nil {
		return err
	}
	if err := s.storage.MarkExportPending(ctx, loanID); err != nil {
		return fmt.Errorf("mark export pending: %w", err)
	}

	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP publisher not available, export left to periodic sweep", "loan_id", loanID)
		return nil
	}
	if err := s.publisher.PublishScheduleExport(ctx, loanID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish export message",
			"loan_id", loanID, "error", err)
		// Don't fail the request - the pending state survives.
	}
	return nil
}

// Ready reports whether the underlying storage is reachable.
func (s *LoanService) Ready(ctx context.Context) error {
	return s.storage.Ping(ctx)
}

// Close closes the underlying storage.
func (s *LoanService) Close() error {
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			return fmt.Errorf("close storage: %w", err)
		}
	}
	return nil
}

func loanTerms(l core.Loan) amort.Terms {
	return amort.Terms{
		Principal:         l.Principal,
		AnnualRatePercent: l.AnnualRatePercent,
		TermMonths:        l.TermMonths,
	}
}
