package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"prestiti/internal/core"
)

// Export states tracked on each loan for the schedule export pipeline.
const (
	ExportNone    = "none"
	ExportPending = "pending"
	ExportDone    = "done"
	ExportError   = "error"
)

// PendingExport is the minimal data the worker needs to re-process a loan
// whose export message was lost.
type PendingExport struct {
	LoanID    int64
	CreatedAt time.Time
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Ping checks database connectivity.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateUser inserts a user and returns it with the assigned ID.
// Username and email collisions surface as core.ErrDuplicateUser.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, email) VALUES (?, ?)`,
		u.Username, u.Email)
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, core.ErrDuplicateUser
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("user insert id: %w", err)
	}
	u.ID = id

	slog.InfoContext(ctx, "User saved", "id", u.ID, "username", u.Username)
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, email FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, email FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		var u core.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateLoan inserts a loan and returns it with the assigned ID. The rate is
// stored as an exact decimal string, the principal as integer cents.
func (r *SQLiteRepository) CreateLoan(ctx context.Context, l core.Loan) (core.Loan, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO loans (user_id, principal_cents, annual_rate, term_months)
		 VALUES (?, ?, ?, ?)`,
		l.UserID, l.Principal.Cents, l.AnnualRatePercent.String(), l.TermMonths)
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.Loan{}, core.ErrUserNotFound
		}
		return core.Loan{}, fmt.Errorf("insert loan: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Loan{}, fmt.Errorf("loan insert id: %w", err)
	}
	l.ID = id

	slog.InfoContext(ctx, "Loan saved",
		"id", l.ID,
		"user_id", l.UserID,
		"principal_cents", l.Principal.Cents,
		"annual_rate", l.AnnualRatePercent.String(),
		"term_months", l.TermMonths)

	return l, nil
}

func (r *SQLiteRepository) GetLoan(ctx context.Context, id int64) (core.Loan, error) {
	var (
		l    core.Loan
		rate string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, principal_cents, annual_rate, term_months
		 FROM loans WHERE id = ?`, id).
		Scan(&l.ID, &l.UserID, &l.Principal.Cents, &rate, &l.TermMonths)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Loan{}, core.ErrLoanNotFound
	}
	if err != nil {
		return core.Loan{}, fmt.Errorf("get loan %d: %w", id, err)
	}

	l.AnnualRatePercent, err = decimal.NewFromString(rate)
	if err != nil {
		return core.Loan{}, fmt.Errorf("parse stored rate %q for loan %d: %w", rate, id, err)
	}

	shares, err := r.listShares(ctx, id)
	if err != nil {
		return core.Loan{}, err
	}
	l.SharedUserIDs = shares

	return l, nil
}

func (r *SQLiteRepository) ListLoans(ctx context.Context) ([]core.Loan, error) {
	return r.listLoans(ctx,
		`SELECT id, user_id, principal_cents, annual_rate, term_months
		 FROM loans ORDER BY id`)
}

func (r *SQLiteRepository) ListLoansByOwner(ctx context.Context, userID int64) ([]core.Loan, error) {
	return r.listLoans(ctx,
		`SELECT id, user_id, principal_cents, annual_rate, term_months
		 FROM loans WHERE user_id = ? ORDER BY id`, userID)
}

func (r *SQLiteRepository) listLoans(ctx context.Context, query string, args ...any) ([]core.Loan, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var loans []core.Loan
	for rows.Next() {
		var (
			l    core.Loan
			rate string
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.Principal.Cents, &rate, &l.TermMonths); err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		l.AnnualRatePercent, err = decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("parse stored rate %q for loan %d: %w", rate, l.ID, err)
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// AddShare grants a user read access to a loan. A duplicate grant surfaces
// as core.ErrAlreadyShared.
func (r *SQLiteRepository) AddShare(ctx context.Context, loanID, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO loan_shares (loan_id, user_id) VALUES (?, ?)`,
		loanID, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrAlreadyShared
		}
		return fmt.Errorf("insert loan share: %w", err)
	}

	slog.InfoContext(ctx, "Loan shared", "loan_id", loanID, "user_id", userID)
	return nil
}

func (r *SQLiteRepository) listShares(ctx context.Context, loanID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM loan_shares WHERE loan_id = ? ORDER BY user_id`, loanID)
	if err != nil {
		return nil, fmt.Errorf("list loan shares: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan loan share: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkExportPending flags a loan for schedule export. The worker picks it up
// either via the AMQP message or the periodic sweep.
func (r *SQLiteRepository) MarkExportPending(ctx context.Context, loanID int64) error {
	return r.setExportState(ctx, loanID, ExportPending, false)
}

// MarkExported records a successful schedule export.
func (r *SQLiteRepository) MarkExported(ctx context.Context, loanID int64) error {
	return r.setExportState(ctx, loanID, ExportDone, true)
}

// MarkExportError records a failed schedule export. The loan stays visible
// to the periodic sweep through GetPendingExports.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, loanID int64) error {
	return r.setExportState(ctx, loanID, ExportError, false)
}

func (r *SQLiteRepository) setExportState(ctx context.Context, loanID int64, state string, stampTime bool) error {
	var (
		res sql.Result
		err error
	)
	if stampTime {
		res, err = r.db.ExecContext(ctx,
			`UPDATE loans SET export_state = ?, exported_at = CURRENT_TIMESTAMP WHERE id = ?`,
			state, loanID)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE loans SET export_state = ? WHERE id = ?`, state, loanID)
	}
	if err != nil {
		return fmt.Errorf("set export state %q: %w", state, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("export state rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrLoanNotFound
	}
	return nil
}

// GetPendingExports returns loans whose schedule export has not completed,
// oldest first. Errored exports are retried as well.
func (r *SQLiteRepository) GetPendingExports(ctx context.Context, limit int) ([]PendingExport, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at FROM loans
		 WHERE export_state IN (?, ?)
		 ORDER BY created_at LIMIT ?`,
		ExportPending, ExportError, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending exports: %w", err)
	}
	defer rows.Close()

	var pending []PendingExport
	for rows.Next() {
		var (
			p  PendingExport
			ct sql.NullTime
		)
		if err := rows.Scan(&p.LoanID, &ct); err != nil {
			return nil, fmt.Errorf("scan pending export: %w", err)
		}
		p.CreatedAt = ct.Time
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// isUniqueViolation reports whether err comes from a UNIQUE or PRIMARY KEY
// constraint. modernc.org/sqlite exposes constraint failures only through
// the error text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
