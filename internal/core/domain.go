package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

type (
	Money struct {
		Cents int64
	}

	User struct {
		ID       int64
		Username string
		Email    string
	}

	Loan struct {
		ID                int64
		UserID            int64
		Principal         Money
		AnnualRatePercent decimal.Decimal
		TermMonths        int
		SharedUserIDs     []int64
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidRate   = errors.New("invalid annual interest rate")
	ErrInvalidTerm   = errors.New("invalid loan term")
	ErrEmptyUsername = errors.New("empty username")
	ErrInvalidEmail  = errors.New("invalid email")
	ErrUserNotFound  = errors.New("user not found")
	ErrLoanNotFound  = errors.New("loan not found")
	ErrDuplicateUser = errors.New("username or email already exists")
	ErrOwnerShare    = errors.New("owner already has access to this loan")
	ErrAlreadyShared = errors.New("loan already shared with this user")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (u User) Validate() error {
	if len(strings.TrimSpace(u.Username)) == 0 {
		return ErrEmptyUsername
	}
	if len(u.Username) > 100 {
		return errors.New("username too long (max 100 characters)")
	}
	// Minimal shape check, uniqueness is enforced by storage.
	at := strings.Index(u.Email, "@")
	if at < 1 || at == len(u.Email)-1 || strings.ContainsAny(u.Email, " \t") {
		return ErrInvalidEmail
	}
	if len(u.Email) > 254 {
		return ErrInvalidEmail
	}
	return nil
}

func (l Loan) Validate() error {
	if err := l.Principal.Validate(); err != nil {
		return err
	}
	if l.AnnualRatePercent.IsNegative() {
		return ErrInvalidRate
	}
	if l.TermMonths < 1 {
		return ErrInvalidTerm
	}
	if l.TermMonths > 12000 {
		return errors.New("loan term too long (max 12000 months)")
	}
	if l.UserID <= 0 {
		return ErrUserNotFound
	}
	return nil
}

// SharedWith reports whether the loan is already shared with the given user.
func (l Loan) SharedWith(userID int64) bool {
	for _, id := range l.SharedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
