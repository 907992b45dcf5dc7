package http

import (
	"encoding/json"
	"fmt"

	"prestiti/internal/amort"
	"prestiti/internal/core"
)

// decimalString accepts a JSON string or a bare JSON number and keeps the
// exact textual form, so "5.5" and 5.5 both arrive undistorted.
type decimalString string

func (d *decimalString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = decimalString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a decimal string or number: %w", err)
	}
	*d = decimalString(n.String())
	return nil
}

type userCreateRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func newUserResponse(u core.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email}
}

type loanCreateRequest struct {
	UserID             int64         `json:"user_id"`
	Amount             decimalString `json:"amount"`
	AnnualInterestRate decimalString `json:"annual_interest_rate"`
	LoanTermInMonths   int           `json:"loan_term_in_months"`
}

type loanResponse struct {
	ID                 int64   `json:"id"`
	UserID             int64   `json:"user_id"`
	Amount             string  `json:"amount"`
	AnnualInterestRate string  `json:"annual_interest_rate"`
	LoanTermInMonths   int     `json:"loan_term_in_months"`
	SharedUserIDs      []int64 `json:"shared_user_ids"`
}

func newLoanResponse(l core.Loan) loanResponse {
	shared := l.SharedUserIDs
	if shared == nil {
		shared = []int64{}
	}
	return loanResponse{
		ID:                 l.ID,
		UserID:             l.UserID,
		Amount:             l.Principal.String(),
		AnnualInterestRate: l.AnnualRatePercent.String(),
		LoanTermInMonths:   l.TermMonths,
		SharedUserIDs:      shared,
	}
}

func newLoanListResponse(loans []core.Loan) []loanResponse {
	out := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, newLoanResponse(l))
	}
	return out
}

type shareRequest struct {
	UserID int64 `json:"user_id"`
}

type scheduleItem struct {
	Month            int    `json:"month"`
	RemainingBalance string `json:"remaining_balance"`
	MonthlyPayment   string `json:"monthly_payment"`
}

func newScheduleResponse(s amort.Schedule) []scheduleItem {
	out := make([]scheduleItem, 0, len(s.Entries))
	for _, e := range s.Entries {
		out = append(out, scheduleItem{
			Month:            e.Month,
			RemainingBalance: e.Remaining.String(),
			MonthlyPayment:   e.Payment.String(),
		})
	}
	return out
}

type summaryResponse struct {
	Month                   int    `json:"month"`
	CurrentPrincipalBalance string `json:"current_principal_balance"`
	TotalPrincipalPaid      string `json:"total_principal_paid"`
	TotalInterestPaid       string `json:"total_interest_paid"`
}

func newSummaryResponse(month int, s amort.Summary) summaryResponse {
	return summaryResponse{
		Month:                   month,
		CurrentPrincipalBalance: s.CurrentPrincipalBalance.String(),
		TotalPrincipalPaid:      s.TotalPrincipalPaid.String(),
		TotalInterestPaid:       s.TotalInterestPaid.String(),
	}
}

type exportResponse struct {
	LoanID      int64  `json:"loan_id"`
	ExportState string `json:"export_state"`
}
