// Package amort implements the amortization engine: a deterministic,
// currency-exact schedule computation for fixed-rate loans.
//
// All arithmetic uses exact decimals (shopspring/decimal). Every monetary
// value is rounded to cents half-up (ties away from zero) before it is
// carried into the next period, so schedules are reproducible cent-for-cent.
// The engine is pure: no I/O, no shared state, safe for concurrent use.
package amort

import (
	"errors"

	"github.com/shopspring/decimal"

	"prestiti/internal/core"
)

var (
	// ErrInvalidTerms is returned for non-positive principal, non-positive
	// term, or negative annual rate. Terms are refused rather than clamped.
	ErrInvalidTerms = errors.New("invalid loan terms")

	// ErrInvalidMonth is returned when a summary month falls outside
	// [0, termMonths].
	ErrInvalidMonth = errors.New("month out of range")
)

// rateScale is the number of decimal places kept when deriving the monthly
// rate from the annual percentage. The monthly rate only ever feeds
// cent-rounded products, so this leaves no observable truncation.
const rateScale = 16

type (
	// Terms are the immutable parameters a schedule is computed from.
	Terms struct {
		Principal         core.Money
		AnnualRatePercent decimal.Decimal
		TermMonths        int
	}

	// Entry is one month of the schedule. Payment, Interest and Principal
	// are the components charged that month; Remaining is the balance
	// after the month's payment.
	Entry struct {
		Month     int
		Payment   core.Money
		Interest  core.Money
		Principal core.Money
		Remaining core.Money
	}

	// Schedule is the full month-by-month breakdown for a loan.
	Schedule struct {
		Terms   Terms
		Entries []Entry
	}

	// Summary is the point-in-time view after a given number of payments.
	Summary struct {
		CurrentPrincipalBalance core.Money
		TotalPrincipalPaid      core.Money
		TotalInterestPaid       core.Money
	}
)

// Validate checks the engine's contract: principal > 0, term >= 1, rate >= 0.
func (t Terms) Validate() error {
	if t.Principal.Cents <= 0 {
		return ErrInvalidTerms
	}
	if t.TermMonths < 1 {
		return ErrInvalidTerms
	}
	if t.AnnualRatePercent.IsNegative() {
		return ErrInvalidTerms
	}
	return nil
}

// monthlyRate returns annualRatePercent / (100 * 12) as an exact decimal
// fraction.
func (t Terms) monthlyRate() decimal.Decimal {
	return t.AnnualRatePercent.DivRound(decimal.NewFromInt(1200), rateScale)
}

// MonthlyPayment computes the nominal fixed payment for the terms, rounded
// to cents before it enters the recurrence. With monthly rate r, term n and
// principal P:
//
//	r == 0: M = P / n
//	else:   M = P * r * (1+r)^n / ((1+r)^n - 1)
func MonthlyPayment(t Terms) (core.Money, error) {
	if err := t.Validate(); err != nil {
		return core.Money{}, err
	}
	return nominalPayment(t), nil
}

func nominalPayment(t Terms) core.Money {
	principal := t.Principal.Decimal()
	n := decimal.NewFromInt(int64(t.TermMonths))

	r := t.monthlyRate()
	if r.IsZero() {
		return core.MoneyFromDecimal(principal.Div(n))
	}

	k := decimal.NewFromInt(1).Add(r).Pow(n) // (1+r)^n
	raw := principal.Mul(r).Mul(k).Div(k.Sub(decimal.NewFromInt(1)))
	return core.MoneyFromDecimal(raw)
}

// Build computes the complete schedule for the given terms.
//
// For month t with opening balance B: interest = round(B * r), principal
// component = payment - interest. The final month overrides the principal
// component to exactly B, and the final payment becomes B + interest, so the
// closing balance is exactly 0.00 regardless of rounding drift accumulated
// over the term.
func Build(t Terms) (Schedule, error) {
	if err := t.Validate(); err != nil {
		return Schedule{}, err
	}

	payment := nominalPayment(t)
	r := t.monthlyRate()

	entries := make([]Entry, 0, t.TermMonths)
	remaining := t.Principal

	for month := 1; month <= t.TermMonths; month++ {
		var interest core.Money
		if !r.IsZero() {
			interest = core.MoneyFromDecimal(remaining.Decimal().Mul(r))
		}

		principal := core.Money{Cents: payment.Cents - interest.Cents}
		monthPayment := payment

		if month == t.TermMonths {
			// Final-month correction: clear the balance exactly and let the
			// payment be whatever balances the books.
			principal = remaining
			monthPayment = core.Money{Cents: principal.Cents + interest.Cents}
		} else if principal.Cents > remaining.Cents {
			// The nominal payment may overshoot near the end of the term,
			// the balance never goes negative before the final month.
			principal = remaining
		}

		remaining = core.Money{Cents: remaining.Cents - principal.Cents}

		entries = append(entries, Entry{
			Month:     month,
			Payment:   monthPayment,
			Interest:  interest,
			Principal: principal,
			Remaining: remaining,
		})
	}

	return Schedule{Terms: t, Entries: entries}, nil
}

// Summary returns the balance and cumulative totals after `month` payments.
// month 0 is the state before any payment. Months outside [0, termMonths]
// fail with ErrInvalidMonth.
func (s Schedule) Summary(month int) (Summary, error) {
	if month < 0 || month > s.Terms.TermMonths {
		return Summary{}, ErrInvalidMonth
	}
	if month == 0 {
		return Summary{CurrentPrincipalBalance: s.Terms.Principal}, nil
	}

	var interestPaid int64
	for _, e := range s.Entries[:month] {
		interestPaid += e.Interest.Cents
	}

	balance := s.Entries[month-1].Remaining
	return Summary{
		CurrentPrincipalBalance: balance,
		TotalPrincipalPaid:      core.Money{Cents: s.Terms.Principal.Cents - balance.Cents},
		TotalInterestPaid:       core.Money{Cents: interestPaid},
	}, nil
}
