package amort

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"prestiti/internal/core"
)

func terms(t *testing.T, cents int64, rate string, months int) Terms {
	t.Helper()
	r, err := decimal.NewFromString(rate)
	if err != nil {
		t.Fatalf("bad rate %q: %v", rate, err)
	}
	return Terms{
		Principal:         core.Money{Cents: cents},
		AnnualRatePercent: r,
		TermMonths:        months,
	}
}

func TestMonthlyPayment(t *testing.T) {
	cases := []struct {
		name   string
		cents  int64
		rate   string
		months int
		want   int64 // cents
	}{
		{"10000 at 5.5 over 36", 1000000, "5.5", 36, 30196},
		{"1000 at 12 over 10", 100000, "12.0", 10, 10558},
		{"zero rate divides evenly", 120000, "0", 12, 10000},
		{"zero rate rounds half-up", 100000, "0", 3, 33333},
		{"single month", 50000, "7.25", 1, 50302},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MonthlyPayment(terms(t, tc.cents, tc.rate, tc.months))
			if err != nil {
				t.Fatalf("MonthlyPayment: %v", err)
			}
			if got.Cents != tc.want {
				t.Fatalf("payment = %s, want %s", got, core.Money{Cents: tc.want})
			}
		})
	}
}

func TestBuildConcreteSchedule(t *testing.T) {
	// 10000.00 at 5.5% over 36 months: nominal payment 301.96 for months
	// 1-35, final payment balances the books exactly.
	s, err := Build(terms(t, 1000000, "5.5", 36))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(s.Entries) != 36 {
		t.Fatalf("entries = %d, want 36", len(s.Entries))
	}

	first := s.Entries[0]
	if first.Payment.Cents != 30196 || first.Interest.Cents != 4583 ||
		first.Principal.Cents != 25613 || first.Remaining.Cents != 974387 {
		t.Fatalf("month 1 = %+v", first)
	}

	for _, e := range s.Entries[:35] {
		if e.Payment.Cents != 30196 {
			t.Fatalf("month %d payment = %s, want 301.96", e.Month, e.Payment)
		}
	}

	if rem := s.Entries[34].Remaining.Cents; rem != 30056 {
		t.Fatalf("month 35 remaining = %d, want 30056", rem)
	}

	last := s.Entries[35]
	if last.Remaining.Cents != 0 {
		t.Fatalf("final remaining = %s, want 0.00", last.Remaining)
	}
	if last.Principal.Cents != 30056 || last.Interest.Cents != 138 || last.Payment.Cents != 30194 {
		t.Fatalf("final month = %+v", last)
	}
}

func TestBuildZeroRate(t *testing.T) {
	// 1200.00 at 0% over 12 months: flat 100.00 payments, no interest,
	// balances descend 1100.00, 1000.00, ..., 0.00.
	s, err := Build(terms(t, 120000, "0", 12))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i, e := range s.Entries {
		if e.Payment.Cents != 10000 {
			t.Fatalf("month %d payment = %s", e.Month, e.Payment)
		}
		if e.Interest.Cents != 0 {
			t.Fatalf("month %d interest = %s, want 0.00", e.Month, e.Interest)
		}
		if e.Principal.Cents != 10000 {
			t.Fatalf("month %d principal = %s", e.Month, e.Principal)
		}
		want := int64(120000 - (i+1)*10000)
		if e.Remaining.Cents != want {
			t.Fatalf("month %d remaining = %d, want %d", e.Month, e.Remaining.Cents, want)
		}
	}
}

func TestBuildInvariants(t *testing.T) {
	cases := []struct {
		cents  int64
		rate   string
		months int
	}{
		{1000000, "5.5", 36},
		{100000, "12.0", 10},
		{120000, "0", 12},
		{1, "99.9", 1},
		{35000000, "3.45", 360},
		{999999, "0.01", 7},
		{250000, "18", 48},
	}
	for _, tc := range cases {
		s, err := Build(terms(t, tc.cents, tc.rate, tc.months))
		if err != nil {
			t.Fatalf("Build(%d, %s, %d): %v", tc.cents, tc.rate, tc.months, err)
		}

		// Zero final balance.
		if got := s.Entries[len(s.Entries)-1].Remaining.Cents; got != 0 {
			t.Errorf("(%d, %s, %d): final remaining = %d", tc.cents, tc.rate, tc.months, got)
		}

		// Conservation: principal components sum to the principal exactly,
		// and every payment splits into interest + principal.
		var principalSum int64
		prev := tc.cents
		for _, e := range s.Entries {
			principalSum += e.Principal.Cents
			if e.Remaining.Cents > prev {
				t.Errorf("(%d, %s, %d): month %d balance increased %d -> %d",
					tc.cents, tc.rate, tc.months, e.Month, prev, e.Remaining.Cents)
			}
			if e.Remaining.Cents < 0 {
				t.Errorf("(%d, %s, %d): month %d negative balance %d",
					tc.cents, tc.rate, tc.months, e.Month, e.Remaining.Cents)
			}
			prev = e.Remaining.Cents
		}
		if principalSum != tc.cents {
			t.Errorf("(%d, %s, %d): principal sum = %d, want %d",
				tc.cents, tc.rate, tc.months, principalSum, tc.cents)
		}

		// Summary agrees with the running schedule at every month.
		for m := 0; m <= tc.months; m++ {
			sum, err := s.Summary(m)
			if err != nil {
				t.Fatalf("Summary(%d): %v", m, err)
			}
			if sum.TotalPrincipalPaid.Cents+sum.CurrentPrincipalBalance.Cents != tc.cents {
				t.Errorf("(%d, %s, %d): month %d paid %d + balance %d != principal",
					tc.cents, tc.rate, tc.months, m,
					sum.TotalPrincipalPaid.Cents, sum.CurrentPrincipalBalance.Cents)
			}
		}
	}
}

func TestSummary(t *testing.T) {
	s, err := Build(terms(t, 100000, "12.0", 10))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	t.Run("month zero", func(t *testing.T) {
		sum, err := s.Summary(0)
		if err != nil {
			t.Fatalf("Summary(0): %v", err)
		}
		if sum.CurrentPrincipalBalance.Cents != 100000 ||
			sum.TotalPrincipalPaid.Cents != 0 || sum.TotalInterestPaid.Cents != 0 {
			t.Fatalf("Summary(0) = %+v", sum)
		}
	})

	t.Run("mid term", func(t *testing.T) {
		sum, err := s.Summary(5)
		if err != nil {
			t.Fatalf("Summary(5): %v", err)
		}
		if sum.CurrentPrincipalBalance.Cents != 51244 {
			t.Fatalf("balance = %s, want 512.44", sum.CurrentPrincipalBalance)
		}
		if sum.TotalPrincipalPaid.Cents != 48756 {
			t.Fatalf("principal paid = %s, want 487.56", sum.TotalPrincipalPaid)
		}
		if sum.TotalInterestPaid.Cents != 4034 {
			t.Fatalf("interest paid = %s, want 40.34", sum.TotalInterestPaid)
		}
	})

	t.Run("full term", func(t *testing.T) {
		sum, err := s.Summary(10)
		if err != nil {
			t.Fatalf("Summary(10): %v", err)
		}
		if sum.CurrentPrincipalBalance.Cents != 0 {
			t.Fatalf("balance = %s, want 0.00", sum.CurrentPrincipalBalance)
		}
		if sum.TotalPrincipalPaid.Cents != 100000 {
			t.Fatalf("principal paid = %s, want 1000.00", sum.TotalPrincipalPaid)
		}
		if sum.TotalInterestPaid.Cents != 5582 {
			t.Fatalf("interest paid = %s, want 55.82", sum.TotalInterestPaid)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		for _, m := range []int{-1, 11, 9999} {
			if _, err := s.Summary(m); !errors.Is(err, ErrInvalidMonth) {
				t.Fatalf("Summary(%d) err = %v, want ErrInvalidMonth", m, err)
			}
		}
	})
}

func TestInvalidTerms(t *testing.T) {
	cases := []struct {
		name string
		t    Terms
	}{
		{"zero principal", terms(t, 0, "5.5", 12)},
		{"negative principal", terms(t, -100, "5.5", 12)},
		{"zero term", terms(t, 100000, "5.5", 0)},
		{"negative rate", terms(t, 100000, "-1", 12)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Build(tc.t); !errors.Is(err, ErrInvalidTerms) {
				t.Fatalf("Build err = %v, want ErrInvalidTerms", err)
			}
			if _, err := MonthlyPayment(tc.t); !errors.Is(err, ErrInvalidTerms) {
				t.Fatalf("MonthlyPayment err = %v, want ErrInvalidTerms", err)
			}
		})
	}
}
