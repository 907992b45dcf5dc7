package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"prestiti/internal/core"
	"prestiti/internal/middleware/ratelimit"
	"prestiti/internal/services"
	"prestiti/internal/storage"
)

// memStore is an in-memory services.Store for handler tests.
type memStore struct {
	users       map[int64]core.User
	loans       map[int64]core.Loan
	exportState map[int64]string
	nextID      int64
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[int64]core.User),
		loans:       make(map[int64]core.Loan),
		exportState: make(map[int64]string),
	}
}

func (m *memStore) CreateUser(_ context.Context, u core.User) (core.User, error) {
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return core.User{}, core.ErrDuplicateUser
		}
	}
	m.nextID++
	u.ID = m.nextID
	m.users[u.ID] = u
	return u, nil
}

func (m *memStore) GetUser(_ context.Context, id int64) (core.User, error) {
	u, ok := m.users[id]
	if !ok {
		return core.User{}, core.ErrUserNotFound
	}
	return u, nil
}

func (m *memStore) ListUsers(_ context.Context) ([]core.User, error) {
	out := make([]core.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memStore) CreateLoan(_ context.Context, l core.Loan) (core.Loan, error) {
	m.nextID++
	l.ID = m.nextID
	m.loans[l.ID] = l
	return l, nil
}

func (m *memStore) GetLoan(_ context.Context, id int64) (core.Loan, error) {
	l, ok := m.loans[id]
	if !ok {
		return core.Loan{}, core.ErrLoanNotFound
	}
	return l, nil
}

func (m *memStore) ListLoans(_ context.Context) ([]core.Loan, error) {
	out := make([]core.Loan, 0, len(m.loans))
	for _, l := range m.loans {
		out = append(out, l)
	}
	return out, nil
}

func (m *memStore) ListLoansByOwner(_ context.Context, userID int64) ([]core.Loan, error) {
	var out []core.Loan
	for _, l := range m.loans {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) AddShare(_ context.Context, loanID, userID int64) error {
	l := m.loans[loanID]
	l.SharedUserIDs = append(l.SharedUserIDs, userID)
	m.loans[loanID] = l
	return nil
}

func (m *memStore) MarkExportPending(_ context.Context, loanID int64) error {
	m.exportState[loanID] = storage.ExportPending
	return nil
}

func (m *memStore) Ping(_ context.Context) error { return nil }

func (m *memStore) Close() error { return nil }

func newTestServer(t *testing.T) (*Server, *memStore) {
	t.Helper()
	store := newMemStore()
	svc := services.NewLoanService(store, nil)
	return NewServer(":0", svc, nil), store
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func createUser(t *testing.T, s *Server, username, email string) userResponse {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/users", map[string]string{
		"username": username, "email": email,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user: status %d, body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[userResponse](t, rec)
}

func createLoan(t *testing.T, s *Server, userID int64, amount, rate string, term int) loanResponse {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/loans", map[string]any{
		"user_id": userID, "amount": amount,
		"annual_interest_rate": rate, "loan_term_in_months": term,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create loan: status %d, body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[loanResponse](t, rec)
}

func TestCreateUser(t *testing.T) {
	s, _ := newTestServer(t)

	user := createUser(t, s, "alice", "alice@example.com")
	if user.ID == 0 || user.Username != "alice" {
		t.Errorf("unexpected user: %+v", user)
	}

	rec := doJSON(t, s, http.MethodPost, "/users", map[string]string{
		"username": "alice", "email": "other@example.com",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate username: status %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/users", map[string]string{
		"username": "bob", "email": "not-an-email",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad email: status %d, want 422", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/users", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list users: status %d", rec.Code)
	}
	users := decodeBody[[]userResponse](t, rec)
	if len(users) != 1 {
		t.Errorf("expected 1 user, got %d", len(users))
	}
}

func TestCreateLoan(t *testing.T) {
	s, _ := newTestServer(t)
	owner := createUser(t, s, "alice", "alice@example.com")

	loan := createLoan(t, s, owner.ID, "10000.00", "5.5", 36)
	if loan.Amount != "10000.00" {
		t.Errorf("amount = %q, want 10000.00", loan.Amount)
	}
	if loan.AnnualInterestRate != "5.5" {
		t.Errorf("rate = %q, want 5.5", loan.AnnualInterestRate)
	}
	if len(loan.SharedUserIDs) != 0 {
		t.Errorf("shared_user_ids should be empty, got %v", loan.SharedUserIDs)
	}

	// Numeric JSON values are accepted for amount and rate
	rec := doJSON(t, s, http.MethodPost, "/loans", map[string]any{
		"user_id": owner.ID, "amount": 500.25,
		"annual_interest_rate": 3, "loan_term_in_months": 12,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("numeric body: status %d, body %s", rec.Code, rec.Body.String())
	}
	numeric := decodeBody[loanResponse](t, rec)
	if numeric.Amount != "500.25" {
		t.Errorf("numeric amount = %q, want 500.25", numeric.Amount)
	}

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"unknown owner", map[string]any{"user_id": 999, "amount": "100", "annual_interest_rate": "5", "loan_term_in_months": 12}, http.StatusNotFound},
		{"zero amount", map[string]any{"user_id": owner.ID, "amount": "0", "annual_interest_rate": "5", "loan_term_in_months": 12}, http.StatusUnprocessableEntity},
		{"negative rate", map[string]any{"user_id": owner.ID, "amount": "100", "annual_interest_rate": "-1", "loan_term_in_months": 12}, http.StatusUnprocessableEntity},
		{"zero term", map[string]any{"user_id": owner.ID, "amount": "100", "annual_interest_rate": "5", "loan_term_in_months": 0}, http.StatusUnprocessableEntity},
		{"garbage amount", map[string]any{"user_id": owner.ID, "amount": "abc", "annual_interest_rate": "5", "loan_term_in_months": 12}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/loans", tc.body)
			if rec.Code != tc.want {
				t.Errorf("status %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestGetAndListLoans(t *testing.T) {
	s, _ := newTestServer(t)
	owner := createUser(t, s, "alice", "alice@example.com")
	other := createUser(t, s, "bob", "bob@example.com")
	loan := createLoan(t, s, owner.ID, "1000.00", "12", 10)

	rec := doJSON(t, s, http.MethodGet, fmt.Sprintf("/loans/%d", loan.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get loan: status %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/loans/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing loan: status %d, want 404", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/loans/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad loan id: status %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/users/%d/loans", owner.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list user loans: status %d", rec.Code)
	}
	if loans := decodeBody[[]loanResponse](t, rec); len(loans) != 1 {
		t.Errorf("owner loans = %d, want 1", len(loans))
	}

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/users/%d/loans", other.ID), nil)
	if loans := decodeBody[[]loanResponse](t, rec); len(loans) != 0 {
		t.Errorf("other loans = %d, want 0", len(loans))
	}

	rec = doJSON(t, s, http.MethodGet, "/users/999/loans", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("loans of missing user: status %d, want 404", rec.Code)
	}
}

func TestShareLoan(t *testing.T) {
	s, _ := newTestServer(t)
	owner := createUser(t, s, "alice", "alice@example.com")
	friend := createUser(t, s, "bob", "bob@example.com")
	loan := createLoan(t, s, owner.ID, "1000.00", "12", 10)

	rec := doJSON(t, s, http.MethodPost, fmt.Sprintf("/loans/%d/share", loan.ID), shareRequest{UserID: friend.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("share: status %d, body %s", rec.Code, rec.Body.String())
	}
	shared := decodeBody[loanResponse](t, rec)
	if len(shared.SharedUserIDs) != 1 || shared.SharedUserIDs[0] != friend.ID {
		t.Errorf("shared_user_ids = %v, want [%d]", shared.SharedUserIDs, friend.ID)
	}

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/loans/%d/share", loan.ID), shareRequest{UserID: friend.ID})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("re-share: status %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/loans/%d/share", loan.ID), shareRequest{UserID: owner.ID})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("owner share: status %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/loans/999/share", shareRequest{UserID: friend.ID})
	if rec.Code != http.StatusNotFound {
		t.Errorf("share missing loan: status %d, want 404", rec.Code)
	}
}

func TestLoanSchedule(t *testing.T) {
	s, _ := newTestServer(t)
	owner := createUser(t, s, "alice", "alice@example.com")
	loan := createLoan(t, s, owner.ID, "1000.00", "12", 10)

	rec := doJSON(t, s, http.MethodGet, fmt.Sprintf("/loans/%d/schedule", loan.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule: status %d, body %s", rec.Code, rec.Body.String())
	}

	items := decodeBody[[]scheduleItem](t, rec)
	if len(items) != 10 {
		t.Fatalf("schedule length = %d, want 10", len(items))
	}
	if items[0].Month != 1 || items[0].MonthlyPayment != "105.58" {
		t.Errorf("first entry = %+v, want month 1 payment 105.58", items[0])
	}
	if items[9].MonthlyPayment != "105.60" {
		t.Errorf("final payment = %q, want 105.60", items[9].MonthlyPayment)
	}
	if items[9].RemainingBalance != "0.00" {
		t.Errorf("final balance = %q, want 0.00", items[9].RemainingBalance)
	}

	rec = doJSON(t, s, http.MethodGet, "/loans/999/schedule", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("schedule of missing loan: status %d, want 404", rec.Code)
	}
}

func TestLoanSummary(t *testing.T) {
	s, _ := newTestServer(t)
	owner := createUser(t, s, "alice", "alice@example.com")
	loan := createLoan(t, s, owner.ID, "1000.00", "12", 10)

	rec := doJSON(t, s, http.MethodGet, fmt.Sprintf("/loans/%d/summary?month=5", loan.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: status %d, body %s", rec.Code, rec.Body.String())
	}
	sum := decodeBody[summaryResponse](t, rec)
	if sum.CurrentPrincipalBalance != "512.44" {
		t.Errorf("balance = %q, want 512.44", sum.CurrentPrincipalBalance)
	}
	if sum.TotalPrincipalPaid != "487.56" {
		t.Errorf("principal paid = %q, want 487.56", sum.TotalPrincipalPaid)
	}
	if sum.TotalInterestPaid != "40.34" {
		t.Errorf("interest paid = %q, want 40.34", sum.TotalInterestPaid)
	}

	for _, tc := range []struct {
		name  string
		query string
		want  int
	}{
		{"missing month", "", http.StatusBadRequest},
		{"non-numeric month", "?month=x", http.StatusBadRequest},
		{"month past term", "?month=11", http.StatusBadRequest},
		{"negative month", "?month=-1", http.StatusBadRequest},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodGet, fmt.Sprintf("/loans/%d/summary%s", loan.ID, tc.query), nil)
			if rec.Code != tc.want {
				t.Errorf("status %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestLoanExport(t *testing.T) {
	s, store := newTestServer(t)
	owner := createUser(t, s, "alice", "alice@example.com")
	loan := createLoan(t, s, owner.ID, "1000.00", "12", 10)

	rec := doJSON(t, s, http.MethodPost, fmt.Sprintf("/loans/%d/export", loan.ID), nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("export: status %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[exportResponse](t, rec)
	if resp.ExportState != storage.ExportPending {
		t.Errorf("export_state = %q, want pending", resp.ExportState)
	}
	if store.exportState[loan.ID] != storage.ExportPending {
		t.Errorf("stored state = %q, want pending", store.exportState[loan.ID])
	}

	rec = doJSON(t, s, http.MethodPost, "/loans/999/export", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("export missing loan: status %d, want 404", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz: status %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz: status %d", rec.Code)
	}
}

func TestServerRateLimit(t *testing.T) {
	store := newMemStore()
	svc := services.NewLoanService(store, nil)
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 2, CleanupInterval: time.Hour})
	s := NewServer(":0", svc, limiter)
	defer s.Shutdown(context.Background())

	for i := 0; i < 2; i++ {
		rec := doJSON(t, s, http.MethodGet, "/loans", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, rec.Code)
		}
	}
	rec := doJSON(t, s, http.MethodGet, "/loans", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("over limit: status %d, want 429", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	store := newMemStore()
	svc := services.NewLoanService(store, nil)
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 100, CleanupInterval: time.Hour})
	s := NewServer(":0", svc, limiter)
	defer s.Shutdown(context.Background())

	for i := 0; i < 3; i++ {
		doJSON(t, s, http.MethodGet, "/loans", nil)
	}

	rec := doJSON(t, s, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}

	body := rec.Body.String()
	// The three loan requests plus the metrics request itself.
	if !strings.Contains(body, "http_requests_total 4") {
		t.Errorf("metrics body missing request count:\n%s", body)
	}
	if !strings.Contains(body, "http_last_response_time_ms") {
		t.Errorf("metrics body missing response time gauge:\n%s", body)
	}
	if !strings.Contains(body, "rate_limit_active_clients 1") {
		t.Errorf("metrics body missing active client gauge:\n%s", body)
	}
}

func TestResponseHeaders(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header should be set")
	}
}
