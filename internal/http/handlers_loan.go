package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"prestiti/internal/core"
	applog "prestiti/internal/log"
	"prestiti/internal/storage"
)

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req loanCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cents, err := core.ParseDecimalToCents(string(req.Amount))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount: "+string(req.Amount))
		return
	}
	rate, err := core.ParseRatePercent(string(req.AnnualInterestRate))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid annual interest rate: "+string(req.AnnualInterestRate))
		return
	}

	loan, err := s.loans.CreateLoan(r.Context(), core.Loan{
		UserID:            req.UserID,
		Principal:         core.Money{Cents: cents},
		AnnualRatePercent: rate,
		TermMonths:        req.LoanTermInMonths,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Loan created",
		applog.NewFields().
			WithLoan(loan.ID, loan.Principal.Cents, loan.AnnualRatePercent.String(), loan.TermMonths).
			WithOperation(applog.OpCreate).
			ToSlice()...)

	writeJSON(w, http.StatusCreated, newLoanResponse(loan))
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := s.loans.ListLoans(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanListResponse(loans))
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	loan, err := s.loans.GetLoan(r.Context(), loanID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanResponse(loan))
}

func (s *Server) handleShareLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	loan, err := s.loans.ShareLoan(r.Context(), loanID, req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanResponse(loan))
}

func (s *Server) handleLoanSchedule(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	schedule, err := s.loans.Schedule(r.Context(), loanID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newScheduleResponse(schedule))
}

func (s *Server) handleLoanSummary(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("month"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "month query parameter is required")
		return
	}
	month, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be an integer")
		return
	}

	summary, err := s.loans.Summary(r.Context(), loanID, month)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(month, summary))
}

func (s *Server) handleLoanExport(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := s.loans.RequestExport(r.Context(), loanID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, exportResponse{
		LoanID:      loanID,
		ExportState: storage.ExportPending,
	})
}
