package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"prestiti/internal/amort"
	"prestiti/internal/core"
	"prestiti/internal/log"
)

// errorResponse is the JSON body returned on every error.
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response",
			log.FieldComponent, log.ComponentHTTP,
			log.FieldError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeDomainError maps domain errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrUserNotFound),
		errors.Is(err, core.ErrLoanNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrDuplicateUser),
		errors.Is(err, core.ErrOwnerShare),
		errors.Is(err, core.ErrAlreadyShared),
		errors.Is(err, amort.ErrInvalidMonth):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidRate),
		errors.Is(err, core.ErrInvalidTerm),
		errors.Is(err, core.ErrEmptyUsername),
		errors.Is(err, core.ErrInvalidEmail),
		errors.Is(err, amort.ErrInvalidTerms):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("Unhandled error",
			log.FieldComponent, log.ComponentHTTP,
			log.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
