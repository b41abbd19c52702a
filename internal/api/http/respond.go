package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"campusledger/internal/domain"
	"campusledger/internal/logger"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorResponse{Error: message})
}

// respondWithDomainError maps service-layer sentinels onto HTTP statuses.
// Lock conflicts that survived retrying come back as 503 with a Retry-After
// hint so well-behaved clients back off instead of hammering the row.
func respondWithDomainError(w http.ResponseWriter, err error) {
	var policyErr *domain.PolicyError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrExhausted):
		respondWithError(w, http.StatusConflict, "pool capacity exhausted")
	case errors.As(err, &policyErr):
		respondWithJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  "policy violation",
			Reason: policyErr.Reason,
			Detail: policyErr.Detail,
		})
	case errors.Is(err, domain.ErrPolicyViolation):
		respondWithError(w, http.StatusUnprocessableEntity, "policy violation")
	case errors.Is(err, domain.ErrRenewalLimitExceeded):
		respondWithError(w, http.StatusUnprocessableEntity, "renewal limit exceeded")
	case errors.Is(err, domain.ErrConflict):
		w.Header().Set("Retry-After", "1")
		respondWithError(w, http.StatusServiceUnavailable, "transient conflict, retry")
	default:
		logger.Error("unhandled service error", "error", err)
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
