package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"keyledger/internal/core"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps service and validation errors onto HTTP status codes.
func statusFor(err error) int {
	var validation ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case core.IsNotFound(err):
		return http.StatusNotFound
	case core.IsPersistenceError(err):
		return http.StatusInternalServerError
	case core.IsInvariantViolation(err), core.IsRuleViolation(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondError(w, status, err.Error())
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return ValidationError{Field: "body", Message: "invalid JSON payload"}
	}
	return nil
}
