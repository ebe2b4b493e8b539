package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"htlc-relayer/internal/swap"
)

// Error codes returned in the envelope.
const (
	codeValidation        = "VALIDATION_ERROR"
	codeDuplicateOrder    = "DUPLICATE_ORDER"
	codeNotFound          = "NOT_FOUND"
	codeInvalidSecret     = "INVALID_SECRET"
	codeIllegalTransition = "ILLEGAL_TRANSITION"
	codeStoreUnavailable  = "STORE_UNAVAILABLE"
	codeInternal          = "INTERNAL_ERROR"
)

// Envelope wraps every JSON response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Envelope{Error: &ErrorBody{Code: code, Message: message}})
}

// errorStatus maps coordinator errors to an HTTP status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, swap.ErrValidation):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, swap.ErrDuplicateOrder):
		return http.StatusConflict, codeDuplicateOrder
	case errors.Is(err, swap.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, swap.ErrInvalidSecret):
		return http.StatusUnprocessableEntity, codeInvalidSecret
	case errors.Is(err, swap.ErrIllegalTransition):
		return http.StatusConflict, codeIllegalTransition
	case errors.Is(err, swap.ErrStore):
		return http.StatusServiceUnavailable, codeStoreUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// fail writes err through the envelope. Internal errors are logged and
// their message is not exposed.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	writeError(w, status, code, msg)
}
