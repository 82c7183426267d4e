package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"cpswap/native/discount"
	"cpswap/services/discountd/api"
	"cpswap/services/discountd/middleware"
)

// statusFor maps ledger rejections onto HTTP semantics.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, discount.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, discount.ErrDiscountExceedsCeiling):
		return http.StatusUnprocessableEntity, "discount_exceeds_ceiling"
	case errors.Is(err, discount.ErrAddressMismatch):
		return http.StatusConflict, "address_mismatch"
	case errors.Is(err, discount.ErrRecordNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, discount.ErrRecordExists):
		return http.StatusConflict, "exists"
	case errors.Is(err, discount.ErrUserRequired), errors.Is(err, discount.ErrInvalidSeeds):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "discountd: ledger failure",
			"request_id", middleware.RequestIDFrom(r.Context()),
			"error", err)
		message = "internal error"
	}
	writeError(w, status, code, message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, api.Error{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("discountd: write response", "error", err)
	}
}
