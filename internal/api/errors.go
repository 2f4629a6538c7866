package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fableworks/coinledger/internal/domain"
)

// writeDomainError maps service errors to status codes and machine codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var ibe *domain.InsufficientBalanceError
	switch {
	case errors.As(err, &ibe):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":    "INSUFFICIENT_BALANCE",
			"message": "insufficient balance",
			"balance": ibe.Balance,
		})
	case errors.Is(err, domain.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "account not found")
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found")
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be positive")
	case errors.Is(err, domain.ErrUnknownProduct):
		writeError(w, http.StatusBadRequest, "UNKNOWN_PRODUCT", "unknown product")
	case errors.Is(err, domain.ErrAlreadyProcessed):
		writeError(w, http.StatusConflict, "ALREADY_PROCESSED", "order already paid")
	case errors.Is(err, domain.ErrOrderExists):
		writeError(w, http.StatusConflict, "ORDER_EXISTS", "order number already used")
	case errors.Is(err, domain.ErrSigningKeyUnavailable):
		writeError(w, http.StatusServiceUnavailable, "SIGNING_UNAVAILABLE", "payment signing is not configured")
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		writeError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "platform unavailable, retry later")
	default:
		s.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}
