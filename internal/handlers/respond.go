package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/deluge-fund/backend/internal/services"
)

// statusFor maps ledger failures onto HTTP status codes: unknown ids and
// terminal settlements read as 404, the rest of the taxonomy as 422, and
// anything else (persistence failures included) as 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrLoanNotFound),
		errors.Is(err, services.ErrSettlementNotPending):
		return http.StatusNotFound
	case errors.Is(err, services.ErrFundingCodesOffline):
		return http.StatusServiceUnavailable
	case services.IsClientError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondLedgerError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		// Raw persistence errors stay in the logs, not the response.
		message = "operation failed, retry later"
	}
	services.SendErrorResponse(w, message, code, nil)
}

func callerID(r *http.Request) (int64, bool) {
	userID, ok := r.Context().Value("userID").(int64)
	return userID, ok
}
