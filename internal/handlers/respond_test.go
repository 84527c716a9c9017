package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/deluge-fund/backend/internal/config"
	"github.com/deluge-fund/backend/internal/models"
	"github.com/deluge-fund/backend/internal/services"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(services.ErrLoanNotFound))
	assert.Equal(t, http.StatusNotFound, statusFor(services.ErrSettlementNotPending))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(services.ErrInsufficientFunds))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(services.ErrInvalidShareCount))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(services.ErrFundingCodesOffline))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("connection reset")))
}

func TestRespondLedgerError_MasksInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	respondLedgerError(w, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var response services.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "operation failed, retry later", response.Error)
}

func authedRequest(method, target string, body []byte, userID int64) *http.Request {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewBuffer(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	return r.WithContext(context.WithValue(r.Context(), "userID", userID))
}

func TestLoanHandler_GetLoan(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	cfg := &config.LedgerConfig{SharePrice: 100}
	handler := NewLoanHandler(services.NewLoanService(db, services.NewWatershedService(db), cfg))

	router := chi.NewRouter()
	router.Get("/loans/{id}", handler.GetLoan)

	t.Run("existing loan", func(t *testing.T) {
		mock.ExpectQuery("(?s)SELECT id, borrower_id, principal, share_price, total_shares, shares_remaining, status, version, created_at, funded_at, closed_at.*FROM loans").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "borrower_id", "principal", "share_price", "total_shares",
				"shares_remaining", "status", "version", "created_at", "funded_at", "closed_at",
			}).AddRow(5, 9, 1000, 100, 10, 4, models.LoanStatusOpen, 2, time.Now(), nil, nil))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/loans/5", nil, 21))

		assert.Equal(t, http.StatusOK, w.Code)
		var loan models.Loan
		json.Unmarshal(w.Body.Bytes(), &loan)
		assert.Equal(t, int64(5), loan.ID)
		assert.Equal(t, int64(4), loan.SharesRemaining)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown loan", func(t *testing.T) {
		mock.ExpectQuery("(?s)SELECT id, borrower_id, principal.*FROM loans").
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/loans/99", nil, 21))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-numeric id", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/loans/abc", nil, 21))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLoanHandler_CreateLoan(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	cfg := &config.LedgerConfig{SharePrice: 100}
	handler := NewLoanHandler(services.NewLoanService(db, services.NewWatershedService(db), cfg))

	router := chi.NewRouter()
	router.Post("/loans", handler.CreateLoan)

	t.Run("creates loan for caller", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO loans").
			WithArgs(int64(9), int64(1000), int64(100), int64(10), int64(10), models.LoanStatusOpen, 1, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

		body, _ := json.Marshal(CreateLoanRequest{Principal: 1000})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("POST", "/loans", body, 9))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("principal not divisible by share price", func(t *testing.T) {
		body, _ := json.Marshal(CreateLoanRequest{Principal: 1050})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("POST", "/loans", body, 9))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("missing auth context", func(t *testing.T) {
		body, _ := json.Marshal(CreateLoanRequest{Principal: 1000})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/loans", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestSettlementHandler_Report(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := services.NewSettlementService(db, services.NewReserveService(db, nil), nil)
	cfg := &config.LedgerConfig{Currency: "USD"}
	handler := NewSettlementHandler(service, services.NewSettlementReportService(), cfg)

	router := chi.NewRouter()
	router.Get("/settlements/{id}/report", handler.Report)

	settlementColumns := []string{"id", "amount", "status", "provider_ref", "description", "created_at", "cleared_at"}

	t.Run("cleared settlement renders a credit transfer", func(t *testing.T) {
		mock.ExpectQuery("(?s)SELECT id, amount, status, provider_ref, description, created_at, cleared_at.*FROM settlements").
			WithArgs("set-1").
			WillReturnRows(sqlmock.NewRows(settlementColumns).
				AddRow("set-1", int64(5000), models.SettlementCleared, "prov-1", "daily batch", time.Now(), time.Now()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/settlements/set-1/report", nil, 1))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "set-1")
		assert.Contains(t, w.Body.String(), "USD")
	})

	t.Run("failed settlement renders a rejected status report", func(t *testing.T) {
		mock.ExpectQuery("(?s)SELECT id, amount, status, provider_ref, description, created_at, cleared_at.*FROM settlements").
			WithArgs("set-2").
			WillReturnRows(sqlmock.NewRows(settlementColumns).
				AddRow("set-2", int64(5000), models.SettlementFailed, "prov-2", "daily batch", time.Now(), nil))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/settlements/set-2/report", nil, 1))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "RJCT")
		assert.Contains(t, w.Body.String(), "set-2")
	})

	t.Run("pending settlement has no report", func(t *testing.T) {
		mock.ExpectQuery("(?s)SELECT id, amount, status, provider_ref, description, created_at, cleared_at.*FROM settlements").
			WithArgs("set-3").
			WillReturnRows(sqlmock.NewRows(settlementColumns).
				AddRow("set-3", int64(5000), models.SettlementPending, "", "daily batch", time.Now(), nil))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/settlements/set-3/report", nil, 1))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
