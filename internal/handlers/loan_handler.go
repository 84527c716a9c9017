package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deluge-fund/backend/internal/metrics"
	"github.com/deluge-fund/backend/internal/services"
)

type LoanHandler struct {
	service   *services.LoanService
	validator *services.ValidationHelper
}

func NewLoanHandler(service *services.LoanService) *LoanHandler {
	return &LoanHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

type CreateLoanRequest struct {
	Principal int64 `json:"principal" validate:"required,gt=0"`
}

type FundLoanRequest struct {
	ShareCount int64 `json:"share_count" validate:"required,gt=0"`
}

type RepaymentRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// CreateLoan opens a new loan request for the caller
// @Summary Create loan
// @Description Open a loan for the given principal, split into fundable shares
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateLoanRequest true "Loan details"
// @Success 201 {object} models.Loan
// @Failure 400 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /loans [post]
func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	borrowerID, ok := callerID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req CreateLoanRequest
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	loan, err := h.service.CreateLoan(borrowerID, req.Principal)
	metrics.Observe("loan_create", err, time.Since(start).Seconds())
	if err != nil {
		log.Printf("[LOAN] Create failed for borrower %d: %v", borrowerID, err)
		respondLedgerError(w, err)
		return
	}

	log.Printf("[LOAN] Loan %d opened: principal %d, %d shares", loan.ID, loan.Principal, loan.TotalShares)
	respondJSON(w, http.StatusCreated, loan)
}

// GetLoan returns a single loan by ID
// @Summary Get loan
// @Tags loans
// @Produce json
// @Param id path int true "Loan ID"
// @Success 200 {object} models.Loan
// @Failure 404 {object} services.ErrorResponse
// @Router /loans/{id} [get]
func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid loan ID", http.StatusBadRequest, nil)
		return
	}

	loan, err := h.service.GetLoan(loanID)
	if err != nil {
		respondLedgerError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, loan)
}

// FundLoan buys shares in an open loan
// @Summary Fund loan
// @Description Debit the caller for the requested shares; disburses to the borrower once fully funded
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Param request body FundLoanRequest true "Share count"
// @Success 200 {object} services.FundLoanResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /loans/{id}/fund [post]
func (h *LoanHandler) FundLoan(w http.ResponseWriter, r *http.Request) {
	funderID, ok := callerID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	loanID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid loan ID", http.StatusBadRequest, nil)
		return
	}

	var req FundLoanRequest
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	result, err := h.service.FundLoan(loanID, funderID, req.ShareCount)
	metrics.Observe("loan_fund", err, time.Since(start).Seconds())
	if err != nil {
		log.Printf("[LOAN] Funding failed: loan %d funder %d: %v", loanID, funderID, err)
		respondLedgerError(w, err)
		return
	}

	log.Printf("[LOAN] Loan %d funded by %d: %d shares taken, %d remaining", loanID, funderID, req.ShareCount, result.SharesRemaining)
	respondJSON(w, http.StatusOK, result)
}

// RecordRepayment applies a borrower repayment pro rata across funders
// @Summary Record repayment
// @Description Apply a repayment and distribute it to funders in proportion to their shares
// @Tags loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Param request body RepaymentRequest true "Repayment amount"
// @Success 200 {object} services.RepaymentResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /loans/{id}/repayments [post]
func (h *LoanHandler) RecordRepayment(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid loan ID", http.StatusBadRequest, nil)
		return
	}

	var req RepaymentRequest
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	result, err := h.service.RecordRepayment(loanID, req.Amount)
	metrics.Observe("loan_repayment", err, time.Since(start).Seconds())
	if err != nil {
		log.Printf("[LOAN] Repayment failed: loan %d amount %d: %v", loanID, req.Amount, err)
		respondLedgerError(w, err)
		return
	}

	log.Printf("[LOAN] Repayment of %d applied to loan %d, status now %s", req.Amount, loanID, result.Status)
	respondJSON(w, http.StatusOK, result)
}
