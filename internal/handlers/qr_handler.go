package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/deluge-fund/backend/internal/services"
)

type QRHandler struct {
	service   *services.QRService
	validator *services.ValidationHelper
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

type GenerateFundingQRRequest struct {
	Kind       string `json:"kind" validate:"required,oneof=loan_funding top_up"`
	LoanID     int64  `json:"loan_id" validate:"omitempty,gt=0"`
	ShareCount int64  `json:"share_count" validate:"omitempty,gt=0"`
	Amount     int64  `json:"amount" validate:"omitempty,gt=0"`
}

type ResolveFundingQRRequest struct {
	Code string `json:"code" validate:"required"`
}

// GenerateFunding issues a short-lived QR encoding a funding intent
// @Summary Generate funding QR
// @Tags qr
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body GenerateFundingQRRequest true "Funding intent"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Router /qr/funding [post]
func (h *QRHandler) GenerateFunding(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req GenerateFundingQRRequest
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	code, qrImage, err := h.service.GenerateFundingCode(r.Context(), userID, req.Kind, req.LoanID, req.ShareCount, req.Amount)
	if err != nil {
		log.Printf("[QR] Funding code generation failed for user %d: %v", userID, err)
		if errors.Is(err, services.ErrFundingCodesOffline) {
			respondLedgerError(w, err)
			return
		}
		services.SendErrorResponse(w, "Failed to generate funding code", http.StatusInternalServerError, nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"code":     code,
		"qr_image": qrImage,
	})
}

// Resolve consumes a funding QR code and returns its intent payload
// @Summary Resolve funding QR
// @Description Single use: the code is invalidated on first resolve
// @Tags qr
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ResolveFundingQRRequest true "Funding code"
// @Success 200 {object} map[string]any
// @Failure 404 {object} services.ErrorResponse
// @Router /qr/resolve [post]
func (h *QRHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveFundingQRRequest
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	payload, err := h.service.ResolveFundingCode(r.Context(), req.Code)
	if err != nil {
		if errors.Is(err, services.ErrFundingCodesOffline) {
			respondLedgerError(w, err)
			return
		}
		services.SendErrorResponse(w, "Invalid or expired funding code", http.StatusNotFound, nil)
		return
	}

	respondJSON(w, http.StatusOK, payload)
}
