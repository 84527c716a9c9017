package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deluge-fund/backend/internal/config"
	"github.com/deluge-fund/backend/internal/metrics"
	"github.com/deluge-fund/backend/internal/models"
	"github.com/deluge-fund/backend/internal/services"
)

type SettlementHandler struct {
	service   *services.SettlementService
	reports   *services.SettlementReportService
	cfg       *config.LedgerConfig
	validator *services.ValidationHelper
}

func NewSettlementHandler(service *services.SettlementService, reports *services.SettlementReportService, cfg *config.LedgerConfig) *SettlementHandler {
	if cfg == nil {
		cfg = config.LoadLedgerConfig()
	}
	return &SettlementHandler{
		service:   service,
		reports:   reports,
		cfg:       cfg,
		validator: services.NewValidationHelper(),
	}
}

type CreateSettlementRequest struct {
	Amount      int64  `json:"amount" validate:"required"`
	Description string `json:"description" validate:"required,max=255"`
}

type ClearSettlementRequest struct {
	ProviderRef string `json:"provider_ref" validate:"omitempty,max=64"`
}

// Create records a pending settlement from the payment provider
// @Summary Create settlement
// @Tags settlements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateSettlementRequest true "Settlement details"
// @Success 201 {object} models.Settlement
// @Failure 422 {object} services.ErrorResponse
// @Router /settlements [post]
func (h *SettlementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSettlementRequest
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	settlement, err := h.service.CreateSettlement(req.Amount, req.Description)
	if err != nil {
		log.Printf("[SETTLEMENT] Create failed: %v", err)
		respondLedgerError(w, err)
		return
	}

	log.Printf("[SETTLEMENT] Settlement %s recorded: amount %d", settlement.ID, settlement.Amount)
	respondJSON(w, http.StatusCreated, settlement)
}

// Clear moves a pending settlement to cleared and adjusts the reserve
// @Summary Clear settlement
// @Description Idempotent: clearing an already-cleared or failed settlement returns 404
// @Tags settlements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Settlement ID"
// @Param request body ClearSettlementRequest false "Provider reference"
// @Success 200 {object} models.Settlement
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /settlements/{id}/clear [post]
func (h *SettlementHandler) Clear(w http.ResponseWriter, r *http.Request) {
	settlementID := chi.URLParam(r, "id")

	var req ClearSettlementRequest
	if r.ContentLength > 0 {
		if err := services.DecodeJSON(w, r, &req); err != nil {
			services.SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
			return
		}
	}

	start := time.Now()
	settlement, err := h.service.ClearSettlement(settlementID, req.ProviderRef)
	metrics.Observe("settlement_clear", err, time.Since(start).Seconds())
	if err != nil {
		log.Printf("[SETTLEMENT] Clear failed for %s: %v", settlementID, err)
		respondLedgerError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, settlement)
}

// Fail marks a pending settlement as failed
// @Summary Fail settlement
// @Tags settlements
// @Produce json
// @Security BearerAuth
// @Param id path string true "Settlement ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} services.ErrorResponse
// @Router /settlements/{id}/fail [post]
func (h *SettlementHandler) Fail(w http.ResponseWriter, r *http.Request) {
	settlementID := chi.URLParam(r, "id")

	if err := h.service.MarkFailed(settlementID); err != nil {
		log.Printf("[SETTLEMENT] Fail failed for %s: %v", settlementID, err)
		respondLedgerError(w, err)
		return
	}

	log.Printf("[SETTLEMENT] Settlement %s marked failed", settlementID)
	respondJSON(w, http.StatusOK, map[string]any{"status": "failed"})
}

// Report exports a settlement as an ISO 20022 message: pacs.008 for cleared
// settlements, pacs.002 with a rejected status for failed ones
// @Summary Settlement report
// @Tags settlements
// @Produce xml
// @Security BearerAuth
// @Param id path string true "Settlement ID"
// @Success 200 {string} string "pacs.008 or pacs.002 XML"
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /settlements/{id}/report [get]
func (h *SettlementHandler) Report(w http.ResponseWriter, r *http.Request) {
	settlementID := chi.URLParam(r, "id")

	settlement, err := h.service.GetSettlement(settlementID)
	if err != nil {
		respondLedgerError(w, err)
		return
	}

	var msg any
	if settlement.Status == models.SettlementFailed {
		msg, err = h.reports.CreatePacs002(settlement, "RJCT")
	} else {
		msg, err = h.reports.CreatePacs008(settlement, h.cfg.Currency)
	}
	if err != nil {
		log.Printf("[SETTLEMENT] Report generation failed for %s: %v", settlementID, err)
		respondLedgerError(w, err)
		return
	}

	xmlDoc, err := h.reports.ConvertToXML(msg)
	if err != nil {
		log.Printf("[SETTLEMENT] XML marshal failed for %s: %v", settlementID, err)
		respondLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xmlDoc))
}
