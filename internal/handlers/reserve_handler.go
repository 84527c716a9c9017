package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/deluge-fund/backend/internal/audit"
	"github.com/deluge-fund/backend/internal/metrics"
	"github.com/deluge-fund/backend/internal/services"
)

type ReserveHandler struct {
	service   *services.ReserveService
	audit     *audit.Logger
	validator *services.ValidationHelper
}

func NewReserveHandler(service *services.ReserveService, auditLogger *audit.Logger) *ReserveHandler {
	return &ReserveHandler{
		service:   service,
		audit:     auditLogger,
		validator: services.NewValidationHelper(),
	}
}

type ReserveAdjustRequest struct {
	Amount      int64  `json:"amount" validate:"required"`
	Description string `json:"description" validate:"required,max=255"`
}

// GetHealth reports the reserve's balance, status band and flow trend
// @Summary Reserve health
// @Tags reserve
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.ReserveHealth
// @Failure 500 {object} services.ErrorResponse
// @Router /reserve/health [get]
func (h *ReserveHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.service.GetHealth()
	if err != nil {
		log.Printf("[RESERVE] Health check failed: %v", err)
		respondLedgerError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, health)
}

// Adjust applies a manual reserve adjustment (admin only)
// @Summary Adjust reserve
// @Description Credit or debit the platform reserve; the adjustment is audit logged
// @Tags reserve
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ReserveAdjustRequest true "Adjustment"
// @Success 200 {object} map[string]int64
// @Failure 403 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /reserve/adjust [post]
func (h *ReserveHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req ReserveAdjustRequest
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	balance, err := h.service.Adjust(req.Amount, req.Description)
	metrics.Observe("reserve_adjust", err, time.Since(start).Seconds())
	if err != nil {
		log.Printf("[RESERVE] Adjustment of %d failed: %v", req.Amount, err)
		respondLedgerError(w, err)
		return
	}

	actor := strconv.FormatInt(actorID, 10)
	h.audit.LogReserveAdjustment("", actor, req.Amount, req.Description)
	log.Printf("[RESERVE] Adjusted by %d (actor %s), balance now %d", req.Amount, actor, balance)

	respondJSON(w, http.StatusOK, map[string]any{"balance": balance})
}
