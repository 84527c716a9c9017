package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"

	"github.com/deluge-fund/backend/internal/services"
)

type WatershedHandler struct {
	service *services.WatershedService
}

func NewWatershedHandler(service *services.WatershedService) *WatershedHandler {
	return &WatershedHandler{service: service}
}

// GetWatershed returns the caller's balance record
// @Summary Get watershed
// @Description Current balance and lifetime totals for the authenticated user
// @Tags watershed
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Watershed
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /watershed [get]
func (h *WatershedHandler) GetWatershed(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	ws, err := h.service.GetWatershed(userID)
	if err == sql.ErrNoRows {
		services.SendErrorResponse(w, "Watershed not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[WATERSHED] Fetch failed for user %d: %v", userID, err)
		respondLedgerError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ws)
}

// ListTransactions returns the caller's ledger history
// @Summary List watershed transactions
// @Description Recent ledger entries for the authenticated user, newest first
// @Tags watershed
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of entries to return (default: 50, max: 100)"
// @Success 200 {object} map[string]any
// @Failure 401 {object} services.ErrorResponse
// @Router /watershed/transactions [get]
func (h *WatershedHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	entries, err := h.service.ListTransactions(userID, limit)
	if err != nil {
		log.Printf("[WATERSHED] Transaction list failed for user %d: %v", userID, err)
		respondLedgerError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"transactions": entries,
		"count":        len(entries),
	})
}
