package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/fintrack/backend/internal/services"
)

// RecurringHandler exposes the materialization trigger over HTTP.
type RecurringHandler struct {
	materializer *services.MaterializerService
}

func NewRecurringHandler(materializer *services.MaterializerService) *RecurringHandler {
	return &RecurringHandler{materializer: materializer}
}

// ProcessBills materializes every elapsed occurrence of the caller's due bills
// @Summary Process due recurring bills
// @Description Generate ledger entries for every occurrence of the caller's active bills that has fallen due. Safe to call repeatedly; already-generated occurrences are skipped.
// @Tags recurring
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.MaterializeReport
// @Failure 401 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /recurring/process [post]
func (h *RecurringHandler) ProcessBills(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := r.Context().Value("userID").(string)
	if !ok || ownerID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	report, err := h.materializer.Materialize(r.Context(), ownerID, time.Now().UTC())
	if err != nil {
		log.Printf("[RECURRING] Materialization run failed for owner %s: %v", ownerID, err)
		services.SendErrorResponse(w, "Failed to process recurring bills", http.StatusInternalServerError, nil)
		return
	}

	// Per-bill failures are reported in the body, not as an HTTP error:
	// the run itself completed and the other bills' entries are committed.
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
