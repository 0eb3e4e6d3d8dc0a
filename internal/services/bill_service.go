package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fintrack/backend/internal/models"
	"github.com/fintrack/backend/internal/schedule"
)

// BillService manages recurring bill definitions. Cursor advancement at
// materialization time is MaterializerService's job; this service only
// moves the cursor on reactivation, where missed occurrences are skipped
// rather than backfilled.
type BillService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewBillService(db *sql.DB) *BillService {
	return &BillService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

type billRequest struct {
	Title     string          `json:"title" validate:"required,max=100"`
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	Category  string          `json:"category" validate:"required,max=50"`
	Wallet    string          `json:"wallet" validate:"max=50"`
	Frequency string          `json:"frequency" validate:"required"`
	StartDate string          `json:"startDate" validate:"required"`
}

// CreateBill registers a new recurring bill
// @Summary Create a recurring bill
// @Description Register a recurring bill; its cursor starts at the start date
// @Tags recurring
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param bill body billRequest true "Bill data"
// @Success 201 {object} models.RecurringBill
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /recurring [post]
func (s *BillService) CreateBill(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := r.Context().Value("userID").(string)
	if !ok || ownerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req billRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if !req.Amount.IsPositive() {
		SendErrorResponse(w, "Amount must be positive", http.StatusBadRequest, nil)
		return
	}

	freq, err := schedule.ParseFrequency(req.Frequency)
	if err != nil {
		SendErrorResponse(w, "Frequency must be daily, weekly, monthly or yearly", http.StatusBadRequest, nil)
		return
	}

	startDate, err := parseEntryDate(req.StartDate)
	if err != nil {
		SendErrorResponse(w, "Invalid start date", http.StatusBadRequest, nil)
		return
	}

	now := time.Now().UTC()
	bill := models.RecurringBill{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     strings.TrimSpace(req.Title),
		Category:  normalizeCategory(req.Category),
		Wallet:    normalizeWallet(req.Wallet),
		Amount:    req.Amount,
		Frequency: string(freq),
		StartDate: startDate,
		NextDate:  startDate,
		IsActive:  true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(r.Context(), `
        INSERT INTO recurring_bills
        (id, owner_id, title, category, wallet, amount, frequency, start_date, next_date, is_active, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `, bill.ID, bill.OwnerID, bill.Title, bill.Category, bill.Wallet, bill.Amount,
		bill.Frequency, bill.StartDate, bill.NextDate, bill.IsActive, bill.Version,
		bill.CreatedAt, bill.UpdatedAt)
	if err != nil {
		log.Printf("[RECURRING] Failed to create bill for owner %s: %v", ownerID, err)
		SendErrorResponse(w, "Failed to create bill", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[RECURRING] Created bill %s (%s, %s) for owner %s", bill.ID, bill.Title, bill.Frequency, ownerID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(bill)
}

// ListBills retrieves the caller's recurring bills
// @Summary List recurring bills
// @Description Get all of the caller's recurring bills, active and inactive
// @Tags recurring
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{bills=[]models.RecurringBill,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /recurring [get]
func (s *BillService) ListBills(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := r.Context().Value("userID").(string)
	if !ok || ownerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
        SELECT id, owner_id, title, category, wallet, amount, frequency, start_date, next_date, last_generated, is_active, version, created_at, updated_at
        FROM recurring_bills
        WHERE owner_id = $1
        ORDER BY next_date
    `, ownerID)
	if err != nil {
		log.Printf("[RECURRING] Failed to fetch bills for owner %s: %v", ownerID, err)
		SendErrorResponse(w, "Failed to fetch bills", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	bills := []models.RecurringBill{}
	for rows.Next() {
		var bill models.RecurringBill
		if err := scanBill(rows, &bill); err != nil {
			log.Printf("[RECURRING] Failed to scan bill row: %v", err)
			SendErrorResponse(w, "Failed to fetch bills", http.StatusInternalServerError, nil)
			return
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch bills", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"bills": bills,
		"count": len(bills),
	})
}

// GetBill retrieves a specific recurring bill
// @Summary Get recurring bill by ID
// @Description Retrieve one of the caller's recurring bills
// @Tags recurring
// @Produce json
// @Security BearerAuth
// @Param billId path string true "Bill ID"
// @Success 200 {object} models.RecurringBill
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /recurring/{billId} [get]
func (s *BillService) GetBill(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := r.Context().Value("userID").(string)
	if !ok || ownerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	billID := chi.URLParam(r, "billId")

	bill, err := s.fetchBill(r, billID, ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Bill not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[RECURRING] Failed to fetch bill %s: %v", billID, err)
			SendErrorResponse(w, "Failed to fetch bill", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bill)
}

// DeactivateBill pauses a recurring bill
// @Summary Deactivate recurring bill
// @Description Pause a bill; the materializer skips inactive bills
// @Tags recurring
// @Produce json
// @Security BearerAuth
// @Param billId path string true "Bill ID"
// @Success 200 {object} models.RecurringBill
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /recurring/{billId}/deactivate [put]
func (s *BillService) DeactivateBill(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := r.Context().Value("userID").(string)
	if !ok || ownerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	billID := chi.URLParam(r, "billId")

	res, err := s.db.ExecContext(r.Context(), `
        UPDATE recurring_bills
        SET is_active = FALSE, version = version + 1, updated_at = NOW()
        WHERE id = $1 AND owner_id = $2
    `, billID, ownerID)
	if err != nil {
		log.Printf("[RECURRING] Failed to deactivate bill %s: %v", billID, err)
		SendErrorResponse(w, "Failed to deactivate bill", http.StatusInternalServerError, nil)
		return
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		SendErrorResponse(w, "Bill not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[RECURRING] Deactivated bill %s", billID)

	bill, err := s.fetchBill(r, billID, ownerID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch bill", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bill)
}

// ReactivateBill resumes a paused recurring bill. Occurrences that fell
// due while the bill was inactive are skipped, not backfilled: the
// cursor fast-forwards to the first occurrence on or after now.
// @Summary Reactivate recurring bill
// @Description Resume a paused bill without backfilling missed occurrences
// @Tags recurring
// @Produce json
// @Security BearerAuth
// @Param billId path string true "Bill ID"
// @Success 200 {object} models.RecurringBill
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /recurring/{billId}/reactivate [put]
func (s *BillService) ReactivateBill(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := r.Context().Value("userID").(string)
	if !ok || ownerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	billID := chi.URLParam(r, "billId")

	bill, err := s.fetchBill(r, billID, ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Bill not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[RECURRING] Failed to fetch bill %s: %v", billID, err)
			SendErrorResponse(w, "Failed to fetch bill", http.StatusInternalServerError, nil)
		}
		return
	}

	freq, err := schedule.ParseFrequency(bill.Frequency)
	if err != nil {
		log.Printf("[RECURRING] Bill %s has unusable frequency %q: %v", billID, bill.Frequency, err)
		SendErrorResponse(w, "Bill has an unusable frequency", http.StatusInternalServerError, nil)
		return
	}

	now := time.Now().UTC()
	cursor := bill.NextDate
	anchorDay := bill.StartDate.Day()
	for cursor.Before(now) {
		cursor = schedule.AdvanceAnchored(cursor, freq, anchorDay)
	}

	res, err := s.db.ExecContext(r.Context(), `
        UPDATE recurring_bills
        SET is_active = TRUE, next_date = $1, version = version + 1, updated_at = NOW()
        WHERE id = $2 AND owner_id = $3 AND version = $4
    `, cursor, billID, ownerID, bill.Version)
	if err != nil {
		log.Printf("[RECURRING] Failed to reactivate bill %s: %v", billID, err)
		SendErrorResponse(w, "Failed to reactivate bill", http.StatusInternalServerError, nil)
		return
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		SendErrorResponse(w, "Bill was modified concurrently, retry", http.StatusConflict, nil)
		return
	}

	log.Printf("[RECURRING] Reactivated bill %s, cursor fast-forwarded %s -> %s",
		billID, bill.NextDate.Format("2006-01-02"), cursor.Format("2006-01-02"))

	updated, err := s.fetchBill(r, billID, ownerID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch bill", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

// DeleteBill removes a recurring bill definition
// @Summary Delete recurring bill
// @Description Delete a bill definition; entries it already generated stay in the ledger
// @Tags recurring
// @Produce json
// @Security BearerAuth
// @Param billId path string true "Bill ID"
// @Success 204 {string} string "Deleted"
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /recurring/{billId} [delete]
func (s *BillService) DeleteBill(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := r.Context().Value("userID").(string)
	if !ok || ownerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	billID := chi.URLParam(r, "billId")

	res, err := s.db.ExecContext(r.Context(),
		`DELETE FROM recurring_bills WHERE id = $1 AND owner_id = $2`, billID, ownerID)
	if err != nil {
		log.Printf("[RECURRING] Failed to delete bill %s: %v", billID, err)
		SendErrorResponse(w, "Failed to delete bill", http.StatusInternalServerError, nil)
		return
	}
	affected, err := res.RowsAffected()
	if err != nil {
		SendErrorResponse(w, "Failed to delete bill", http.StatusInternalServerError, nil)
		return
	}
	if affected == 0 {
		SendErrorResponse(w, "Bill not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[RECURRING] Deleted bill %s", billID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *BillService) fetchBill(r *http.Request, billID, ownerID string) (*models.RecurringBill, error) {
	row := s.db.QueryRowContext(r.Context(), `
        SELECT id, owner_id, title, category, wallet, amount, frequency, start_date, next_date, last_generated, is_active, version, created_at, updated_at
        FROM recurring_bills
        WHERE id = $1 AND owner_id = $2
    `, billID, ownerID)

	var bill models.RecurringBill
	if err := scanBill(row, &bill); err != nil {
		return nil, err
	}
	return &bill, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBill(row rowScanner, bill *models.RecurringBill) error {
	return row.Scan(
		&bill.ID, &bill.OwnerID, &bill.Title, &bill.Category, &bill.Wallet,
		&bill.Amount, &bill.Frequency, &bill.StartDate, &bill.NextDate,
		&bill.LastGenerated, &bill.IsActive, &bill.Version, &bill.CreatedAt, &bill.UpdatedAt,
	)
}
