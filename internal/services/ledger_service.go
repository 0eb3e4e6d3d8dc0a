package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fintrack/backend/internal/models"
)

const dashboardCacheTTL = time.Minute

// LedgerService owns the append-oriented ledger of dated income/expense
// entries and the dashboard aggregates computed over it.
type LedgerService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
}

func NewLedgerService(db *sql.DB, redisClient *redis.Client) *LedgerService {
	return &LedgerService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
	}
}

type entryRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	Category  string          `json:"category" validate:"required,max=50"`
	Wallet    string          `json:"wallet" validate:"max=50"`
	EntryType string          `json:"entryType" validate:"required,oneof=income expense"`
	Note      string          `json:"note" validate:"max=200"`
	Date      string          `json:"date"`
}

// CreateEntry records a new ledger entry for the caller
// @Summary Create a ledger entry
// @Description Record an income or expense entry in the caller's ledger
// @Tags entries
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param entry body entryRequest true "Entry data"
// @Success 201 {object} models.LedgerEntry
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /entries [post]
func (s *LedgerService) CreateEntry(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := r.Context().Value("userID").(string)
	if !ok || ownerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req entryRequest
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

	entryDate := time.Now().UTC()
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := parseEntryDate(req.Date)
		if err != nil {
			SendErrorResponse(w, "Invalid date", http.StatusBadRequest, nil)
			return
		}
		entryDate = parsed
	}

	entry := models.LedgerEntry{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Amount:    req.Amount,
		Category:  normalizeCategory(req.Category),
		Wallet:    normalizeWallet(req.Wallet),
		EntryType: req.EntryType,
		Note:      strings.TrimSpace(req.Note),
		EntryDate: entryDate,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(r.Context(), `
        INSERT INTO ledger_entries
        (id, owner_id, amount, category, wallet, entry_type, note, entry_date, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, entry.ID, entry.OwnerID, entry.Amount, entry.Category, entry.Wallet,
		entry.EntryType, entry.Note, entry.EntryDate, entry.CreatedAt)
	if err != nil {
		log.Printf("[LEDGER] Failed to store entry for owner %s: %v", ownerID, err)
		SendErrorResponse(w, "Failed to store entry", http.StatusInternalServerError, nil)
		return
	}

	s.bustDashboardCache(r.Context(), ownerID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

// ListEntries retrieves ledger entries with optional filters
// @Summary List ledger entries
// @Description Get the caller's ledger entries with optional filtering
// @Tags entries
// @Produce json
// @Security BearerAuth
// @Param category query string false "Filter by category"
// @Param wallet query string false "Filter by wallet"
// @Param type query string false "Filter by entry type (income|expense)"
// @Param from query string false "Earliest entry date (YYYY-MM-DD)"
// @Param to query string false "Latest entry date (YYYY-MM-DD)"
// @Param limit query int false "Max entries to return (default: 50, max: 200)"
// @Success 200 {object} object{entries=[]models.LedgerEntry,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /entries [get]
func (s *LedgerService) ListEntries(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := r.Context().Value("userID").(string)
	if !ok || ownerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	query := r.URL.Query()
	limit := 50
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	filter := entryFilter{
		Category:  normalizeCategory(query.Get("category")),
		Wallet:    strings.ToLower(strings.TrimSpace(query.Get("wallet"))),
		EntryType: strings.TrimSpace(query.Get("type")),
	}
	if fromRaw := strings.TrimSpace(query.Get("from")); fromRaw != "" {
		from, err := parseEntryDate(fromRaw)
		if err != nil {
			SendErrorResponse(w, "Invalid from date", http.StatusBadRequest, nil)
			return
		}
		filter.From = &from
	}
	if toRaw := strings.TrimSpace(query.Get("to")); toRaw != "" {
		to, err := parseEntryDate(toRaw)
		if err != nil {
			SendErrorResponse(w, "Invalid to date", http.StatusBadRequest, nil)
			return
		}
		filter.To = &to
	}

	entries, err := s.fetchEntries(r.Context(), ownerID, filter, limit)
	if err != nil {
		log.Printf("[LEDGER] Failed to fetch entries for owner %s: %v", ownerID, err)
		SendErrorResponse(w, "Failed to fetch entries", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// GetEntry retrieves a specific ledger entry
// @Summary Get ledger entry by ID
// @Description Retrieve one of the caller's ledger entries by its ID
// @Tags entries
// @Produce json
// @Security BearerAuth
// @Param entryId path string true "Entry ID"
// @Success 200 {object} models.LedgerEntry
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /entries/{entryId} [get]
func (s *LedgerService) GetEntry(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := r.Context().Value("userID").(string)
	if !ok || ownerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	entryID := chi.URLParam(r, "entryId")

	var entry models.LedgerEntry
	err := s.db.QueryRowContext(r.Context(), `
        SELECT id, owner_id, amount, category, wallet, entry_type, note, entry_date, bill_id, occurrence_date, created_at
        FROM ledger_entries
        WHERE id = $1 AND owner_id = $2
    `, entryID, ownerID).Scan(
		&entry.ID, &entry.OwnerID, &entry.Amount, &entry.Category, &entry.Wallet,
		&entry.EntryType, &entry.Note, &entry.EntryDate, &entry.BillID, &entry.OccurrenceDate, &entry.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Entry not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[LEDGER] Failed to fetch entry %s: %v", entryID, err)
			SendErrorResponse(w, "Failed to fetch entry", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// DeleteEntry removes a ledger entry
// @Summary Delete ledger entry
// @Description Delete one of the caller's ledger entries
// @Tags entries
// @Produce json
// @Security BearerAuth
// @Param entryId path string true "Entry ID"
// @Success 204 {string} string "Deleted"
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /entries/{entryId} [delete]
func (s *LedgerService) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := r.Context().Value("userID").(string)
	if !ok || ownerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	entryID := chi.URLParam(r, "entryId")

	res, err := s.db.ExecContext(r.Context(),
		`DELETE FROM ledger_entries WHERE id = $1 AND owner_id = $2`, entryID, ownerID)
	if err != nil {
		log.Printf("[LEDGER] Failed to delete entry %s: %v", entryID, err)
		SendErrorResponse(w, "Failed to delete entry", http.StatusInternalServerError, nil)
		return
	}
	affected, err := res.RowsAffected()
	if err != nil {
		SendErrorResponse(w, "Failed to delete entry", http.StatusInternalServerError, nil)
		return
	}
	if affected == 0 {
		SendErrorResponse(w, "Entry not found", http.StatusNotFound, nil)
		return
	}

	s.bustDashboardCache(r.Context(), ownerID)
	w.WriteHeader(http.StatusNoContent)
}

// GetDashboardSummary aggregates the caller's ledger over a period
// @Summary Get dashboard summary
// @Description Totals, net and category breakdown for the caller's ledger over a period
// @Tags dashboard
// @Produce json
// @Security BearerAuth
// @Param period query string false "Aggregation period (week|month|year, default: month)"
// @Success 200 {object} models.DashboardSummary
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /dashboard/summary [get]
func (s *LedgerService) GetDashboardSummary(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := r.Context().Value("userID").(string)
	if !ok || ownerID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = "month"
	}
	if period != "week" && period != "month" && period != "year" {
		SendErrorResponse(w, "period must be 'week', 'month' or 'year'", http.StatusBadRequest, nil)
		return
	}

	cacheKey := fmt.Sprintf("dashboard:%s:%s", ownerID, period)
	if s.redis != nil {
		if cached, err := s.redis.Get(r.Context(), cacheKey).Bytes(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Write(cached)
			return
		}
	}

	summary, err := s.computeSummary(r.Context(), ownerID, period, time.Now().UTC())
	if err != nil {
		log.Printf("[LEDGER] Failed to compute summary for owner %s: %v", ownerID, err)
		SendErrorResponse(w, "Failed to compute summary", http.StatusInternalServerError, nil)
		return
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		SendErrorResponse(w, "Failed to compute summary", http.StatusInternalServerError, nil)
		return
	}
	if s.redis != nil {
		if err := s.redis.Set(r.Context(), cacheKey, payload, dashboardCacheTTL).Err(); err != nil {
			log.Printf("[LEDGER] Failed to cache summary for owner %s: %v", ownerID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

type entryFilter struct {
	Category  string
	Wallet    string
	EntryType string
	From      *time.Time
	To        *time.Time
}

func (s *LedgerService) fetchEntries(ctx context.Context, ownerID string, filter entryFilter, limit int) ([]models.LedgerEntry, error) {
	conditions := []string{"owner_id = $1"}
	args := []interface{}{ownerID}
	argIndex := 2

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, filter.Category)
		argIndex++
	}
	if filter.Wallet != "" {
		conditions = append(conditions, fmt.Sprintf("wallet = $%d", argIndex))
		args = append(args, filter.Wallet)
		argIndex++
	}
	if filter.EntryType != "" {
		conditions = append(conditions, fmt.Sprintf("entry_type = $%d", argIndex))
		args = append(args, filter.EntryType)
		argIndex++
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("entry_date >= $%d", argIndex))
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("entry_date <= $%d", argIndex))
		args = append(args, *filter.To)
		argIndex++
	}

	query := `
        SELECT id, owner_id, amount, category, wallet, entry_type, note, entry_date, bill_id, occurrence_date, created_at
        FROM ledger_entries
        WHERE ` + strings.Join(conditions, " AND ") + `
        ORDER BY entry_date DESC` + fmt.Sprintf(" LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(
			&entry.ID, &entry.OwnerID, &entry.Amount, &entry.Category, &entry.Wallet,
			&entry.EntryType, &entry.Note, &entry.EntryDate, &entry.BillID, &entry.OccurrenceDate, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (s *LedgerService) computeSummary(ctx context.Context, ownerID, period string, now time.Time) (*models.DashboardSummary, error) {
	since := periodStart(period, now)

	rows, err := s.db.QueryContext(ctx, `
        SELECT category, entry_type, SUM(amount), COUNT(*)
        FROM ledger_entries
        WHERE owner_id = $1 AND entry_date >= $2
        GROUP BY category, entry_type
        ORDER BY category
    `, ownerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &models.DashboardSummary{
		Period:       period,
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
		ByCategory:   []models.CategoryTotal{},
	}
	expenseByCategory := map[string]decimal.Decimal{}
	categories := []string{}

	for rows.Next() {
		var category, entryType string
		var total decimal.Decimal
		var count int
		if err := rows.Scan(&category, &entryType, &total, &count); err != nil {
			return nil, err
		}
		summary.EntryCount += count
		switch entryType {
		case models.EntryTypeIncome:
			summary.TotalIncome = summary.TotalIncome.Add(total)
		case models.EntryTypeExpense:
			summary.TotalExpense = summary.TotalExpense.Add(total)
			if _, seen := expenseByCategory[category]; !seen {
				categories = append(categories, category)
			}
			expenseByCategory[category] = expenseByCategory[category].Add(total)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, category := range categories {
		summary.ByCategory = append(summary.ByCategory, models.CategoryTotal{
			Category: category,
			Total:    expenseByCategory[category],
		})
	}
	summary.Net = summary.TotalIncome.Sub(summary.TotalExpense)
	return summary, nil
}

func (s *LedgerService) bustDashboardCache(ctx context.Context, ownerID string) {
	if s.redis == nil {
		return
	}
	for _, period := range []string{"week", "month", "year"} {
		if err := s.redis.Del(ctx, fmt.Sprintf("dashboard:%s:%s", ownerID, period)).Err(); err != nil {
			log.Printf("[LEDGER] Failed to bust dashboard cache for owner %s: %v", ownerID, err)
		}
	}
}

// periodStart computes the inclusive lower bound for an aggregation
// window. Weeks start on Monday.
func periodStart(period string, now time.Time) time.Time {
	now = now.UTC()
	switch period {
	case "week":
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start := now.AddDate(0, 0, -(weekday - 1))
		return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	case "year":
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

func normalizeWallet(wallet string) string {
	w := strings.ToLower(strings.TrimSpace(wallet))
	if w == "" {
		return "default"
	}
	return w
}

func parseEntryDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	formats := []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05"}
	for _, format := range formats {
		if parsed, err := time.Parse(format, raw); err == nil {
			if format == "2006-01-02" {
				return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 12, 0, 0, 0, time.UTC), nil
			}
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}
