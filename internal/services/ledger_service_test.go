package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/fintrack/backend/internal/models"
)

func newLedgerServiceForTest(t *testing.T) (*LedgerService, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLedgerService(db, nil), mock
}

func authedRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := context.WithValue(req.Context(), "userID", "user-1")
	return req.WithContext(ctx)
}

func TestCreateEntry_Success(t *testing.T) {
	service, mock := newLedgerServiceForTest(t)

	mock.ExpectExec(`INSERT INTO ledger_entries`).
		WithArgs(sqlmock.AnyArg(), "user-1", sqlmock.AnyArg(), "groceries", "checking",
			"expense", "weekly shop", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := `{"amount":"42.50","category":"Groceries","wallet":"Checking","entryType":"expense","note":"weekly shop","date":"2026-03-10"}`
	rec := httptest.NewRecorder()
	service.CreateEntry(rec, authedRequest(http.MethodPost, "/api/v1/entries", body))

	assert.Equal(t, http.StatusCreated, rec.Code)

	var entry models.LedgerEntry
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "user-1", entry.OwnerID)
	assert.Equal(t, "groceries", entry.Category)
	assert.True(t, decimal.RequireFromString("42.50").Equal(entry.Amount))
	assert.Equal(t, 2026, entry.EntryDate.Year())
	assert.Nil(t, entry.BillID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEntry_RejectsNonPositiveAmount(t *testing.T) {
	service, mock := newLedgerServiceForTest(t)

	body := `{"amount":"-5","category":"misc","entryType":"expense"}`
	rec := httptest.NewRecorder()
	service.CreateEntry(rec, authedRequest(http.MethodPost, "/api/v1/entries", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Amount must be positive")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEntry_RejectsUnknownFields(t *testing.T) {
	service, mock := newLedgerServiceForTest(t)

	body := `{"amount":"5","category":"misc","entryType":"expense","surprise":true}`
	rec := httptest.NewRecorder()
	service.CreateEntry(rec, authedRequest(http.MethodPost, "/api/v1/entries", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEntry_RejectsInvalidType(t *testing.T) {
	service, mock := newLedgerServiceForTest(t)

	body := `{"amount":"5","category":"misc","entryType":"transfer"}`
	rec := httptest.NewRecorder()
	service.CreateEntry(rec, authedRequest(http.MethodPost, "/api/v1/entries", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Validation failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEntries_AppliesFilters(t *testing.T) {
	service, mock := newLedgerServiceForTest(t)

	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "amount", "category", "wallet", "entry_type",
		"note", "entry_date", "bill_id", "occurrence_date", "created_at",
	}).AddRow("entry-1", "user-1", "12.00", "food", "checking", "expense",
		"", time.Now(), nil, nil, time.Now())

	mock.ExpectQuery(`SELECT id, owner_id, amount, category, wallet, entry_type, note, entry_date, bill_id, occurrence_date, created_at\s+FROM ledger_entries`).
		WithArgs("user-1", "food", "expense", 10).
		WillReturnRows(rows)

	rec := httptest.NewRecorder()
	service.ListEntries(rec, authedRequest(http.MethodGet, "/api/v1/entries?category=Food&type=expense&limit=10", ""))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []models.LedgerEntry `json:"entries"`
		Count   int                  `json:"count"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "entry-1", resp.Entries[0].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEntries_InvalidFromDate(t *testing.T) {
	service, mock := newLedgerServiceForTest(t)

	rec := httptest.NewRecorder()
	service.ListEntries(rec, authedRequest(http.MethodGet, "/api/v1/entries?from=yesterday", ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEntry_NotFound(t *testing.T) {
	service, mock := newLedgerServiceForTest(t)

	mock.ExpectQuery(`SELECT id, owner_id, amount`).
		WithArgs("missing", "user-1").
		WillReturnError(sql.ErrNoRows)

	router := chi.NewRouter()
	router.Get("/entries/{entryId}", service.GetEntry)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/entries/missing", ""))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteEntry_ScopedToOwner(t *testing.T) {
	service, mock := newLedgerServiceForTest(t)

	mock.ExpectExec(`DELETE FROM ledger_entries WHERE id = \$1 AND owner_id = \$2`).
		WithArgs("entry-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	router := chi.NewRouter()
	router.Delete("/entries/{entryId}", service.DeleteEntry)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/entries/entry-1", ""))

	// Someone else's entry looks like a missing entry.
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComputeSummary_GroupsByCategory(t *testing.T) {
	service, mock := newLedgerServiceForTest(t)

	rows := sqlmock.NewRows([]string{"category", "entry_type", "sum", "count"}).
		AddRow("food", "expense", "240.00", 6).
		AddRow("housing", "expense", "1200.00", 1).
		AddRow("salary", "income", "3000.00", 1)

	mock.ExpectQuery(`SELECT category, entry_type, SUM\(amount\), COUNT\(\*\)`).
		WithArgs("user-1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	summary, err := service.computeSummary(context.Background(), "user-1", "month",
		time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC))
	assert.NoError(t, err)

	assert.Equal(t, "month", summary.Period)
	assert.Equal(t, 8, summary.EntryCount)
	assert.True(t, decimal.RequireFromString("3000.00").Equal(summary.TotalIncome))
	assert.True(t, decimal.RequireFromString("1440.00").Equal(summary.TotalExpense))
	assert.True(t, decimal.RequireFromString("1560.00").Equal(summary.Net))
	assert.Len(t, summary.ByCategory, 2)
	assert.Equal(t, "food", summary.ByCategory[0].Category)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDashboardSummary_ServesFromCache(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	service := NewLedgerService(db, redisClient)

	cached := `{"period":"month","total_income":"0","total_expense":"0","net":"0","entry_count":0,"by_category":[]}`
	redisMock.ExpectGet("dashboard:user-1:month").SetVal(cached)

	rec := httptest.NewRecorder()
	service.GetDashboardSummary(rec, authedRequest(http.MethodGet, "/api/v1/dashboard/summary", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, cached, rec.Body.String())

	// No SQL expected on a cache hit.
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestGetDashboardSummary_RejectsUnknownPeriod(t *testing.T) {
	service, mock := newLedgerServiceForTest(t)

	rec := httptest.NewRecorder()
	service.GetDashboardSummary(rec, authedRequest(http.MethodGet, "/api/v1/dashboard/summary?period=decade", ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC) // a Sunday

	assert.Equal(t, time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC), periodStart("week", now))
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), periodStart("month", now))
	assert.Equal(t, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), periodStart("year", now))
}
