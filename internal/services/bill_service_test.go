package services

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/fintrack/backend/internal/models"
)

func newBillServiceForTest(t *testing.T) (*BillService, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBillService(db), mock
}

func billColumns() []string {
	return []string{
		"id", "owner_id", "title", "category", "wallet", "amount", "frequency",
		"start_date", "next_date", "last_generated", "is_active", "version",
		"created_at", "updated_at",
	}
}

func TestCreateBill_CursorStartsAtStartDate(t *testing.T) {
	service, mock := newBillServiceForTest(t)

	mock.ExpectExec(`INSERT INTO recurring_bills`).
		WithArgs(sqlmock.AnyArg(), "user-1", "Rent", "housing", "checking",
			sqlmock.AnyArg(), "monthly", sqlmock.AnyArg(), sqlmock.AnyArg(),
			true, 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := `{"title":"Rent","amount":"1200","category":"Housing","wallet":"Checking","frequency":"Monthly","startDate":"2026-01-31"}`
	rec := httptest.NewRecorder()
	service.CreateBill(rec, authedRequest(http.MethodPost, "/api/v1/recurring", body))

	assert.Equal(t, http.StatusCreated, rec.Code)

	var bill models.RecurringBill
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bill))
	assert.Equal(t, "monthly", bill.Frequency)
	assert.Equal(t, bill.StartDate, bill.NextDate)
	assert.Equal(t, 31, bill.StartDate.Day())
	assert.True(t, bill.IsActive)
	assert.Equal(t, 1, bill.Version)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBill_RejectsUnknownFrequency(t *testing.T) {
	service, mock := newBillServiceForTest(t)

	body := `{"title":"Gym","amount":"30","category":"health","frequency":"fortnightly","startDate":"2026-01-01"}`
	rec := httptest.NewRecorder()
	service.CreateBill(rec, authedRequest(http.MethodPost, "/api/v1/recurring", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Frequency")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBill_RejectsNonPositiveAmount(t *testing.T) {
	service, mock := newBillServiceForTest(t)

	body := `{"title":"Gym","amount":"0","category":"health","frequency":"monthly","startDate":"2026-01-01"}`
	rec := httptest.NewRecorder()
	service.CreateBill(rec, authedRequest(http.MethodPost, "/api/v1/recurring", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBills_ReturnsOwnersBills(t *testing.T) {
	service, mock := newBillServiceForTest(t)

	now := time.Now()
	rows := sqlmock.NewRows(billColumns()).
		AddRow("bill-1", "user-1", "Rent", "housing", "checking", "1200", "monthly",
			now, now, nil, true, 3, now, now).
		AddRow("bill-2", "user-1", "Netflix", "entertainment", "credit", "15.99", "monthly",
			now, now, nil, false, 1, now, now)

	mock.ExpectQuery(`SELECT id, owner_id, title, category, wallet, amount, frequency`).
		WithArgs("user-1").
		WillReturnRows(rows)

	rec := httptest.NewRecorder()
	service.ListBills(rec, authedRequest(http.MethodGet, "/api/v1/recurring", ""))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Bills []models.RecurringBill `json:"bills"`
		Count int                    `json:"count"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.True(t, resp.Bills[0].IsActive)
	assert.False(t, resp.Bills[1].IsActive)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBill_NotFound(t *testing.T) {
	service, mock := newBillServiceForTest(t)

	mock.ExpectQuery(`SELECT id, owner_id, title`).
		WithArgs("missing", "user-1").
		WillReturnError(sql.ErrNoRows)

	router := chi.NewRouter()
	router.Get("/recurring/{billId}", service.GetBill)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/recurring/missing", ""))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateBill(t *testing.T) {
	service, mock := newBillServiceForTest(t)

	mock.ExpectExec(`UPDATE recurring_bills\s+SET is_active = FALSE, version = version \+ 1, updated_at = NOW\(\)`).
		WithArgs("bill-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	mock.ExpectQuery(`SELECT id, owner_id, title`).
		WithArgs("bill-1", "user-1").
		WillReturnRows(sqlmock.NewRows(billColumns()).
			AddRow("bill-1", "user-1", "Rent", "housing", "checking", "1200", "monthly",
				now, now, nil, false, 4, now, now))

	router := chi.NewRouter()
	router.Put("/recurring/{billId}/deactivate", service.DeactivateBill)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPut, "/recurring/bill-1/deactivate", ""))

	assert.Equal(t, http.StatusOK, rec.Code)

	var bill models.RecurringBill
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bill))
	assert.False(t, bill.IsActive)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReactivateBill_FastForwardsWithoutBackfill(t *testing.T) {
	service, mock := newBillServiceForTest(t)

	startDate := time.Date(2026, time.January, 31, 12, 0, 0, 0, time.UTC)
	staleCursor := time.Date(2026, time.February, 28, 12, 0, 0, 0, time.UTC)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, owner_id, title`).
		WithArgs("bill-1", "user-1").
		WillReturnRows(sqlmock.NewRows(billColumns()).
			AddRow("bill-1", "user-1", "Rent", "housing", "checking", "1200", "monthly",
				startDate, staleCursor, nil, false, 5, now, now))

	// The cursor lands on a future anchored occurrence, past every missed one.
	mock.ExpectExec(`UPDATE recurring_bills\s+SET is_active = TRUE, next_date = \$1, version = version \+ 1, updated_at = NOW\(\)\s+WHERE id = \$2 AND owner_id = \$3 AND version = \$4`).
		WithArgs(sqlmock.AnyArg(), "bill-1", "user-1", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	futureCursor := time.Now().UTC().AddDate(0, 1, 0)
	mock.ExpectQuery(`SELECT id, owner_id, title`).
		WithArgs("bill-1", "user-1").
		WillReturnRows(sqlmock.NewRows(billColumns()).
			AddRow("bill-1", "user-1", "Rent", "housing", "checking", "1200", "monthly",
				startDate, futureCursor, nil, true, 6, now, now))

	router := chi.NewRouter()
	router.Put("/recurring/{billId}/reactivate", service.ReactivateBill)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPut, "/recurring/bill-1/reactivate", ""))

	assert.Equal(t, http.StatusOK, rec.Code)

	var bill models.RecurringBill
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bill))
	assert.True(t, bill.IsActive)
	assert.False(t, bill.NextDate.Before(time.Now().UTC().Add(-time.Minute)))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReactivateBill_ConcurrentModificationConflicts(t *testing.T) {
	service, mock := newBillServiceForTest(t)

	startDate := time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, owner_id, title`).
		WithArgs("bill-1", "user-1").
		WillReturnRows(sqlmock.NewRows(billColumns()).
			AddRow("bill-1", "user-1", "Rent", "housing", "checking", "1200", "monthly",
				startDate, startDate, nil, false, 2, now, now))

	mock.ExpectExec(`UPDATE recurring_bills\s+SET is_active = TRUE`).
		WithArgs(sqlmock.AnyArg(), "bill-1", "user-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 0))

	router := chi.NewRouter()
	router.Put("/recurring/{billId}/reactivate", service.ReactivateBill)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPut, "/recurring/bill-1/reactivate", ""))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteBill_KeepsGeneratedEntries(t *testing.T) {
	service, mock := newBillServiceForTest(t)

	// Only the bill row goes; ledger_entries are untouched.
	mock.ExpectExec(`DELETE FROM recurring_bills WHERE id = \$1 AND owner_id = \$2`).
		WithArgs("bill-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	router := chi.NewRouter()
	router.Delete("/recurring/{billId}", service.DeleteBill)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/recurring/bill-1", ""))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
