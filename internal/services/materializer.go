package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fintrack/backend/internal/models"
	"github.com/fintrack/backend/internal/schedule"
	"github.com/google/uuid"
)

// errCursorConflict signals that a concurrent materialization run advanced a
// bill's cursor first. The losing run stops the bill; it is not a failure.
var errCursorConflict = errors.New("bill cursor advanced by concurrent run")

// maxMaterializeWorkers bounds how many bills are processed in parallel.
// Bills are independent aggregates, so parallelism only needs a ceiling to
// keep connection usage sane.
const maxMaterializeWorkers = 4

// MaterializerService brings recurring-bill cursors up to date relative to an
// injected "now", emitting one ledger entry per elapsed occurrence. Each
// occurrence is committed in its own short transaction guarded by an
// optimistic version check on the bill row plus a unique
// (bill_id, occurrence_date) key on ledger entries, so concurrent runs and
// retries cannot double-generate and a mid-batch failure leaves the cursor at
// the last committed occurrence.
type MaterializerService struct {
	db      *sql.DB
	workers int
}

func NewMaterializerService(db *sql.DB) *MaterializerService {
	return &MaterializerService{
		db:      db,
		workers: maxMaterializeWorkers,
	}
}

// BillResult reports one bill the materializer advanced.
type BillResult struct {
	BillID    string    `json:"billId"`
	Title     string    `json:"title"`
	Generated int       `json:"generated"`
	NextDate  time.Time `json:"nextDate"`
}

// BillFailure reports one bill the materializer could not fully advance.
// Entries committed before the failure remain committed.
type BillFailure struct {
	BillID    string    `json:"billId"`
	Title     string    `json:"title"`
	Generated int       `json:"generated"`
	NextDate  time.Time `json:"nextDate"`
	Error     string    `json:"error"`
}

// MaterializeReport summarizes a materialization run. Partial progress is
// valid: Failed being non-empty does not invalidate Processed.
type MaterializeReport struct {
	GeneratedCount int           `json:"generatedCount"`
	Processed      []BillResult  `json:"processed"`
	Failed         []BillFailure `json:"failed"`
}

// Materialize advances every active due bill belonging to ownerID. The caller
// supplies now; the materializer never reads the wall clock while stepping, so
// tests drive time explicitly.
func (s *MaterializerService) Materialize(ctx context.Context, ownerID string, now time.Time) (*MaterializeReport, error) {
	return s.run(ctx, &ownerID, now)
}

// MaterializeAll is the batch mode: it advances due bills across all owners,
// e.g. from a nightly job. Bills of different owners touch disjoint rows and
// need no coordination beyond the per-bill guards.
func (s *MaterializerService) MaterializeAll(ctx context.Context, now time.Time) (*MaterializeReport, error) {
	return s.run(ctx, nil, now)
}

func (s *MaterializerService) run(ctx context.Context, ownerID *string, now time.Time) (*MaterializeReport, error) {
	bills, err := s.findDueBills(ctx, ownerID, now)
	if err != nil {
		return nil, fmt.Errorf("find due bills: %w", err)
	}

	report := &MaterializeReport{
		Processed: []BillResult{},
		Failed:    []BillFailure{},
	}
	if len(bills) == 0 {
		return report, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.workers)
	)

	for _, bill := range bills {
		// Once cancellation is observed no new bills begin; in-flight
		// occurrences already committed stay committed.
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(bill models.RecurringBill) {
			defer wg.Done()
			defer func() { <-sem }()

			generated, cursor, billErr := s.materializeBill(ctx, bill, now)

			mu.Lock()
			defer mu.Unlock()
			report.GeneratedCount += generated
			if billErr != nil {
				log.Printf("[RECURRING] Bill %s halted after %d entries: %v", bill.ID, generated, billErr)
				report.Failed = append(report.Failed, BillFailure{
					BillID:    bill.ID,
					Title:     bill.Title,
					Generated: generated,
					NextDate:  cursor,
					Error:     billErr.Error(),
				})
				return
			}
			report.Processed = append(report.Processed, BillResult{
				BillID:    bill.ID,
				Title:     bill.Title,
				Generated: generated,
				NextDate:  cursor,
			})
		}(bill)
	}
	wg.Wait()

	log.Printf("[RECURRING] Run complete: %d entries generated, %d bills processed, %d failed",
		report.GeneratedCount, len(report.Processed), len(report.Failed))
	return report, nil
}

func (s *MaterializerService) findDueBills(ctx context.Context, ownerID *string, now time.Time) ([]models.RecurringBill, error) {
	query := `
        SELECT id, owner_id, title, category, wallet, amount, frequency, start_date, next_date, version
        FROM recurring_bills
        WHERE is_active = TRUE AND next_date <= $1`
	args := []any{now}
	if ownerID != nil {
		query += ` AND owner_id = $2`
		args = append(args, *ownerID)
	}
	query += ` ORDER BY next_date`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bills := []models.RecurringBill{}
	for rows.Next() {
		var bill models.RecurringBill
		if err := rows.Scan(
			&bill.ID, &bill.OwnerID, &bill.Title, &bill.Category, &bill.Wallet,
			&bill.Amount, &bill.Frequency, &bill.StartDate, &bill.NextDate, &bill.Version,
		); err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	return bills, rows.Err()
}

// materializeBill walks the bill's cursor forward to the first occurrence
// after now. It returns how many entries it committed and where the durable
// cursor ended up; on error the cursor value reflects only committed state.
func (s *MaterializerService) materializeBill(ctx context.Context, bill models.RecurringBill, now time.Time) (int, time.Time, error) {
	freq, err := schedule.ParseFrequency(bill.Frequency)
	if err != nil {
		// Configuration error for this bill only: never advance its cursor.
		return 0, bill.NextDate, err
	}

	anchorDay := bill.StartDate.Day()
	cursor := bill.NextDate
	version := bill.Version
	generated := 0

	for !cursor.After(now) {
		if err := ctx.Err(); err != nil {
			return generated, cursor, err
		}

		next := schedule.AdvanceAnchored(cursor, freq, anchorDay)
		inserted, err := s.emitOccurrence(ctx, &bill, version, cursor, next, now)
		if errors.Is(err, errCursorConflict) {
			// The other runner owns the remaining occurrences.
			return generated, cursor, nil
		}
		if err != nil {
			return generated, cursor, err
		}
		if inserted {
			generated++
		}
		cursor = next
		version++
	}

	return generated, cursor, nil
}

// emitOccurrence commits one occurrence: the ledger entry insert and the
// cursor advance succeed or fail together. The insert is keyed on
// (bill_id, occurrence_date) so a retry after an imperfectly-closed race
// still cannot double-insert; the version check-and-set on the bill row is
// the primary guard against two runs observing the same stale cursor.
func (s *MaterializerService) emitOccurrence(ctx context.Context, bill *models.RecurringBill, version int, occurrence, next, now time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	note := fmt.Sprintf("Recurring: %s [bill:%s]", bill.Title, bill.ID)
	res, err := tx.ExecContext(ctx, `
        INSERT INTO ledger_entries
        (id, owner_id, amount, category, wallet, entry_type, note, entry_date, bill_id, occurrence_date, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
        ON CONFLICT (bill_id, occurrence_date) DO NOTHING
    `, uuid.NewString(), bill.OwnerID, bill.Amount, bill.Category, bill.Wallet,
		models.EntryTypeExpense, note, occurrence, bill.ID, occurrence)
	if err != nil {
		return false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	res, err = tx.ExecContext(ctx, `
        UPDATE recurring_bills
        SET next_date = $1, last_generated = $2, version = version + 1, updated_at = NOW()
        WHERE id = $3 AND version = $4
    `, next, now, bill.ID, version)
	if err != nil {
		return false, err
	}
	advanced, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if advanced == 0 {
		return false, errCursorConflict
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return inserted > 0, nil
}
