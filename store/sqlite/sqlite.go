/*
Package sqlite provides the SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Persists grant lots, usage events and the audit chain. The same SQL
  patterns apply to PostgreSQL - only minor dialect differences.

KEY TABLES:
  grant_lots:    one row per lot; UNIQUE(employee_id, fiscal_year,
                 grant_date) backs duplicate-grant detection; a version
                 column backs optimistic concurrency
  usage_events:  one row per deduction or reversal; allocations as JSON
  audit_events:  the hash chain, keyed by sequence; INSERT-only

OPTIMISTIC CONCURRENCY:
  Counter updates are guarded with "WHERE id = ? AND version = ?"; zero
  rows affected means a version conflict and maps to
  ledger.ErrConcurrentModification.

WAL MODE:
  The database opens with WAL journaling so readers don't block behind
  the single writer.

MIGRATION:
  Schema is auto-migrated on New(). For a production rollout, a versioned
  migration tool would own this instead.

SEE ALSO:
  - ledger/store.go: interface definitions
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jokken79/yukyu-ledger/audit"
	"github.com/jokken79/yukyu-ledger/ledger"
)

// Store implements ledger.TxStore over SQLite.
type Store struct {
	db *sql.DB
}

// dbtx is the common surface of *sql.DB and *sql.Tx the queries run on.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (or creates) the database at path. Use ":memory:" for an
// in-memory database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and sidesteps
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	-- Grant lots: immutable grant facts plus guarded counters
	CREATE TABLE IF NOT EXISTS grant_lots (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		fiscal_year INTEGER NOT NULL,
		grant_date TEXT NOT NULL,
		expiry_date TEXT NOT NULL,
		granted_days TEXT NOT NULL,
		consumed_days TEXT NOT NULL,
		expired_days TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(employee_id, fiscal_year, grant_date)
	);

	CREATE INDEX IF NOT EXISTS idx_lots_employee
		ON grant_lots(employee_id, grant_date);
	CREATE INDEX IF NOT EXISTS idx_lots_fiscal_year
		ON grant_lots(fiscal_year);
	CREATE INDEX IF NOT EXISTS idx_lots_expiry
		ON grant_lots(status, expiry_date);

	-- Usage events: deductions and their reversals. Never deleted.
	CREATE TABLE IF NOT EXISTS usage_events (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		quantity TEXT NOT NULL,
		allocations_json TEXT NOT NULL,
		reference_id TEXT NOT NULL DEFAULT '',
		reverted_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_usage_employee
		ON usage_events(employee_id, date);

	-- Audit chain: append-only. No UPDATE or DELETE path exists in code.
	CREATE TABLE IF NOT EXISTS audit_events (
		sequence INTEGER PRIMARY KEY,
		timestamp TEXT NOT NULL,
		event_type TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		prev_hash TEXT NOT NULL,
		hash TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOT STORE
// =============================================================================

const lotColumns = `id, employee_id, fiscal_year, grant_date, expiry_date,
	granted_days, consumed_days, expired_days, status, version, created_at`

func (s *Store) CreateLot(ctx context.Context, lot ledger.GrantLot) error {
	return createLot(ctx, s.db, lot)
}

func createLot(ctx context.Context, db dbtx, lot ledger.GrantLot) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO grant_lots
		(id, employee_id, fiscal_year, grant_date, expiry_date,
		 granted_days, consumed_days, expired_days, status, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lot.ID, lot.EmployeeID, lot.FiscalYear,
		lot.GrantDate.String(), lot.ExpiryDate.String(),
		lot.Granted.String(), lot.Consumed.String(), lot.Expired.String(),
		lot.Status, lot.Version, lot.CreatedAt.String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.DuplicateGrantError{
				EmployeeID: lot.EmployeeID,
				FiscalYear: lot.FiscalYear,
				GrantDate:  lot.GrantDate,
			}
		}
		return fmt.Errorf("failed to create lot: %w", err)
	}
	return nil
}

func (s *Store) GetLot(ctx context.Context, id ledger.LotID) (ledger.GrantLot, error) {
	return getLot(ctx, s.db, id)
}

func getLot(ctx context.Context, db dbtx, id ledger.LotID) (ledger.GrantLot, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+lotColumns+` FROM grant_lots WHERE id = ?`, id)
	lot, err := scanLot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.GrantLot{}, ledger.ErrLotNotFound
	}
	return lot, err
}

func (s *Store) ListLots(ctx context.Context, employeeID ledger.EmployeeID) ([]ledger.GrantLot, error) {
	return listLots(ctx, s.db, employeeID)
}

func listLots(ctx context.Context, db dbtx, employeeID ledger.EmployeeID) ([]ledger.GrantLot, error) {
	return queryLots(ctx, db,
		`SELECT `+lotColumns+` FROM grant_lots
		 WHERE employee_id = ? ORDER BY grant_date ASC, id ASC`, employeeID)
}

func (s *Store) ListActiveLots(ctx context.Context, employeeID ledger.EmployeeID, asOf ledger.Date) ([]ledger.GrantLot, error) {
	return listActiveLots(ctx, s.db, employeeID, asOf)
}

func listActiveLots(ctx context.Context, db dbtx, employeeID ledger.EmployeeID, asOf ledger.Date) ([]ledger.GrantLot, error) {
	lots, err := queryLots(ctx, db,
		`SELECT `+lotColumns+` FROM grant_lots
		 WHERE employee_id = ? AND status = ? AND expiry_date > ?
		 ORDER BY grant_date ASC, id ASC`,
		employeeID, ledger.LotActive, asOf.String())
	if err != nil {
		return nil, err
	}
	// remaining > 0 is a decimal comparison; filter in code rather than
	// trusting TEXT-column arithmetic.
	eligible := lots[:0]
	for _, lot := range lots {
		if lot.Remaining().IsPositive() {
			eligible = append(eligible, lot)
		}
	}
	return eligible, nil
}

func (s *Store) ListLotsByFiscalYear(ctx context.Context, fiscalYear int) ([]ledger.GrantLot, error) {
	return listLotsByFiscalYear(ctx, s.db, fiscalYear)
}

func listLotsByFiscalYear(ctx context.Context, db dbtx, fiscalYear int) ([]ledger.GrantLot, error) {
	return queryLots(ctx, db,
		`SELECT `+lotColumns+` FROM grant_lots
		 WHERE fiscal_year = ? ORDER BY employee_id ASC, grant_date ASC`, fiscalYear)
}

func (s *Store) ListExpirableLots(ctx context.Context, asOf ledger.Date) ([]ledger.GrantLot, error) {
	return listExpirableLots(ctx, s.db, asOf)
}

func listExpirableLots(ctx context.Context, db dbtx, asOf ledger.Date) ([]ledger.GrantLot, error) {
	lots, err := queryLots(ctx, db,
		`SELECT `+lotColumns+` FROM grant_lots
		 WHERE status = ? AND expiry_date <= ?
		 ORDER BY grant_date ASC, id ASC`,
		ledger.LotActive, asOf.String())
	if err != nil {
		return nil, err
	}
	expirable := lots[:0]
	for _, lot := range lots {
		if lot.Remaining().IsPositive() {
			expirable = append(expirable, lot)
		}
	}
	return expirable, nil
}

func (s *Store) ApplyConsumption(ctx context.Context, id ledger.LotID, amount ledger.Days, version int) error {
	return applyConsumption(ctx, s.db, id, amount, version)
}

func applyConsumption(ctx context.Context, db dbtx, id ledger.LotID, amount ledger.Days, version int) error {
	lot, err := getLotAtVersion(ctx, db, id, version)
	if err != nil {
		return err
	}

	consumed := lot.Consumed.Add(amount)
	if consumed.Add(lot.Expired).GreaterThan(lot.Granted) {
		return &ledger.OverconsumptionError{
			LotID:     lot.ID,
			Granted:   lot.Granted,
			Consumed:  lot.Consumed,
			Requested: amount,
		}
	}

	status := lot.Status
	if status == ledger.LotActive && lot.Granted.Sub(consumed).Sub(lot.Expired).IsZero() {
		status = ledger.LotFullyConsumed
	}
	return updateCounters(ctx, db, id, consumed, lot.Expired, status, version)
}

func (s *Store) ApplyReversal(ctx context.Context, id ledger.LotID, amount ledger.Days, version int) error {
	return applyReversal(ctx, s.db, id, amount, version)
}

func applyReversal(ctx context.Context, db dbtx, id ledger.LotID, amount ledger.Days, version int) error {
	lot, err := getLotAtVersion(ctx, db, id, version)
	if err != nil {
		return err
	}

	consumed := lot.Consumed.Sub(amount)
	if consumed.IsNegative() {
		return &ledger.OverconsumptionError{
			LotID:     lot.ID,
			Granted:   lot.Granted,
			Consumed:  lot.Consumed,
			Requested: amount.Neg(),
		}
	}

	status := lot.Status
	expired := lot.Expired
	switch {
	case status == ledger.LotExpired:
		// The retention window has lapsed: days returned to a swept lot
		// are forfeited, not made available again.
		expired = expired.Add(amount)
	case status == ledger.LotFullyConsumed && lot.Granted.Sub(consumed).Sub(lot.Expired).IsPositive():
		status = ledger.LotActive
	}
	return updateCounters(ctx, db, id, consumed, expired, status, version)
}

func (s *Store) ApplyExpiry(ctx context.Context, id ledger.LotID, amount ledger.Days, version int) error {
	return applyExpiry(ctx, s.db, id, amount, version)
}

func applyExpiry(ctx context.Context, db dbtx, id ledger.LotID, amount ledger.Days, version int) error {
	lot, err := getLotAtVersion(ctx, db, id, version)
	if err != nil {
		return err
	}
	if lot.Status != ledger.LotActive {
		return fmt.Errorf("cannot expire lot %s in status %s", id, lot.Status)
	}
	expired := lot.Expired.Add(amount)
	return updateCounters(ctx, db, id, lot.Consumed, expired, ledger.LotExpired, version)
}

// getLotAtVersion loads the lot and enforces the CAS precondition up front,
// so arithmetic below runs against the version the caller planned with.
func getLotAtVersion(ctx context.Context, db dbtx, id ledger.LotID, version int) (ledger.GrantLot, error) {
	lot, err := getLot(ctx, db, id)
	if err != nil {
		return ledger.GrantLot{}, err
	}
	if lot.Version != version {
		return ledger.GrantLot{}, ledger.ErrConcurrentModification
	}
	return lot, nil
}

// updateCounters writes the new counters with the version guard in the
// WHERE clause as the last line of defense against lost updates.
func updateCounters(ctx context.Context, db dbtx, id ledger.LotID, consumed, expired ledger.Days, status ledger.LotStatus, version int) error {
	res, err := db.ExecContext(ctx, `
		UPDATE grant_lots
		SET consumed_days = ?, expired_days = ?, status = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		consumed.String(), expired.String(), status, id, version)
	if err != nil {
		return fmt.Errorf("failed to update lot %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrConcurrentModification
	}
	return nil
}

// =============================================================================
// USAGE STORE
// =============================================================================

const usageColumns = `id, employee_id, date, quantity, allocations_json,
	reference_id, reverted_by, created_at`

type allocationRecord struct {
	LotID  string `json:"lot_id"`
	Amount string `json:"amount"`
}

func (s *Store) CreateUsageEvent(ctx context.Context, e ledger.UsageEvent) error {
	return createUsageEvent(ctx, s.db, e)
}

func createUsageEvent(ctx context.Context, db dbtx, e ledger.UsageEvent) error {
	records := make([]allocationRecord, len(e.Allocations))
	for i, a := range e.Allocations {
		records[i] = allocationRecord{LotID: string(a.LotID), Amount: a.Amount.String()}
	}
	allocationsJSON, err := json.Marshal(records)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO usage_events
		(id, employee_id, date, quantity, allocations_json, reference_id, reverted_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EmployeeID, e.Date.String(), e.Quantity.String(),
		string(allocationsJSON), e.ReferenceID, e.RevertedBy, e.CreatedAt.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to create usage event: %w", err)
	}
	return nil
}

func (s *Store) GetUsageEvent(ctx context.Context, id ledger.UsageEventID) (ledger.UsageEvent, error) {
	return getUsageEvent(ctx, s.db, id)
}

func getUsageEvent(ctx context.Context, db dbtx, id ledger.UsageEventID) (ledger.UsageEvent, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+usageColumns+` FROM usage_events WHERE id = ?`, id)
	e, err := scanUsageEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.UsageEvent{}, ledger.ErrUsageEventNotFound
	}
	return e, err
}

func (s *Store) ListUsageEvents(ctx context.Context, employeeID ledger.EmployeeID) ([]ledger.UsageEvent, error) {
	return listUsageEvents(ctx, s.db, employeeID)
}

func listUsageEvents(ctx context.Context, db dbtx, employeeID ledger.EmployeeID) ([]ledger.UsageEvent, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+usageColumns+` FROM usage_events
		 WHERE employee_id = ? ORDER BY date ASC, id ASC`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ledger.UsageEvent
	for rows.Next() {
		e, err := scanUsageEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) MarkReverted(ctx context.Context, id ledger.UsageEventID, revertedBy ledger.UsageEventID) error {
	return markReverted(ctx, s.db, id, revertedBy)
}

func markReverted(ctx context.Context, db dbtx, id ledger.UsageEventID, revertedBy ledger.UsageEventID) error {
	res, err := db.ExecContext(ctx, `
		UPDATE usage_events SET reverted_by = ?
		WHERE id = ? AND reverted_by = ''`, revertedBy, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Distinguish "missing" from "already reverted".
		if _, err := getUsageEvent(ctx, db, id); err != nil {
			return err
		}
		return ledger.ErrAlreadyReverted
	}
	return nil
}

// =============================================================================
// AUDIT STORE
// =============================================================================

const auditColumns = `sequence, timestamp, event_type, employee_id, payload_json, prev_hash, hash`

func (s *Store) AppendEvent(ctx context.Context, e audit.Event) error {
	return appendEvent(ctx, s.db, e)
}

func appendEvent(ctx context.Context, db dbtx, e audit.Event) error {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_events
		(sequence, timestamp, event_type, employee_id, payload_json, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Sequence, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Type, e.EmployeeID, string(payloadJSON), e.PrevHash, e.Hash,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

func (s *Store) LastEvent(ctx context.Context) (audit.Event, bool, error) {
	return lastEvent(ctx, s.db)
}

func lastEvent(ctx context.Context, db dbtx) (audit.Event, bool, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM audit_events ORDER BY sequence DESC LIMIT 1`)
	e, err := scanAuditEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Event{}, false, nil
	}
	if err != nil {
		return audit.Event{}, false, err
	}
	return e, true, nil
}

func (s *Store) EventRange(ctx context.Context, fromSeq, toSeq int64) ([]audit.Event, error) {
	return eventRange(ctx, s.db, fromSeq, toSeq)
}

func eventRange(ctx context.Context, db dbtx, fromSeq, toSeq int64) ([]audit.Event, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_events
		 WHERE sequence >= ? AND sequence <= ? ORDER BY sequence ASC`,
		fromSeq, toSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against a transactional view. If fn returns an error the
// transaction rolls back and nothing is persisted.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// txStore routes every store method through the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) CreateLot(ctx context.Context, lot ledger.GrantLot) error {
	return createLot(ctx, t.tx, lot)
}

func (t *txStore) GetLot(ctx context.Context, id ledger.LotID) (ledger.GrantLot, error) {
	return getLot(ctx, t.tx, id)
}

func (t *txStore) ListLots(ctx context.Context, employeeID ledger.EmployeeID) ([]ledger.GrantLot, error) {
	return listLots(ctx, t.tx, employeeID)
}

func (t *txStore) ListActiveLots(ctx context.Context, employeeID ledger.EmployeeID, asOf ledger.Date) ([]ledger.GrantLot, error) {
	return listActiveLots(ctx, t.tx, employeeID, asOf)
}

func (t *txStore) ListLotsByFiscalYear(ctx context.Context, fiscalYear int) ([]ledger.GrantLot, error) {
	return listLotsByFiscalYear(ctx, t.tx, fiscalYear)
}

func (t *txStore) ListExpirableLots(ctx context.Context, asOf ledger.Date) ([]ledger.GrantLot, error) {
	return listExpirableLots(ctx, t.tx, asOf)
}

func (t *txStore) ApplyConsumption(ctx context.Context, id ledger.LotID, amount ledger.Days, version int) error {
	return applyConsumption(ctx, t.tx, id, amount, version)
}

func (t *txStore) ApplyReversal(ctx context.Context, id ledger.LotID, amount ledger.Days, version int) error {
	return applyReversal(ctx, t.tx, id, amount, version)
}

func (t *txStore) ApplyExpiry(ctx context.Context, id ledger.LotID, amount ledger.Days, version int) error {
	return applyExpiry(ctx, t.tx, id, amount, version)
}

func (t *txStore) CreateUsageEvent(ctx context.Context, e ledger.UsageEvent) error {
	return createUsageEvent(ctx, t.tx, e)
}

func (t *txStore) GetUsageEvent(ctx context.Context, id ledger.UsageEventID) (ledger.UsageEvent, error) {
	return getUsageEvent(ctx, t.tx, id)
}

func (t *txStore) ListUsageEvents(ctx context.Context, employeeID ledger.EmployeeID) ([]ledger.UsageEvent, error) {
	return listUsageEvents(ctx, t.tx, employeeID)
}

func (t *txStore) MarkReverted(ctx context.Context, id ledger.UsageEventID, revertedBy ledger.UsageEventID) error {
	return markReverted(ctx, t.tx, id, revertedBy)
}

func (t *txStore) AppendEvent(ctx context.Context, e audit.Event) error {
	return appendEvent(ctx, t.tx, e)
}

func (t *txStore) LastEvent(ctx context.Context) (audit.Event, bool, error) {
	return lastEvent(ctx, t.tx)
}

func (t *txStore) EventRange(ctx context.Context, fromSeq, toSeq int64) ([]audit.Event, error) {
	return eventRange(ctx, t.tx, fromSeq, toSeq)
}

// =============================================================================
// ROW SCANNING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLot(row rowScanner) (ledger.GrantLot, error) {
	var (
		lot                        ledger.GrantLot
		grantDate, expiryDate      string
		granted, consumed, expired string
		createdAt                  string
	)
	err := row.Scan(&lot.ID, &lot.EmployeeID, &lot.FiscalYear,
		&grantDate, &expiryDate, &granted, &consumed, &expired,
		&lot.Status, &lot.Version, &createdAt)
	if err != nil {
		return ledger.GrantLot{}, err
	}

	if lot.GrantDate, err = ledger.ParseDate(grantDate); err != nil {
		return ledger.GrantLot{}, err
	}
	if lot.ExpiryDate, err = ledger.ParseDate(expiryDate); err != nil {
		return ledger.GrantLot{}, err
	}
	if lot.CreatedAt, err = ledger.ParseDate(createdAt); err != nil {
		return ledger.GrantLot{}, err
	}
	if lot.Granted, err = ledger.ParseDays(granted); err != nil {
		return ledger.GrantLot{}, err
	}
	if lot.Consumed, err = ledger.ParseDays(consumed); err != nil {
		return ledger.GrantLot{}, err
	}
	if lot.Expired, err = ledger.ParseDays(expired); err != nil {
		return ledger.GrantLot{}, err
	}
	return lot, nil
}

func queryLots(ctx context.Context, db dbtx, query string, args ...any) ([]ledger.GrantLot, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []ledger.GrantLot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func scanUsageEvent(row rowScanner) (ledger.UsageEvent, error) {
	var (
		e               ledger.UsageEvent
		date, quantity  string
		allocationsJSON string
		createdAt       string
	)
	err := row.Scan(&e.ID, &e.EmployeeID, &date, &quantity,
		&allocationsJSON, &e.ReferenceID, &e.RevertedBy, &createdAt)
	if err != nil {
		return ledger.UsageEvent{}, err
	}

	if e.Date, err = ledger.ParseDate(date); err != nil {
		return ledger.UsageEvent{}, err
	}
	if e.CreatedAt, err = ledger.ParseDate(createdAt); err != nil {
		return ledger.UsageEvent{}, err
	}
	if e.Quantity, err = ledger.ParseDays(quantity); err != nil {
		return ledger.UsageEvent{}, err
	}

	var records []allocationRecord
	if err := json.Unmarshal([]byte(allocationsJSON), &records); err != nil {
		return ledger.UsageEvent{}, err
	}
	for _, r := range records {
		amount, err := ledger.ParseDays(r.Amount)
		if err != nil {
			return ledger.UsageEvent{}, err
		}
		e.Allocations = append(e.Allocations, ledger.Allocation{
			LotID:  ledger.LotID(r.LotID),
			Amount: amount,
		})
	}
	return e, nil
}

func scanAuditEvent(row rowScanner) (audit.Event, error) {
	var (
		e           audit.Event
		timestamp   string
		payloadJSON string
	)
	err := row.Scan(&e.Sequence, &timestamp, &e.Type, &e.EmployeeID,
		&payloadJSON, &e.PrevHash, &e.Hash)
	if err != nil {
		return audit.Event{}, err
	}

	if e.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp); err != nil {
		return audit.Event{}, err
	}
	if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
		return audit.Event{}, err
	}
	return e, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
