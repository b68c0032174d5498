/*
Package memory provides an in-memory ledger.TxStore for tests and dev.

PURPOSE:
  Implements the full persistence surface (lots, usage events, audit
  events) with mutex-guarded maps. WithTx holds the store lock for the
  whole transaction and restores a snapshot if the function fails, which
  gives the engine's all-or-nothing guarantees their reference behavior.

SEE ALSO:
  - ../../ledger/store.go: interface definitions
  - ../sqlite: production implementation
*/
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jokken79/yukyu-ledger/audit"
	"github.com/jokken79/yukyu-ledger/ledger"
)

// grantKey is the composite uniqueness key for lots.
type grantKey struct {
	EmployeeID ledger.EmployeeID
	FiscalYear int
	GrantDate  string
}

type Store struct {
	mu sync.RWMutex

	lots    map[ledger.LotID]ledger.GrantLot
	lotKeys map[grantKey]ledger.LotID
	usage   map[ledger.UsageEventID]ledger.UsageEvent
	events  []audit.Event
}

func New() *Store {
	return &Store{
		lots:    make(map[ledger.LotID]ledger.GrantLot),
		lotKeys: make(map[grantKey]ledger.LotID),
		usage:   make(map[ledger.UsageEventID]ledger.UsageEvent),
	}
}

func keyOf(lot ledger.GrantLot) grantKey {
	return grantKey{
		EmployeeID: lot.EmployeeID,
		FiscalYear: lot.FiscalYear,
		GrantDate:  lot.GrantDate.String(),
	}
}

// =============================================================================
// LOT STORE (locked wrappers)
// =============================================================================

func (m *Store) CreateLot(ctx context.Context, lot ledger.GrantLot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLot(lot)
}

func (m *Store) GetLot(ctx context.Context, id ledger.LotID) (ledger.GrantLot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLot(id)
}

func (m *Store) ListLots(ctx context.Context, employeeID ledger.EmployeeID) ([]ledger.GrantLot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLots(employeeID), nil
}

func (m *Store) ListActiveLots(ctx context.Context, employeeID ledger.EmployeeID, asOf ledger.Date) ([]ledger.GrantLot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listActiveLots(employeeID, asOf), nil
}

func (m *Store) ListLotsByFiscalYear(ctx context.Context, fiscalYear int) ([]ledger.GrantLot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLotsByFiscalYear(fiscalYear), nil
}

func (m *Store) ListExpirableLots(ctx context.Context, asOf ledger.Date) ([]ledger.GrantLot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listExpirableLots(asOf), nil
}

func (m *Store) ApplyConsumption(ctx context.Context, id ledger.LotID, amount ledger.Days, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyConsumption(id, amount, version)
}

func (m *Store) ApplyReversal(ctx context.Context, id ledger.LotID, amount ledger.Days, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyReversal(id, amount, version)
}

func (m *Store) ApplyExpiry(ctx context.Context, id ledger.LotID, amount ledger.Days, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyExpiry(id, amount, version)
}

// =============================================================================
// USAGE STORE (locked wrappers)
// =============================================================================

func (m *Store) CreateUsageEvent(ctx context.Context, e ledger.UsageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createUsageEvent(e)
	return nil
}

func (m *Store) GetUsageEvent(ctx context.Context, id ledger.UsageEventID) (ledger.UsageEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUsageEvent(id)
}

func (m *Store) ListUsageEvents(ctx context.Context, employeeID ledger.EmployeeID) ([]ledger.UsageEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listUsageEvents(employeeID), nil
}

func (m *Store) MarkReverted(ctx context.Context, id ledger.UsageEventID, revertedBy ledger.UsageEventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markReverted(id, revertedBy)
}

// =============================================================================
// AUDIT STORE (locked wrappers)
// =============================================================================

func (m *Store) AppendEvent(ctx context.Context, e audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *Store) LastEvent(ctx context.Context) (audit.Event, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastEvent()
}

func (m *Store) EventRange(ctx context.Context, fromSeq, toSeq int64) ([]audit.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eventRange(fromSeq, toSeq), nil
}

// =============================================================================
// TRANSACTIONS - Snapshot and rollback
// =============================================================================

// WithTx executes fn against a transactional view while holding the store
// lock. A snapshot taken up front is restored when fn fails, so partial
// writes never leak out.
func (m *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type storeSnapshot struct {
	lots    map[ledger.LotID]ledger.GrantLot
	lotKeys map[grantKey]ledger.LotID
	usage   map[ledger.UsageEventID]ledger.UsageEvent
	events  []audit.Event
}

func (m *Store) snapshot() storeSnapshot {
	s := storeSnapshot{
		lots:    make(map[ledger.LotID]ledger.GrantLot, len(m.lots)),
		lotKeys: make(map[grantKey]ledger.LotID, len(m.lotKeys)),
		usage:   make(map[ledger.UsageEventID]ledger.UsageEvent, len(m.usage)),
		events:  append([]audit.Event{}, m.events...),
	}
	for k, v := range m.lots {
		s.lots[k] = v
	}
	for k, v := range m.lotKeys {
		s.lotKeys[k] = v
	}
	for k, v := range m.usage {
		s.usage[k] = v
	}
	return s
}

func (m *Store) restore(s storeSnapshot) {
	m.lots = s.lots
	m.lotKeys = s.lotKeys
	m.usage = s.usage
	m.events = s.events
}

// txView exposes the unlocked internals to WithTx callbacks. The parent's
// mutex is held for the duration of the transaction.
type txView struct {
	parent *Store
}

func (v *txView) CreateLot(_ context.Context, lot ledger.GrantLot) error {
	return v.parent.createLot(lot)
}

func (v *txView) GetLot(_ context.Context, id ledger.LotID) (ledger.GrantLot, error) {
	return v.parent.getLot(id)
}

func (v *txView) ListLots(_ context.Context, employeeID ledger.EmployeeID) ([]ledger.GrantLot, error) {
	return v.parent.listLots(employeeID), nil
}

func (v *txView) ListActiveLots(_ context.Context, employeeID ledger.EmployeeID, asOf ledger.Date) ([]ledger.GrantLot, error) {
	return v.parent.listActiveLots(employeeID, asOf), nil
}

func (v *txView) ListLotsByFiscalYear(_ context.Context, fiscalYear int) ([]ledger.GrantLot, error) {
	return v.parent.listLotsByFiscalYear(fiscalYear), nil
}

func (v *txView) ListExpirableLots(_ context.Context, asOf ledger.Date) ([]ledger.GrantLot, error) {
	return v.parent.listExpirableLots(asOf), nil
}

func (v *txView) ApplyConsumption(_ context.Context, id ledger.LotID, amount ledger.Days, version int) error {
	return v.parent.applyConsumption(id, amount, version)
}

func (v *txView) ApplyReversal(_ context.Context, id ledger.LotID, amount ledger.Days, version int) error {
	return v.parent.applyReversal(id, amount, version)
}

func (v *txView) ApplyExpiry(_ context.Context, id ledger.LotID, amount ledger.Days, version int) error {
	return v.parent.applyExpiry(id, amount, version)
}

func (v *txView) CreateUsageEvent(_ context.Context, e ledger.UsageEvent) error {
	v.parent.createUsageEvent(e)
	return nil
}

func (v *txView) GetUsageEvent(_ context.Context, id ledger.UsageEventID) (ledger.UsageEvent, error) {
	return v.parent.getUsageEvent(id)
}

func (v *txView) ListUsageEvents(_ context.Context, employeeID ledger.EmployeeID) ([]ledger.UsageEvent, error) {
	return v.parent.listUsageEvents(employeeID), nil
}

func (v *txView) MarkReverted(_ context.Context, id ledger.UsageEventID, revertedBy ledger.UsageEventID) error {
	return v.parent.markReverted(id, revertedBy)
}

func (v *txView) AppendEvent(_ context.Context, e audit.Event) error {
	v.parent.events = append(v.parent.events, e)
	return nil
}

func (v *txView) LastEvent(_ context.Context) (audit.Event, bool, error) {
	return v.parent.lastEvent()
}

func (v *txView) EventRange(_ context.Context, fromSeq, toSeq int64) ([]audit.Event, error) {
	return v.parent.eventRange(fromSeq, toSeq), nil
}

// =============================================================================
// UNLOCKED INTERNALS
// =============================================================================

func (m *Store) createLot(lot ledger.GrantLot) error {
	k := keyOf(lot)
	if _, exists := m.lotKeys[k]; exists {
		return &ledger.DuplicateGrantError{
			EmployeeID: lot.EmployeeID,
			FiscalYear: lot.FiscalYear,
			GrantDate:  lot.GrantDate,
		}
	}
	m.lots[lot.ID] = lot
	m.lotKeys[k] = lot.ID
	return nil
}

func (m *Store) getLot(id ledger.LotID) (ledger.GrantLot, error) {
	lot, ok := m.lots[id]
	if !ok {
		return ledger.GrantLot{}, ledger.ErrLotNotFound
	}
	return lot, nil
}

func (m *Store) listLots(employeeID ledger.EmployeeID) []ledger.GrantLot {
	var lots []ledger.GrantLot
	for _, lot := range m.lots {
		if lot.EmployeeID == employeeID {
			lots = append(lots, lot)
		}
	}
	sortLots(lots)
	return lots
}

func (m *Store) listActiveLots(employeeID ledger.EmployeeID, asOf ledger.Date) []ledger.GrantLot {
	var lots []ledger.GrantLot
	for _, lot := range m.lots {
		if lot.EmployeeID == employeeID && lot.EligibleAt(asOf) {
			lots = append(lots, lot)
		}
	}
	sortLots(lots)
	return lots
}

func (m *Store) listLotsByFiscalYear(fiscalYear int) []ledger.GrantLot {
	var lots []ledger.GrantLot
	for _, lot := range m.lots {
		if lot.FiscalYear == fiscalYear {
			lots = append(lots, lot)
		}
	}
	sort.Slice(lots, func(i, j int) bool {
		if lots[i].EmployeeID != lots[j].EmployeeID {
			return lots[i].EmployeeID < lots[j].EmployeeID
		}
		return lots[i].GrantDate.Before(lots[j].GrantDate)
	})
	return lots
}

func (m *Store) listExpirableLots(asOf ledger.Date) []ledger.GrantLot {
	var lots []ledger.GrantLot
	for _, lot := range m.lots {
		if lot.Status == ledger.LotActive &&
			lot.ExpiryDate.BeforeOrEqual(asOf) &&
			lot.Remaining().IsPositive() {
			lots = append(lots, lot)
		}
	}
	sortLots(lots)
	return lots
}

func (m *Store) applyConsumption(id ledger.LotID, amount ledger.Days, version int) error {
	lot, ok := m.lots[id]
	if !ok {
		return ledger.ErrLotNotFound
	}
	if lot.Version != version {
		return ledger.ErrConcurrentModification
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

	lot.Consumed = consumed
	if lot.Remaining().IsZero() && lot.Status == ledger.LotActive {
		lot.Status = ledger.LotFullyConsumed
	}
	lot.Version++
	m.lots[id] = lot
	return nil
}

func (m *Store) applyReversal(id ledger.LotID, amount ledger.Days, version int) error {
	lot, ok := m.lots[id]
	if !ok {
		return ledger.ErrLotNotFound
	}
	if lot.Version != version {
		return ledger.ErrConcurrentModification
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

	lot.Consumed = consumed
	switch {
	case lot.Status == ledger.LotExpired:
		// The retention window has lapsed: days returned to a swept lot
		// are forfeited, not made available again.
		lot.Expired = lot.Expired.Add(amount)
	case lot.Status == ledger.LotFullyConsumed && lot.Remaining().IsPositive():
		lot.Status = ledger.LotActive
	}
	lot.Version++
	m.lots[id] = lot
	return nil
}

func (m *Store) applyExpiry(id ledger.LotID, amount ledger.Days, version int) error {
	lot, ok := m.lots[id]
	if !ok {
		return ledger.ErrLotNotFound
	}
	if lot.Version != version {
		return ledger.ErrConcurrentModification
	}
	if lot.Status != ledger.LotActive {
		return &ledger.OverconsumptionError{
			LotID:     lot.ID,
			Granted:   lot.Granted,
			Consumed:  lot.Consumed,
			Requested: amount,
		}
	}

	lot.Expired = amount
	lot.Status = ledger.LotExpired
	lot.Version++
	m.lots[id] = lot
	return nil
}

func (m *Store) createUsageEvent(e ledger.UsageEvent) {
	m.usage[e.ID] = e
}

func (m *Store) getUsageEvent(id ledger.UsageEventID) (ledger.UsageEvent, error) {
	e, ok := m.usage[id]
	if !ok {
		return ledger.UsageEvent{}, ledger.ErrUsageEventNotFound
	}
	return e, nil
}

func (m *Store) listUsageEvents(employeeID ledger.EmployeeID) []ledger.UsageEvent {
	var events []ledger.UsageEvent
	for _, e := range m.usage {
		if e.EmployeeID == employeeID {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		return events[i].ID < events[j].ID
	})
	return events
}

func (m *Store) markReverted(id ledger.UsageEventID, revertedBy ledger.UsageEventID) error {
	e, ok := m.usage[id]
	if !ok {
		return ledger.ErrUsageEventNotFound
	}
	if e.RevertedBy != "" {
		return ledger.ErrAlreadyReverted
	}
	e.RevertedBy = revertedBy
	m.usage[id] = e
	return nil
}

func (m *Store) lastEvent() (audit.Event, bool, error) {
	if len(m.events) == 0 {
		return audit.Event{}, false, nil
	}
	return m.events[len(m.events)-1], true, nil
}

func (m *Store) eventRange(fromSeq, toSeq int64) []audit.Event {
	var out []audit.Event
	for _, e := range m.events {
		if e.Sequence >= fromSeq && e.Sequence <= toSeq {
			out = append(out, e)
		}
	}
	return out
}

func sortLots(lots []ledger.GrantLot) {
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].GrantDate.Equal(lots[j].GrantDate) {
			return lots[i].GrantDate.Before(lots[j].GrantDate)
		}
		return lots[i].ID < lots[j].ID
	})
}
