/*
sweep.go - Statutory expiration sweep

PURPOSE:
  Forfeits the unused remainder of lots whose retention window has elapsed.
  Run once per fiscal year-end (and harmlessly more often): the sweep is
  idempotent through the lot status check, and each lot commits in its own
  transaction, so a partial failure leaves a state that is simply swept
  again on the next run.

CONCURRENCY:
  A lot being swept and a lot being deducted race through the same version
  counter; exactly one wins. The sweep retries a lost lot once with fresh
  reads and otherwise moves on - re-runnability makes dropped lots safe.
*/
package ledger

import (
	"context"
	"errors"
	"log"

	"github.com/jokken79/yukyu-ledger/audit"
)

// ExpiredLotSummary reports one lot forfeited by a sweep.
type ExpiredLotSummary struct {
	LotID       LotID
	EmployeeID  EmployeeID
	FiscalYear  int
	GrantDate   Date
	ExpiryDate  Date
	ExpiredDays Days
}

// SweepExpirations forfeits every active lot with expiry date <= asOf and
// remaining > 0. Lots already expired or fully consumed are skipped by
// status, not re-derived from dates, so a second run with the same asOf is
// a no-op and appends no duplicate EXPIRE events.
func (e *Engine) SweepExpirations(ctx context.Context, asOf Date) ([]ExpiredLotSummary, error) {
	lots, err := e.store.ListExpirableLots(ctx, asOf)
	if err != nil {
		return nil, err
	}

	var (
		summaries []ExpiredLotSummary
		errs      []error
	)
	for _, lot := range lots {
		summary, swept, err := e.sweepLot(ctx, lot.ID, asOf)
		if errors.Is(err, ErrConcurrentModification) {
			// Lost the race against a deduction; one retry with fresh reads.
			summary, swept, err = e.sweepLot(ctx, lot.ID, asOf)
		}
		if err != nil {
			log.Printf("[sweep] lot %s: %v", lot.ID, err)
			errs = append(errs, err)
			continue
		}
		if swept {
			summaries = append(summaries, summary)
		}
	}
	return summaries, errors.Join(errs...)
}

// sweepLot forfeits a single lot in its own transaction. Returns
// swept=false when the lot is no longer eligible (already swept, fully
// consumed meanwhile, or not yet due).
func (e *Engine) sweepLot(ctx context.Context, id LotID, asOf Date) (ExpiredLotSummary, bool, error) {
	mu := e.employeeLockForLot(ctx, id)
	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}

	var summary ExpiredLotSummary
	swept := false

	err := e.store.WithTx(ctx, func(s Store) error {
		lot, err := s.GetLot(ctx, id)
		if err != nil {
			return err
		}
		if lot.Status != LotActive || asOf.Before(lot.ExpiryDate) {
			return nil
		}
		remaining := lot.Remaining()
		if !remaining.IsPositive() {
			return nil
		}

		if err := s.ApplyExpiry(ctx, lot.ID, remaining, lot.Version); err != nil {
			return err
		}

		trail := audit.NewTrail(s)
		_, err = trail.Append(ctx, audit.Event{
			Timestamp:  e.clock.Now(),
			Type:       audit.EventExpire,
			EmployeeID: string(lot.EmployeeID),
			Payload: audit.Payload{
				LotID:      string(lot.ID),
				FiscalYear: lot.FiscalYear,
				Date:       asOf.String(),
				Quantity:   remaining.String(),
			},
		})
		if err != nil {
			return err
		}

		summary = ExpiredLotSummary{
			LotID:       lot.ID,
			EmployeeID:  lot.EmployeeID,
			FiscalYear:  lot.FiscalYear,
			GrantDate:   lot.GrantDate,
			ExpiryDate:  lot.ExpiryDate,
			ExpiredDays: remaining,
		}
		swept = true
		return nil
	})
	return summary, swept, err
}

// employeeLockForLot resolves the lot's owner and returns their stripe
// lock, or nil when the lot vanished (it never does; lots aren't deleted).
func (e *Engine) employeeLockForLot(ctx context.Context, id LotID) *lockStripe {
	lot, err := e.store.GetLot(ctx, id)
	if err != nil {
		return nil
	}
	return e.employeeLock(lot.EmployeeID)
}
