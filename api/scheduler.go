/*
scheduler.go - Automated expiration sweep scheduler

PURPOSE:
  Periodically runs the statutory expiration sweep so lots past their
  retention window are forfeited without manual intervention. The sweep
  itself is idempotent, so overlapping or repeated runs are harmless.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Sweeps as of the clock's current date on every tick
  - Skips nothing and dedupes nothing here; idempotence lives in the
    ledger, not the scheduler

USAGE:
  scheduler := NewSweepScheduler(engine, clock)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - ledger/sweep.go: SweepExpirations
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jokken79/yukyu-ledger/ledger"
)

// SweepScheduler runs the expiration sweep on a fixed interval.
type SweepScheduler struct {
	Engine        *ledger.Engine
	Clock         ledger.Clock
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweepScheduler creates a new scheduler.
func NewSweepScheduler(engine *ledger.Engine, clock ledger.Clock) *SweepScheduler {
	return &SweepScheduler{
		Engine:        engine,
		Clock:         clock,
		CheckInterval: 24 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ss *SweepScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Scheduler] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the scheduler.
func (ss *SweepScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ss *SweepScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.sweep()

	for {
		select {
		case <-ss.ticker.C:
			ss.sweep()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SweepScheduler) sweep() {
	ctx := context.Background()
	asOf := ledger.Today(ss.Clock)

	summaries, err := ss.Engine.SweepExpirations(ctx, asOf)
	if err != nil {
		log.Printf("[Scheduler] Sweep as of %s finished with errors: %v", asOf, err)
	}
	if len(summaries) > 0 {
		total := ledger.ZeroDays()
		for _, s := range summaries {
			total = total.Add(s.ExpiredDays)
		}
		log.Printf("[Scheduler] Sweep as of %s expired %d lots, %s days total",
			asOf, len(summaries), total)
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (ss *SweepScheduler) RunNow() {
	ss.sweep()
}
