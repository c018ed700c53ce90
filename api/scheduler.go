/*
scheduler.go - Periodic ledger reconciliation

PURPOSE:
  Runs booking.Service.Reconcile on an interval so drift between the pool
  counters and the booking rooms is noticed without an operator calling
  POST /api/admin/reconcile.

DESIGN:
  - Background goroutine driven by a ticker
  - Runs once immediately on Start
  - Repair=true resets drifting pools from their reservations
  - The last reports are kept for GetLastRun

USAGE:
  scheduler := NewReconciliationScheduler(svc, logger)
  scheduler.CheckInterval = cfg.Booking.ReconcileInterval
  scheduler.Start()
  defer scheduler.Stop()
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/allocation-engine/generic"
)

// Reconciler is the part of booking.Service the scheduler needs.
type Reconciler interface {
	Reconcile(ctx context.Context, repair bool) ([]generic.ReconcileReport, error)
}

// ReconciliationScheduler audits the ledger on a fixed interval.
type ReconciliationScheduler struct {
	Reconciler    Reconciler
	Logger        *slog.Logger
	CheckInterval time.Duration
	Repair        bool
	Enabled       bool

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	last    []generic.ReconcileReport
	lastRun time.Time
}

func NewReconciliationScheduler(r Reconciler, logger *slog.Logger) *ReconciliationScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconciliationScheduler{
		Reconciler:    r,
		Logger:        logger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled || rs.CheckInterval <= 0 {
		rs.Logger.Info("reconciliation scheduler disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run(rs.ticker, rs.stop)

	rs.Logger.Info("reconciliation scheduler started", "interval", rs.CheckInterval, "repair", rs.Repair)
}

// Stop halts the scheduler and waits for a running pass to finish.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	if rs.ticker == nil {
		rs.mu.Unlock()
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.ticker = nil
	rs.mu.Unlock()

	rs.wg.Wait()
	rs.Logger.Info("reconciliation scheduler stopped")
}

func (rs *ReconciliationScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	rs.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			rs.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow performs one reconciliation pass and returns the drifting pools.
func (rs *ReconciliationScheduler) RunNow(ctx context.Context) []generic.ReconcileReport {
	reports, err := rs.Reconciler.Reconcile(ctx, rs.Repair)
	if err != nil {
		rs.Logger.Error("reconciliation failed", "error", err)
		return nil
	}

	var drifting []generic.ReconcileReport
	for _, r := range reports {
		if !r.Consistent() {
			drifting = append(drifting, r)
		}
	}
	rs.Logger.Info("reconciliation complete", "pools", len(reports), "drifting", len(drifting), "repaired", rs.Repair && len(drifting) > 0)

	rs.mu.Lock()
	rs.last = reports
	rs.lastRun = time.Now()
	rs.mu.Unlock()
	return drifting
}

// GetLastRun returns the reports of the most recent pass and when it ran.
func (rs *ReconciliationScheduler) GetLastRun() ([]generic.ReconcileReport, time.Time) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.last, rs.lastRun
}
