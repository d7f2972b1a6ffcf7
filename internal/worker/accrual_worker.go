package worker

import (
	"context"
	"sync"
	"time"

	"github.com/davidocha/coinvault/internal/observability"
	"github.com/davidocha/coinvault/internal/service"
	"go.uber.org/zap"
)

// AccrualWorker runs the earnings sweep on a fixed schedule. The sweep's
// per-subscription marker guard makes overlapping or repeated runs harmless,
// so the worker can fire more often than the accrual period.
type AccrualWorker struct {
	svc      *service.AccrualService
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewAccrualWorker constructs a worker with a default hourly interval.
func NewAccrualWorker(svc *service.AccrualService) *AccrualWorker {
	return &AccrualWorker{
		svc:      svc,
		interval: time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the sweep interval.
func (w *AccrualWorker) WithInterval(interval time.Duration) *AccrualWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and sweeps at the configured interval.
func (w *AccrualWorker) Start(ctx context.Context) {
	zap.L().Info("accrual worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately so a restarted instance catches up without
	// waiting a full interval.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("accrual worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("accrual worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *AccrualWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *AccrualWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *AccrualWorker) runOnce(ctx context.Context) {
	result, err := w.svc.RunSweep(ctx)
	if err != nil {
		observability.IncrementWorkerRun("accrual", "failed")
		zap.L().Error("accrual sweep failed", zap.Error(err))
		return
	}
	if result.Failed > 0 {
		observability.IncrementWorkerRun("accrual", "partial")
		return
	}
	observability.IncrementWorkerRun("accrual", "success")
}
