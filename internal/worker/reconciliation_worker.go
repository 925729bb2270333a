package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayo6706/currency-converter/internal/observability"
	"github.com/ayo6706/currency-converter/internal/service"
	"go.uber.org/zap"
)

const workerName = "reconciliation"

// Reconciler is the check the worker repeats.
type Reconciler interface {
	Run(ctx context.Context) (*service.ReconciliationReport, error)
}

// ReconciliationWorker runs periodic ledger reconciliation checks.
type ReconciliationWorker struct {
	svc      Reconciler
	interval time.Duration
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

// NewReconciliationWorker constructs a worker with a default hourly interval.
func NewReconciliationWorker(svc Reconciler, logger *zap.Logger) *ReconciliationWorker {
	if logger == nil {
		logger = zap.L()
	}
	return &ReconciliationWorker{
		svc:      svc,
		interval: time.Hour,
		logger:   logger.Named("reconciliation_worker"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and runs reconciliation at the configured interval.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	w.started.Store(true)
	defer close(w.done)
	w.logger.Info("reconciliation worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately at startup.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reconciliation worker context canceled")
			return
		case <-w.stopCh:
			w.logger.Info("reconciliation worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop and waits for an in-flight run.
func (w *ReconciliationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	if w.started.Load() {
		<-w.done
	}
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ReconciliationWorker) Run(ctx context.Context) func() {
	w.started.Store(true)
	go w.Start(ctx)
	return w.Stop
}

func (w *ReconciliationWorker) runOnce(ctx context.Context) {
	report, err := w.svc.Run(ctx)
	switch {
	case err != nil:
		observability.IncrementWorkerRun(workerName, "failed")
		w.logger.Error("reconciliation run failed", zap.Error(err))
	case !report.Balanced():
		observability.IncrementWorkerRun(workerName, "imbalanced")
		w.logger.Warn("reconciliation found violations",
			zap.Strings("violations", report.Violations),
			zap.Bool("repaired", report.Repaired),
		)
	default:
		observability.IncrementWorkerRun(workerName, "success")
	}
}
