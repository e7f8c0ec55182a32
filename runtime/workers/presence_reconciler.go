package workers

import (
	"chat-dm/observability"
	"context"
	"log/slog"
	"time"
)

type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// PresenceReconciler repairs persisted presence that drifted from the live
// registry. It runs once at start, then every interval.
type PresenceReconciler struct {
	reconciler Reconciler
	log        *slog.Logger
	interval   time.Duration
}

func NewPresenceReconciler(reconciler Reconciler, log *slog.Logger, interval time.Duration) *PresenceReconciler {
	return &PresenceReconciler{reconciler: reconciler, log: log, interval: interval}
}

func (w *PresenceReconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.reconcile(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping presence reconciliation")
			return nil
		case <-ticker.C:
		}
	}
}

func (w *PresenceReconciler) reconcile(ctx context.Context) error {
	repaired, err := w.reconciler.Reconcile(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if repaired > 0 {
		observability.ReconciledUsers.Add(float64(repaired))
		w.log.Info("Stale presence repaired", "users", repaired)
	}
	return nil
}
