package services

import (
	"context"
	"fmt"
	"time"

	"auction-engine/pkg/logger"

	"github.com/robfig/cron/v3"
)

// OngoingLoader adopts ongoing auctions from the store.
type OngoingLoader interface {
	LoadOngoing(ctx context.Context) (int, error)
}

// Reconciler periodically reloads ongoing auctions so auctions written by
// another process, or left over from a restart, get a countdown.
type Reconciler struct {
	cron     *cron.Cron
	loader   OngoingLoader
	interval time.Duration
	log      logger.Logger
}

func NewReconciler(loader OngoingLoader, interval time.Duration, log logger.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		cron:     cron.New(cron.WithSeconds()),
		loader:   loader,
		interval: interval,
		log:      log,
	}
}

func (r *Reconciler) Start(ctx context.Context) error {
	r.log.Info("Starting auction reconciler", "interval", r.interval)

	_, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.interval), func() {
		r.reconcile(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule reconcile job: %w", err)
	}

	r.cron.Start()
	return nil
}

// Stop waits for a running reconcile to finish.
func (r *Reconciler) Stop() error {
	r.log.Info("Stopping auction reconciler")
	<-r.cron.Stop().Done()
	return nil
}

func (r *Reconciler) reconcile(ctx context.Context) {
	adopted, err := r.loader.LoadOngoing(ctx)
	if err != nil {
		r.log.Error("Failed to reconcile ongoing auctions", "error", err)
		return
	}
	if adopted > 0 {
		r.log.Debug("Reconciled ongoing auctions", "adopted", adopted)
	}
}
