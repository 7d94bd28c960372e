package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iliyamo/drone-fleet-maintenance/internal/metrics"
	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
)

// ReconcileResult summarises one reconciler pass.
type ReconcileResult struct {
	Examined  int `json:"examined"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// Reconciler re-drives PENDING sagas until every step is observed
// complete.  Sagas younger than the grace period are left to the request
// that created them.
type Reconciler struct {
	orch  *Orchestrator
	grace time.Duration
	batch int

	running sync.Mutex
}

// NewReconciler builds a Reconciler.  batch caps the sagas handled per
// pass; 0 means no cap.
func NewReconciler(orch *Orchestrator, grace time.Duration, batch int) *Reconciler {
	return &Reconciler{orch: orch, grace: grace, batch: batch}
}

// RunOnce performs a single pass.  A pass that starts while another is
// still running returns immediately with an empty result.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	if !r.running.TryLock() {
		return res, nil
	}
	defer r.running.Unlock()

	cutoff := r.orch.now().Add(-r.grace)
	sagas, err := r.orch.sagas.ListByState(ctx, model.SagaPending, cutoff, r.batch)
	if err != nil {
		return res, classify(err, "list pending sagas")
	}
	metrics.SetPendingSagas(len(sagas))

	for _, s := range sagas {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Examined++
		got, err := r.orch.Resume(ctx, s.ID)
		state := model.SagaPending
		if got != nil {
			state = got.State
		}
		switch state {
		case model.SagaCompleted:
			res.Completed++
		case model.SagaFailed:
			res.Failed++
		default:
			res.Pending++
		}
		metrics.RecordReconcile(string(state))
		if err != nil {
			log.Printf("reconciler: saga %s (%s) for maintenance %s: %v", s.ID, s.Kind, s.MaintenanceID, err)
		}
	}
	if res.Examined > 0 {
		log.Printf("reconciler: examined=%d completed=%d failed=%d pending=%d",
			res.Examined, res.Completed, res.Failed, res.Pending)
	}
	return res, nil
}

// Start schedules passes on a cron spec such as "@every 30s" or
// "*/1 * * * *".  Passes stop when ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context, schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			log.Printf("reconciler: pass failed: %v", err)
		}
	}); err != nil {
		return err
	}
	c.Start()
	log.Printf("reconciler: scheduled %q grace=%s", schedule, r.grace)
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
