package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/drone-fleet-maintenance/internal/metrics"
	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
)

// Saga step names.  Together with the saga id they key every cascading
// write, so a re-driven step recognises its own earlier effect.
const (
	StepMaintenanceInsert  = "maintenance.insert"
	StepHistoryRecord      = "history.record"
	StepChecklistGenerate  = "checklist.generate"
	StepDroneInMaintenance = "drone.in_maintenance"
	StepMaintenanceUpdate  = "maintenance.update"
	StepDroneActivate      = "drone.activate"
)

const maxStepBackoff = 2 * time.Second

// SagaStore persists saga intents and their progress.
type SagaStore interface {
	Create(ctx context.Context, s *model.MaintenanceSaga) error
	GetByID(ctx context.Context, id string) (*model.MaintenanceSaga, error)
	ListByMaintenance(ctx context.Context, maintenanceID string) ([]model.MaintenanceSaga, error)
	ListByState(ctx context.Context, state model.SagaState, cutoff time.Time, limit int) ([]model.MaintenanceSaga, error)
	MarkStep(ctx context.Context, s *model.MaintenanceSaga, step string, now time.Time) error
	RecordAttempt(ctx context.Context, s *model.MaintenanceSaga, lastErr string, now time.Time) error
	Complete(ctx context.Context, s *model.MaintenanceSaga, now time.Time) error
	Fail(ctx context.Context, s *model.MaintenanceSaga, reason string, now time.Time) error
}

type createPayload struct {
	Maintenance model.Maintenance `json:"maintenance"`
	PieceIDs    []string          `json:"piece_ids"`
	ChangedBy   *string           `json:"changed_by,omitempty"`
}

type updatePayload struct {
	Status          model.MaintenanceStatus `json:"status"`
	PreviousStatus  model.MaintenanceStatus `json:"previous_status"`
	ExpectedVersion int64                   `json:"expected_version"`
	ChangedAt       time.Time               `json:"changed_at"`
	ChangedBy       *string                 `json:"changed_by,omitempty"`
	Comment         string                  `json:"comment"`
}

// permanentError ends a saga: no retry helps, the saga is marked FAILED.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

func permanent(err error) error { return &permanentError{err: err} }

type step struct {
	name string
	run  func(ctx context.Context) error
}

func stepKey(s *model.MaintenanceSaga, name string) string {
	return s.ID + ":" + name
}

func (o *Orchestrator) newSaga(ctx context.Context, kind model.SagaKind, maintenanceID, droneID string, payload any, now time.Time) (*model.MaintenanceSaga, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, newError(KindInternal, err, "encode saga payload")
	}
	s := &model.MaintenanceSaga{
		ID:            uuid.NewString(),
		Kind:          kind,
		MaintenanceID: maintenanceID,
		DroneID:       droneID,
		Payload:       raw,
		State:         model.SagaPending,
		Steps:         []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.sagas.Create(ctx, s); err != nil {
		return nil, newError(KindInternal, err, "write saga intent")
	}
	return s, nil
}

// retry runs fn up to the configured number of attempts with exponential
// backoff.  Permanent errors and a done context stop it early.
func (o *Orchestrator) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := o.cfg.StepBackoff
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var pe *permanentError
		if errors.As(err, &pe) || attempt >= o.cfg.StepAttempts {
			return err
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
		delay *= 2
		if delay > maxStepBackoff {
			delay = maxStepBackoff
		}
	}
}

// runSteps executes the steps not yet recorded on s, in order.  A step that
// keeps failing leaves the saga PENDING for the reconciler; a permanent
// failure marks it FAILED.  Saga bookkeeping survives a cancelled request.
func (o *Orchestrator) runSteps(ctx context.Context, s *model.MaintenanceSaga, steps []step) error {
	book := context.WithoutCancel(ctx)
	kind := string(s.Kind)
	for _, st := range steps {
		if s.StepDone(st.name) {
			continue
		}
		start := time.Now()
		err := o.retry(ctx, st.run)
		metrics.RecordSagaStep(kind, st.name, err, time.Since(start))
		if err != nil {
			var pe *permanentError
			if errors.As(err, &pe) {
				if ferr := o.sagas.Fail(book, s, st.name+": "+pe.err.Error(), o.now()); ferr != nil {
					log.Printf("orchestrator: saga %s: record failure: %v", s.ID, ferr)
				}
				metrics.RecordSaga(kind, string(model.SagaFailed))
				log.Printf("orchestrator: saga %s (%s) failed at %s: %v", s.ID, kind, st.name, pe.err)
				return pe.err
			}
			if rerr := o.sagas.RecordAttempt(book, s, st.name+": "+err.Error(), o.now()); rerr != nil {
				log.Printf("orchestrator: saga %s: record attempt: %v", s.ID, rerr)
			}
			log.Printf("orchestrator: saga %s (%s) pending at %s: %v", s.ID, kind, st.name, err)
			return newError(KindInternal, err, "maintenance saga %s left pending at step %s", s.ID, st.name)
		}
		if err := o.sagas.MarkStep(book, s, st.name, o.now()); err != nil {
			return newError(KindInternal, err, "record saga %s step %s", s.ID, st.name)
		}
	}
	if err := o.sagas.Complete(book, s, o.now()); err != nil {
		return newError(KindInternal, err, "complete saga %s", s.ID)
	}
	metrics.RecordSaga(kind, string(model.SagaCompleted))
	return nil
}

// drive decodes the payload of s and runs its steps, then publishes the
// resulting event.
func (o *Orchestrator) drive(ctx context.Context, s *model.MaintenanceSaga) error {
	switch s.Kind {
	case model.SagaCreate:
		var p createPayload
		if err := json.Unmarshal(s.Payload, &p); err != nil {
			return o.failUndecodable(ctx, s, err)
		}
		if err := o.driveCreate(ctx, s, p); err != nil {
			return err
		}
		o.publishCreated(ctx, s, p)
	case model.SagaUpdateStatus:
		var p updatePayload
		if err := json.Unmarshal(s.Payload, &p); err != nil {
			return o.failUndecodable(ctx, s, err)
		}
		if err := o.driveUpdate(ctx, s, p); err != nil {
			return err
		}
		o.publishStatusChanged(ctx, s, p)
	default:
		return o.failUndecodable(ctx, s, errors.New("unknown saga kind "+string(s.Kind)))
	}
	return nil
}

func (o *Orchestrator) failUndecodable(ctx context.Context, s *model.MaintenanceSaga, cause error) error {
	if err := o.sagas.Fail(context.WithoutCancel(ctx), s, "payload: "+cause.Error(), o.now()); err != nil {
		log.Printf("orchestrator: saga %s: record failure: %v", s.ID, err)
	}
	return newError(KindInternal, cause, "saga %s payload", s.ID)
}
