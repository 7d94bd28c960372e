package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/drone-fleet-maintenance/internal/lock"
	"github.com/iliyamo/drone-fleet-maintenance/internal/metrics"
	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
	"github.com/iliyamo/drone-fleet-maintenance/internal/queue"
	"github.com/iliyamo/drone-fleet-maintenance/internal/repository"
)

// DroneReader resolves drones.
type DroneReader interface {
	GetByID(ctx context.Context, id string) (*model.Drone, error)
}

// MaintenanceStore is the maintenance store as the orchestrator uses it.
type MaintenanceStore interface {
	Create(ctx context.Context, m *model.Maintenance) error
	GetByID(ctx context.Context, id string) (*model.Maintenance, error)
	List(ctx context.Context) ([]model.Maintenance, error)
	ListByDrone(ctx context.Context, droneID string) ([]model.Maintenance, error)
	ListByStatus(ctx context.Context, status model.MaintenanceStatus) ([]model.Maintenance, error)
	FindActiveByDrone(ctx context.Context, droneID string) (*model.Maintenance, error)
	HasActiveForDrone(ctx context.Context, droneID string) (bool, error)
	UpdateStatus(ctx context.Context, m *model.Maintenance, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
}

// ChecklistStore persists checklist rows.
type ChecklistStore interface {
	CountByMaintenance(ctx context.Context, maintenanceID string) (int, error)
	CreateBulk(ctx context.Context, items []model.MaintenancePiece) error
	DeleteByMaintenance(ctx context.Context, maintenanceID string) (int64, error)
}

// PieceCatalog supplies the active piece types when a job opens.
type PieceCatalog interface {
	ListActiveIDs(ctx context.Context) ([]string, error)
}

// EventPublisher receives an event after every completed saga.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.MaintenanceEvent) error
}

// Config tunes step retries and lock acquisition.
type Config struct {
	StepAttempts int
	StepBackoff  time.Duration
	LockWait     time.Duration // 0 waits as long as the caller's context
}

func (c Config) withDefaults() Config {
	if c.StepAttempts < 1 {
		c.StepAttempts = 3
	}
	if c.StepBackoff <= 0 {
		c.StepBackoff = 50 * time.Millisecond
	}
	return c
}

// Deps are the collaborators of an Orchestrator.  Locker, Events and Now
// are optional.
type Deps struct {
	Drones       DroneReader
	DroneState   DroneStateMutator
	Maintenances MaintenanceStore
	Checklist    ChecklistStore
	Catalog      PieceCatalog
	History      *HistoryRecorder
	Sagas        SagaStore
	Locker       lock.Locker
	Events       EventPublisher
	Now          func() time.Time
}

// Orchestrator owns the maintenance lifecycle.  Writes for one drone are
// serialised through the locker, and every Create/UpdateStatus is a saga
// whose intent is stored before its first write.
type Orchestrator struct {
	drones       DroneReader
	droneState   DroneStateMutator
	maintenances MaintenanceStore
	checklist    ChecklistStore
	catalog      PieceCatalog
	history      *HistoryRecorder
	sagas        SagaStore
	locker       lock.Locker
	events       EventPublisher
	now          func() time.Time
	cfg          Config
}

// NewOrchestrator wires an Orchestrator and panics if a required
// dependency is missing.
func NewOrchestrator(d Deps, cfg Config) *Orchestrator {
	if d.Drones == nil || d.DroneState == nil || d.Maintenances == nil || d.Checklist == nil ||
		d.Catalog == nil || d.History == nil || d.Sagas == nil {
		panic("nil dependency passed to NewOrchestrator")
	}
	o := &Orchestrator{
		drones:       d.Drones,
		droneState:   d.DroneState,
		maintenances: d.Maintenances,
		checklist:    d.Checklist,
		catalog:      d.Catalog,
		history:      d.History,
		sagas:        d.Sagas,
		locker:       d.Locker,
		events:       d.Events,
		now:          d.Now,
		cfg:          cfg.withDefaults(),
	}
	if o.locker == nil {
		o.locker = lock.NewLocalLocker()
	}
	if o.events == nil {
		o.events = queue.Discard{}
	}
	if o.now == nil {
		o.now = Now
	}
	return o
}

// CreateInput carries a create-maintenance request.
type CreateInput struct {
	DroneID       string
	OperatorID    *string
	Description   string
	ScheduledDate *time.Time
	Notes         string
	ChangedBy     *string
}

// UpdateStatusInput carries a status change request.
type UpdateStatusInput struct {
	MaintenanceID string
	Status        model.MaintenanceStatus
	ChangedBy     *string
	Comment       string
}

func (o *Orchestrator) withDrone(ctx context.Context, droneID string, fn func(ctx context.Context) error) error {
	wait := ctx
	if o.cfg.LockWait > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, o.cfg.LockWait)
		defer cancel()
	}
	start := time.Now()
	err := o.locker.WithLock(wait, "drone:"+droneID, func(lctx context.Context) error {
		metrics.RecordLockWait(time.Since(start))
		// the wait deadline only bounds acquisition; a lost lease stops fn
		run, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)
		stop := context.AfterFunc(lctx, func() {
			if errors.Is(context.Cause(lctx), lock.ErrLeaseLost) {
				cancel(lock.ErrLeaseLost)
			}
		})
		defer stop()
		return fn(run)
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return newError(KindInternal, err, "drone %s is busy", droneID)
	}
	return err
}

// Create opens a maintenance job for a drone: insert the job, record its
// initial status, materialise the checklist and put the drone in
// maintenance.  Unknown drones and drones with an open job are rejected
// before anything is written.
func (o *Orchestrator) Create(ctx context.Context, in CreateInput) (*model.Maintenance, error) {
	in.DroneID = strings.TrimSpace(in.DroneID)
	if in.DroneID == "" {
		return nil, Validationf("drone_id is required")
	}
	var out *model.Maintenance
	err := o.withDrone(ctx, in.DroneID, func(ctx context.Context) error {
		if _, err := o.drones.GetByID(ctx, in.DroneID); err != nil {
			return classify(err, "resolve drone %s", in.DroneID)
		}
		active, err := o.maintenances.HasActiveForDrone(ctx, in.DroneID)
		if err != nil {
			return classify(err, "check active maintenance")
		}
		if active {
			return conflict(in.DroneID)
		}
		pieceIDs, err := o.catalog.ListActiveIDs(ctx)
		if err != nil {
			return classify(err, "read piece catalog")
		}

		now := o.now()
		m := model.Maintenance{
			ID:            uuid.NewString(),
			DroneID:       in.DroneID,
			OperatorID:    in.OperatorID,
			Status:        model.InitialMaintenanceStatus,
			Description:   in.Description,
			ScheduledDate: in.ScheduledDate,
			Notes:         in.Notes,
			Version:       1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		p := createPayload{Maintenance: m, PieceIDs: pieceIDs, ChangedBy: in.ChangedBy}
		s, err := o.newSaga(ctx, model.SagaCreate, m.ID, m.DroneID, p, now)
		if err != nil {
			return err
		}
		if err := o.driveCreate(ctx, s, p); err != nil {
			return err
		}
		o.publishCreated(ctx, s, p)
		out, err = o.maintenances.GetByID(ctx, m.ID)
		return classify(err, "reload maintenance %s", m.ID)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) driveCreate(ctx context.Context, s *model.MaintenanceSaga, p createPayload) error {
	m := p.Maintenance
	m.LastSagaID = s.ID
	return o.runSteps(ctx, s, []step{
		{StepMaintenanceInsert, func(ctx context.Context) error {
			row := m
			err := o.maintenances.Create(ctx, &row)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, repository.ErrActiveMaintenanceExists):
				return permanent(conflict(m.DroneID))
			case errors.Is(err, repository.ErrDuplicate):
				cur, gerr := o.maintenances.GetByID(ctx, m.ID)
				if gerr != nil {
					return gerr
				}
				if cur.LastSagaID == s.ID {
					return nil
				}
				return permanent(newError(KindInternal, err, "maintenance %s written by another saga", m.ID))
			}
			return err
		}},
		{StepHistoryRecord, func(ctx context.Context) error {
			_, _, err := o.history.RecordOnce(ctx, stepKey(s, StepHistoryRecord), m.CreatedAt, m.ID, m.Status, p.ChangedBy, "created")
			return err
		}},
		{StepChecklistGenerate, func(ctx context.Context) error {
			return o.ensureChecklist(ctx, m.ID, p.PieceIDs)
		}},
		{StepDroneInMaintenance, func(ctx context.Context) error {
			active, err := o.maintenances.FindActiveByDrone(ctx, m.DroneID)
			switch {
			case errors.Is(err, repository.ErrMaintenanceNotFound) || (err == nil && active.ID != m.ID):
				return permanent(newError(KindConflict, repository.ErrVersionConflict,
					"maintenance %s is no longer the active job of drone %s", m.ID, m.DroneID))
			case err != nil:
				return err
			}
			return o.setDroneStatus(ctx, m.DroneID, model.DroneInMaintenance)
		}},
	})
}

// ensureChecklist writes the checklist unless the maintenance already has
// one, which is what a previous attempt of the same step left behind.
func (o *Orchestrator) ensureChecklist(ctx context.Context, maintenanceID string, pieceIDs []string) error {
	n, err := o.checklist.CountByMaintenance(ctx, maintenanceID)
	if err != nil {
		return err
	}
	if n > 0 || len(pieceIDs) == 0 {
		return nil
	}
	err = o.checklist.CreateBulk(ctx, GenerateChecklist(maintenanceID, pieceIDs, o.now()))
	if errors.Is(err, repository.ErrDuplicate) {
		if n, cerr := o.checklist.CountByMaintenance(ctx, maintenanceID); cerr == nil && n > 0 {
			return nil
		}
	}
	return err
}

// stillCompletedBy checks that the completion written by s is still the
// latest state of its maintenance and that the drone has no other open job.
func (o *Orchestrator) stillCompletedBy(ctx context.Context, s *model.MaintenanceSaga) error {
	cur, err := o.maintenances.GetByID(ctx, s.MaintenanceID)
	if errors.Is(err, repository.ErrMaintenanceNotFound) {
		return permanent(classify(err, "maintenance %s", s.MaintenanceID))
	}
	if err != nil {
		return err
	}
	if cur.Status != model.MaintenanceCompleted || cur.LastSagaID != s.ID {
		return permanent(newError(KindConflict, repository.ErrVersionConflict,
			"maintenance %s was changed by another request", s.MaintenanceID))
	}
	active, err := o.maintenances.HasActiveForDrone(ctx, s.DroneID)
	if err != nil {
		return err
	}
	if active {
		return permanent(conflict(s.DroneID))
	}
	return nil
}

func (o *Orchestrator) setDroneStatus(ctx context.Context, droneID string, status model.DroneStatus) error {
	err := o.droneState.SetStatus(ctx, droneID, status)
	if errors.Is(err, repository.ErrDroneNotFound) {
		return permanent(classify(err, "drone %s", droneID))
	}
	return err
}

// UpdateStatus moves a maintenance to a new status.  Any status may follow
// any other; start and end dates are stamped on first entry into an
// in-progress and the completed status.  Completing a job returns its
// drone to ACTIVE.  Each call appends exactly one history entry.
func (o *Orchestrator) UpdateStatus(ctx context.Context, in UpdateStatusInput) (*model.Maintenance, error) {
	if !in.Status.Valid() {
		return nil, Validationf("invalid maintenance status %q", in.Status)
	}
	m, err := o.maintenances.GetByID(ctx, in.MaintenanceID)
	if err != nil {
		return nil, classify(err, "resolve maintenance %s", in.MaintenanceID)
	}
	var out *model.Maintenance
	err = o.withDrone(ctx, m.DroneID, func(ctx context.Context) error {
		cur, err := o.maintenances.GetByID(ctx, in.MaintenanceID)
		if err != nil {
			return classify(err, "resolve maintenance %s", in.MaintenanceID)
		}
		if cur.Status.Terminal() && !in.Status.Terminal() {
			other, err := o.maintenances.FindActiveByDrone(ctx, cur.DroneID)
			switch {
			case err == nil && other.ID != cur.ID:
				return conflict(cur.DroneID)
			case err != nil && !errors.Is(err, repository.ErrMaintenanceNotFound):
				return classify(err, "check active maintenance")
			}
		}

		comment := in.Comment
		if strings.TrimSpace(comment) == "" {
			comment = fmt.Sprintf("status changed from %s to %s", cur.Status, in.Status)
		}
		now := o.now()
		p := updatePayload{
			Status:          in.Status,
			PreviousStatus:  cur.Status,
			ExpectedVersion: cur.Version,
			ChangedAt:       now,
			ChangedBy:       in.ChangedBy,
			Comment:         comment,
		}
		s, err := o.newSaga(ctx, model.SagaUpdateStatus, cur.ID, cur.DroneID, p, now)
		if err != nil {
			return err
		}
		if err := o.driveUpdate(ctx, s, p); err != nil {
			return err
		}
		o.publishStatusChanged(ctx, s, p)
		out, err = o.maintenances.GetByID(ctx, cur.ID)
		return classify(err, "reload maintenance %s", cur.ID)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) driveUpdate(ctx context.Context, s *model.MaintenanceSaga, p updatePayload) error {
	steps := []step{
		{StepMaintenanceUpdate, func(ctx context.Context) error {
			cur, err := o.maintenances.GetByID(ctx, s.MaintenanceID)
			if errors.Is(err, repository.ErrMaintenanceNotFound) {
				return permanent(classify(err, "maintenance %s", s.MaintenanceID))
			}
			if err != nil {
				return err
			}
			if cur.LastSagaID == s.ID {
				return nil
			}
			superseded := newError(KindConflict, repository.ErrVersionConflict,
				"maintenance %s was changed by another request", s.MaintenanceID)
			if cur.Version != p.ExpectedVersion {
				return permanent(superseded)
			}
			cur.ApplyStatus(p.Status, p.ChangedAt)
			cur.LastSagaID = s.ID
			err = o.maintenances.UpdateStatus(ctx, cur, p.ExpectedVersion)
			switch {
			case errors.Is(err, repository.ErrVersionConflict):
				return permanent(superseded)
			case errors.Is(err, repository.ErrActiveMaintenanceExists):
				return permanent(conflict(s.DroneID))
			case errors.Is(err, repository.ErrMaintenanceNotFound):
				return permanent(classify(err, "maintenance %s", s.MaintenanceID))
			}
			return err
		}},
		{StepHistoryRecord, func(ctx context.Context) error {
			_, _, err := o.history.RecordOnce(ctx, stepKey(s, StepHistoryRecord), p.ChangedAt, s.MaintenanceID, p.Status, p.ChangedBy, p.Comment)
			return err
		}},
	}
	if p.Status == model.MaintenanceCompleted {
		steps = append(steps, step{StepDroneActivate, func(ctx context.Context) error {
			if err := o.stillCompletedBy(ctx, s); err != nil {
				return err
			}
			return o.setDroneStatus(ctx, s.DroneID, model.DroneActive)
		}})
	}
	return o.runSteps(ctx, s, steps)
}

// Delete removes a maintenance and its checklist.  History entries stay.
// Sagas still pending for the job are failed so nothing re-creates it.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	m, err := o.maintenances.GetByID(ctx, id)
	if err != nil {
		return classify(err, "resolve maintenance %s", id)
	}
	return o.withDrone(ctx, m.DroneID, func(ctx context.Context) error {
		if _, err := o.maintenances.GetByID(ctx, id); err != nil {
			return classify(err, "resolve maintenance %s", id)
		}
		n, err := o.checklist.DeleteByMaintenance(ctx, id)
		if err != nil {
			return classify(err, "delete checklist of %s", id)
		}
		if err := o.maintenances.Delete(ctx, id); err != nil {
			return classify(err, "delete maintenance %s", id)
		}
		o.abandonSagas(ctx, id)
		log.Printf("orchestrator: maintenance %s deleted with %d checklist rows", id, n)
		return nil
	})
}

func (o *Orchestrator) abandonSagas(ctx context.Context, maintenanceID string) {
	sagas, err := o.sagas.ListByMaintenance(ctx, maintenanceID)
	if err != nil {
		log.Printf("orchestrator: list sagas of %s: %v", maintenanceID, err)
		return
	}
	for i := range sagas {
		s := &sagas[i]
		if s.State != model.SagaPending {
			continue
		}
		if err := o.sagas.Fail(ctx, s, "maintenance deleted", o.now()); err != nil {
			log.Printf("orchestrator: fail saga %s: %v", s.ID, err)
		}
	}
}

// HasActiveMaintenance reports whether the drone has a non-completed job.
func (o *Orchestrator) HasActiveMaintenance(ctx context.Context, droneID string) (bool, error) {
	ok, err := o.maintenances.HasActiveForDrone(ctx, droneID)
	if err != nil {
		return false, classify(err, "check active maintenance")
	}
	return ok, nil
}

// Get returns one maintenance.
func (o *Orchestrator) Get(ctx context.Context, id string) (*model.Maintenance, error) {
	m, err := o.maintenances.GetByID(ctx, id)
	if err != nil {
		return nil, classify(err, "maintenance %s", id)
	}
	return m, nil
}

// List returns every maintenance, newest first.
func (o *Orchestrator) List(ctx context.Context) ([]model.Maintenance, error) {
	out, err := o.maintenances.List(ctx)
	return out, classify(err, "list maintenances")
}

// ListByDrone returns the jobs of a drone, newest first.
func (o *Orchestrator) ListByDrone(ctx context.Context, droneID string) ([]model.Maintenance, error) {
	out, err := o.maintenances.ListByDrone(ctx, droneID)
	return out, classify(err, "list maintenances of drone %s", droneID)
}

// ListByStatus returns the jobs in a status.
func (o *Orchestrator) ListByStatus(ctx context.Context, status model.MaintenanceStatus) ([]model.Maintenance, error) {
	if !status.Valid() {
		return nil, Validationf("invalid maintenance status %q", status)
	}
	out, err := o.maintenances.ListByStatus(ctx, status)
	return out, classify(err, "list maintenances by status")
}

// History returns the audit trail of a maintenance, newest first.  Trails
// of deleted jobs remain readable.
func (o *Orchestrator) History(ctx context.Context, maintenanceID string) ([]model.MaintenanceStatusHistory, error) {
	out, err := o.history.List(ctx, maintenanceID)
	return out, classify(err, "list history of %s", maintenanceID)
}

// Sagas returns the sagas that drove a maintenance.
func (o *Orchestrator) Sagas(ctx context.Context, maintenanceID string) ([]model.MaintenanceSaga, error) {
	out, err := o.sagas.ListByMaintenance(ctx, maintenanceID)
	return out, classify(err, "list sagas of %s", maintenanceID)
}

// ListSagas returns sagas in a state, oldest first.
func (o *Orchestrator) ListSagas(ctx context.Context, state model.SagaState) ([]model.MaintenanceSaga, error) {
	if !state.Valid() {
		return nil, Validationf("invalid saga state %q", state)
	}
	out, err := o.sagas.ListByState(ctx, state, time.Time{}, 0)
	return out, classify(err, "list sagas")
}

// Resume re-drives a PENDING saga under its drone lock and returns the
// saga as it ended up.  Completed sagas are returned untouched; FAILED
// sagas cannot be resumed.
func (o *Orchestrator) Resume(ctx context.Context, sagaID string) (*model.MaintenanceSaga, error) {
	s, err := o.sagas.GetByID(ctx, sagaID)
	if err != nil {
		return nil, classify(err, "saga %s", sagaID)
	}
	switch s.State {
	case model.SagaCompleted:
		return s, nil
	case model.SagaFailed:
		return s, Validationf("saga %s is FAILED and cannot be resumed", sagaID)
	}
	err = o.withDrone(ctx, s.DroneID, func(ctx context.Context) error {
		cur, err := o.sagas.GetByID(ctx, sagaID)
		if err != nil {
			return classify(err, "saga %s", sagaID)
		}
		s = cur
		if s.State != model.SagaPending {
			return nil
		}
		return o.drive(ctx, s)
	})
	return s, err
}

func (o *Orchestrator) publish(ctx context.Context, ev queue.MaintenanceEvent) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := o.events.Publish(pctx, ev)
	metrics.RecordEventPublished(err)
	if err != nil {
		log.Printf("orchestrator: publish %s for %s: %v", ev.Type, ev.MaintenanceID, err)
	}
}

func (o *Orchestrator) publishCreated(ctx context.Context, s *model.MaintenanceSaga, p createPayload) {
	o.publish(ctx, queue.MaintenanceEvent{
		EventID:       s.ID,
		Type:          queue.EventMaintenanceCreated,
		MaintenanceID: s.MaintenanceID,
		DroneID:       s.DroneID,
		Status:        string(p.Maintenance.Status),
		DroneStatus:   string(model.DroneInMaintenance),
		ChangedBy:     deref(p.ChangedBy),
		ChecklistSize: len(p.PieceIDs),
		OccurredAt:    p.Maintenance.CreatedAt.Format(time.RFC3339),
	})
}

func (o *Orchestrator) publishStatusChanged(ctx context.Context, s *model.MaintenanceSaga, p updatePayload) {
	ev := queue.MaintenanceEvent{
		EventID:        s.ID,
		Type:           queue.EventMaintenanceStatusChanged,
		MaintenanceID:  s.MaintenanceID,
		DroneID:        s.DroneID,
		Status:         string(p.Status),
		PreviousStatus: string(p.PreviousStatus),
		ChangedBy:      deref(p.ChangedBy),
		OccurredAt:     p.ChangedAt.Format(time.RFC3339),
	}
	if p.Status == model.MaintenanceCompleted {
		ev.DroneStatus = string(model.DroneActive)
	}
	o.publish(ctx, ev)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
