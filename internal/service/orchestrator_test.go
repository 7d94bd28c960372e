package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/drone-fleet-maintenance/internal/lock"
	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
	"github.com/iliyamo/drone-fleet-maintenance/internal/queue"
)

func TestCreateUnknownDroneHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Create(context.Background(), CreateInput{DroneID: "ghost"})
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	for _, table := range []string{"maintenances", "maintenance_pieces", "maintenance_status_history", "maintenance_sagas"} {
		if n := f.count(t, table); n != 0 {
			t.Errorf("%s: expected no rows, got %d", table, n)
		}
	}
}

func TestCreateRequiresDroneID(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Create(context.Background(), CreateInput{DroneID: "  "})
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateBuildsWholeAggregate(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	ctx := context.Background()

	m, err := f.orch.Create(ctx, CreateInput{DroneID: "D1", Description: "annual", ChangedBy: ptr("op-7")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.Status != model.InitialMaintenanceStatus {
		t.Errorf("status = %s, want %s", m.Status, model.InitialMaintenanceStatus)
	}
	if m.StartDate != nil || m.EndDate != nil {
		t.Errorf("new job must have no start/end date: %+v", m)
	}
	if m.Version != 1 {
		t.Errorf("version = %d, want 1", m.Version)
	}

	rows := f.checklistOf(t, m.ID)
	if len(rows) != len(f.activePieces) {
		t.Fatalf("checklist has %d rows, want %d", len(rows), len(f.activePieces))
	}
	seen := map[string]bool{}
	for _, r := range rows {
		if r.Status != model.PiecePending || r.Quantity != 1 || r.Notes != "" {
			t.Errorf("unexpected checklist row %+v", r)
		}
		seen[r.PieceID] = true
	}
	for _, id := range f.activePieces {
		if !seen[id] {
			t.Errorf("active piece %s missing from checklist", id)
		}
	}

	h := f.historyOf(t, m.ID)
	if len(h) != 1 || h[0].Status != model.InitialMaintenanceStatus || h[0].Comment != "created" {
		t.Fatalf("unexpected history %+v", h)
	}
	if h[0].ChangedBy == nil || *h[0].ChangedBy != "op-7" {
		t.Errorf("history actor = %v, want op-7", h[0].ChangedBy)
	}

	if st := f.droneStatus(t, "D1"); st != model.DroneInMaintenance {
		t.Errorf("drone status = %s, want IN_MAINTENANCE", st)
	}

	sagas := f.sagasOf(t, m.ID)
	if len(sagas) != 1 || sagas[0].State != model.SagaCompleted || len(sagas[0].Steps) != 4 {
		t.Fatalf("unexpected sagas %+v", sagas)
	}

	evs := f.events.Events()
	if len(evs) != 1 || evs[0].Type != queue.EventMaintenanceCreated || evs[0].ChecklistSize != 3 || evs[0].EventID != sagas[0].ID {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestCreateRejectsSecondActiveMaintenance(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	ctx := context.Background()
	if _, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"}); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	_, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"})
	if KindOf(err) != KindConflict || !errors.Is(err, ErrConflictActiveMaintenance) {
		t.Fatalf("expected active maintenance conflict, got %v", err)
	}
	if n := f.count(t, "maintenance_sagas"); n != 1 {
		t.Errorf("rejected create must not write a saga, got %d sagas", n)
	}
}

func TestConcurrentCreatesYieldOneWinner(t *testing.T) {
	cases := []struct {
		name   string
		locker lock.Locker
	}{
		{"drone lock", lock.NewLocalLocker()},
		{"store constraint only", noLock{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, func(d *Deps) { d.Locker = tc.locker })
			f.addDrone(t, "D1")

			const n = 2
			var wg sync.WaitGroup
			errs := make([]error, n)
			start := make(chan struct{})
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					_, errs[i] = f.orch.Create(context.Background(), CreateInput{DroneID: "D1"})
				}(i)
			}
			close(start)
			wg.Wait()

			ok, conflicts := 0, 0
			for _, err := range errs {
				switch {
				case err == nil:
					ok++
				case KindOf(err) == KindConflict:
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}
			if ok != 1 || conflicts != 1 {
				t.Fatalf("got %d successes and %d conflicts, want 1 and 1", ok, conflicts)
			}
			list, err := f.orch.ListByDrone(context.Background(), "D1")
			if err != nil {
				t.Fatalf("ListByDrone: %v", err)
			}
			if len(list) != 1 {
				t.Fatalf("drone has %d maintenances, want 1", len(list))
			}
		})
	}
}

func TestCompleteStampsEndDateOnceAndReactivatesDrone(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	ctx := context.Background()
	m, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	m, err = f.orch.UpdateStatus(ctx, UpdateStatusInput{MaintenanceID: m.ID, Status: model.MaintenanceInMaintenance})
	if err != nil {
		t.Fatalf("to IN_MAINTENANCE: %v", err)
	}
	if m.StartDate == nil || m.EndDate != nil {
		t.Fatalf("expected start date only, got start=%v end=%v", m.StartDate, m.EndDate)
	}
	started := *m.StartDate

	m, err = f.orch.UpdateStatus(ctx, UpdateStatusInput{MaintenanceID: m.ID, Status: model.MaintenanceRepairing})
	if err != nil {
		t.Fatalf("to REPAIRING: %v", err)
	}
	if !m.StartDate.Equal(started) {
		t.Errorf("start date overwritten: %v -> %v", started, *m.StartDate)
	}

	m, err = f.orch.UpdateStatus(ctx, UpdateStatusInput{MaintenanceID: m.ID, Status: model.MaintenanceCompleted, ChangedBy: ptr("op-1")})
	if err != nil {
		t.Fatalf("to COMPLETED: %v", err)
	}
	if m.EndDate == nil {
		t.Fatal("end date not set on completion")
	}
	ended := *m.EndDate
	if st := f.droneStatus(t, "D1"); st != model.DroneActive {
		t.Errorf("drone status = %s, want ACTIVE", st)
	}

	m, err = f.orch.UpdateStatus(ctx, UpdateStatusInput{MaintenanceID: m.ID, Status: model.MaintenanceCompleted})
	if err != nil {
		t.Fatalf("second COMPLETED: %v", err)
	}
	if !m.EndDate.Equal(ended) {
		t.Errorf("end date overwritten: %v -> %v", ended, *m.EndDate)
	}
	if m.Version != 5 {
		t.Errorf("version = %d, want 5", m.Version)
	}
	if has, _ := f.orch.HasActiveMaintenance(ctx, "D1"); has {
		t.Error("completed job still counted as active")
	}

	h := f.historyOf(t, m.ID)
	want := []model.MaintenanceStatus{
		model.MaintenanceCompleted, model.MaintenanceCompleted, model.MaintenanceRepairing,
		model.MaintenanceInMaintenance, model.InitialMaintenanceStatus,
	}
	if len(h) != len(want) {
		t.Fatalf("history has %d entries, want %d", len(h), len(want))
	}
	for i, st := range want {
		if h[i].Status != st {
			t.Errorf("history[%d] = %s, want %s", i, h[i].Status, st)
		}
	}
}

func TestUpdateStatusAppendsHistoryForSameStatus(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	ctx := context.Background()
	m, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := f.orch.UpdateStatus(ctx, UpdateStatusInput{MaintenanceID: m.ID, Status: m.Status}); err != nil {
			t.Fatalf("UpdateStatus %d: %v", i, err)
		}
	}
	h := f.historyOf(t, m.ID)
	if len(h) != 3 {
		t.Fatalf("history has %d entries, want 3", len(h))
	}
	if !strings.Contains(h[0].Comment, "SCHEDULED to SCHEDULED") {
		t.Errorf("default comment = %q", h[0].Comment)
	}
	if st := f.droneStatus(t, "D1"); st != model.DroneInMaintenance {
		t.Errorf("non-completing update must not touch the drone, got %s", st)
	}
}

func TestUpdateStatusErrors(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	ctx := context.Background()
	m, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cases := []struct {
		name string
		in   UpdateStatusInput
		kind Kind
	}{
		{"unknown maintenance", UpdateStatusInput{MaintenanceID: "nope", Status: model.MaintenanceCompleted}, KindNotFound},
		{"invalid status", UpdateStatusInput{MaintenanceID: m.ID, Status: "FLYING"}, KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.orch.UpdateStatus(ctx, tc.in); KindOf(err) != tc.kind {
				t.Fatalf("got %v (kind %s), want kind %s", err, KindOf(err), tc.kind)
			}
		})
	}
	if h := f.historyOf(t, m.ID); len(h) != 1 {
		t.Errorf("failed updates must not write history, got %d entries", len(h))
	}
}

func TestReopeningCompletedJobConflictsWithNewerJob(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	ctx := context.Background()
	first, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.orch.UpdateStatus(ctx, UpdateStatusInput{MaintenanceID: first.ID, Status: model.MaintenanceCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"}); err != nil {
		t.Fatalf("second Create: %v", err)
	}
	_, err = f.orch.UpdateStatus(ctx, UpdateStatusInput{MaintenanceID: first.ID, Status: model.MaintenanceInMaintenance})
	if KindOf(err) != KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestDeleteRemovesChecklistButKeepsHistory(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	ctx := context.Background()
	m, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.orch.UpdateStatus(ctx, UpdateStatusInput{MaintenanceID: m.ID, Status: model.MaintenanceRepairing}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := f.orch.Delete(ctx, m.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.orch.Get(ctx, m.ID); KindOf(err) != KindNotFound {
		t.Fatalf("Get after delete: %v", err)
	}
	if rows := f.checklistOf(t, m.ID); len(rows) != 0 {
		t.Errorf("checklist rows left: %d", len(rows))
	}
	h, err := f.orch.History(ctx, m.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h) != 2 {
		t.Errorf("history has %d entries, want 2", len(h))
	}
	if err := f.orch.Delete(ctx, m.ID); KindOf(err) != KindNotFound {
		t.Errorf("second Delete: %v", err)
	}
}

func TestTransientStepFailureIsRetried(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	f.droneState.failN.Store(1)

	m, err := f.orch.Create(context.Background(), CreateInput{DroneID: "D1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := f.droneState.calls.Load(); got != 2 {
		t.Errorf("drone mutator called %d times, want 2", got)
	}
	if s := f.sagasOf(t, m.ID); s[0].State != model.SagaCompleted || s[0].Attempts != 0 {
		t.Errorf("unexpected saga %+v", s[0])
	}
}

func TestPartialFailureLeavesPendingSagaForReconciler(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	f.droneState.fail.Store(true)
	ctx := context.Background()

	_, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"})
	if KindOf(err) != KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}

	pending, err := f.orch.ListSagas(ctx, model.SagaPending)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending sagas = %v, %v", pending, err)
	}
	s := pending[0]
	if len(s.Steps) != 3 || s.StepDone(StepDroneInMaintenance) {
		t.Errorf("unexpected completed steps %v", s.Steps)
	}
	if s.Attempts != 1 || !strings.HasPrefix(s.LastError, StepDroneInMaintenance) {
		t.Errorf("attempts=%d last_error=%q", s.Attempts, s.LastError)
	}
	if _, err := f.orch.Get(ctx, s.MaintenanceID); err != nil {
		t.Errorf("partially built job must stay queryable: %v", err)
	}
	if st := f.droneStatus(t, "D1"); st != model.DroneActive {
		t.Errorf("drone status = %s, want ACTIVE while saga is pending", st)
	}
	if len(f.events.Events()) != 0 {
		t.Error("no event may be published for an unfinished saga")
	}

	r := NewReconciler(f.orch, 0, 0)
	res, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce while still failing: %v", err)
	}
	if res.Examined != 1 || res.Pending != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	f.droneState.fail.Store(false)
	res, err = r.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Examined != 1 || res.Completed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if st := f.droneStatus(t, "D1"); st != model.DroneInMaintenance {
		t.Errorf("drone status = %s, want IN_MAINTENANCE", st)
	}
	if rows := f.checklistOf(t, s.MaintenanceID); len(rows) != len(f.activePieces) {
		t.Errorf("checklist has %d rows after re-drive, want %d", len(rows), len(f.activePieces))
	}
	if h := f.historyOf(t, s.MaintenanceID); len(h) != 1 {
		t.Errorf("history has %d entries after re-drive, want 1", len(h))
	}
	if evs := f.events.Events(); len(evs) != 1 || evs[0].EventID != s.ID {
		t.Errorf("unexpected events %+v", evs)
	}

	res, err = r.RunOnce(ctx)
	if err != nil || res.Examined != 0 {
		t.Fatalf("nothing should be left: %+v %v", res, err)
	}
}

func TestReconcilerSkipsSagasInsideGracePeriod(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	f.droneState.fail.Store(true)
	if _, err := f.orch.Create(context.Background(), CreateInput{DroneID: "D1"}); err == nil {
		t.Fatal("expected failure")
	}
	res, err := NewReconciler(f.orch, time.Hour, 0).RunOnce(context.Background())
	if err != nil || res.Examined != 0 {
		t.Fatalf("young saga must be skipped: %+v %v", res, err)
	}
}

func TestRedriveAfterLostProgressIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	f.sagas.dropStep = StepHistoryRecord
	ctx := context.Background()

	if _, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"}); KindOf(err) != KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	pending, _ := f.orch.ListSagas(ctx, model.SagaPending)
	if len(pending) != 1 {
		t.Fatalf("expected one pending saga, got %d", len(pending))
	}
	s, err := f.orch.Resume(ctx, pending[0].ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if s.State != model.SagaCompleted {
		t.Fatalf("saga state = %s", s.State)
	}
	if n := f.count(t, "maintenances"); n != 1 {
		t.Errorf("maintenances = %d, want 1", n)
	}
	if h := f.historyOf(t, s.MaintenanceID); len(h) != 1 {
		t.Errorf("history = %d entries, want 1", len(h))
	}
	if rows := f.checklistOf(t, s.MaintenanceID); len(rows) != len(f.activePieces) {
		t.Errorf("checklist = %d rows, want %d", len(rows), len(f.activePieces))
	}
}

func TestSupersededUpdateSagaFails(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	ctx := context.Background()
	m, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	f.maintenances.failUpdates.Store(true)
	if _, err := f.orch.UpdateStatus(ctx, UpdateStatusInput{MaintenanceID: m.ID, Status: model.MaintenanceCompleted}); KindOf(err) != KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	pending, _ := f.orch.ListSagas(ctx, model.SagaPending)
	if len(pending) != 1 {
		t.Fatalf("expected one pending saga, got %d", len(pending))
	}

	f.maintenances.failUpdates.Store(false)
	if _, err := f.orch.UpdateStatus(ctx, UpdateStatusInput{MaintenanceID: m.ID, Status: model.MaintenanceRepairing}); err != nil {
		t.Fatalf("newer update: %v", err)
	}

	s, err := f.orch.Resume(ctx, pending[0].ID)
	if KindOf(err) != KindConflict {
		t.Fatalf("expected conflict for superseded saga, got %v", err)
	}
	if s.State != model.SagaFailed {
		t.Errorf("saga state = %s, want FAILED", s.State)
	}
	got, _ := f.orch.Get(ctx, m.ID)
	if got.Status != model.MaintenanceRepairing || got.EndDate != nil {
		t.Errorf("superseded saga touched the job: %+v", got)
	}
	if st := f.droneStatus(t, "D1"); st != model.DroneInMaintenance {
		t.Errorf("drone status = %s, want IN_MAINTENANCE", st)
	}
	if _, err := f.orch.Resume(ctx, s.ID); KindOf(err) != KindValidation {
		t.Errorf("resuming a FAILED saga: %v", err)
	}
}

func TestDeleteFailsPendingSagas(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	f.droneState.fail.Store(true)
	ctx := context.Background()
	if _, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"}); err == nil {
		t.Fatal("expected failure")
	}
	pending, _ := f.orch.ListSagas(ctx, model.SagaPending)
	if len(pending) != 1 {
		t.Fatalf("expected one pending saga, got %d", len(pending))
	}
	if err := f.orch.Delete(ctx, pending[0].MaintenanceID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	sagas := f.sagasOf(t, pending[0].MaintenanceID)
	if sagas[0].State != model.SagaFailed || sagas[0].LastError != "maintenance deleted" {
		t.Fatalf("unexpected saga %+v", sagas[0])
	}
	f.droneState.fail.Store(false)
	res, err := NewReconciler(f.orch, 0, 0).RunOnce(ctx)
	if err != nil || res.Examined != 0 {
		t.Fatalf("deleted job must not be re-created: %+v %v", res, err)
	}
}

func TestHasActiveMaintenance(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	ctx := context.Background()
	if has, err := f.orch.HasActiveMaintenance(ctx, "D1"); err != nil || has {
		t.Fatalf("before create: %v %v", has, err)
	}
	if _, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if has, err := f.orch.HasActiveMaintenance(ctx, "D1"); err != nil || !has {
		t.Fatalf("after create: %v %v", has, err)
	}
	if has, _ := f.orch.HasActiveMaintenance(ctx, "unknown"); has {
		t.Fatal("unknown drone reported active")
	}
}

func TestBusyDroneTimesOutWithoutWriting(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "d1")
	locker := lock.NewLocalLocker()
	orch := NewOrchestrator(Deps{
		Drones:       f.drones,
		DroneState:   f.droneState,
		Maintenances: f.maintenances,
		Checklist:    f.checklist,
		Catalog:      f.pieces,
		History:      NewHistoryRecorder(f.history, f.clock.Now),
		Sagas:        f.sagas,
		Locker:       locker,
		Now:          f.clock.Now,
	}, Config{StepAttempts: 1, LockWait: 20 * time.Millisecond})

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), "drone:d1", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	_, err := orch.Create(context.Background(), CreateInput{DroneID: "d1"})
	if !errors.Is(err, lock.ErrNotAcquired) || KindOf(err) != KindInternal {
		t.Fatalf("expected lock timeout, got %v", err)
	}
	if n := f.count(t, "maintenances"); n != 0 {
		t.Fatalf("maintenances written while drone was busy: %d", n)
	}
}

func TestRedriveDoesNotPutCompletedJobsDroneBackInMaintenance(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	ctx := context.Background()

	f.droneState.fail.Store(true)
	if _, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"}); KindOf(err) != KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	pending, _ := f.orch.ListSagas(ctx, model.SagaPending)
	if len(pending) != 1 {
		t.Fatalf("expected one pending saga, got %d", len(pending))
	}
	create := pending[0]

	f.droneState.fail.Store(false)
	if _, err := f.orch.UpdateStatus(ctx, UpdateStatusInput{MaintenanceID: create.MaintenanceID, Status: model.MaintenanceCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	res, err := NewReconciler(f.orch, 0, 0).RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Examined != 1 || res.Failed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if st := f.droneStatus(t, "D1"); st != model.DroneActive {
		t.Errorf("drone status = %s, want ACTIVE after completion", st)
	}
	if active, _ := f.orch.HasActiveMaintenance(ctx, "D1"); active {
		t.Error("drone reported with an active maintenance")
	}
	sagas := f.sagasOf(t, create.MaintenanceID)
	if sagas[0].ID != create.ID || sagas[0].State != model.SagaFailed ||
		!strings.HasPrefix(sagas[0].LastError, StepDroneInMaintenance) {
		t.Errorf("create saga = %+v", sagas[0])
	}
	for _, ev := range f.events.Events() {
		if ev.EventID == create.ID {
			t.Errorf("created event published for a job completed meanwhile: %+v", ev)
		}
	}
}

func TestRedriveDoesNotActivateDroneWithNewerJob(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	ctx := context.Background()
	first, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	f.droneState.fail.Store(true)
	if _, err := f.orch.UpdateStatus(ctx, UpdateStatusInput{MaintenanceID: first.ID, Status: model.MaintenanceCompleted}); KindOf(err) != KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	pending, _ := f.orch.ListSagas(ctx, model.SagaPending)
	if len(pending) != 1 || pending[0].Kind != model.SagaUpdateStatus {
		t.Fatalf("expected one pending update saga, got %+v", pending)
	}

	f.droneState.fail.Store(false)
	second, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"})
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}

	res, err := NewReconciler(f.orch, 0, 0).RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Examined != 1 || res.Failed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if st := f.droneStatus(t, "D1"); st != model.DroneInMaintenance {
		t.Errorf("drone status = %s, want IN_MAINTENANCE while %s is open", st, second.ID)
	}
	s, err := f.sagas.GetByID(ctx, pending[0].ID)
	if err != nil {
		t.Fatalf("get saga: %v", err)
	}
	if s.State != model.SagaFailed || !strings.HasPrefix(s.LastError, StepDroneActivate) {
		t.Errorf("update saga = %+v", s)
	}
}

func TestRedriveActivatesDroneOfStillCompletedJob(t *testing.T) {
	f := newFixture(t)
	f.addDrone(t, "D1")
	ctx := context.Background()
	m, err := f.orch.Create(ctx, CreateInput{DroneID: "D1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	f.droneState.fail.Store(true)
	if _, err := f.orch.UpdateStatus(ctx, UpdateStatusInput{MaintenanceID: m.ID, Status: model.MaintenanceCompleted}); KindOf(err) != KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	f.droneState.fail.Store(false)

	res, err := NewReconciler(f.orch, 0, 0).RunOnce(ctx)
	if err != nil || res.Completed != 1 {
		t.Fatalf("RunOnce: %+v %v", res, err)
	}
	if st := f.droneStatus(t, "D1"); st != model.DroneActive {
		t.Errorf("drone status = %s, want ACTIVE", st)
	}
}

// leaseLosingLocker hands fn a context whose lease is already gone.
type leaseLosingLocker struct{}

func (leaseLosingLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	lctx, cancel := context.WithCancelCause(ctx)
	cancel(lock.ErrLeaseLost)
	return fn(lctx)
}

// waitingDrones blocks lookups until the caller's context ends.
type waitingDrones struct{}

func (waitingDrones) GetByID(ctx context.Context, _ string) (*model.Drone, error) {
	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-time.After(time.Second):
		return nil, errors.New("context was not cancelled")
	}
}

func TestLostLeaseCancelsCriticalSection(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Locker = leaseLosingLocker{}
		d.Drones = waitingDrones{}
	})
	_, err := f.orch.Create(context.Background(), CreateInput{DroneID: "D1"})
	if !errors.Is(err, lock.ErrLeaseLost) {
		t.Fatalf("expected lease loss to reach the critical section, got %v", err)
	}
	if n := f.count(t, "maintenance_sagas"); n != 0 {
		t.Fatalf("saga written after the lease was lost: %d", n)
	}
}
