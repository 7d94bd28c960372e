package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
	"github.com/iliyamo/drone-fleet-maintenance/internal/queue"
	"github.com/iliyamo/drone-fleet-maintenance/internal/repository"
	"github.com/iliyamo/drone-fleet-maintenance/internal/testutil"
)

var errUnavailable = errors.New("store unavailable")

// stepClock advances by one millisecond per reading so that history
// entries written in one test have distinct timestamps.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

// flakyDroneState fails while fail is set.
type flakyDroneState struct {
	DroneStateMutator
	fail  atomic.Bool
	failN atomic.Int32
	calls atomic.Int32
}

func (f *flakyDroneState) SetStatus(ctx context.Context, id string, st model.DroneStatus) error {
	f.calls.Add(1)
	if f.fail.Load() || f.failN.Add(-1) >= 0 {
		return errUnavailable
	}
	return f.DroneStateMutator.SetStatus(ctx, id, st)
}

// flakyMaintenances fails status updates while failUpdates is set.
type flakyMaintenances struct {
	*repository.MaintenanceRepo
	failUpdates atomic.Bool
}

func (f *flakyMaintenances) UpdateStatus(ctx context.Context, m *model.Maintenance, v int64) error {
	if f.failUpdates.Load() {
		return errUnavailable
	}
	return f.MaintenanceRepo.UpdateStatus(ctx, m, v)
}

// lossySagas drops the first MarkStep for a given step name, simulating a
// crash between a step's write and the saga bookkeeping.
type lossySagas struct {
	*repository.SagaRepo
	dropStep string
	dropped  atomic.Bool
}

func (l *lossySagas) MarkStep(ctx context.Context, s *model.MaintenanceSaga, step string, now time.Time) error {
	if step == l.dropStep && l.dropped.CompareAndSwap(false, true) {
		return errUnavailable
	}
	return l.SagaRepo.MarkStep(ctx, s, step, now)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.MaintenanceEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.MaintenanceEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events() []queue.MaintenanceEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.MaintenanceEvent(nil), p.events...)
}

// noLock lets concurrent writers through so the store constraint alone
// has to hold the line.
type noLock struct{}

func (noLock) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	db           *sql.DB
	clock        *stepClock
	drones       *repository.DroneRepo
	maintenances *flakyMaintenances
	checklist    *repository.MaintenancePieceRepo
	pieces       *repository.PieceRepo
	history      *repository.StatusHistoryRepo
	sagas        *lossySagas
	droneState   *flakyDroneState
	events       *recordingPublisher
	orch         *Orchestrator
	activePieces []string
}

func newFixture(t *testing.T, tweak ...func(*Deps)) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "_" + uuid.NewString()[:8]
	db := testutil.OpenInMemoryDB(t, name)
	f := &fixture{
		db:           db,
		clock:        newStepClock(),
		drones:       repository.NewDroneRepo(db),
		maintenances: &flakyMaintenances{MaintenanceRepo: repository.NewMaintenanceRepo(db)},
		checklist:    repository.NewMaintenancePieceRepo(db),
		pieces:       repository.NewPieceRepo(db),
		history:      repository.NewStatusHistoryRepo(db),
		sagas:        &lossySagas{SagaRepo: repository.NewSagaRepo(db)},
		events:       &recordingPublisher{},
	}
	f.droneState = &flakyDroneState{DroneStateMutator: NewDroneStateMutator(f.drones, f.clock.Now)}
	deps := Deps{
		Drones:       f.drones,
		DroneState:   f.droneState,
		Maintenances: f.maintenances,
		Checklist:    f.checklist,
		Catalog:      f.pieces,
		History:      NewHistoryRecorder(f.history, f.clock.Now),
		Sagas:        f.sagas,
		Events:       f.events,
		Now:          f.clock.Now,
	}
	for _, fn := range tweak {
		fn(&deps)
	}
	f.orch = NewOrchestrator(deps, Config{StepAttempts: 2, StepBackoff: time.Millisecond})

	ctx := context.Background()
	for i, n := range []string{"propeller", "battery", "gps module"} {
		p := &model.Piece{ID: uuid.NewString(), Name: n, Active: true, CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now()}
		if err := f.pieces.Create(ctx, p); err != nil {
			t.Fatalf("seed piece %d: %v", i, err)
		}
		f.activePieces = append(f.activePieces, p.ID)
	}
	retired := &model.Piece{ID: uuid.NewString(), Name: "legacy camera", Active: false, CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now()}
	if err := f.pieces.Create(ctx, retired); err != nil {
		t.Fatalf("seed retired piece: %v", err)
	}
	return f
}

func (f *fixture) addDrone(t *testing.T, id string) *model.Drone {
	t.Helper()
	now := f.clock.Now()
	d := &model.Drone{ID: id, Name: "drone " + id, Model: "X4", Status: model.DroneActive, CreatedAt: now, UpdatedAt: now}
	if err := f.drones.Create(context.Background(), d); err != nil {
		t.Fatalf("seed drone: %v", err)
	}
	return d
}

func (f *fixture) droneStatus(t *testing.T, id string) model.DroneStatus {
	t.Helper()
	d, err := f.drones.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get drone: %v", err)
	}
	return d.Status
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func (f *fixture) historyOf(t *testing.T, maintenanceID string) []model.MaintenanceStatusHistory {
	t.Helper()
	h, err := f.history.ListByMaintenance(context.Background(), maintenanceID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	return h
}

func (f *fixture) checklistOf(t *testing.T, maintenanceID string) []model.MaintenancePiece {
	t.Helper()
	rows, err := f.checklist.ListByMaintenance(context.Background(), maintenanceID)
	if err != nil {
		t.Fatalf("list checklist: %v", err)
	}
	return rows
}

func (f *fixture) sagasOf(t *testing.T, maintenanceID string) []model.MaintenanceSaga {
	t.Helper()
	s, err := f.sagas.ListByMaintenance(context.Background(), maintenanceID)
	if err != nil {
		t.Fatalf("list sagas: %v", err)
	}
	return s
}

func ptr(s string) *string { return &s }
