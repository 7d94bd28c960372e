package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/drone-fleet-maintenance/internal/config"
	"github.com/iliyamo/drone-fleet-maintenance/internal/database"
	"github.com/iliyamo/drone-fleet-maintenance/internal/lock"
	"github.com/iliyamo/drone-fleet-maintenance/internal/queue"
	"github.com/iliyamo/drone-fleet-maintenance/internal/repository"
	"github.com/iliyamo/drone-fleet-maintenance/internal/service"
)

// lockPrefix namespaces the per-drone leases in Redis.
const lockPrefix = "drone-lock"

// app is the wired service shared by every subcommand.
type app struct {
	cfg config.Config
	db  *sql.DB
	rdb *redis.Client

	drones     *repository.DroneRepo
	pieces     *repository.PieceRepo
	operators  *repository.OperatorRepo
	checklist  *repository.MaintenancePieceRepo
	orch       *service.Orchestrator
	reconciler *service.Reconciler
}

// openDB loads the configuration and connects to the database.
func openDB() (config.Config, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return cfg, nil, fmt.Errorf("connect to %s: %w", cfg.DBDriver, err)
	}
	return cfg, db, nil
}

// openApp connects every store and builds the orchestrator.  Migrations
// run first when AUTO_MIGRATE is set.
func openApp(ctx context.Context) (*app, error) {
	cfg, db, err := openDB()
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		n, err := database.Migrate(ctx, db, cfg.DBDriver)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if n > 0 {
			log.Printf("applied %d migration(s)", n)
		}
	}

	a := &app{
		cfg:       cfg,
		db:        db,
		rdb:       config.NewRedisClient(config.LoadRedisConfig()),
		drones:    repository.NewDroneRepo(db),
		pieces:    repository.NewPieceRepo(db),
		operators: repository.NewOperatorRepo(db),
		checklist: repository.NewMaintenancePieceRepo(db),
	}

	var events service.EventPublisher = queue.Discard{}
	if cfg.EventsEnabled {
		events = queue.NewPublisher(cfg.RabbitMQURL)
	}
	a.orch = service.NewOrchestrator(service.Deps{
		Drones:       a.drones,
		DroneState:   service.NewDroneStateMutator(a.drones, nil),
		Maintenances: repository.NewMaintenanceRepo(db),
		Checklist:    a.checklist,
		Catalog:      a.pieces,
		History:      service.NewHistoryRecorder(repository.NewStatusHistoryRepo(db), nil),
		Sagas:        repository.NewSagaRepo(db),
		Locker:       lock.New(a.rdb, lockPrefix, cfg.DroneLockTTL),
		Events:       events,
	}, service.Config{
		StepAttempts: cfg.SagaStepAttempts,
		StepBackoff:  cfg.SagaStepBackoff,
		LockWait:     cfg.DroneLockWait,
	})
	a.reconciler = service.NewReconciler(a.orch, cfg.SagaReconcileGrace, cfg.SagaReconcileBatch)
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if err := a.db.Close(); err != nil {
		log.Printf("close database: %v", err)
	}
}
