package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
)

const sagaColumns = `id, kind, maintenance_id, drone_id, payload, state, COALESCE(steps, ''), attempts, COALESCE(last_error, ''), created_at, updated_at`

// SagaRepo persists maintenance saga intents.  A saga row is written before
// the first step runs and updated after every step, so a crash leaves a
// PENDING record describing exactly which steps are still owed.
type SagaRepo struct {
	db *sql.DB
}

// NewSagaRepo constructs a SagaRepo.
func NewSagaRepo(db *sql.DB) *SagaRepo {
	return &SagaRepo{db: db}
}

func scanSaga(s scanner) (*model.MaintenanceSaga, error) {
	var (
		sg      model.MaintenanceSaga
		payload string
		steps   string
	)
	if err := s.Scan(&sg.ID, &sg.Kind, &sg.MaintenanceID, &sg.DroneID, &payload, &sg.State, &steps,
		&sg.Attempts, &sg.LastError, &sg.CreatedAt, &sg.UpdatedAt); err != nil {
		return nil, err
	}
	sg.Payload = []byte(payload)
	sg.Steps = splitSteps(steps)
	sg.CreatedAt = sg.CreatedAt.UTC()
	sg.UpdatedAt = sg.UpdatedAt.UTC()
	return &sg, nil
}

func splitSteps(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

// Create stores a new saga intent.
func (r *SagaRepo) Create(ctx context.Context, s *model.MaintenanceSaga) error {
	const q = `INSERT INTO maintenance_sagas (id, kind, maintenance_id, drone_id, payload, state, steps, attempts, last_error, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if s.Steps == nil {
		s.Steps = []string{}
	}
	_, err := r.db.ExecContext(ctx, q, s.ID, s.Kind, s.MaintenanceID, s.DroneID, string(s.Payload), s.State,
		strings.Join(s.Steps, ","), s.Attempts, s.LastError, utc(s.CreatedAt), utc(s.UpdatedAt))
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetByID retrieves a saga or ErrSagaNotFound.
func (r *SagaRepo) GetByID(ctx context.Context, id string) (*model.MaintenanceSaga, error) {
	const q = `SELECT ` + sagaColumns + ` FROM maintenance_sagas WHERE id = ?`
	s, err := scanSaga(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSagaNotFound
		}
		return nil, err
	}
	return s, nil
}

// ListByMaintenance returns the sagas that drove a maintenance, oldest first.
func (r *SagaRepo) ListByMaintenance(ctx context.Context, maintenanceID string) ([]model.MaintenanceSaga, error) {
	const q = `SELECT ` + sagaColumns + ` FROM maintenance_sagas WHERE maintenance_id = ? ORDER BY created_at, id`
	return r.query(ctx, q, maintenanceID)
}

// ListByState returns sagas in state created at or before cutoff, oldest
// first, at most limit rows (0 means no limit).  A zero cutoff matches all.
func (r *SagaRepo) ListByState(ctx context.Context, state model.SagaState, cutoff time.Time, limit int) ([]model.MaintenanceSaga, error) {
	q := `SELECT ` + sagaColumns + ` FROM maintenance_sagas WHERE state = ?`
	args := []any{state}
	if !cutoff.IsZero() {
		q += ` AND created_at <= ?`
		args = append(args, utc(cutoff))
	}
	q += ` ORDER BY created_at, id`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.query(ctx, q, args...)
}

func (r *SagaRepo) query(ctx context.Context, q string, args ...any) ([]model.MaintenanceSaga, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.MaintenanceSaga{}
	for rows.Next() {
		s, err := scanSaga(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SagaRepo) save(ctx context.Context, s *model.MaintenanceSaga) error {
	const q = `UPDATE maintenance_sagas SET state = ?, steps = ?, attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, s.State, strings.Join(s.Steps, ","), s.Attempts, s.LastError, utc(s.UpdatedAt), s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSagaNotFound
	}
	return nil
}

// MarkStep records step as complete.  Marking a step twice is a no-op.
func (r *SagaRepo) MarkStep(ctx context.Context, s *model.MaintenanceSaga, step string, now time.Time) error {
	if s.StepDone(step) {
		return nil
	}
	s.Steps = append(s.Steps, step)
	s.UpdatedAt = now
	return r.save(ctx, s)
}

// RecordAttempt bumps the attempt counter and stores the last error seen.
func (r *SagaRepo) RecordAttempt(ctx context.Context, s *model.MaintenanceSaga, lastErr string, now time.Time) error {
	s.Attempts++
	s.LastError = lastErr
	s.UpdatedAt = now
	return r.save(ctx, s)
}

// Complete moves the saga to COMPLETED and clears its last error.
func (r *SagaRepo) Complete(ctx context.Context, s *model.MaintenanceSaga, now time.Time) error {
	s.State = model.SagaCompleted
	s.LastError = ""
	s.UpdatedAt = now
	return r.save(ctx, s)
}

// Fail moves the saga to the terminal FAILED state with a reason.
func (r *SagaRepo) Fail(ctx context.Context, s *model.MaintenanceSaga, reason string, now time.Time) error {
	s.State = model.SagaFailed
	s.LastError = reason
	s.UpdatedAt = now
	return r.save(ctx, s)
}
