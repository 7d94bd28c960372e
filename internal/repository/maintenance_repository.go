package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
)

const maintenanceColumns = `id, drone_id, operator_id, status, COALESCE(description, ''), scheduled_date, start_date, end_date,
	COALESCE(notes, ''), version, COALESCE(last_saga_id, ''), created_at, updated_at`

// MaintenanceRepo provides persistence for maintenance jobs.  The
// active_drone_id column mirrors drone_id while the job is not completed and
// is NULL afterwards; its unique index guarantees at most one open job per
// drone even when two writers race past the lock.
type MaintenanceRepo struct {
	db *sql.DB
}

// NewMaintenanceRepo constructs a MaintenanceRepo with the given DB handle.
func NewMaintenanceRepo(db *sql.DB) *MaintenanceRepo {
	return &MaintenanceRepo{db: db}
}

func activeDroneID(m *model.Maintenance) sql.NullString {
	if m.Status.Terminal() {
		return sql.NullString{}
	}
	return sql.NullString{String: m.DroneID, Valid: true}
}

func scanMaintenance(s scanner) (*model.Maintenance, error) {
	var (
		m                         model.Maintenance
		operatorID                sql.NullString
		scheduled, started, ended sql.NullTime
	)
	if err := s.Scan(&m.ID, &m.DroneID, &operatorID, &m.Status, &m.Description, &scheduled, &started, &ended,
		&m.Notes, &m.Version, &m.LastSagaID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.OperatorID = stringPtr(operatorID)
	m.ScheduledDate = timePtr(scheduled)
	m.StartDate = timePtr(started)
	m.EndDate = timePtr(ended)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

// Create inserts a maintenance with version 1.  A second open job for the
// same drone yields ErrActiveMaintenanceExists; a reused primary key yields
// ErrDuplicate.
func (r *MaintenanceRepo) Create(ctx context.Context, m *model.Maintenance) error {
	const q = `INSERT INTO maintenances (id, drone_id, operator_id, status, description, scheduled_date, start_date, end_date,
	               notes, version, active_drone_id, last_saga_id, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if m.Version == 0 {
		m.Version = 1
	}
	_, err := r.db.ExecContext(ctx, q, m.ID, m.DroneID, nullString(m.OperatorID), m.Status, m.Description,
		nullTime(m.ScheduledDate), nullTime(m.StartDate), nullTime(m.EndDate), m.Notes, m.Version,
		activeDroneID(m), nullIfEmpty(m.LastSagaID), utc(m.CreatedAt), utc(m.UpdatedAt))
	switch {
	case err == nil:
		return nil
	case violates(err, "active_drone"):
		return ErrActiveMaintenanceExists
	case isDuplicate(err):
		return ErrDuplicate
	}
	return err
}

// GetByID retrieves a maintenance by its ID or ErrMaintenanceNotFound.
func (r *MaintenanceRepo) GetByID(ctx context.Context, id string) (*model.Maintenance, error) {
	const q = `SELECT ` + maintenanceColumns + ` FROM maintenances WHERE id = ?`
	m, err := scanMaintenance(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMaintenanceNotFound
		}
		return nil, err
	}
	return m, nil
}

// List returns every maintenance, newest first.
func (r *MaintenanceRepo) List(ctx context.Context) ([]model.Maintenance, error) {
	const q = `SELECT ` + maintenanceColumns + ` FROM maintenances ORDER BY created_at DESC, id`
	return r.query(ctx, q)
}

// ListByDrone returns the maintenance history of a drone, newest first.
func (r *MaintenanceRepo) ListByDrone(ctx context.Context, droneID string) ([]model.Maintenance, error) {
	const q = `SELECT ` + maintenanceColumns + ` FROM maintenances WHERE drone_id = ? ORDER BY created_at DESC, id`
	return r.query(ctx, q, droneID)
}

// ListByStatus returns the maintenances in the given status, newest first.
func (r *MaintenanceRepo) ListByStatus(ctx context.Context, status model.MaintenanceStatus) ([]model.Maintenance, error) {
	const q = `SELECT ` + maintenanceColumns + ` FROM maintenances WHERE status = ? ORDER BY created_at DESC, id`
	return r.query(ctx, q, status)
}

func (r *MaintenanceRepo) query(ctx context.Context, q string, args ...any) ([]model.Maintenance, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Maintenance{}
	for rows.Next() {
		m, err := scanMaintenance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FindActiveByDrone returns the open maintenance of a drone or
// ErrMaintenanceNotFound when the drone has none.
func (r *MaintenanceRepo) FindActiveByDrone(ctx context.Context, droneID string) (*model.Maintenance, error) {
	const q = `SELECT ` + maintenanceColumns + ` FROM maintenances WHERE active_drone_id = ?`
	m, err := scanMaintenance(r.db.QueryRowContext(ctx, q, droneID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMaintenanceNotFound
		}
		return nil, err
	}
	return m, nil
}

// HasActiveForDrone reports whether the drone has an open maintenance.
func (r *MaintenanceRepo) HasActiveForDrone(ctx context.Context, droneID string) (bool, error) {
	const q = `SELECT COUNT(*) FROM maintenances WHERE active_drone_id = ?`
	var n int
	if err := r.db.QueryRowContext(ctx, q, droneID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateStatus writes status, start/end dates and updated_at of m, provided
// the stored row is still at expectedVersion.  On success m.Version is the
// new version.  A moved-on row yields ErrVersionConflict.
func (r *MaintenanceRepo) UpdateStatus(ctx context.Context, m *model.Maintenance, expectedVersion int64) error {
	const q = `UPDATE maintenances
	           SET status = ?, start_date = ?, end_date = ?, active_drone_id = ?, last_saga_id = ?, version = version + 1, updated_at = ?
	           WHERE id = ? AND version = ?`
	res, err := r.db.ExecContext(ctx, q, m.Status, nullTime(m.StartDate), nullTime(m.EndDate), activeDroneID(m),
		nullIfEmpty(m.LastSagaID), utc(m.UpdatedAt), m.ID, expectedVersion)
	if err != nil {
		if violates(err, "active_drone") {
			return ErrActiveMaintenanceExists
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, m.ID); err != nil {
			return err
		}
		return ErrVersionConflict
	}
	m.Version = expectedVersion + 1
	return nil
}

// Delete removes a maintenance row.
func (r *MaintenanceRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM maintenances WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMaintenanceNotFound
	}
	return nil
}
