package repository // repository holds data access logic for domain entities

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
)

const droneColumns = `id, name, vehicle_id, model, COALESCE(description, ''), serial_number, status, flight_hours, created_at, updated_at`

// DroneRepo provides persistence for drones.  It is the only writer of the
// drones table; the maintenance workflow goes through UpdateStatus.
type DroneRepo struct {
	db *sql.DB // db is the underlying database connection
}

// NewDroneRepo constructs a DroneRepo with the given DB handle.
func NewDroneRepo(db *sql.DB) *DroneRepo {
	return &DroneRepo{db: db}
}

func scanDrone(s scanner) (*model.Drone, error) {
	var d model.Drone
	if err := s.Scan(&d.ID, &d.Name, &d.VehicleID, &d.Model, &d.Description, &d.SerialNumber,
		&d.Status, &d.FlightHours, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}

// Create inserts a new drone.  ID, Status and timestamps must be set.
func (r *DroneRepo) Create(ctx context.Context, d *model.Drone) error {
	const q = `INSERT INTO drones (id, name, vehicle_id, model, description, serial_number, status, flight_hours, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, d.ID, d.Name, d.VehicleID, d.Model, d.Description, d.SerialNumber,
		d.Status, d.FlightHours, utc(d.CreatedAt), utc(d.UpdatedAt))
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetByID retrieves a drone by its ID.  It returns ErrDroneNotFound when no
// row exists.
func (r *DroneRepo) GetByID(ctx context.Context, id string) (*model.Drone, error) {
	const q = `SELECT ` + droneColumns + ` FROM drones WHERE id = ?`
	d, err := scanDrone(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDroneNotFound
		}
		return nil, err
	}
	return d, nil
}

// List returns all drones ordered by name.
func (r *DroneRepo) List(ctx context.Context) ([]model.Drone, error) {
	const q = `SELECT ` + droneColumns + ` FROM drones ORDER BY name, id`
	return r.query(ctx, q)
}

// ListByStatus returns the drones currently in the given status.
func (r *DroneRepo) ListByStatus(ctx context.Context, status model.DroneStatus) ([]model.Drone, error) {
	const q = `SELECT ` + droneColumns + ` FROM drones WHERE status = ? ORDER BY name, id`
	return r.query(ctx, q, status)
}

func (r *DroneRepo) query(ctx context.Context, q string, args ...any) ([]model.Drone, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Drone{}
	for rows.Next() {
		d, err := scanDrone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update writes the descriptive fields of a drone.  The status column is
// left alone; use UpdateStatus for that.
func (r *DroneRepo) Update(ctx context.Context, d *model.Drone) error {
	const q = `UPDATE drones
	           SET name = ?, vehicle_id = ?, model = ?, description = ?, serial_number = ?, flight_hours = ?, updated_at = ?
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, d.Name, d.VehicleID, d.Model, d.Description, d.SerialNumber,
		d.FlightHours, utc(d.UpdatedAt), d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDroneNotFound
	}
	return nil
}

// UpdateStatus overwrites the drone status.  No transition rules are
// applied here; writing the same status twice is a no-op in effect.
func (r *DroneRepo) UpdateStatus(ctx context.Context, id string, status model.DroneStatus, now time.Time) error {
	const q = `UPDATE drones SET status = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, status, utc(now), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports 0 affected rows when nothing changed, so confirm
		// the row is really missing.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
