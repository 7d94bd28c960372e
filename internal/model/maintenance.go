package model

import "time"

// Maintenance is one servicing episode for a drone.  StartDate is stamped
// the first time the job enters an in-progress status and EndDate the first
// time it is completed; neither is overwritten afterwards.
//
// Fields:
//  ID            – primary key identifier (UUID).
//  DroneID       – drone under maintenance.
//  OperatorID    – responsible operator, nil when unassigned.
//  Status        – current status.
//  Description   – free text.
//  ScheduledDate – planned date of the job.
//  StartDate     – first entry into an in-progress status.
//  EndDate       – first entry into COMPLETED.
//  Notes         – free text.
//  Version       – optimistic concurrency counter, bumped on every status write.
//  LastSagaID    – saga that performed the latest write, used to recognise re-drives.
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
type Maintenance struct {
	ID            string            `json:"id"`
	DroneID       string            `json:"drone_id"`
	OperatorID    *string           `json:"operator_id"`
	Status        MaintenanceStatus `json:"status"`
	Description   string            `json:"description"`
	ScheduledDate *time.Time        `json:"scheduled_date"`
	StartDate     *time.Time        `json:"start_date"`
	EndDate       *time.Time        `json:"end_date"`
	Notes         string            `json:"notes"`
	Version       int64             `json:"version"`
	LastSagaID    string            `json:"-"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ApplyStatus moves the job to next and derives the start/end timestamps.
// It never clears or overwrites an already stamped date.
func (m *Maintenance) ApplyStatus(next MaintenanceStatus, now time.Time) {
	if next.InProgress() && m.StartDate == nil {
		t := now
		m.StartDate = &t
	}
	if next == MaintenanceCompleted && m.EndDate == nil {
		t := now
		m.EndDate = &t
	}
	m.Status = next
	m.UpdatedAt = now
}
