// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// maintenance orchestrator and the handlers to distinguish between
// different failure scenarios without inspecting driver errors.
package repository

import "errors"

// Not-found sentinels, one per store.
var (
	ErrDroneNotFound            = errors.New("drone not found")
	ErrMaintenanceNotFound      = errors.New("maintenance not found")
	ErrMaintenancePieceNotFound = errors.New("maintenance piece not found")
	ErrHistoryNotFound          = errors.New("status history entry not found")
	ErrPieceNotFound            = errors.New("piece not found")
	ErrOperatorNotFound         = errors.New("operator not found")
	ErrSagaNotFound             = errors.New("saga not found")
)

// ErrDuplicate is returned when an insert or update violates a unique key
// (piece name, operator username/email, primary key).
var ErrDuplicate = errors.New("duplicate")

// ErrActiveMaintenanceExists is returned when a write would leave a drone
// with more than one non-completed maintenance. The store enforces this
// through the unique active_drone_id column.
var ErrActiveMaintenanceExists = errors.New("drone already has an active maintenance")

// ErrVersionConflict is returned when an optimistic update finds that the
// row moved on from the expected version.
var ErrVersionConflict = errors.New("version conflict")
