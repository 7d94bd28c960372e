package model

import (
	"fmt"
	"strings"
)

// DroneStatus is the operational state of a drone.  Values are persisted
// and exchanged over the API as upper-case strings.
type DroneStatus string

const (
	DroneActive         DroneStatus = "ACTIVE"
	DroneInMaintenance  DroneStatus = "IN_MAINTENANCE"
	DroneRepairing      DroneStatus = "REPAIRING"
	DroneOutOfService   DroneStatus = "OUT_OF_SERVICE"
	DroneDecommissioned DroneStatus = "DECOMMISSIONED"
)

// DroneStatuses lists every drone status in declaration order.
var DroneStatuses = []DroneStatus{DroneActive, DroneInMaintenance, DroneRepairing, DroneOutOfService, DroneDecommissioned}

// MaintenanceStatus is the state of a maintenance job.  SCHEDULED is the
// initial state of every new job; COMPLETED is the only terminal state.
type MaintenanceStatus string

const (
	MaintenanceScheduled     MaintenanceStatus = "SCHEDULED"
	MaintenanceActive        MaintenanceStatus = "ACTIVE"
	MaintenanceInMaintenance MaintenanceStatus = "IN_MAINTENANCE"
	MaintenanceRepairing     MaintenanceStatus = "REPAIRING"
	MaintenanceOutOfService  MaintenanceStatus = "OUT_OF_SERVICE"
	MaintenanceCompleted     MaintenanceStatus = "COMPLETED"
)

// MaintenanceStatuses lists every maintenance status in declaration order.
var MaintenanceStatuses = []MaintenanceStatus{
	MaintenanceScheduled, MaintenanceActive, MaintenanceInMaintenance,
	MaintenanceRepairing, MaintenanceOutOfService, MaintenanceCompleted,
}

// InitialMaintenanceStatus is the status assigned on creation.
const InitialMaintenanceStatus = MaintenanceScheduled

// Terminal reports whether no further work is expected for the job.
func (s MaintenanceStatus) Terminal() bool { return s == MaintenanceCompleted }

// InProgress reports whether the status means work has physically started.
// The first entry into one of these states stamps the job's start date.
func (s MaintenanceStatus) InProgress() bool {
	return s == MaintenanceInMaintenance || s == MaintenanceRepairing
}

// NonTerminalMaintenanceStatuses are the statuses that count as an "active"
// maintenance for a drone.
func NonTerminalMaintenanceStatuses() []MaintenanceStatus {
	out := make([]MaintenanceStatus, 0, len(MaintenanceStatuses)-1)
	for _, s := range MaintenanceStatuses {
		if !s.Terminal() {
			out = append(out, s)
		}
	}
	return out
}

// MaintenancePieceStatus is the inspection state of one checklist row.
type MaintenancePieceStatus string

const (
	PiecePending  MaintenancePieceStatus = "PENDING"
	PieceChecked  MaintenancePieceStatus = "CHECKED"
	PieceReplaced MaintenancePieceStatus = "REPLACED"
	PieceDamaged  MaintenancePieceStatus = "DAMAGED"
)

// MaintenancePieceStatuses lists every checklist row status in declaration order.
var MaintenancePieceStatuses = []MaintenancePieceStatus{PiecePending, PieceChecked, PieceReplaced, PieceDamaged}

// OperatorStatus is the employment state of an operator.
type OperatorStatus string

const (
	OperatorActive    OperatorStatus = "ACTIVE"
	OperatorInactive  OperatorStatus = "INACTIVE"
	OperatorSuspended OperatorStatus = "SUSPENDED"
)

// OperatorStatuses lists every operator status in declaration order.
var OperatorStatuses = []OperatorStatus{OperatorActive, OperatorInactive, OperatorSuspended}

func (s DroneStatus) Valid() bool            { return contains(DroneStatuses, s) }
func (s MaintenanceStatus) Valid() bool      { return contains(MaintenanceStatuses, s) }
func (s MaintenancePieceStatus) Valid() bool { return contains(MaintenancePieceStatuses, s) }
func (s OperatorStatus) Valid() bool         { return contains(OperatorStatuses, s) }

// ParseDroneStatus normalizes raw input (trimmed, upper-cased) and rejects
// unknown values.
func ParseDroneStatus(raw string) (DroneStatus, error) {
	return parse(raw, DroneStatuses, "drone status")
}

// ParseMaintenanceStatus normalizes raw input and rejects unknown values.
func ParseMaintenanceStatus(raw string) (MaintenanceStatus, error) {
	return parse(raw, MaintenanceStatuses, "maintenance status")
}

// ParseMaintenancePieceStatus normalizes raw input and rejects unknown values.
func ParseMaintenancePieceStatus(raw string) (MaintenancePieceStatus, error) {
	return parse(raw, MaintenancePieceStatuses, "maintenance piece status")
}

// ParseOperatorStatus normalizes raw input and rejects unknown values.
func ParseOperatorStatus(raw string) (OperatorStatus, error) {
	return parse(raw, OperatorStatuses, "operator status")
}

func parse[T ~string](raw string, all []T, what string) (T, error) {
	v := T(strings.ToUpper(strings.TrimSpace(raw)))
	if !contains(all, v) {
		var zero T
		return zero, fmt.Errorf("invalid %s %q", what, raw)
	}
	return v, nil
}

func contains[T comparable](all []T, v T) bool {
	for _, s := range all {
		if s == v {
			return true
		}
	}
	return false
}
