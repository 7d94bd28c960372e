package service

import (
	"context"
	"time"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
)

// DroneStateMutator transitions a drone's status.  It is a plain
// overwrite with no transition rules and is only driven by the
// orchestrator.
type DroneStateMutator interface {
	SetStatus(ctx context.Context, droneID string, status model.DroneStatus) error
}

// DroneStatusStore is the drone store primitive behind the mutator.
type DroneStatusStore interface {
	UpdateStatus(ctx context.Context, id string, status model.DroneStatus, now time.Time) error
}

type droneState struct {
	store DroneStatusStore
	now   func() time.Time
}

// NewDroneStateMutator adapts a drone store to DroneStateMutator.
func NewDroneStateMutator(store DroneStatusStore, now func() time.Time) DroneStateMutator {
	if now == nil {
		now = Now
	}
	return &droneState{store: store, now: now}
}

func (d *droneState) SetStatus(ctx context.Context, droneID string, status model.DroneStatus) error {
	return d.store.UpdateStatus(ctx, droneID, status, d.now())
}

// Now is the default clock: UTC, truncated to what both SQL dialects keep.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
