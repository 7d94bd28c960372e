package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
)

// HistoryStore is the append-only status history store.
type HistoryStore interface {
	Append(ctx context.Context, h *model.MaintenanceStatusHistory, key string) (bool, error)
	ListByMaintenance(ctx context.Context, maintenanceID string) ([]model.MaintenanceStatusHistory, error)
}

// HistoryRecorder appends audit entries for maintenance status writes.
type HistoryRecorder struct {
	store HistoryStore
	now   func() time.Time
}

// NewHistoryRecorder builds a recorder over store.
func NewHistoryRecorder(store HistoryStore, now func() time.Time) *HistoryRecorder {
	if now == nil {
		now = Now
	}
	return &HistoryRecorder{store: store, now: now}
}

// Record appends an entry stamped with the current time.
func (r *HistoryRecorder) Record(ctx context.Context, maintenanceID string, status model.MaintenanceStatus, changedBy *string, comment string) (*model.MaintenanceStatusHistory, error) {
	h, _, err := r.RecordOnce(ctx, "", r.now(), maintenanceID, status, changedBy, comment)
	return h, err
}

// RecordOnce appends an entry under an idempotency key.  A repeated key
// returns the entry stored the first time and false.
func (r *HistoryRecorder) RecordOnce(ctx context.Context, key string, at time.Time, maintenanceID string,
	status model.MaintenanceStatus, changedBy *string, comment string) (*model.MaintenanceStatusHistory, bool, error) {
	h := &model.MaintenanceStatusHistory{
		ID:            uuid.NewString(),
		MaintenanceID: maintenanceID,
		Status:        status,
		ChangedAt:     at,
		ChangedBy:     changedBy,
		Comment:       comment,
	}
	recorded, err := r.store.Append(ctx, h, key)
	if err != nil {
		return nil, false, err
	}
	return h, recorded, nil
}

// List returns the audit trail of a maintenance, newest first.
func (r *HistoryRecorder) List(ctx context.Context, maintenanceID string) ([]model.MaintenanceStatusHistory, error) {
	return r.store.ListByMaintenance(ctx, maintenanceID)
}
