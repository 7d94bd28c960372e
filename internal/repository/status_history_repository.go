package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
)

const historyColumns = `id, maintenance_id, status, changed_at, changed_by, COALESCE(comment, '')`

// StatusHistoryRepo is the append-only audit trail of maintenance status
// changes.  It offers no update or delete.
type StatusHistoryRepo struct {
	db *sql.DB
}

// NewStatusHistoryRepo constructs a StatusHistoryRepo.
func NewStatusHistoryRepo(db *sql.DB) *StatusHistoryRepo {
	return &StatusHistoryRepo{db: db}
}

func scanHistory(s scanner) (*model.MaintenanceStatusHistory, error) {
	var (
		h         model.MaintenanceStatusHistory
		changedBy sql.NullString
	)
	if err := s.Scan(&h.ID, &h.MaintenanceID, &h.Status, &h.ChangedAt, &changedBy, &h.Comment); err != nil {
		return nil, err
	}
	h.ChangedBy = stringPtr(changedBy)
	h.ChangedAt = h.ChangedAt.UTC()
	return &h, nil
}

// Append records h.  When key is non-empty it is stored as a unique
// idempotency key; appending the same key again returns false and fills h
// with the row recorded the first time.
func (r *StatusHistoryRepo) Append(ctx context.Context, h *model.MaintenanceStatusHistory, key string) (bool, error) {
	const q = `INSERT INTO maintenance_status_history (id, maintenance_id, status, changed_at, changed_by, comment, idempotency_key)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	var k sql.NullString
	if key != "" {
		k = sql.NullString{String: key, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q, h.ID, h.MaintenanceID, h.Status, utc(h.ChangedAt), nullString(h.ChangedBy), h.Comment, k)
	if err == nil {
		return true, nil
	}
	if key != "" && violates(err, "idempotency") {
		prev, err := r.GetByKey(ctx, key)
		if err != nil {
			return false, err
		}
		*h = *prev
		return false, nil
	}
	if isDuplicate(err) {
		return false, ErrDuplicate
	}
	return false, err
}

// GetByKey returns the entry recorded under an idempotency key.
func (r *StatusHistoryRepo) GetByKey(ctx context.Context, key string) (*model.MaintenanceStatusHistory, error) {
	const q = `SELECT ` + historyColumns + ` FROM maintenance_status_history WHERE idempotency_key = ?`
	h, err := scanHistory(r.db.QueryRowContext(ctx, q, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHistoryNotFound
		}
		return nil, err
	}
	return h, nil
}

// ListByMaintenance returns the audit trail of a maintenance, newest first.
// Entries outlive their maintenance, so this works for deleted jobs too.
func (r *StatusHistoryRepo) ListByMaintenance(ctx context.Context, maintenanceID string) ([]model.MaintenanceStatusHistory, error) {
	const q = `SELECT ` + historyColumns + ` FROM maintenance_status_history WHERE maintenance_id = ? ORDER BY changed_at DESC, id`
	rows, err := r.db.QueryContext(ctx, q, maintenanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.MaintenanceStatusHistory{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
