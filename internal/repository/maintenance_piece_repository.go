package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
)

const maintenancePieceColumns = `mp.id, mp.maintenance_id, mp.piece_id, mp.status, mp.quantity, COALESCE(mp.notes, ''), mp.created_at, mp.updated_at`

// MaintenancePieceRepo provides persistence for checklist rows.  A
// (maintenance_id, piece_id) pair is unique.
type MaintenancePieceRepo struct {
	db *sql.DB
}

// NewMaintenancePieceRepo constructs a MaintenancePieceRepo.
func NewMaintenancePieceRepo(db *sql.DB) *MaintenancePieceRepo {
	return &MaintenancePieceRepo{db: db}
}

func scanMaintenancePiece(s scanner, extra ...any) (*model.MaintenancePiece, error) {
	var mp model.MaintenancePiece
	dest := []any{&mp.ID, &mp.MaintenanceID, &mp.PieceID, &mp.Status, &mp.Quantity, &mp.Notes, &mp.CreatedAt, &mp.UpdatedAt}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	mp.CreatedAt = mp.CreatedAt.UTC()
	mp.UpdatedAt = mp.UpdatedAt.UTC()
	return &mp, nil
}

// CreateBulk inserts all checklist rows in a single statement, so either
// every row of a checklist lands or none does.
func (r *MaintenancePieceRepo) CreateBulk(ctx context.Context, items []model.MaintenancePiece) error {
	if len(items) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO maintenance_pieces (id, maintenance_id, piece_id, status, quantity, notes, created_at, updated_at) VALUES `)
	args := make([]any, 0, len(items)*8)
	for i, it := range items {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, it.ID, it.MaintenanceID, it.PieceID, it.Status, it.Quantity, it.Notes,
			utc(it.CreatedAt), utc(it.UpdatedAt))
	}
	_, err := r.db.ExecContext(ctx, b.String(), args...)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// CountByMaintenance returns how many checklist rows a maintenance has.
func (r *MaintenancePieceRepo) CountByMaintenance(ctx context.Context, maintenanceID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM maintenance_pieces WHERE maintenance_id = ?`, maintenanceID).Scan(&n)
	return n, err
}

// ListByMaintenance returns the checklist rows of a maintenance.
func (r *MaintenancePieceRepo) ListByMaintenance(ctx context.Context, maintenanceID string) ([]model.MaintenancePiece, error) {
	const q = `SELECT ` + maintenancePieceColumns + ` FROM maintenance_pieces mp WHERE mp.maintenance_id = ? ORDER BY mp.created_at, mp.piece_id`
	rows, err := r.db.QueryContext(ctx, q, maintenanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.MaintenancePiece{}
	for rows.Next() {
		mp, err := scanMaintenancePiece(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *mp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListDetailedByMaintenance returns the checklist rows joined with their
// catalog piece.  Rows whose piece no longer exists come back with
// PieceMissing set.
func (r *MaintenancePieceRepo) ListDetailedByMaintenance(ctx context.Context, maintenanceID string) ([]model.MaintenancePieceDetail, error) {
	const q = `SELECT ` + maintenancePieceColumns + `, p.name, p.description
	           FROM maintenance_pieces mp
	           LEFT JOIN pieces p ON p.id = mp.piece_id
	           WHERE mp.maintenance_id = ?
	           ORDER BY mp.created_at, p.name`
	rows, err := r.db.QueryContext(ctx, q, maintenanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.MaintenancePieceDetail{}
	for rows.Next() {
		var name, desc sql.NullString
		mp, err := scanMaintenancePiece(rows, &name, &desc)
		if err != nil {
			return nil, err
		}
		out = append(out, model.MaintenancePieceDetail{
			MaintenancePiece: *mp,
			PieceName:        name.String,
			PieceDescription: desc.String,
			PieceMissing:     !name.Valid,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID retrieves one checklist row or ErrMaintenancePieceNotFound.
func (r *MaintenancePieceRepo) GetByID(ctx context.Context, id string) (*model.MaintenancePiece, error) {
	const q = `SELECT ` + maintenancePieceColumns + ` FROM maintenance_pieces mp WHERE mp.id = ?`
	mp, err := scanMaintenancePiece(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMaintenancePieceNotFound
		}
		return nil, err
	}
	return mp, nil
}

// Update writes the inspection fields of a checklist row.
func (r *MaintenancePieceRepo) Update(ctx context.Context, mp *model.MaintenancePiece) error {
	const q = `UPDATE maintenance_pieces SET status = ?, quantity = ?, notes = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, mp.Status, mp.Quantity, mp.Notes, utc(mp.UpdatedAt), mp.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMaintenancePieceNotFound
	}
	return nil
}

// DeleteByMaintenance removes every checklist row of a maintenance and
// returns how many were deleted.
func (r *MaintenancePieceRepo) DeleteByMaintenance(ctx context.Context, maintenanceID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM maintenance_pieces WHERE maintenance_id = ?`, maintenanceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
