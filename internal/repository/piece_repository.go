package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
)

const pieceColumns = `id, name, COALESCE(description, ''), active, created_at, updated_at`

// PieceRepo provides persistence for the piece catalog.  Names are unique
// and pieces are never hard-deleted.
type PieceRepo struct {
	db *sql.DB
}

// NewPieceRepo constructs a PieceRepo.
func NewPieceRepo(db *sql.DB) *PieceRepo {
	return &PieceRepo{db: db}
}

func scanPiece(s scanner) (*model.Piece, error) {
	var p model.Piece
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// Create inserts a catalog piece.  A taken name yields ErrDuplicate.
func (r *PieceRepo) Create(ctx context.Context, p *model.Piece) error {
	const q = `INSERT INTO pieces (id, name, description, active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, p.ID, p.Name, p.Description, p.Active, utc(p.CreatedAt), utc(p.UpdatedAt))
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetByID retrieves a piece or ErrPieceNotFound.
func (r *PieceRepo) GetByID(ctx context.Context, id string) (*model.Piece, error) {
	const q = `SELECT ` + pieceColumns + ` FROM pieces WHERE id = ?`
	p, err := scanPiece(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPieceNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetByName retrieves a piece by its unique name.
func (r *PieceRepo) GetByName(ctx context.Context, name string) (*model.Piece, error) {
	const q = `SELECT ` + pieceColumns + ` FROM pieces WHERE name = ?`
	p, err := scanPiece(r.db.QueryRowContext(ctx, q, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPieceNotFound
		}
		return nil, err
	}
	return p, nil
}

// List returns the whole catalog ordered by name.
func (r *PieceRepo) List(ctx context.Context) ([]model.Piece, error) {
	return r.query(ctx, `SELECT `+pieceColumns+` FROM pieces ORDER BY name`)
}

// ListActive returns the active catalog ordered by name.
func (r *PieceRepo) ListActive(ctx context.Context) ([]model.Piece, error) {
	return r.query(ctx, `SELECT `+pieceColumns+` FROM pieces WHERE active = ? ORDER BY name`, true)
}

// ListActiveIDs returns the ids of active pieces, the input of a new
// checklist.
func (r *PieceRepo) ListActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM pieces WHERE active = ? ORDER BY name`, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PieceRepo) query(ctx context.Context, q string, args ...any) ([]model.Piece, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Piece{}
	for rows.Next() {
		p, err := scanPiece(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update writes name, description and active flag.
func (r *PieceRepo) Update(ctx context.Context, p *model.Piece) error {
	const q = `UPDATE pieces SET name = ?, description = ?, active = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, p.Name, p.Description, p.Active, utc(p.UpdatedAt), p.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPieceNotFound
	}
	return nil
}

// SoftDelete marks a piece inactive so new checklists skip it.
func (r *PieceRepo) SoftDelete(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE pieces SET active = ?, updated_at = ? WHERE id = ?`, false, utc(now), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPieceNotFound
	}
	return nil
}
