package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
)

const operatorColumns = `id, username, full_name, email, phone_number, ugcs_user_id, external_id, status, is_available, created_at, updated_at`

// OperatorRepo provides persistence for operators.  Username and email
// are unique.
type OperatorRepo struct {
	db *sql.DB
}

// NewOperatorRepo constructs an OperatorRepo.
func NewOperatorRepo(db *sql.DB) *OperatorRepo {
	return &OperatorRepo{db: db}
}

func scanOperator(s scanner) (*model.Operator, error) {
	var (
		o   model.Operator
		ext sql.NullString
	)
	if err := s.Scan(&o.ID, &o.Username, &o.FullName, &o.Email, &o.PhoneNumber, &o.UgcsUserID, &ext,
		&o.Status, &o.IsAvailable, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.ExternalID = stringPtr(ext)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

// Create inserts an operator.  A taken username or email yields ErrDuplicate.
func (r *OperatorRepo) Create(ctx context.Context, o *model.Operator) error {
	const q = `INSERT INTO operators (id, username, full_name, email, phone_number, ugcs_user_id, external_id, status, is_available, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, o.ID, o.Username, o.FullName, o.Email, o.PhoneNumber, o.UgcsUserID,
		nullString(o.ExternalID), o.Status, o.IsAvailable, utc(o.CreatedAt), utc(o.UpdatedAt))
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetByID retrieves an operator or ErrOperatorNotFound.
func (r *OperatorRepo) GetByID(ctx context.Context, id string) (*model.Operator, error) {
	const q = `SELECT ` + operatorColumns + ` FROM operators WHERE id = ?`
	o, err := scanOperator(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOperatorNotFound
		}
		return nil, err
	}
	return o, nil
}

// List returns all operators ordered by username.
func (r *OperatorRepo) List(ctx context.Context) ([]model.Operator, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+operatorColumns+` FROM operators ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Operator{}
	for rows.Next() {
		o, err := scanOperator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update writes every mutable operator field.
func (r *OperatorRepo) Update(ctx context.Context, o *model.Operator) error {
	const q = `UPDATE operators
	           SET username = ?, full_name = ?, email = ?, phone_number = ?, ugcs_user_id = ?, external_id = ?,
	               status = ?, is_available = ?, updated_at = ?
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, o.Username, o.FullName, o.Email, o.PhoneNumber, o.UgcsUserID,
		nullString(o.ExternalID), o.Status, o.IsAvailable, utc(o.UpdatedAt), o.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOperatorNotFound
	}
	return nil
}

// Delete removes an operator.
func (r *OperatorRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM operators WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOperatorNotFound
	}
	return nil
}
