package model

import "time"

// MaintenancePiece is one checklist row: the inspection record of a piece
// type within a maintenance job.  Rows are created together when the job
// opens and are only removed together with their maintenance.
//
// Fields:
//  ID            – primary key identifier (UUID).
//  MaintenanceID – owning maintenance.
//  PieceID       – referenced catalog piece.
//  Status        – inspection status.
//  Quantity      – number of units, at least 1.
//  Notes         – inspector notes.
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
type MaintenancePiece struct {
	ID            string                 `json:"id"`
	MaintenanceID string                 `json:"maintenance_id"`
	PieceID       string                 `json:"piece_id"`
	Status        MaintenancePieceStatus `json:"status"`
	Quantity      int                    `json:"quantity"`
	Notes         string                 `json:"notes"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// MaintenancePieceDetail joins a checklist row with its catalog entry.
type MaintenancePieceDetail struct {
	MaintenancePiece
	PieceName        string `json:"piece_name"`
	PieceDescription string `json:"piece_description"`
	PieceMissing     bool   `json:"-"`
}
