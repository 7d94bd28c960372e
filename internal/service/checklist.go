package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
)

// GenerateChecklist materialises one PENDING checklist row per piece id for
// a maintenance, quantity 1 and no notes, all stamped with now.  Calling it
// twice yields two independent sets of rows; the saga step that persists
// them is what makes checklist creation happen once.
func GenerateChecklist(maintenanceID string, pieceIDs []string, now time.Time) []model.MaintenancePiece {
	out := make([]model.MaintenancePiece, 0, len(pieceIDs))
	for _, pid := range pieceIDs {
		out = append(out, model.MaintenancePiece{
			ID:            uuid.NewString(),
			MaintenanceID: maintenanceID,
			PieceID:       pid,
			Status:        model.PiecePending,
			Quantity:      1,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return out
}
