package model

import "time"

// Piece is a catalog entry for a serviceable piece type.  Only active
// pieces get checklist rows in new maintenance jobs.
type Piece struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
