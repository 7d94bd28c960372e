package model

import "time"

// MaintenanceStatusHistory is an append-only audit record written for every
// status-affecting write to a maintenance, including its creation.  Rows
// survive the deletion of their maintenance.
type MaintenanceStatusHistory struct {
	ID            string            `json:"id"`
	MaintenanceID string            `json:"maintenance_id"`
	Status        MaintenanceStatus `json:"status"`
	ChangedAt     time.Time         `json:"changed_at"`
	ChangedBy     *string           `json:"changed_by"`
	Comment       string            `json:"comment"`
}
