// Package queue defines message payloads exchanged over the message broker
// and the publisher and consumer that move them.
package queue

// Event types carried in MaintenanceEvent.Type.
const (
	EventMaintenanceCreated       = "maintenance.created"
	EventMaintenanceStatusChanged = "maintenance.status_changed"
)

// MaintenanceEvent is published after a maintenance saga completes.  It
// carries enough information for downstream consumers to log, notify, or
// trigger analytics without querying the primary database.  EventID is the
// saga id, so consumers can drop redeliveries.
type MaintenanceEvent struct {
	EventID        string `json:"event_id"`
	Type           string `json:"type"`
	MaintenanceID  string `json:"maintenance_id"`
	DroneID        string `json:"drone_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	DroneStatus    string `json:"drone_status,omitempty"`
	ChangedBy      string `json:"changed_by,omitempty"`
	ChecklistSize  int    `json:"checklist_size,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}
