package model

import (
	"encoding/json"
	"time"
)

// SagaKind names the orchestrated operation a saga drives.
type SagaKind string

const (
	SagaCreate       SagaKind = "CREATE"
	SagaUpdateStatus SagaKind = "UPDATE_STATUS"
)

// SagaState is the lifecycle of a saga intent record.
type SagaState string

const (
	SagaPending   SagaState = "PENDING"
	SagaCompleted SagaState = "COMPLETED"
	SagaFailed    SagaState = "FAILED"
)

var SagaStates = []SagaState{SagaPending, SagaCompleted, SagaFailed}

func (s SagaState) Valid() bool { return contains(SagaStates, s) }

// MaintenanceSaga is the durable intent record for one multi-store
// maintenance operation.  Steps lists the names of the steps observed
// complete; a PENDING saga with missing steps is re-driven until every step
// is done or a terminal failure is recorded.
type MaintenanceSaga struct {
	ID            string          `json:"id"`
	Kind          SagaKind        `json:"kind"`
	MaintenanceID string          `json:"maintenance_id"`
	DroneID       string          `json:"drone_id"`
	Payload       json.RawMessage `json:"payload"`
	State         SagaState       `json:"state"`
	Steps         []string        `json:"completed_steps"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// StepDone reports whether step has already been observed complete.
func (s *MaintenanceSaga) StepDone(step string) bool {
	for _, done := range s.Steps {
		if done == step {
			return true
		}
	}
	return false
}
