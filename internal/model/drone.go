package model

import "time"

// Drone describes one aircraft of the fleet.  Only the drone store writes
// these fields; the maintenance workflow may request a status transition
// but never touches anything else.
//
// Fields:
//  ID           – primary key identifier (UUID).
//  Name         – display name.
//  VehicleID    – external vehicle reference in the ground control system.
//  Model        – airframe model.
//  Description  – free text.
//  SerialNumber – manufacturer serial number.
//  Status       – operational status.
//  FlightHours  – cumulative flight hours.
//  CreatedAt    – creation timestamp.
//  UpdatedAt    – last update timestamp.
type Drone struct {
	ID           string      `json:"id"`            // drones.id
	Name         string      `json:"name"`          // drones.name
	VehicleID    string      `json:"vehicle_id"`    // drones.vehicle_id
	Model        string      `json:"model"`         // drones.model
	Description  string      `json:"description"`   // drones.description
	SerialNumber string      `json:"serial_number"` // drones.serial_number
	Status       DroneStatus `json:"status"`        // drones.status
	FlightHours  float64     `json:"flight_hours"`  // drones.flight_hours
	CreatedAt    time.Time   `json:"created_at"`    // drones.created_at
	UpdatedAt    time.Time   `json:"updated_at"`    // drones.updated_at
}
