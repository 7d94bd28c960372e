package model

import "time"

// Operator represents a person who flies or services drones.  Username and
// email are unique across operators.
//
// Fields:
//  ID          – primary key identifier (UUID).
//  Username    – unique login name.
//  FullName    – display name.
//  Email       – unique email address.
//  PhoneNumber – optional phone number.
//  UgcsUserID  – user id in the ground control software, optional.
//  ExternalID  – identity-provider subject, optional.
//  Status      – employment status.
//  IsAvailable – whether the operator can take new jobs.
//  CreatedAt   – timestamp of creation.
//  UpdatedAt   – timestamp of last update.
type Operator struct {
	ID          string         `json:"id"`
	Username    string         `json:"username"`
	FullName    string         `json:"full_name"`
	Email       string         `json:"email"`
	PhoneNumber string         `json:"phone_number"`
	UgcsUserID  string         `json:"ugcs_user_id"`
	ExternalID  *string        `json:"external_id"`
	Status      OperatorStatus `json:"status"`
	IsAvailable bool           `json:"is_available"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
