// Package seed loads reference data (piece catalog, drones, operators) from
// a YAML file into the stores.  Applying the same file twice is a no-op.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
	"github.com/iliyamo/drone-fleet-maintenance/internal/repository"
)

// File is the layout of a seed file.
type File struct {
	Pieces    []Piece    `yaml:"pieces"`
	Drones    []Drone    `yaml:"drones"`
	Operators []Operator `yaml:"operators"`
}

// Piece is a catalog entry.  Active defaults to true.
type Piece struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Active      *bool  `yaml:"active"`
}

// Drone is a fleet entry.  The id is required so re-seeding recognises
// drones it already wrote.
type Drone struct {
	ID           string  `yaml:"id"`
	Name         string  `yaml:"name"`
	VehicleID    string  `yaml:"vehicle_id"`
	Model        string  `yaml:"model"`
	Description  string  `yaml:"description"`
	SerialNumber string  `yaml:"serial_number"`
	Status       string  `yaml:"status"`
	FlightHours  float64 `yaml:"flight_hours"`
}

// Operator is a technician or pilot.
type Operator struct {
	Username    string `yaml:"username"`
	FullName    string `yaml:"full_name"`
	Email       string `yaml:"email"`
	PhoneNumber string `yaml:"phone_number"`
	UgcsUserID  string `yaml:"ugcs_user_id"`
}

// Stores are the repositories a seed writes to.
type Stores struct {
	Pieces    *repository.PieceRepo
	Drones    *repository.DroneRepo
	Operators *repository.OperatorRepo
}

// Result counts created and skipped (already present) records.
type Result struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Load reads and validates a seed file.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes seed YAML.  Unknown keys are rejected.
func Parse(raw []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	var errs []error
	for i, p := range f.Pieces {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("pieces[%d]: name is required", i))
		}
	}
	for i, d := range f.Drones {
		if strings.TrimSpace(d.ID) == "" || strings.TrimSpace(d.Name) == "" {
			errs = append(errs, fmt.Errorf("drones[%d]: id and name are required", i))
		}
		if d.Status != "" {
			if _, err := model.ParseDroneStatus(d.Status); err != nil {
				errs = append(errs, fmt.Errorf("drones[%d]: %w", i, err))
			}
		}
		if d.FlightHours < 0 {
			errs = append(errs, fmt.Errorf("drones[%d]: flight_hours must not be negative", i))
		}
	}
	for i, o := range f.Operators {
		if o.Username == "" || o.FullName == "" || o.Email == "" {
			errs = append(errs, fmt.Errorf("operators[%d]: username, full_name and email are required", i))
		}
	}
	return errors.Join(errs...)
}

// Apply writes every record of f that is not present yet.
func Apply(ctx context.Context, s Stores, f *File, now time.Time) (Result, error) {
	var res Result
	count := func(err error) error {
		switch {
		case err == nil:
			res.Created++
		case errors.Is(err, repository.ErrDuplicate):
			res.Skipped++
		default:
			return err
		}
		return nil
	}

	for _, p := range f.Pieces {
		active := true
		if p.Active != nil {
			active = *p.Active
		}
		err := s.Pieces.Create(ctx, &model.Piece{
			ID: uuid.NewString(), Name: strings.TrimSpace(p.Name), Description: p.Description,
			Active: active, CreatedAt: now, UpdatedAt: now,
		})
		if err := count(err); err != nil {
			return res, fmt.Errorf("seed piece %q: %w", p.Name, err)
		}
	}
	for _, d := range f.Drones {
		status := model.DroneActive
		if d.Status != "" {
			status, _ = model.ParseDroneStatus(d.Status)
		}
		err := s.Drones.Create(ctx, &model.Drone{
			ID: d.ID, Name: d.Name, VehicleID: d.VehicleID, Model: d.Model, Description: d.Description,
			SerialNumber: d.SerialNumber, Status: status, FlightHours: d.FlightHours,
			CreatedAt: now, UpdatedAt: now,
		})
		if err := count(err); err != nil {
			return res, fmt.Errorf("seed drone %s: %w", d.ID, err)
		}
	}
	for _, o := range f.Operators {
		err := s.Operators.Create(ctx, &model.Operator{
			ID: uuid.NewString(), Username: o.Username, FullName: o.FullName, Email: o.Email,
			PhoneNumber: o.PhoneNumber, UgcsUserID: o.UgcsUserID,
			Status: model.OperatorActive, IsAvailable: true, CreatedAt: now, UpdatedAt: now,
		})
		if err := count(err); err != nil {
			return res, fmt.Errorf("seed operator %s: %w", o.Username, err)
		}
	}
	return res, nil
}
