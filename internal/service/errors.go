// Package service contains the maintenance lifecycle orchestration: the
// saga that keeps drones, maintenances, checklists and the status history
// consistent, plus the small collaborators it drives.
package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/drone-fleet-maintenance/internal/repository"
)

// Kind classifies an error for callers such as the HTTP layer.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	}
	return "internal"
}

// Error is a classified service error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFoundf builds a KindNotFound error.
func NotFoundf(format string, args ...any) *Error {
	return newError(KindNotFound, nil, format, args...)
}

// Validationf builds a KindValidation error.
func Validationf(format string, args ...any) *Error {
	return newError(KindValidation, nil, format, args...)
}

// ErrConflictActiveMaintenance is the base of every active-maintenance
// conflict, so callers may test with errors.Is.
var ErrConflictActiveMaintenance = errors.New("drone already has an active maintenance")

// KindOf returns the classification of err.  Repository sentinels are
// classified as well so plain CRUD paths need no wrapping.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, repository.ErrDroneNotFound),
		errors.Is(err, repository.ErrMaintenanceNotFound),
		errors.Is(err, repository.ErrMaintenancePieceNotFound),
		errors.Is(err, repository.ErrPieceNotFound),
		errors.Is(err, repository.ErrOperatorNotFound),
		errors.Is(err, repository.ErrSagaNotFound),
		errors.Is(err, repository.ErrHistoryNotFound):
		return KindNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return KindValidation
	case errors.Is(err, repository.ErrActiveMaintenanceExists),
		errors.Is(err, repository.ErrVersionConflict),
		errors.Is(err, ErrConflictActiveMaintenance):
		return KindConflict
	}
	return KindInternal
}

// conflict wraps an active-maintenance conflict for droneID.
func conflict(droneID string) *Error {
	return newError(KindConflict, ErrConflictActiveMaintenance, "drone %s", droneID)
}

// classify converts a store error into a service error, keeping the
// original as the cause.
func classify(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return newError(KindOf(err), err, format, args...)
}
