package handler

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
	"github.com/iliyamo/drone-fleet-maintenance/internal/repository"
	"github.com/iliyamo/drone-fleet-maintenance/internal/service"
)

// DroneHandler serves the drone registry.  Drone status is owned by the
// maintenance lifecycle; the only status write here is decommissioning.
type DroneHandler struct {
	Drones *repository.DroneRepo
}

// NewDroneHandler panics when drones is nil.
func NewDroneHandler(drones *repository.DroneRepo) *DroneHandler {
	if drones == nil {
		panic("nil repository passed to NewDroneHandler")
	}
	return &DroneHandler{Drones: drones}
}

type droneRequest struct {
	Name         string  `json:"name"`
	VehicleID    string  `json:"vehicle_id"`
	Model        string  `json:"model"`
	Description  string  `json:"description"`
	SerialNumber string  `json:"serial_number"`
	FlightHours  float64 `json:"flight_hours"`
}

func (r *droneRequest) validate() string {
	r.Name = strings.TrimSpace(r.Name)
	switch {
	case r.Name == "":
		return "name is required"
	case r.FlightHours < 0:
		return "flight_hours must not be negative"
	}
	return ""
}

// Create handles POST /drones.  New drones start ACTIVE.
func (h *DroneHandler) Create(c echo.Context) error {
	var body droneRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if msg := body.validate(); msg != "" {
		return badRequest(c, msg)
	}
	now := service.Now()
	d := &model.Drone{
		ID:           uuid.NewString(),
		Name:         body.Name,
		VehicleID:    body.VehicleID,
		Model:        body.Model,
		Description:  body.Description,
		SerialNumber: body.SerialNumber,
		Status:       model.DroneActive,
		FlightHours:  body.FlightHours,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.Drones.Create(c.Request().Context(), d); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, d)
}

// Update handles PUT /drones/:id.  The status is left untouched.
func (h *DroneHandler) Update(c echo.Context) error {
	var body droneRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if msg := body.validate(); msg != "" {
		return badRequest(c, msg)
	}
	ctx := c.Request().Context()
	d, err := h.Drones.GetByID(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	d.Name, d.VehicleID, d.Model = body.Name, body.VehicleID, body.Model
	d.Description, d.SerialNumber, d.FlightHours = body.Description, body.SerialNumber, body.FlightHours
	d.UpdatedAt = service.Now()
	if err := h.Drones.Update(ctx, d); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Delete handles DELETE /drones/:id by decommissioning the drone.  The row
// and its maintenance record stay.
func (h *DroneHandler) Delete(c echo.Context) error {
	if err := h.Drones.UpdateStatus(c.Request().Context(), c.Param("id"), model.DroneDecommissioned, service.Now()); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Get handles GET /drones/:id.
func (h *DroneHandler) Get(c echo.Context) error {
	d, err := h.Drones.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// List handles GET /drones.
func (h *DroneHandler) List(c echo.Context) error {
	items, err := h.Drones.List(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// ListActive handles GET /drones/active.
func (h *DroneHandler) ListActive(c echo.Context) error {
	items, err := h.Drones.ListByStatus(c.Request().Context(), model.DroneActive)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// Statuses handles GET /drones/statuses.
func (h *DroneHandler) Statuses(c echo.Context) error {
	return c.JSON(http.StatusOK, model.Labels(model.DroneStatuses))
}
