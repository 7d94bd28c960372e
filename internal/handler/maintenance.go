package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/drone-fleet-maintenance/internal/middleware"
	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
	"github.com/iliyamo/drone-fleet-maintenance/internal/service"
)

// MaintenanceHandler exposes the maintenance lifecycle.  Every write goes
// through the orchestrator.
type MaintenanceHandler struct {
	Orch *service.Orchestrator
}

// NewMaintenanceHandler panics when orch is nil.
func NewMaintenanceHandler(orch *service.Orchestrator) *MaintenanceHandler {
	if orch == nil {
		panic("nil orchestrator passed to NewMaintenanceHandler")
	}
	return &MaintenanceHandler{Orch: orch}
}

type createMaintenanceRequest struct {
	DroneID       string     `json:"drone_id"`
	OperatorID    *string    `json:"operator_id"`
	Description   string     `json:"description"`
	ScheduledDate *time.Time `json:"scheduled_date"`
	Notes         string     `json:"notes"`
}

type updateStatusRequest struct {
	Status    string  `json:"status"`
	ChangedBy *string `json:"changed_by"` // falls back to X-User-Id
	Comment   string  `json:"comment"`
}

// Create handles POST /maintenances.
func (h *MaintenanceHandler) Create(c echo.Context) error {
	var body createMaintenanceRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(body.DroneID) == "" {
		return badRequest(c, "drone_id is required")
	}
	m, err := h.Orch.Create(c.Request().Context(), service.CreateInput{
		DroneID:       body.DroneID,
		OperatorID:    body.OperatorID,
		Description:   body.Description,
		ScheduledDate: body.ScheduledDate,
		Notes:         body.Notes,
		ChangedBy:     middleware.UserIDPtr(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// UpdateStatus handles PATCH /maintenances/:id/status.
func (h *MaintenanceHandler) UpdateStatus(c echo.Context) error {
	var body updateStatusRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	status, err := model.ParseMaintenanceStatus(body.Status)
	if err != nil {
		return badRequest(c, err.Error())
	}
	changedBy := body.ChangedBy // explicit actor in the body wins over the header
	if changedBy == nil || strings.TrimSpace(*changedBy) == "" {
		changedBy = middleware.UserIDPtr(c)
	}
	m, err := h.Orch.UpdateStatus(c.Request().Context(), service.UpdateStatusInput{
		MaintenanceID: c.Param("id"),
		Status:        status,
		ChangedBy:     changedBy,
		Comment:       body.Comment,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Delete handles DELETE /maintenances/:id.
func (h *MaintenanceHandler) Delete(c echo.Context) error {
	if err := h.Orch.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Get handles GET /maintenances/:id.
func (h *MaintenanceHandler) Get(c echo.Context) error {
	m, err := h.Orch.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// List handles GET /maintenances.
func (h *MaintenanceHandler) List(c echo.Context) error {
	items, err := h.Orch.List(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// ListByDrone handles GET /maintenances/drone/:droneId.
func (h *MaintenanceHandler) ListByDrone(c echo.Context) error {
	items, err := h.Orch.ListByDrone(c.Request().Context(), c.Param("droneId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// ListByStatus handles GET /maintenances/status/:status.
func (h *MaintenanceHandler) ListByStatus(c echo.Context) error {
	status, err := model.ParseMaintenanceStatus(c.Param("status"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	items, err := h.Orch.ListByStatus(c.Request().Context(), status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// HasActive handles GET /maintenances/drone/:droneId/active.
func (h *MaintenanceHandler) HasActive(c echo.Context) error {
	droneID := c.Param("droneId")
	ok, err := h.Orch.HasActiveMaintenance(c.Request().Context(), droneID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"drone_id": droneID, "has_active_maintenance": ok})
}

// History handles GET /maintenances/:id/history, newest entry first.
func (h *MaintenanceHandler) History(c echo.Context) error {
	items, err := h.Orch.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// Sagas handles GET /maintenances/:id/sagas.
func (h *MaintenanceHandler) Sagas(c echo.Context) error {
	items, err := h.Orch.Sagas(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// Statuses handles GET /maintenances/statuses.
func (h *MaintenanceHandler) Statuses(c echo.Context) error {
	return c.JSON(http.StatusOK, model.Labels(model.MaintenanceStatuses))
}
