package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
	"github.com/iliyamo/drone-fleet-maintenance/internal/repository"
	"github.com/iliyamo/drone-fleet-maintenance/internal/service"
)

// MaintenancePieceHandler serves checklist rows.  Rows are created by the
// maintenance lifecycle; here they are only read and inspected.
type MaintenancePieceHandler struct {
	Checklist *repository.MaintenancePieceRepo
}

// NewMaintenancePieceHandler panics when checklist is nil.
func NewMaintenancePieceHandler(checklist *repository.MaintenancePieceRepo) *MaintenancePieceHandler {
	if checklist == nil {
		panic("nil repository passed to NewMaintenancePieceHandler")
	}
	return &MaintenancePieceHandler{Checklist: checklist}
}

type maintenancePieceRequest struct {
	Status   string `json:"status"`
	Notes    string `json:"notes"`
	Quantity *int   `json:"quantity"` // unchanged when omitted
}

// ListByMaintenance handles GET /maintenance-pieces/maintenance/:maintenanceId.
// Rows whose catalog piece no longer exists are left out.
func (h *MaintenancePieceHandler) ListByMaintenance(c echo.Context) error {
	mid := c.Param("maintenanceId")
	rows, err := h.Checklist.ListDetailedByMaintenance(c.Request().Context(), mid)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]model.MaintenancePieceDetail, 0, len(rows))
	for _, r := range rows {
		if r.PieceMissing {
			c.Logger().Warnf("maintenance %s: checklist row %s references missing piece %s", mid, r.ID, r.PieceID)
			continue
		}
		out = append(out, r)
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /maintenance-pieces/:id.
func (h *MaintenancePieceHandler) Get(c echo.Context) error {
	mp, err := h.Checklist.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, mp)
}

// Update handles PUT /maintenance-pieces/:id: inspection status, notes and
// quantity.
func (h *MaintenancePieceHandler) Update(c echo.Context) error {
	var body maintenancePieceRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	status, err := model.ParseMaintenancePieceStatus(body.Status)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if body.Quantity != nil && *body.Quantity < 1 {
		return badRequest(c, "quantity must be at least 1")
	}
	ctx := c.Request().Context()
	mp, err := h.Checklist.GetByID(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	mp.Status, mp.Notes, mp.UpdatedAt = status, body.Notes, service.Now()
	if body.Quantity != nil {
		mp.Quantity = *body.Quantity
	}
	if err := h.Checklist.Update(ctx, mp); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, mp)
}
