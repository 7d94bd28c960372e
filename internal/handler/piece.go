package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
	"github.com/iliyamo/drone-fleet-maintenance/internal/repository"
	"github.com/iliyamo/drone-fleet-maintenance/internal/service"
)

// PieceHandler manages the piece catalog that checklists are built from.
type PieceHandler struct {
	Pieces *repository.PieceRepo
}

// NewPieceHandler panics when pieces is nil.
func NewPieceHandler(pieces *repository.PieceRepo) *PieceHandler {
	if pieces == nil {
		panic("nil repository passed to NewPieceHandler")
	}
	return &PieceHandler{Pieces: pieces}
}

type pieceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      *bool  `json:"active"` // defaults to true on create, unchanged on update
}

// Create handles POST /pieces.  Names are unique.
func (h *PieceHandler) Create(c echo.Context) error {
	var body pieceRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		return badRequest(c, "name is required")
	}
	now := service.Now()
	p := &model.Piece{ID: uuid.NewString(), Name: name, Description: body.Description, Active: true, CreatedAt: now, UpdatedAt: now}
	if body.Active != nil {
		p.Active = *body.Active
	}
	if err := h.Pieces.Create(c.Request().Context(), p); err != nil {
		return pieceError(c, err, name)
	}
	return c.JSON(http.StatusCreated, p)
}

// Update handles PUT /pieces/:id.
func (h *PieceHandler) Update(c echo.Context) error {
	var body pieceRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		return badRequest(c, "name is required")
	}
	ctx := c.Request().Context()
	p, err := h.Pieces.GetByID(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	p.Name, p.Description, p.UpdatedAt = name, body.Description, service.Now()
	if body.Active != nil {
		p.Active = *body.Active
	}
	if err := h.Pieces.Update(ctx, p); err != nil {
		return pieceError(c, err, name)
	}
	return c.JSON(http.StatusOK, p)
}

func pieceError(c echo.Context, err error, name string) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return badRequest(c, "piece name "+name+" already exists")
	}
	return respondError(c, err)
}

// Delete handles DELETE /pieces/:id.  The piece is deactivated, so
// existing checklists keep their rows and new ones skip it.
func (h *PieceHandler) Delete(c echo.Context) error {
	if err := h.Pieces.SoftDelete(c.Request().Context(), c.Param("id"), service.Now()); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Get handles GET /pieces/:id.
func (h *PieceHandler) Get(c echo.Context) error {
	p, err := h.Pieces.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// List handles GET /pieces.
func (h *PieceHandler) List(c echo.Context) error {
	items, err := h.Pieces.List(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// ListActive handles GET /pieces/active.
func (h *PieceHandler) ListActive(c echo.Context) error {
	items, err := h.Pieces.ListActive(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}
