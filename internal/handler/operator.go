package handler

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
	"github.com/iliyamo/drone-fleet-maintenance/internal/repository"
	"github.com/iliyamo/drone-fleet-maintenance/internal/service"
)

// OperatorHandler serves operator records.
type OperatorHandler struct {
	Operators *repository.OperatorRepo
}

// NewOperatorHandler panics when operators is nil.
func NewOperatorHandler(operators *repository.OperatorRepo) *OperatorHandler {
	if operators == nil {
		panic("nil repository passed to NewOperatorHandler")
	}
	return &OperatorHandler{Operators: operators}
}

type operatorRequest struct {
	Username    string  `json:"username"`
	FullName    string  `json:"full_name"`
	Email       string  `json:"email"`
	PhoneNumber string  `json:"phone_number"`
	UgcsUserID  string  `json:"ugcs_user_id"`
	ExternalID  *string `json:"external_id"`
	Status      string  `json:"status"`       // defaults to ACTIVE
	IsAvailable *bool   `json:"is_available"` // defaults to true
}

// apply validates the request and copies it onto o.
func (r *operatorRequest) apply(o *model.Operator) string {
	r.Username, r.Email = strings.TrimSpace(r.Username), strings.TrimSpace(r.Email)
	if r.Username == "" || strings.TrimSpace(r.FullName) == "" || r.Email == "" {
		return "username, full_name and email are required"
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return "invalid email"
	}
	status := model.OperatorActive
	if r.Status != "" {
		s, err := model.ParseOperatorStatus(r.Status)
		if err != nil {
			return err.Error()
		}
		status = s
	}
	o.Username, o.FullName, o.Email = r.Username, strings.TrimSpace(r.FullName), r.Email
	o.PhoneNumber, o.UgcsUserID, o.ExternalID = r.PhoneNumber, r.UgcsUserID, r.ExternalID
	o.Status, o.IsAvailable = status, true
	if r.IsAvailable != nil {
		o.IsAvailable = *r.IsAvailable
	}
	return ""
}

// Create handles POST /operators.  Username and email are unique.
func (h *OperatorHandler) Create(c echo.Context) error {
	var body operatorRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	now := service.Now()
	o := &model.Operator{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	if msg := body.apply(o); msg != "" {
		return badRequest(c, msg)
	}
	if err := h.Operators.Create(c.Request().Context(), o); err != nil {
		return operatorError(c, err)
	}
	return c.JSON(http.StatusCreated, o)
}

// Update handles PUT /operators/:id.
func (h *OperatorHandler) Update(c echo.Context) error {
	var body operatorRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx := c.Request().Context()
	o, err := h.Operators.GetByID(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if msg := body.apply(o); msg != "" {
		return badRequest(c, msg)
	}
	o.UpdatedAt = service.Now()
	if err := h.Operators.Update(ctx, o); err != nil {
		return operatorError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func operatorError(c echo.Context, err error) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return badRequest(c, "username or email already in use")
	}
	return respondError(c, err)
}

// Delete handles DELETE /operators/:id.
func (h *OperatorHandler) Delete(c echo.Context) error {
	if err := h.Operators.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Get handles GET /operators/:id.
func (h *OperatorHandler) Get(c echo.Context) error {
	o, err := h.Operators.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// List handles GET /operators.
func (h *OperatorHandler) List(c echo.Context) error {
	items, err := h.Operators.List(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}
