package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/drone-fleet-maintenance/internal/model"
	"github.com/iliyamo/drone-fleet-maintenance/internal/service"
)

// SagaHandler lets operators inspect and re-drive maintenance sagas.
type SagaHandler struct {
	Orch *service.Orchestrator
}

// NewSagaHandler panics when orch is nil.
func NewSagaHandler(orch *service.Orchestrator) *SagaHandler {
	if orch == nil {
		panic("nil orchestrator passed to NewSagaHandler")
	}
	return &SagaHandler{Orch: orch}
}

// List handles GET /sagas?state=PENDING.  The state defaults to PENDING.
func (h *SagaHandler) List(c echo.Context) error {
	state := model.SagaPending
	if q := c.QueryParam("state"); q != "" {
		state = model.SagaState(strings.ToUpper(strings.TrimSpace(q)))
	}
	items, err := h.Orch.ListSagas(c.Request().Context(), state)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// Retry handles POST /sagas/:id/retry.  The saga is returned in whatever
// state the attempt left it; a still-pending saga yields the step error.
func (h *SagaHandler) Retry(c echo.Context) error {
	s, err := h.Orch.Resume(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}
