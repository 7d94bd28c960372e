package handler // handler package contains the HTTP handlers of the maintenance API

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/drone-fleet-maintenance/internal/middleware"
	"github.com/iliyamo/drone-fleet-maintenance/internal/service"
)

// respondError maps a service or repository error onto the API error
// payload.  Internal errors are logged and hidden from the caller.
func respondError(c echo.Context, err error) error {
	switch service.KindOf(err) {
	case service.KindNotFound:
		return middleware.JSONError(c, http.StatusNotFound, err.Error())
	case service.KindValidation:
		return middleware.JSONError(c, http.StatusBadRequest, err.Error())
	case service.KindConflict:
		return middleware.JSONError(c, http.StatusConflict, err.Error())
	}
	c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	return middleware.JSONError(c, http.StatusInternalServerError, "internal server error")
}

func badRequest(c echo.Context, msg string) error {
	return middleware.JSONError(c, http.StatusBadRequest, msg)
}
