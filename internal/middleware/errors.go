package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// ErrorBody is the JSON shape of every error the API returns.
type ErrorBody struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// JSONError writes an ErrorBody with the given status.
func JSONError(c echo.Context, status int, message string) error {
	return c.JSON(status, ErrorBody{
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HTTPErrorHandler renders errors that escape the handlers (unknown routes,
// wrong methods, panics caught by Recover) in the same shape.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, msg := http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(he.Code)
		}
	} else {
		c.Logger().Errorf("unhandled error: %v", err)
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = JSONError(c, status, msg)
}
