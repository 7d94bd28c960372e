package middleware

// identity.go reads the caller identity that the gateway in front of the
// service has already authenticated.  Nothing here validates credentials;
// the headers are trusted as given.

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	HeaderUserID    = "X-User-Id"    // caller id, recorded as changed_by
	HeaderUserRoles = "X-User-Roles" // comma-separated role names

	ctxUserID = "user_id"
	ctxRoles  = "roles"
)

// HeaderIdentity copies X-User-Id and X-User-Roles into the Echo context.
// Requests without them are anonymous and carry no roles.
func HeaderIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			if id := strings.TrimSpace(h.Get(HeaderUserID)); id != "" {
				c.Set(ctxUserID, id)
			}
			var roles []string
			for _, r := range strings.Split(h.Get(HeaderUserRoles), ",") {
				if r = strings.TrimSpace(r); r != "" {
					roles = append(roles, strings.ToLower(r))
				}
			}
			c.Set(ctxRoles, roles)
			return next(c)
		}
	}
}

// UserID returns the caller id or "" for anonymous requests.
func UserID(c echo.Context) string {
	s, _ := c.Get(ctxUserID).(string)
	return s
}

// UserIDPtr is UserID as an optional value.
func UserIDPtr(c echo.Context) *string {
	if s := UserID(c); s != "" {
		return &s
	}
	return nil
}

// Roles returns the caller's lower-cased roles.
func Roles(c echo.Context) []string {
	r, _ := c.Get(ctxRoles).([]string)
	return r
}
