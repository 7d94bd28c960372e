package middleware // middleware provides shared request processing for handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole rejects with 403 any request whose X-User-Roles list holds
// none of roles.  Role names compare case-insensitively.  HeaderIdentity
// must run first.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles)) // set of accepted roles
	for _, r := range roles {
		allowed[strings.ToLower(r)] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, r := range Roles(c) {
				if allowed[r] {
					return next(c)
				}
			}
			return JSONError(c, http.StatusForbidden, "access denied: requires one of roles "+strings.Join(roles, ", "))
		}
	}
}
