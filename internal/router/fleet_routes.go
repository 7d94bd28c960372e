package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/drone-fleet-maintenance/internal/middleware"
)

// Roles allowed to manage the piece catalog.
var catalogRoles = []string{"admin", "maintainer"}

// registerFleet wires drones, operators and the piece catalog.  Catalog
// reads are cached in Redis and every catalog write invalidates the cache.
func registerFleet(api *echo.Group, h Handlers, edge Edge) {
	d := api.Group("/drones")
	d.GET("", h.Drones.List)
	d.POST("", h.Drones.Create)
	d.GET("/active", h.Drones.ListActive)
	d.GET("/statuses", h.Drones.Statuses)
	d.GET("/:id", h.Drones.Get)
	d.PUT("/:id", h.Drones.Update)
	d.DELETE("/:id", h.Drones.Delete)

	o := api.Group("/operators")
	o.GET("", h.Operators.List)
	o.POST("", h.Operators.Create)
	o.GET("/:id", h.Operators.Get)
	o.PUT("/:id", h.Operators.Update)
	o.DELETE("/:id", h.Operators.Delete)

	p := api.Group("/pieces",
		middleware.RequireRole(catalogRoles...),
		middleware.InvalidateOnWrite(edge.Cache, edge.Redis),
		middleware.NewRedisCache(edge.Cache, edge.Redis),
	)
	p.GET("", h.Pieces.List)
	p.POST("", h.Pieces.Create)
	p.GET("/active", h.Pieces.ListActive)
	p.GET("/:id", h.Pieces.Get)
	p.PUT("/:id", h.Pieces.Update)
	p.DELETE("/:id", h.Pieces.Delete)
}
