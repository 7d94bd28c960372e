package router

import "github.com/labstack/echo/v4"

// registerMaintenance wires the maintenance lifecycle, its sagas and the
// checklist rows.
func registerMaintenance(api *echo.Group, h Handlers) {
	m := api.Group("/maintenances")
	m.GET("", h.Maintenances.List)
	m.POST("", h.Maintenances.Create)
	m.GET("/statuses", h.Maintenances.Statuses) // static paths are matched before :id
	m.GET("/drone/:droneId", h.Maintenances.ListByDrone)
	m.GET("/drone/:droneId/active", h.Maintenances.HasActive)
	m.GET("/status/:status", h.Maintenances.ListByStatus)
	m.GET("/:id", h.Maintenances.Get)
	m.PATCH("/:id/status", h.Maintenances.UpdateStatus)
	m.DELETE("/:id", h.Maintenances.Delete)
	m.GET("/:id/history", h.Maintenances.History)
	m.GET("/:id/sagas", h.Maintenances.Sagas)

	s := api.Group("/sagas")
	s.GET("", h.Sagas.List)
	s.POST("/:id/retry", h.Sagas.Retry)

	mp := api.Group("/maintenance-pieces")
	mp.GET("/maintenance/:maintenanceId", h.MaintenancePieces.ListByMaintenance)
	mp.GET("/:id", h.MaintenancePieces.Get)
	mp.PUT("/:id", h.MaintenancePieces.Update)
}
