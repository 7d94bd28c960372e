package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/drone-fleet-maintenance/internal/config"
	"github.com/iliyamo/drone-fleet-maintenance/internal/handler"
	"github.com/iliyamo/drone-fleet-maintenance/internal/metrics"
	"github.com/iliyamo/drone-fleet-maintenance/internal/middleware"
)

// APIPrefix is the mount point of every versioned route.
const APIPrefix = "/api/v1"

// Handlers bundles everything mounted under APIPrefix.
type Handlers struct {
	Maintenances      *handler.MaintenanceHandler
	Sagas             *handler.SagaHandler
	Drones            *handler.DroneHandler
	Pieces            *handler.PieceHandler
	Operators         *handler.OperatorHandler
	MaintenancePieces *handler.MaintenancePieceHandler
}

// Edge holds the Redis-backed edge concerns.  A nil Redis client turns
// rate limiting and caching off.
type Edge struct {
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// RegisterRoutes registers the unversioned operational endpoints: liveness,
// readiness and Prometheus metrics.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterAPI mounts the REST API under APIPrefix.  Caller identity comes
// from headers set by the gateway and the whole group is rate limited.
func RegisterAPI(e *echo.Echo, h Handlers, edge Edge) {
	api := e.Group(APIPrefix,
		middleware.HeaderIdentity(),
		middleware.NewTokenBucket(edge.RateLimit, edge.Redis),
	)
	registerMaintenance(api, h)
	registerFleet(api, h, edge)
}
