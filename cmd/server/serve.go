package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/iliyamo/drone-fleet-maintenance/internal/config"
	"github.com/iliyamo/drone-fleet-maintenance/internal/handler"
	"github.com/iliyamo/drone-fleet-maintenance/internal/middleware"
	"github.com/iliyamo/drone-fleet-maintenance/internal/queue"
	"github.com/iliyamo/drone-fleet-maintenance/internal/router"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the maintenance API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.EventsConsumerEnabled {
		go func() {
			err := queue.StartMaintenanceConsumer(ctx, a.cfg.RabbitMQURL, a.cfg.EventLogDir)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("maintenance-consumer: stopped: %v", err)
			}
		}()
	}
	if a.cfg.SagaReconcileSchedule != "" {
		if err := a.reconciler.Start(ctx, a.cfg.SagaReconcileSchedule); err != nil {
			return err
		}
	}

	e := newEcho(a)
	addr := ":" + a.cfg.Port
	log.Printf("listening on %s (env=%s, db=%s)", addr, a.cfg.Env, a.cfg.DBDriver)

	errc := make(chan error, 1)
	go func() { errc <- e.Start(addr) }()
	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}

// newEcho builds the HTTP server with the API and operational routes.
func newEcho(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.HTTPErrorHandler
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			log.Printf("%s %s %d %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	router.RegisterRoutes(e, a.db)
	router.RegisterAPI(e, router.Handlers{
		Maintenances:      handler.NewMaintenanceHandler(a.orch),
		Sagas:             handler.NewSagaHandler(a.orch),
		Drones:            handler.NewDroneHandler(a.drones),
		Pieces:            handler.NewPieceHandler(a.pieces),
		Operators:         handler.NewOperatorHandler(a.operators),
		MaintenancePieces: handler.NewMaintenancePieceHandler(a.checklist),
	}, router.Edge{
		Redis:     a.rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
	})
	return e
}
