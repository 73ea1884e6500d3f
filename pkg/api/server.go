// Package api exposes the monitor HTTP surface: run and batch intake,
// polling endpoints, the config panel, and data inspection.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/govsignal/scout/pkg/database"
	"github.com/govsignal/scout/pkg/runner"
	"github.com/govsignal/scout/pkg/services"
)

// intakeBodyLimit bounds webhook intake payloads. A five hundred row
// batch stays well under this.
const intakeBodyLimit = 2 << 20

// Server wires the service layer to the HTTP routes.
type Server struct {
	echo *echo.Echo
	http *http.Server

	dbClient      *database.Client
	pool          *runner.Pool
	runService    *services.RunService
	batchService  *services.BatchService
	configService *services.ConfigService
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(
	dbClient *database.Client,
	pool *runner.Pool,
	runService *services.RunService,
	batchService *services.BatchService,
	configService *services.ConfigService,
) *Server {
	s := &Server{
		dbClient:      dbClient,
		pool:          pool,
		runService:    runService,
		batchService:  batchService,
		configService: configService,
	}

	e := echo.New()
	e.Use(requestLogger())
	e.Use(securityHeaders())
	s.registerRoutes(e)

	s.echo = e
	s.http = &http.Server{
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(e *echo.Echo) {
	e.POST("/api/run", s.startRunHandler, bodyLimit(intakeBodyLimit))
	e.POST("/api/batch", s.startBatchHandler, bodyLimit(intakeBodyLimit))

	e.GET("/api/status/:run_id", s.runStatusHandler)
	e.POST("/api/kill/:run_id", s.killRunHandler)
	e.GET("/api/runs", s.listRunsHandler)
	e.GET("/api/data/:run_id/:table", s.dataHandler)

	e.GET("/api/batch-status/:batch_id", s.batchStatusHandler)
	e.POST("/api/batch-kill/:batch_id", s.batchKillHandler)

	e.GET("/api/config", s.getConfigHandler)
	e.PATCH("/api/config", s.updateConfigHandler)
	e.POST("/api/config/reset", s.resetConfigHandler)

	e.GET("/health", s.healthHandler)
}

// Start serves HTTP on addr until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.http.Addr = addr
	return s.http.ListenAndServe()
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// parseID reads an integer path parameter.
func parseID(c *echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}
