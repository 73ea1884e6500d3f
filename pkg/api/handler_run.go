package api

import (
	"errors"
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/govsignal/scout/pkg/models"
	"github.com/govsignal/scout/pkg/services"
	"github.com/govsignal/scout/pkg/store"
)

// startRunHandler handles POST /api/run.
// Pre-creates the run row and returns its id immediately; the pipeline
// executes in a pool worker.
func (s *Server) startRunHandler(c *echo.Context) error {
	var webhook models.WebhookPayload
	if err := c.Bind(&webhook); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	runID, err := s.runService.Start(c.Request().Context(), webhook)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &RunReceiptResponse{RunID: runID})
}

// runStatusHandler handles GET /api/status/:run_id, the monitor's poll
// target.
func (s *Server) runStatusHandler(c *echo.Context) error {
	runID, err := parseID(c, "run_id")
	if err != nil {
		return err
	}

	status, err := s.runService.Status(c.Request().Context(), runID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Run not found")
		}
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, status)
}

// killRunHandler handles POST /api/kill/:run_id.
func (s *Server) killRunHandler(c *echo.Context) error {
	runID, err := parseID(c, "run_id")
	if err != nil {
		return err
	}

	if err := s.runService.Kill(c.Request().Context(), runID); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &KillResponse{Status: "cancelled", RunID: runID})
}

// listRunsHandler handles GET /api/runs, the run selector dropdown.
func (s *Server) listRunsHandler(c *echo.Context) error {
	runs, err := s.runService.Recent(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, runs)
}

// dataHandler handles GET /api/data/:run_id/:table. The run view parses
// JSON columns; child tables return raw rows.
func (s *Server) dataHandler(c *echo.Context) error {
	runID, err := parseID(c, "run_id")
	if err != nil {
		return err
	}
	table := c.Param("table")

	switch {
	case table == "run":
		view, err := s.runService.RunView(c.Request().Context(), runID)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "Run not found")
			}
			return mapServiceError(err)
		}
		return c.JSON(http.StatusOK, view)
	case store.InspectableTable(table):
		rows, err := s.runService.TableData(c.Request().Context(), runID, table)
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(http.StatusOK, rows)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Unknown table: %s", table))
	}
}
