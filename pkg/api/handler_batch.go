package api

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/govsignal/scout/pkg/models"
	"github.com/govsignal/scout/pkg/services"
)

// startBatchHandler handles POST /api/batch. The body is a JSON array of
// webhook rows; all rows are validated before any run is created.
func (s *Server) startBatchHandler(c *echo.Context) error {
	var webhooks []models.WebhookPayload
	if err := c.Bind(&webhooks); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	receipt, err := s.batchService.Start(c.Request().Context(), webhooks)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, receipt)
}

// batchStatusHandler handles GET /api/batch-status/:batch_id.
func (s *Server) batchStatusHandler(c *echo.Context) error {
	batchID, err := parseID(c, "batch_id")
	if err != nil {
		return err
	}

	status, err := s.batchService.Status(c.Request().Context(), batchID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Batch not found")
		}
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, status)
}

// batchKillHandler handles POST /api/batch-kill/:batch_id. Killing an
// unknown batch is a no-op that reports zero kills.
func (s *Server) batchKillHandler(c *echo.Context) error {
	batchID, err := parseID(c, "batch_id")
	if err != nil {
		return err
	}

	killed, err := s.batchService.Kill(c.Request().Context(), batchID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &BatchKillResponse{
		Status:  "cancelled",
		BatchID: batchID,
		Killed:  killed,
	})
}
