package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/govsignal/scout/pkg/services"
)

// mapServiceError maps service-layer errors to HTTP error responses.
// Validation and capacity messages pass through verbatim because the
// monitor UI displays them as-is.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, validErr.Message)
	}
	if errors.Is(err, services.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	}
	if errors.Is(err, services.ErrNotActive) {
		return echo.NewHTTPError(http.StatusConflict, "No active pipeline for this run_id")
	}
	if errors.Is(err, services.ErrAtCapacity) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
