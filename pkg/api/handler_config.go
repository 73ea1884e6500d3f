package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// getConfigHandler handles GET /api/config.
func (s *Server) getConfigHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.configService.View())
}

// updateConfigHandler handles PATCH /api/config. Body: {"KEY": value,
// ...}. Changes are in-memory only and lost on restart. The request only
// fails outright when every key was rejected.
func (s *Server) updateConfigHandler(c *echo.Context) error {
	var updates map[string]any
	if err := c.Bind(&updates); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	out := s.configService.Update(updates)
	if len(out.Errors) > 0 && len(out.Changed) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, strings.Join(out.Errors, "; "))
	}
	return c.JSON(http.StatusOK, out)
}

// resetConfigHandler handles POST /api/config/reset. Runs already
// admitted keep the snapshot they were given.
func (s *Server) resetConfigHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &ConfigResetResponse{
		Status: "reset",
		Values: s.configService.Reset(),
	})
}
