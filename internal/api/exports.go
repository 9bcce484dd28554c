package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bootcforge/bootcforge/pkg/types"
)

func (s *Server) createExport(c echo.Context) error {
	if s.exporter == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "exports not configured",
		})
	}
	var req types.ExportRequest
	if err := bindRequest(c, &req); err != nil {
		return err
	}
	res, err := s.exporter.Export(c.Request().Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}
