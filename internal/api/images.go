package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bootcforge/bootcforge/pkg/types"
)

func (s *Server) listImages(c echo.Context) error {
	engineID := s.engineID(c.QueryParam("engineId"))
	images, err := s.images.ListBootcImages(c.Request().Context(), engineID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}

	out := make([]types.BootcImage, 0, len(images))
	for _, img := range images {
		out = append(out, types.BootcImage{
			ID:       img.ID,
			Names:    img.Tags(),
			Labels:   img.Labels,
			EngineID: engineID,
			Size:     img.Size,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) pullImage(c echo.Context) error {
	var req types.PullRequest
	if err := bindRequest(c, &req); err != nil {
		return err
	}
	if err := s.images.Pull(c.Request().Context(), s.engineID(req.EngineID), req.Image); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"image": req.Image})
}

func (s *Server) pruneImages(c echo.Context) error {
	var req types.PruneRequest
	if err := bindRequest(c, &req); err != nil {
		return err
	}
	removed, err := s.images.DeleteSuperseded(c.Request().Context(), s.engineID(req.EngineID), req.Image)
	if err != nil {
		return errorJSON(c, err)
	}
	if removed == nil {
		removed = []string{}
	}
	return c.JSON(http.StatusOK, types.PruneResult{Removed: removed})
}

// inspectManifest lists the platforms offered by an image so callers can
// pick a target architecture.
func (s *Server) inspectManifest(c echo.Context) error {
	ref := c.QueryParam("ref")
	if ref == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "ref is required",
		})
	}
	m, err := s.images.InspectManifest(c.Request().Context(), s.engineID(c.QueryParam("engineId")), ref)
	if err != nil {
		return errorJSON(c, err)
	}

	platforms := make([]types.ManifestPlatform, 0, len(m.Manifests))
	for _, entry := range m.Manifests {
		platforms = append(platforms, types.ManifestPlatform{
			Architecture: entry.Platform.Architecture,
			OS:           entry.Platform.OS,
			Digest:       entry.Digest,
		})
	}
	return c.JSON(http.StatusOK, platforms)
}
