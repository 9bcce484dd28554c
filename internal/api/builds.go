package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bootcforge/bootcforge/internal/build"
	"github.com/bootcforge/bootcforge/internal/journal"
	"github.com/bootcforge/bootcforge/pkg/types"
)

// overwritePrompt is the 409 message for builds whose output already exists.
const overwritePrompt = "File already exists, do you want to overwrite?"

func (s *Server) checkPrereqs(c echo.Context) error {
	if s.prereqs == nil {
		return c.JSON(http.StatusOK, types.PrereqStatus{OK: true})
	}
	return c.JSON(http.StatusOK, s.prereqs.Status(c.Request().Context()))
}

// createBuild validates the request, checks the host and starts the build in
// the background. Progress is polled from /api/builds/progress or pushed on
// /api/history/watch.
func (s *Server) createBuild(c echo.Context) error {
	var req types.BuildRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+bindMessage(err))
	}
	req.EngineID = s.engineID(req.EngineID)

	if err := build.Validate(req); err != nil {
		return errorJSON(c, err)
	}

	if s.prereqs != nil {
		if st := s.prereqs.Status(c.Request().Context()); !st.OK {
			return c.JSON(http.StatusPreconditionFailed, map[string]string{
				"error": st.Message,
			})
		}
	}

	imagePath, err := build.ImagePath(req.Folder, req.Type[0])
	if err != nil {
		return errorJSON(c, err)
	}
	if !req.Overwrite && build.Exists(req.Folder, req.Type) {
		return c.JSON(http.StatusConflict, map[string]string{
			"error": overwritePrompt,
			"path":  imagePath,
		})
	}
	// The caller either confirmed or nothing exists yet.
	req.Overwrite = true

	ctx, cancel := context.WithCancel(context.Background())
	if !s.tracker.Begin(req.ID, req.Image, cancel) {
		cancel()
		return c.JSON(http.StatusConflict, map[string]string{
			"error": fmt.Sprintf("build %s is already running", req.ID),
		})
	}

	go func() {
		res, err := s.builder.Build(ctx, req)
		s.tracker.Finish(req.ID, err)
		if err != nil {
			log.Printf("api: build %s: %v", req.ID, err)
			return
		}
		log.Printf("api: build %s wrote %s", req.ID, res.ImagePath)
	}()

	return c.JSON(http.StatusAccepted, types.BuildAccepted{
		ID:        req.ID,
		ImagePath: imagePath,
		LogPath:   build.LogPath(req.Folder),
	})
}

func (s *Server) listProgress(c echo.Context) error {
	return c.JSON(http.StatusOK, s.tracker.List())
}

func (s *Server) cancelBuild(c echo.Context) error {
	id := c.Param("id")
	if !s.tracker.Cancel(id) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("no running build %s", id),
		})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "canceling"})
}

func (s *Server) buildEvents(c echo.Context) error {
	if s.events == nil {
		return c.JSON(http.StatusOK, []journal.Event{})
	}
	events, err := s.events.BuildEvents(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	if events == nil {
		events = []journal.Event{}
	}
	return c.JSON(http.StatusOK, events)
}
