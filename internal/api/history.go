package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/bootcforge/bootcforge/pkg/types"
)

var upgrader = websocket.Upgrader{
	// The server listens on localhost for the CLI and local UIs.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const writeWait = 10 * time.Second

func (s *Server) listHistory(c echo.Context) error {
	records := s.history.All()
	if records == nil {
		records = []types.BuildRecord{}
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) deleteHistory(c echo.Context) error {
	var req types.DeleteBuildsRequest
	if err := bindRequest(c, &req); err != nil {
		return err
	}
	if err := s.builder.DeleteBuilds(c.Request().Context(), req.Builds); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) lastFolder(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"folder": s.history.LastFolder()})
}

func (s *Server) uniqueID(c echo.Context) error {
	name := c.QueryParam("name")
	if name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"id": s.history.GenerateUniqueBuildID(name)})
}

// watchHistory streams the ledger after every change and the progress of
// running builds.
func (s *Server) watchHistory(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	var historyCh <-chan struct{}
	if s.notifier != nil {
		ch, unsubscribe := s.notifier.Subscribe()
		defer unsubscribe()
		historyCh = ch
	}
	progressCh, unsubscribe := s.tracker.Subscribe()
	defer unsubscribe()

	// The client only sends close frames; reading is how we notice them.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev types.WatchEvent) error {
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		return ws.WriteJSON(ev)
	}

	if err := send(types.WatchEvent{Kind: "history", History: s.history.All()}); err != nil {
		return nil
	}
	for _, p := range s.tracker.List() {
		if err := send(types.WatchEvent{Kind: "progress", Progress: &p}); err != nil {
			return nil
		}
	}

	for {
		select {
		case <-closed:
			return nil
		case _, ok := <-historyCh:
			if !ok {
				historyCh = nil
				continue
			}
			if err := send(types.WatchEvent{Kind: "history", History: s.history.All()}); err != nil {
				return nil
			}
		case p, ok := <-progressCh:
			if !ok {
				return nil
			}
			if err := send(types.WatchEvent{Kind: "progress", Progress: &p}); err != nil {
				return nil
			}
		}
	}
}
