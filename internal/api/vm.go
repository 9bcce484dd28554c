package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/bootcforge/bootcforge/pkg/types"
)

func (s *Server) launchVM(c echo.Context) error {
	if s.vms == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "vm support not configured",
		})
	}
	var req types.VMLaunchRequest
	if err := bindRequest(c, &req); err != nil {
		return err
	}

	if err := s.vms.CheckLaunch(req.Folder, req.Arch); err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			// Missing QEMU binaries or firmware.
			code = http.StatusPreconditionFailed
		}
		return c.JSON(code, map[string]string{
			"error": err.Error(),
		})
	}

	res, err := s.vms.Launch(c.Request().Context(), req.Folder, req.Arch)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) stopVM(c echo.Context) error {
	if s.vms == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "vm support not configured",
		})
	}
	if err := s.vms.Stop(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	return c.NoContent(http.StatusNoContent)
}

// vmConsole proxies a websocket to the serial console QEMU exposes on
// consoleAddr.
func (s *Server) vmConsole(c echo.Context) error {
	if s.vms == nil || s.consoleAddr == "" {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "vm support not configured",
		})
	}

	upstream, _, err := websocket.DefaultDialer.DialContext(c.Request().Context(), "ws://"+s.consoleAddr, nil)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "vm console is not reachable: " + err.Error(),
		})
	}
	defer upstream.Close()

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	done := make(chan struct{}, 2)
	go pump(ws, upstream, done)
	go pump(upstream, ws, done)
	<-done

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	deadline := time.Now().Add(time.Second)
	ws.WriteControl(websocket.CloseMessage, closeMsg, deadline)
	upstream.WriteControl(websocket.CloseMessage, closeMsg, deadline)
	return nil
}

// pump copies messages from src to dst until either side fails.
func pump(dst, src *websocket.Conn, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		mt, msg, err := src.ReadMessage()
		if err != nil {
			return
		}
		if err := dst.WriteMessage(mt, msg); err != nil {
			return
		}
	}
}
