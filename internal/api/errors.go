package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/bootcforge/bootcforge/internal/build"
	"github.com/bootcforge/bootcforge/internal/vm"
)

var kindStatus = map[build.Kind]int{
	build.KindValidation:        http.StatusBadRequest,
	build.KindPrerequisite:      http.StatusPreconditionFailed,
	build.KindEngineUnavailable: http.StatusServiceUnavailable,
	build.KindPull:              http.StatusBadGateway,
	build.KindTimeout:           http.StatusGatewayTimeout,
	build.KindCanceled:          http.StatusConflict,
}

// statusFor maps an error to the HTTP status it is reported with.
func statusFor(err error) int {
	var missing *vm.MissingDiskError
	var unsupported *vm.UnsupportedError
	switch {
	case errors.Is(err, build.ErrOverwriteDeclined):
		return http.StatusConflict
	case errors.As(err, &missing):
		return http.StatusNotFound
	case errors.As(err, &unsupported):
		return http.StatusBadRequest
	}
	if code, ok := kindStatus[build.KindOf(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func errorJSON(c echo.Context, err error) error {
	return c.JSON(statusFor(err), map[string]string{
		"error": err.Error(),
	})
}

// httpErrorHandler renders errors returned by handlers as {"error": msg}.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"error": msg})
}

// bindRequest decodes the request body into dst and validates its struct
// tags. The returned error is a 400 *echo.HTTPError.
func bindRequest(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+bindMessage(err))
	}
	if err := c.Validate(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("%s is invalid (%s)", verrs[0].Field(), verrs[0].Tag()))
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func bindMessage(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return fmt.Sprint(he.Message)
	}
	return err.Error()
}
