package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// HeaderName carries the API key on requests from the CLI.
const HeaderName = "X-API-Key"

// KeyFromRequest returns the API key presented by r. It accepts the
// X-API-Key header, a bearer token, or the api_key query parameter, which
// browsers need for websocket upgrades.
func KeyFromRequest(r *http.Request) string {
	if key := r.Header.Get(HeaderName); key != "" {
		return key
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("api_key")
}

// APIKeyMiddleware rejects requests that do not present apiKey. An empty
// apiKey disables the check, which is the default for a local server.
func APIKeyMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return next(c)
			}

			provided := KeyFromRequest(c.Request())
			if provided == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "missing API key",
				})
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "invalid API key",
				})
			}
			return next(c)
		}
	}
}
