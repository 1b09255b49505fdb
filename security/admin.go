package security

import (
	"net/http"

	"github.com/labstack/echo/v5"
)

// AdminKeyMiddleware guards mutating inventory endpoints with a shared
// key checked against its bcrypt hash. An empty hash disables the check
// for development setups.
func AdminKeyMiddleware(keyHash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if keyHash == "" {
				return next(c)
			}
			if !CompareSecret(keyHash, c.Request().Header.Get("X-Admin-Key")) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid admin key")
			}
			return next(c)
		}
	}
}
