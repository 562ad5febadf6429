package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arc-self/dialpad-broker/internal/credential"
	"github.com/arc-self/dialpad-broker/internal/platform/tenantctx"
)

// internalAdminAuth guards /internal routes with a shared bearer secret.
// Comparison is constant-time for the same reason webhook signature
// comparison is: a timing difference across attempts would leak how much
// of the secret the caller already guessed.
func internalAdminAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			presented := c.Request().Header.Get("Authorization")
			const prefix = "Bearer "
			if len(presented) > len(prefix) && presented[:len(prefix)] == prefix {
				presented = presented[len(prefix):]
			} else {
				presented = ""
			}
			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
				return c.JSON(http.StatusUnauthorized, errResp("invalid internal admin credentials"))
			}
			return next(c)
		}
	}
}

// tenantAPIKeyAuth verifies the x-app-api-key header via the Credential
// Manager and stashes the resolved tenant id on the request context for
// every REST read handler.
func tenantAPIKeyAuth(cred *credential.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(tenantAPIKeyHeader)
			appID, err := cred.Verify(c.Request().Context(), raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errResp("invalid api key"))
			}
			ctx := tenantctx.WithAppID(c.Request().Context(), appID.String())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
