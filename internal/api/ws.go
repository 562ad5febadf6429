package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// handleWebsocket hands the raw ResponseWriter/Request straight to the
// Fanout registry, which owns the handshake, upgrade, and keepalive loop
// end to end. The handler blocks for the life of the connection.
func handleWebsocket(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := d.Fanout.Upgrade(c.Response().Writer, c.Request()); err != nil {
			d.Logger.Warn("fanout upgrade failed", zap.Error(err))
			return nil
		}
		return nil
	}
}
