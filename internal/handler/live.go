package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/live"
)

// Live upgrades the request to a websocket subscribed to lot changes.
func Live(hub *live.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := hub.Serve(c.Response(), c.Request()); err != nil {
			c.Logger().Warn(err)
		}
		return nil
	}
}
