package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/handler"
	"github.com/iliyamo/parking-reservation/internal/live"
	"github.com/iliyamo/parking-reservation/internal/middleware"
	"github.com/iliyamo/parking-reservation/internal/model"
)

// RegisterLots registers the browse endpoints for signed-in users.  cache
// is the lot-scoped response cache; pass a pass-through middleware to
// disable it.
func RegisterLots(e *echo.Echo, h *handler.LotHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/lots",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
		cache,
	)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/:id/spots", h.Spots)
	g.GET("/:id/availability", h.Availability)
}

// RegisterLive exposes the lot change stream.  Events carry only lot ids,
// so the socket is open to dashboards without a token.
func RegisterLive(e *echo.Echo, hub *live.Hub) {
	e.GET("/v1/lots/live", handler.Live(hub))
}
