package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/handler"
	"github.com/iliyamo/parking-reservation/internal/middleware"
	"github.com/iliyamo/parking-reservation/internal/model"
)

// RegisterBookings registers the booking endpoints.  limiter guards
// creation only; release and reads stay unthrottled.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, a *handler.AnalyticsHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	)
	g.POST("/bookings", h.Create, limiter)
	g.GET("/bookings", h.ListMine)
	g.POST("/bookings/export", h.Export)
	g.GET("/bookings/:id", h.Get)
	g.POST("/bookings/:id/release", h.Release)
	g.GET("/analytics/me", a.Me)
}
