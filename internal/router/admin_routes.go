package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/handler"
	"github.com/iliyamo/parking-reservation/internal/middleware"
	"github.com/iliyamo/parking-reservation/internal/model"
)

// RegisterAdmin registers the ADMIN-only management endpoints.
func RegisterAdmin(e *echo.Echo, h *handler.AdminLotHandler, a *handler.AnalyticsHandler, jwtSecret string) {
	g := e.Group("/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/lots", h.Create)
	g.PATCH("/lots/:id", h.Update)
	g.DELETE("/lots/:id", h.Delete)
	g.GET("/lots/:id/spots", h.Spots)
	g.GET("/bookings", h.Bookings)
	g.GET("/analytics", a.Overview)
}
